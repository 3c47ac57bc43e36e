package vecmath

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when two vectors of different length are compared.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Metric selects the comparison used by FindMostSimilar.
type Metric string

const (
	Cosine    Metric = "cosine"
	Dot       Metric = "dot"
	Euclidean Metric = "euclidean"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	switch m {
	case Cosine, Dot, Euclidean:
		return true
	}
	return false
}

// Vector is a candidate for nearest-neighbour search.
type Vector struct {
	ID     string
	Values []float32
}

// Match is a scored candidate. Score is a similarity for cosine and dot,
// and a distance for euclidean.
type Match struct {
	ID    string
	Index int
	Score float64
}

func mismatch(a, b int) error {
	return fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, a, b)
}

// DotProduct returns the inner product of a and b.
func DotProduct(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, mismatch(len(a), len(b))
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum, nil
}

// Magnitude returns the L2 norm of v.
func Magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// CosineSimilarity returns the cosine of the angle between a and b.
// It is exactly 0 when either vector has zero magnitude.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, mismatch(len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// EuclideanDistance returns the L2 distance between a and b.
func EuclideanDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, mismatch(len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Normalize returns a unit-length copy of v. A zero vector is returned as an
// unchanged copy.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)

	mag := Magnitude(v)
	if mag == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / mag)
	}
	return out
}

// Score compares a and b with the given metric.
func Score(metric Metric, a, b []float32) (float64, error) {
	switch metric {
	case Cosine:
		return CosineSimilarity(a, b)
	case Dot:
		return DotProduct(a, b)
	case Euclidean:
		return EuclideanDistance(a, b)
	default:
		return 0, fmt.Errorf("unknown metric %q", metric)
	}
}

// FindMostSimilar scores every candidate against query and returns the best
// topK. Cosine and dot are ordered by descending score, euclidean by ascending
// distance. Ties keep candidate order. topK <= 0 returns every candidate.
func FindMostSimilar(query []float32, candidates []Vector, metric Metric, topK int) ([]Match, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}

	matches := make([]Match, 0, len(candidates))
	for i, c := range candidates {
		score, err := Score(metric, query, c.Values)
		if err != nil {
			return nil, fmt.Errorf("candidate %q: %w", c.ID, err)
		}
		matches = append(matches, Match{ID: c.ID, Index: i, Score: score})
	}

	if metric == Euclidean {
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].Score < matches[j].Score
		})
	} else {
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].Score > matches[j].Score
		})
	}

	if topK > 0 && topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}
