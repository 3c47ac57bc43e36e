// Package reranker combines per-signal scores into one bounded, ordered
// candidate list.
//
// Ranking runs in three stages, each usable on its own:
//
//	Normalize -> Combine (with Penalty) -> present
//
// The combined score is
//
//	final = clamp(sem*w_sem + kw*w_kw + pop*w_pop + clar*w_clar - penalty, 0, 1)
//
// where penalty is base*0.8 for a recently played song plus base*0.2 for a
// song from an avoided decade.
package reranker

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

const (
	// MaxResults bounds every ranking.
	MaxResults = 20

	// DefaultClarity is used when a candidate has no clarity signal.
	DefaultClarity = 0.5

	recentShare = 0.8
	decadeShare = 0.2
)

// Normalized holds the [0,1] inputs of Combine.
type Normalized struct {
	Semantic   float64
	Keyword    float64
	Popularity float64
	Clarity    float64
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

// Normalize maps a candidate's raw signals onto [0,1].
func Normalize(c *Candidate) Normalized {
	clarity := DefaultClarity
	if c.Clarity != nil {
		clarity = *c.Clarity
	}
	return Normalized{
		Semantic:   clamp01(c.Signals.Semantic),
		Keyword:    clamp01(c.Signals.Keyword),
		Popularity: clamp01(float64(c.Popularity) / 100),
		Clarity:    clamp01(clarity),
	}
}

// Penalty returns the repetition penalty for c. Conditions add up. A recent
// song matches on either the candidate's id or its original catalog id.
func Penalty(c *Candidate, ctx *Context, base float64) float64 {
	if ctx == nil {
		return 0
	}
	var p float64
	for _, id := range ctx.RecentSongs {
		if id == c.SongID || (c.OriginalID != "" && id == c.OriginalID) {
			p += base * recentShare
			break
		}
	}
	if d := c.decade(); d != 0 {
		for _, avoid := range ctx.AvoidDecades {
			if avoid == d {
				p += base * decadeShare
				break
			}
		}
	}
	return p
}

// Combine produces the final score.
func Combine(n Normalized, w Weights, penalty float64) float64 {
	return clamp01(n.Semantic*w.Semantic +
		n.Keyword*w.Keyword +
		n.Popularity*w.Popularity +
		n.Clarity*w.Clarity -
		penalty)
}

// Score fills c.Score from the given weights and context.
func Score(c *Candidate, w Weights, ctx *Context) {
	n := Normalize(c)
	p := Penalty(c, ctx, w.RepetitionPenalty)
	c.Score = Breakdown{
		Semantic:   n.Semantic,
		Keyword:    n.Keyword,
		Popularity: n.Popularity,
		Clarity:    n.Clarity,
		Penalty:    p,
		Final:      Combine(n, w, p),
	}
}

// present orders scored candidates by descending final score, keeping input
// order on ties, and bounds the list.
func present(cands []Candidate, limit int) []Candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Score.Final > cands[j].Score.Final
	})
	if len(cands) > limit {
		cands = cands[:limit]
	}
	return cands
}

// Reranker ranks candidates with hot-swappable weights. It is safe for
// concurrent use.
type Reranker struct {
	mu      sync.RWMutex
	weights Weights
	limit   int
	logger  zerolog.Logger
	score   func(*Candidate, Weights, *Context)
}

// New creates a reranker.
func New(w Weights, logger zerolog.Logger) (*Reranker, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Reranker{
		weights: w,
		limit:   MaxResults,
		logger:  logger.With().Str("component", "reranker").Logger(),
		score:   Score,
	}, nil
}

// Weights returns the current weights.
func (r *Reranker) Weights() Weights {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.weights
}

// UpdateWeights merges u into the current weights. Invalid results are
// rejected and leave the weights unchanged.
func (r *Reranker) UpdateWeights(u WeightsUpdate) (Weights, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := u.Apply(r.weights)
	if err := next.Validate(); err != nil {
		return r.weights, err
	}
	r.weights = next
	r.logger.Info().
		Float64("semantic", next.Semantic).
		Float64("keyword", next.Keyword).
		Float64("popularity", next.Popularity).
		Float64("clarity", next.Clarity).
		Float64("repetition_penalty", next.RepetitionPenalty).
		Msg("ranking weights updated")
	return next, nil
}

// Rank scores and orders candidates, returning at most MaxResults. The
// input slice is not modified. Rank never panics: on an internal failure it
// logs and returns the input order, bounded.
func (r *Reranker) Rank(candidates []Candidate, query string, ctx *Context) (out []Candidate) {
	if len(candidates) == 0 {
		return []Candidate{}
	}

	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Err(fmt.Errorf("rank panic: %v", rec)).
				Int("candidates", len(candidates)).
				Msg("ranking failed, returning unranked candidates")
			n := min(len(candidates), r.limit)
			out = make([]Candidate, n)
			copy(out, candidates[:n])
		}
	}()

	w := r.Weights()
	for i := range ranked {
		r.score(&ranked[i], w, ctx)
	}
	out = present(ranked, r.limit)

	r.logger.Debug().
		Int("query_len", len(query)).
		Int("candidates", len(candidates)).
		Int("returned", len(out)).
		Msg("ranked")
	return out
}
