package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dshills/songmatch-mcp/internal/vecmath"
)

// vectorSource names a table and BLOB column holding searchable vectors.
// Values are fixed constants, never user input.
type vectorSource struct {
	table  string
	idCol  string
	vecCol string
}

var (
	metadataSource = vectorSource{table: "songs", idCol: "id", vecCol: "embedding"}
	emotionSource  = vectorSource{table: "song_aboutness", idCol: "song_id", vecCol: "emotions_vector"}
)

// searchVector returns the k rows of src most similar to query by cosine.
// Rows stored with a different dimension are never compared.
func searchVector(ctx context.Context, q querier, src vectorSource, query []float32, k int) ([]VectorResult, error) {
	if k <= 0 || len(query) == 0 {
		return []VectorResult{}, nil
	}
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, q, src, query, k)
	}
	return searchVectorFallback(ctx, q, src, query, k)
}

// searchVectorOptimized lets sqlite-vec compute distances in SQL.
func searchVectorOptimized(ctx context.Context, q querier, src vectorSource, query []float32, k int) ([]VectorResult, error) {
	stmt := fmt.Sprintf(`
		SELECT %[2]s, 1.0 - vec_distance_cosine(%[3]s, ?) AS similarity
		FROM %[1]s
		WHERE %[3]s IS NOT NULL AND dimension = ?
		ORDER BY similarity DESC, %[2]s ASC
		LIMIT ?`, src.table, src.idCol, src.vecCol)

	rows, err := q.QueryContext(ctx, stmt, serializeVector(query), len(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, k)
	for rows.Next() {
		var r VectorResult
		if err := rows.Scan(&r.SongID, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// searchVectorFallback scores rows in Go for builds without sqlite-vec.
func searchVectorFallback(ctx context.Context, q querier, src vectorSource, query []float32, k int) ([]VectorResult, error) {
	stmt := fmt.Sprintf(`
		SELECT %[2]s, %[3]s FROM %[1]s
		WHERE %[3]s IS NOT NULL AND dimension = ?
		ORDER BY %[2]s ASC`, src.table, src.idCol, src.vecCol)

	rows, err := q.QueryContext(ctx, stmt, len(query))
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []vecmath.Vector
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		// dimension column and blob disagree; skip the corrupt row
		if len(blob) != len(query)*4 {
			continue
		}
		candidates = append(candidates, vecmath.Vector{ID: id, Values: deserializeVector(blob)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	matches, err := vecmath.FindMostSimilar(query, candidates, vecmath.Cosine, k)
	if err != nil {
		return nil, err
	}
	results := make([]VectorResult, len(matches))
	for i, m := range matches {
		results[i] = VectorResult{SongID: m.ID, Similarity: m.Score}
	}
	return results, nil
}

// serializeVector encodes a vector as a little-endian float32 BLOB
func serializeVector(vector []float32) []byte {
	if vector == nil {
		return nil
	}
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector decodes a BLOB written by serializeVector
func deserializeVector(blob []byte) []float32 {
	if len(blob) == 0 {
		return nil
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// Err reports a non-nil error wrapping vecmath.ErrDimensionMismatch when any
// stored vector disagrees with the expected dimension.
func (r *DimensionReport) Err() error {
	if r == nil || (r.SongMismatches == 0 && r.AboutnessMismatches == 0) {
		return nil
	}
	msg := fmt.Sprintf("%d song and %d aboutness vectors are not %d-dimensional",
		r.SongMismatches, r.AboutnessMismatches, r.Expected)
	if len(r.Samples) > 0 {
		msg += " (e.g. " + strings.Join(r.Samples, ", ") + ")"
	}
	return fmt.Errorf("%w: %s", vecmath.ErrDimensionMismatch, msg)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func stringArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
