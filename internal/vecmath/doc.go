// Package vecmath provides the vector primitives used by retrieval: cosine,
// euclidean and dot-product comparisons, normalization, and a stable top-K
// nearest-neighbour scan.
//
// All functions are pure and safe for concurrent use. Any pair of vectors with
// different lengths is rejected with ErrDimensionMismatch; vectors are never
// padded or truncated to make them comparable.
//
//	matches, err := vecmath.FindMostSimilar(query, candidates, vecmath.Cosine, 10)
//	if errors.Is(err, vecmath.ErrDimensionMismatch) {
//	    // stored vectors were produced by a different embedding model
//	}
package vecmath
