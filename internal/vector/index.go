// Package vector provides the inverted-file (IVF) vector index used for
// content similarity search, with train/add/search/persist operations.
package vector

import "errors"

// ErrDimensionMismatch is returned when a vector's length does not match the
// index dimension. The operation is rejected; the index is unchanged.
var ErrDimensionMismatch = errors.New("vector: dimension mismatch")

// ErrCorrupt is returned when a persisted index file fails structural
// validation on load. Callers fall back to a fresh empty index.
var ErrCorrupt = errors.New("vector: corrupt index file")

// Result is a single search hit: the content id mapped to the matched slot
// and its similarity in (0, 1], where 1.0 means zero distance.
type Result struct {
	ContentID string
	Score     float64
}

// Stats reports the observable state of an index.
type Stats struct {
	TotalVectors int  `json:"total_vectors"`
	Dimension    int  `json:"dimension"`
	Trained      bool `json:"trained"`
}
