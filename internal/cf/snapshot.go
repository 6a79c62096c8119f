package cf

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"sort"
	"time"
)

// Snapshot is an immutable trained factorization model: factor matrices, the
// id/row mappings, and training metadata. A new training run produces a new
// snapshot that atomically replaces the old one for serving. Ids absent from
// the mappings are structurally unknown to the model, not an error.
type Snapshot struct {
	UserFactors [][]float64 // n_users × K
	ItemFactors [][]float64 // n_items × K
	UserIndex   map[string]int
	ItemIndex   map[string]int
	UserIDs     []string // row -> user id
	ItemIDs     []string // row -> item id
	Factors     int
	RMSE        float64
	TrainedAt   time.Time
}

// Scored pairs an id with a model score.
type Scored struct {
	ID    string
	Score float64
}

// NUsers returns the number of users known to the model.
func (s *Snapshot) NUsers() int { return len(s.UserIDs) }

// NItems returns the number of items known to the model.
func (s *Snapshot) NItems() int { return len(s.ItemIDs) }

// PredictRating returns the dot product of the user and item factor rows.
// ok is false when either id is unknown to the trained mapping: the
// structural cold-start signal, consumed by the hybrid scorer.
func (s *Snapshot) PredictRating(userID, itemID string) (rating float64, ok bool) {
	u, uok := s.UserIndex[userID]
	i, iok := s.ItemIndex[itemID]
	if !uok || !iok {
		return 0, false
	}
	return dot(s.UserFactors[u], s.ItemFactors[i]), true
}

// RecommendForUser predicts ratings against every known item, excludes the
// given ids, and returns the top n by descending score with ties broken by
// ascending item id. An unknown user yields an empty list.
func (s *Snapshot) RecommendForUser(userID string, n int, exclude map[string]bool) []Scored {
	u, ok := s.UserIndex[userID]
	if !ok || n <= 0 {
		return nil
	}
	userRow := s.UserFactors[u]
	scored := make([]Scored, 0, len(s.ItemIDs))
	for i, itemID := range s.ItemIDs {
		if exclude[itemID] {
			continue
		}
		scored = append(scored, Scored{ID: itemID, Score: dot(userRow, s.ItemFactors[i])})
	}
	sortScored(scored)
	if n < len(scored) {
		scored = scored[:n]
	}
	return scored
}

// FindSimilarUsers returns the top n users by cosine similarity of factor
// rows, self excluded. A zero-norm row has similarity zero to everything.
func (s *Snapshot) FindSimilarUsers(userID string, n int) []Scored {
	u, ok := s.UserIndex[userID]
	if !ok || n <= 0 {
		return nil
	}
	userRow := s.UserFactors[u]
	scored := make([]Scored, 0, len(s.UserIDs)-1)
	for i, otherID := range s.UserIDs {
		if i == u {
			continue
		}
		scored = append(scored, Scored{ID: otherID, Score: cosine(userRow, s.UserFactors[i])})
	}
	sortScored(scored)
	if n < len(scored) {
		scored = scored[:n]
	}
	return scored
}

func sortScored(scored []Scored) {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
}

// Encode serializes the snapshot for persistence.
func (s *Snapshot) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot restores a snapshot from its encoded form and validates the
// structural invariants (matrix shapes consistent with the id mappings).
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if len(s.UserFactors) != len(s.UserIDs) || len(s.ItemFactors) != len(s.ItemIDs) {
		return nil, fmt.Errorf("decode snapshot: factor matrices do not match id mappings")
	}
	if len(s.UserIndex) != len(s.UserIDs) || len(s.ItemIndex) != len(s.ItemIDs) {
		return nil, fmt.Errorf("decode snapshot: id maps are not bijective")
	}
	return &s, nil
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func cosine(a, b []float64) float64 {
	var dotProd, normA, normB float64
	for i := range a {
		dotProd += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProd / (math.Sqrt(normA) * math.Sqrt(normB))
}
