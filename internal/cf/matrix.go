// Package cf implements the collaborative-filtering model: a weighted
// user-item interaction matrix factorized into latent user and item factors
// by non-negative matrix factorization.
package cf

import (
	"errors"

	"github.com/dummi-ai/dummi/internal/models"
)

// ErrNoData is returned when training is requested with an empty interaction
// log. It is a reportable outcome, not an operator error.
var ErrNoData = errors.New("cf: no interaction data")

// Per-event weights accumulated into the interaction matrix. Unrecognized
// types fall back to defaultWeight.
const defaultWeight = 1.0

var interactionWeights = map[string]float64{
	models.InteractionLike:     5.0,
	models.InteractionClick:    2.0,
	models.InteractionViewTime: 1.0,
	models.InteractionSkip:     -1.0,
}

// Matrix is a dense user×item weight matrix with invertible id/row mappings.
// Rows and columns are assigned in first-seen event order.
type Matrix struct {
	Weights [][]float64
	UserIDs []string
	ItemIDs []string

	userIdx map[string]int
	itemIdx map[string]int
}

// BuildInteractionMatrix accumulates the event log into a dense matrix. Each
// event adds its type's weight to cell (user, item); multiple events for the
// same pair sum. Negative totals (from skips) are preserved here and clamped
// only at training time.
func BuildInteractionMatrix(events []*models.InteractionEvent) *Matrix {
	m := &Matrix{
		userIdx: make(map[string]int),
		itemIdx: make(map[string]int),
	}
	for _, ev := range events {
		if _, ok := m.userIdx[ev.UserID]; !ok {
			m.userIdx[ev.UserID] = len(m.UserIDs)
			m.UserIDs = append(m.UserIDs, ev.UserID)
		}
		if _, ok := m.itemIdx[ev.ContentID]; !ok {
			m.itemIdx[ev.ContentID] = len(m.ItemIDs)
			m.ItemIDs = append(m.ItemIDs, ev.ContentID)
		}
	}

	m.Weights = make([][]float64, len(m.UserIDs))
	for i := range m.Weights {
		m.Weights[i] = make([]float64, len(m.ItemIDs))
	}
	for _, ev := range events {
		w, ok := interactionWeights[ev.Type]
		if !ok {
			w = defaultWeight
		}
		m.Weights[m.userIdx[ev.UserID]][m.itemIdx[ev.ContentID]] += w
	}
	return m
}

// WeightAt returns the accumulated raw weight for a (user, item) pair and
// whether both ids are present in the matrix.
func (m *Matrix) WeightAt(userID, itemID string) (float64, bool) {
	u, ok := m.userIdx[userID]
	if !ok {
		return 0, false
	}
	i, ok := m.itemIdx[itemID]
	if !ok {
		return 0, false
	}
	return m.Weights[u][i], true
}
