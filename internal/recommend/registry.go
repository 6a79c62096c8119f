// Package recommend contains the hybrid recommendation core: the model
// registry, the scoring engine, and the trainer that rebuilds the vector
// index and factorization snapshot.
package recommend

import (
	"errors"
	"sync"

	"github.com/dummi-ai/dummi/internal/cf"
	"github.com/dummi-ai/dummi/internal/vector"
)

// ErrBusy is returned when a training run is requested while another is in
// progress. Training runs never queue.
var ErrBusy = errors.New("training already in progress")

// Registry holds the models currently being served. Swaps are atomic with
// respect to readers: a request sees either the old model or the new one,
// never a partial state. Either model may be absent before first training.
type Registry struct {
	mu       sync.RWMutex
	index    *vector.IVFIndex
	snapshot *cf.Snapshot

	trainMu sync.Mutex
}

// NewRegistry returns a registry serving the given models. Either may be nil.
func NewRegistry(index *vector.IVFIndex, snapshot *cf.Snapshot) *Registry {
	return &Registry{index: index, snapshot: snapshot}
}

// Index returns the currently served vector index, or nil.
func (r *Registry) Index() *vector.IVFIndex {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index
}

// Snapshot returns the currently served factorization snapshot, or nil.
func (r *Registry) Snapshot() *cf.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// SwapIndex replaces the served vector index.
func (r *Registry) SwapIndex(index *vector.IVFIndex) {
	r.mu.Lock()
	r.index = index
	r.mu.Unlock()
}

// SwapSnapshot replaces the served factorization snapshot.
func (r *Registry) SwapSnapshot(snapshot *cf.Snapshot) {
	r.mu.Lock()
	r.snapshot = snapshot
	r.mu.Unlock()
}

// TryBeginTraining acquires the training latch without blocking. It returns
// ErrBusy when another run holds it. Callers must pair a successful acquire
// with EndTraining.
func (r *Registry) TryBeginTraining() error {
	if !r.trainMu.TryLock() {
		return ErrBusy
	}
	return nil
}

// EndTraining releases the training latch.
func (r *Registry) EndTraining() {
	r.trainMu.Unlock()
}
