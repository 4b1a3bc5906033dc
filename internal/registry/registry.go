// Package registry owns the in-memory batch store and its indices: the dense
// active-set index (O(1) insert, membership, swap-remove) and the append-only
// per-depositor index. All state is private to the Registry struct and
// mutated only through its API under a single lock.
package registry

import (
	"fmt"
	"sync"

	"github.com/hydrex-protocol/bribe-batcher/internal/domain"
)

type Registry struct {
	mu sync.RWMutex

	nextID  uint64
	batches map[uint64]*domain.Batch

	// Active-set index: dense id slice plus id -> slice position.
	active    []uint64
	activePos map[uint64]int

	// Secondary index, populated at creation, never pruned.
	byDepositor map[string][]uint64
}

func New() *Registry {
	return &Registry{
		nextID:      1,
		batches:     make(map[uint64]*domain.Batch),
		activePos:   make(map[uint64]int),
		byDepositor: make(map[string][]uint64),
	}
}

// AllocateID reserves the next sequential batch id. Ids are never reused,
// even when the caller later fails to insert the batch.
func (r *Registry) AllocateID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	return id
}

// Put inserts a batch under its pre-assigned id. Live batches enter the
// active set and the depositor index in the same critical section as the
// record itself. Also used for journal replay at startup, where it advances
// the id counter past restored ids.
func (r *Registry) Put(b *domain.Batch) error {
	if b == nil || b.ID == 0 {
		return fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.batches[b.ID]; ok {
		return fmt.Errorf("%w: batch %d already exists", domain.ErrValidation, b.ID)
	}

	stored := b.Clone()
	r.batches[b.ID] = stored
	r.byDepositor[stored.Depositor] = append(r.byDepositor[stored.Depositor], b.ID)
	if !stored.Status.IsTerminal() {
		r.insertActiveLocked(b.ID)
	}
	if b.ID >= r.nextID {
		r.nextID = b.ID + 1
	}
	return nil
}

// Get returns a deep copy of the batch so callers can stage mutations and
// commit them back atomically.
func (r *Registry) Get(id uint64) (*domain.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.batches[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", domain.ErrBatchNotFound, id)
	}
	return b.Clone(), nil
}

// Commit replaces the stored record and linearizes the active-set mutation
// with the status transition: a batch is never observable as terminal while
// still in the active set, or vice versa.
func (r *Registry) Commit(b *domain.Batch) error {
	if b == nil || b.ID == 0 {
		return fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.batches[b.ID]; !ok {
		return fmt.Errorf("%w: id %d", domain.ErrBatchNotFound, b.ID)
	}

	r.batches[b.ID] = b.Clone()
	_, inActive := r.activePos[b.ID]
	switch {
	case b.Status.IsTerminal() && inActive:
		r.removeActiveLocked(b.ID)
	case !b.Status.IsTerminal() && !inActive:
		r.insertActiveLocked(b.ID)
	}
	return nil
}

// Contains reports whether the batch is in the active set.
func (r *Registry) Contains(id uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.activePos[id]
	return ok
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.active)
}

func (r *Registry) ListActive() []domain.Batch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Batch, 0, len(r.active))
	for _, id := range r.active {
		out = append(out, *r.batches[id].Clone())
	}
	return out
}

// ListActivePaginated returns the active window [offset, offset+limit) and
// the total active count. The end is clamped; an offset at or past the end
// yields an empty slice.
func (r *Registry) ListActivePaginated(offset, limit int) ([]domain.Batch, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := len(r.active)
	if offset < 0 || limit < 0 || offset >= total {
		return []domain.Batch{}, total
	}

	end := offset + limit
	if end > total {
		end = total
	}

	out := make([]domain.Batch, 0, end-offset)
	for _, id := range r.active[offset:end] {
		out = append(out, *r.batches[id].Clone())
	}
	return out, total
}

func (r *Registry) ListByDepositor(depositor string) []domain.Batch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byDepositor[depositor]
	out := make([]domain.Batch, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.batches[id].Clone())
	}
	return out
}

func (r *Registry) insertActiveLocked(id uint64) {
	r.activePos[id] = len(r.active)
	r.active = append(r.active, id)
}

// removeActiveLocked swaps the target with the last element and pops, keeping
// the slice dense.
func (r *Registry) removeActiveLocked(id uint64) {
	pos, ok := r.activePos[id]
	if !ok {
		return
	}

	last := len(r.active) - 1
	if pos != last {
		moved := r.active[last]
		r.active[pos] = moved
		r.activePos[moved] = pos
	}
	r.active = r.active[:last]
	delete(r.activePos, id)
}
