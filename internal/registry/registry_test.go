package registry

import (
	"errors"
	"math/big"
	"testing"

	"github.com/hydrex-protocol/bribe-batcher/internal/domain"
)

func newBatch(id uint64, depositor string) *domain.Batch {
	return &domain.Batch{
		ID:           id,
		Depositor:    depositor,
		RewardToken:  "0xtoken",
		TotalAmount:  big.NewInt(1000),
		TotalPeriods: 4,
		Status:       domain.StatusPendingRecipients,
	}
}

func TestRegistryAllocateIDIsSequential(t *testing.T) {
	t.Parallel()

	r := New()
	if got := r.AllocateID(); got != 1 {
		t.Fatalf("first id = %d, want 1", got)
	}
	if got := r.AllocateID(); got != 2 {
		t.Fatalf("second id = %d, want 2", got)
	}
}

func TestRegistryPutAndGet(t *testing.T) {
	t.Parallel()

	r := New()
	if err := r.Put(newBatch(1, "0xdep")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := r.Get(1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Depositor != "0xdep" {
		t.Fatalf("Depositor = %s, want 0xdep", got.Depositor)
	}

	// Mutating the returned copy must not touch the stored record.
	got.TotalAmount.SetInt64(1)
	again, _ := r.Get(1)
	if again.TotalAmount.Int64() != 1000 {
		t.Fatalf("stored amount mutated through Get copy: %s", again.TotalAmount)
	}

	if _, err := r.Get(99); !errors.Is(err, domain.ErrBatchNotFound) {
		t.Fatalf("Get(99) error = %v, want ErrBatchNotFound", err)
	}
}

func TestRegistryPutRejectsDuplicates(t *testing.T) {
	t.Parallel()

	r := New()
	if err := r.Put(newBatch(1, "0xdep")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := r.Put(newBatch(1, "0xdep")); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestRegistryRestoreAdvancesIDCounter(t *testing.T) {
	t.Parallel()

	r := New()
	if err := r.Put(newBatch(7, "0xdep")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if got := r.AllocateID(); got != 8 {
		t.Fatalf("AllocateID() after restore = %d, want 8", got)
	}
}

func TestRegistryActiveSetMembership(t *testing.T) {
	t.Parallel()

	r := New()
	for i := uint64(1); i <= 3; i++ {
		if err := r.Put(newBatch(i, "0xdep")); err != nil {
			t.Fatalf("Put(%d) error = %v", i, err)
		}
	}

	if r.ActiveCount() != 3 {
		t.Fatalf("ActiveCount() = %d, want 3", r.ActiveCount())
	}
	if !r.Contains(2) {
		t.Fatal("batch 2 should be in active set")
	}

	// Terminal transition removes from the active set in the same commit.
	b, _ := r.Get(2)
	b.Status = domain.StatusStopped
	if err := r.Commit(b); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if r.Contains(2) {
		t.Fatal("stopped batch should leave the active set")
	}
	if r.ActiveCount() != 2 {
		t.Fatalf("ActiveCount() = %d, want 2", r.ActiveCount())
	}

	// The record itself survives removal from the index.
	got, err := r.Get(2)
	if err != nil {
		t.Fatalf("Get() after stop error = %v", err)
	}
	if got.Status != domain.StatusStopped {
		t.Fatalf("status = %s, want STOPPED", got.Status)
	}

	// Swap-remove keeps the remaining set dense and intact.
	remaining := map[uint64]bool{}
	for _, batch := range r.ListActive() {
		remaining[batch.ID] = true
	}
	if !remaining[1] || !remaining[3] || len(remaining) != 2 {
		t.Fatalf("active ids = %v, want {1,3}", remaining)
	}
}

func TestRegistryCommitUnknownBatch(t *testing.T) {
	t.Parallel()

	r := New()
	err := r.Commit(newBatch(5, "0xdep"))
	if !errors.Is(err, domain.ErrBatchNotFound) {
		t.Fatalf("Commit() error = %v, want ErrBatchNotFound", err)
	}
}

func TestRegistryListActivePaginated(t *testing.T) {
	t.Parallel()

	r := New()
	for i := uint64(1); i <= 5; i++ {
		if err := r.Put(newBatch(i, "0xdep")); err != nil {
			t.Fatalf("Put(%d) error = %v", i, err)
		}
	}

	tests := []struct {
		name      string
		offset    int
		limit     int
		wantLen   int
		wantTotal int
	}{
		{name: "first page", offset: 0, limit: 2, wantLen: 2, wantTotal: 5},
		{name: "middle page", offset: 2, limit: 2, wantLen: 2, wantTotal: 5},
		{name: "clamped last page", offset: 4, limit: 10, wantLen: 1, wantTotal: 5},
		{name: "offset past end", offset: 5, limit: 2, wantLen: 0, wantTotal: 5},
		{name: "offset far past end", offset: 50, limit: 2, wantLen: 0, wantTotal: 5},
		{name: "zero limit", offset: 0, limit: 0, wantLen: 0, wantTotal: 5},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			page, total := r.ListActivePaginated(tt.offset, tt.limit)
			if len(page) != tt.wantLen {
				t.Fatalf("len(page) = %d, want %d", len(page), tt.wantLen)
			}
			if total != tt.wantTotal {
				t.Fatalf("total = %d, want %d", total, tt.wantTotal)
			}
		})
	}
}

func TestRegistryListByDepositor(t *testing.T) {
	t.Parallel()

	r := New()
	if err := r.Put(newBatch(1, "0xalice")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := r.Put(newBatch(2, "0xbob")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := r.Put(newBatch(3, "0xalice")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// Stopping a batch does not prune it from the depositor index.
	b, _ := r.Get(3)
	b.Status = domain.StatusStopped
	if err := r.Commit(b); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	alice := r.ListByDepositor("0xalice")
	if len(alice) != 2 {
		t.Fatalf("alice batches = %d, want 2", len(alice))
	}
	if len(r.ListByDepositor("0xcarol")) != 0 {
		t.Fatal("unknown depositor should return empty slice")
	}
}
