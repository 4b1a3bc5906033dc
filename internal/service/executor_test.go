package service

import (
	"context"
	"math/big"
	"testing"

	"github.com/hydrex-protocol/bribe-batcher/internal/domain"
)

func TestDueForExecution(t *testing.T) {
	t.Parallel()

	three := uint64(3)

	tests := []struct {
		name  string
		batch domain.Batch
		epoch uint64
		want  bool
	}{
		{
			name:  "pending with config",
			batch: domain.Batch{Status: domain.StatusPendingRecipients, Recipients: singleRecipient("0xsink")},
			epoch: 0,
			want:  true,
		},
		{
			name:  "pending without config waits",
			batch: domain.Batch{Status: domain.StatusPendingRecipients},
			epoch: 5,
			want:  false,
		},
		{
			name:  "active in a later epoch",
			batch: domain.Batch{Status: domain.StatusActive, LastExecutedEpoch: &three},
			epoch: 4,
			want:  true,
		},
		{
			name:  "active in the same epoch",
			batch: domain.Batch{Status: domain.StatusActive, LastExecutedEpoch: &three},
			epoch: 3,
			want:  false,
		},
		{
			name:  "finished never due",
			batch: domain.Batch{Status: domain.StatusFinished},
			epoch: 9,
			want:  false,
		},
		{
			name:  "stopped never due",
			batch: domain.Batch{Status: domain.StatusStopped},
			epoch: 9,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := dueForExecution(&tt.batch, tt.epoch); got != tt.want {
				t.Fatalf("dueForExecution() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExecutorRunDueExecutesOnlyDueBatches(t *testing.T) {
	t.Parallel()

	svc := newTestScheduler(t, nil, nil, nil)

	ready := mustCreate(t, svc, CreateParams{
		Depositor: "0xd", RewardToken: "0xt",
		TotalAmount: big.NewInt(100), TotalPeriods: 2,
		Recipients: singleRecipient("0xsink"),
	})
	waiting := mustCreate(t, svc, CreateParams{
		Depositor: "0xd", RewardToken: "0xt",
		TotalAmount: big.NewInt(100), TotalPeriods: 2,
	})

	executor, err := NewExecutor(svc, 0, nil)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	executor.runDue(context.Background())

	got, _ := svc.Get(ready.ID)
	if got.PeriodsExecuted != 1 {
		t.Fatalf("ready batch periodsExecuted = %d, want 1", got.PeriodsExecuted)
	}

	got, _ = svc.Get(waiting.ID)
	if got.PeriodsExecuted != 0 {
		t.Fatalf("waiting batch periodsExecuted = %d, want 0", got.PeriodsExecuted)
	}

	// Second pass in the same epoch finds nothing due.
	executor.runDue(context.Background())
	got, _ = svc.Get(ready.ID)
	if got.PeriodsExecuted != 1 {
		t.Fatalf("periodsExecuted = %d after same-epoch pass, want 1", got.PeriodsExecuted)
	}
}

func TestExecutorIsolatesFailures(t *testing.T) {
	t.Parallel()

	sinks := &fakeSink{
		notifyFn: func(ctx context.Context, recipient, asset string, amount *big.Int) error {
			if recipient == "0xbroken" {
				return context.DeadlineExceeded
			}
			return nil
		},
	}

	svc := newTestScheduler(t, nil, sinks, nil)
	broken := mustCreate(t, svc, CreateParams{
		Depositor: "0xd", RewardToken: "0xt",
		TotalAmount: big.NewInt(100), TotalPeriods: 2,
		Recipients: singleRecipient("0xbroken"),
	})
	healthy := mustCreate(t, svc, CreateParams{
		Depositor: "0xd", RewardToken: "0xt",
		TotalAmount: big.NewInt(100), TotalPeriods: 2,
		Recipients: singleRecipient("0xgood"),
	})

	executor, err := NewExecutor(svc, 0, nil)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	executor.runDue(context.Background())

	got, _ := svc.Get(healthy.ID)
	if got.PeriodsExecuted != 1 {
		t.Fatalf("healthy batch periodsExecuted = %d, want 1", got.PeriodsExecuted)
	}
	got, _ = svc.Get(broken.ID)
	if got.PeriodsExecuted != 0 {
		t.Fatalf("broken batch periodsExecuted = %d, want 0", got.PeriodsExecuted)
	}
}
