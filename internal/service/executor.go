package service

import (
	"context"
	"fmt"
	"time"

	"github.com/hydrex-protocol/bribe-batcher/internal/domain"
	"go.uber.org/zap"
)

const defaultExecutorInterval = time.Minute

// Executor is the operator loop: it periodically walks the active set and
// runs one distribution period for every batch due in the current epoch.
// Each due batch is executed in its own call, so one misconfigured batch
// never blocks the rest of the set.
type Executor struct {
	scheduler *Scheduler
	logger    *zap.Logger
	interval  time.Duration
}

func NewExecutor(scheduler *Scheduler, interval time.Duration, logger *zap.Logger) (*Executor, error) {
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if interval <= 0 {
		interval = defaultExecutorInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{
		scheduler: scheduler,
		logger:    logger,
		interval:  interval,
	}, nil
}

func (e *Executor) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial pass so batches already due do not wait for the first
	// ticker edge.
	e.runDue(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.runDue(ctx)
		}
	}
}

func (e *Executor) runDue(ctx context.Context) {
	epoch := e.scheduler.CurrentEpoch()

	executed := 0
	for _, batch := range e.scheduler.ListActive() {
		if !dueForExecution(&batch, epoch) {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		if _, _, err := e.scheduler.ExecuteBatches(ctx, []uint64{batch.ID}); err != nil {
			e.logger.Error("failed to execute due batch",
				zap.Uint64("batchId", batch.ID),
				zap.Uint64("epoch", epoch),
				zap.Error(err),
			)
			continue
		}
		executed++
	}

	if executed > 0 {
		e.logger.Info("executor pass completed",
			zap.Uint64("epoch", epoch),
			zap.Int("executed", executed),
		)
	}
}

// dueForExecution reports whether the batch can take a period in this epoch.
// Pending batches without a recipient config are skipped; they wait for a
// populate call.
func dueForExecution(b *domain.Batch, epoch uint64) bool {
	switch b.Status {
	case domain.StatusPendingRecipients:
		return len(b.Recipients) > 0
	case domain.StatusActive:
		return b.LastExecutedEpoch == nil || epoch > *b.LastExecutedEpoch
	}
	return false
}
