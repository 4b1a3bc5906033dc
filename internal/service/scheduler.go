package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hydrex-protocol/bribe-batcher/internal/custody"
	"github.com/hydrex-protocol/bribe-batcher/internal/domain"
	"github.com/hydrex-protocol/bribe-batcher/internal/events"
	"github.com/hydrex-protocol/bribe-batcher/internal/locking"
	"github.com/hydrex-protocol/bribe-batcher/internal/observability"
	"github.com/hydrex-protocol/bribe-batcher/internal/registry"
	"github.com/hydrex-protocol/bribe-batcher/internal/repository"
	"github.com/hydrex-protocol/bribe-batcher/internal/sink"
	"go.uber.org/zap"
)

const (
	// schedulerLockKey is the cross-replica lease guarding every mutation.
	schedulerLockKey = "bribe-batcher:scheduler"
	schedulerLockTTL = 30 * time.Second
)

// Scheduler owns the batch lifecycle. Every mutating call runs under one
// in-process mutex plus a cross-replica lease, so state changes observe
// ledger-like serialization: a call either commits fully or leaves the
// registry and journal untouched.
//
// Mutations are staged on deep copies; the registry and journal only see the
// staged record after every collaborator call has succeeded.
type Scheduler struct {
	mu sync.Mutex

	registry  *registry.Registry
	journal   repository.JournalRepository
	custody   custody.Custody
	sinks     sink.Sink
	publisher events.Publisher
	locker    locking.Locker
	clock     domain.EpochClock
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// CreateParams carries the immutable creation-time inputs of a batch.
// Recipients may be empty, in which case the batch waits in
// PENDING_RECIPIENTS until populated. ExecuteImmediately runs the first
// period in the same call and requires a recipient config.
type CreateParams struct {
	Depositor          string
	RewardToken        string
	TotalAmount        *big.Int
	TotalPeriods       uint64
	Recipients         domain.RecipientConfig
	ExecuteImmediately bool
}

func NewScheduler(
	reg *registry.Registry,
	journal repository.JournalRepository,
	treasury custody.Custody,
	sinks sink.Sink,
	publisher events.Publisher,
	locker locking.Locker,
	clock domain.EpochClock,
	logger *zap.Logger,
) (*Scheduler, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if journal == nil {
		return nil, fmt.Errorf("journal repository is required")
	}
	if treasury == nil {
		return nil, fmt.Errorf("custody collaborator is required")
	}
	if sinks == nil {
		return nil, fmt.Errorf("sink collaborator is required")
	}
	if locker == nil {
		locker = locking.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		registry:  reg,
		journal:   journal,
		custody:   treasury,
		sinks:     sinks,
		publisher: publisher,
		locker:    locker,
		clock:     clock,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Load rebuilds the registry from the journal. Called once at startup before
// the API accepts traffic.
func (s *Scheduler) Load(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	batches, err := s.journal.LoadBatches(ctx)
	if err != nil {
		return fmt.Errorf("failed to load batch journal: %w", err)
	}

	for i := range batches {
		if err := s.registry.Put(&batches[i]); err != nil {
			return fmt.Errorf("failed to restore batch %d: %w", batches[i].ID, err)
		}
	}

	s.logger.Info("batch registry restored",
		zap.Int("batches", len(batches)),
		zap.Int("active", s.registry.ActiveCount()),
	)
	s.updateActiveGauge()
	return nil
}

// Create escrows the total amount from the depositor and registers the batch.
// The batch starts in PENDING_RECIPIENTS regardless of whether a recipient
// config was supplied; the first execution moves it to ACTIVE.
func (s *Scheduler) Create(ctx context.Context, params CreateParams) (*domain.Batch, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := s.now().UTC()
	batch := &domain.Batch{
		Depositor:    params.Depositor,
		RewardToken:  params.RewardToken,
		TotalAmount:  params.TotalAmount,
		TotalPeriods: params.TotalPeriods,
		StartTime:    now,
		Status:       domain.StatusPendingRecipients,
		Recipients:   params.Recipients,
	}
	if err := batch.ValidateNew(); err != nil {
		return nil, err
	}
	if params.ExecuteImmediately && len(params.Recipients) == 0 {
		return nil, fmt.Errorf("%w: executeImmediately requires a recipient config", domain.ErrValidation)
	}

	unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Escrow before anything is recorded; a custody failure surfaces as-is.
	if err := s.custody.TransferIn(ctx, batch.Depositor, batch.RewardToken, batch.TotalAmount); err != nil {
		return nil, err
	}

	batch.ID = s.registry.AllocateID()

	var execution *domain.Execution
	if params.ExecuteImmediately {
		exec, execErr := s.executeStaged(ctx, batch, s.clock.CurrentEpoch(s.now()))
		if execErr != nil {
			s.refundEscrow(ctx, batch)
			return nil, execErr
		}
		execution = exec
	}

	if execution != nil {
		err = s.journal.SaveBatchWithExecution(ctx, batch, *execution)
	} else {
		err = s.journal.SaveBatch(ctx, batch)
	}
	if err != nil {
		s.refundEscrow(ctx, batch)
		return nil, fmt.Errorf("failed to persist batch: %w", err)
	}
	if err := s.registry.Put(batch); err != nil {
		return nil, err
	}

	s.logger.Info("batch created",
		zap.Uint64("batchId", batch.ID),
		zap.String("depositor", batch.Depositor),
		zap.String("rewardToken", batch.RewardToken),
		zap.String("totalAmount", batch.TotalAmount.String()),
		zap.Uint64("totalPeriods", batch.TotalPeriods),
	)
	s.metrics.IncBatchCreated(batch.RewardToken)
	s.updateActiveGauge()
	s.publish(ctx, events.BatchEvent{
		Kind:        events.KindBatchCreated,
		BatchID:     batch.ID,
		RewardToken: batch.RewardToken,
		Amount:      batch.TotalAmount.String(),
	})
	if execution != nil {
		s.recordExecution(ctx, batch, execution)
	}

	return batch.Clone(), nil
}

// PopulateRecipients validates and overwrites the recipient config of a live
// batch, optionally running the first execution in the same call. The config
// change and the execution commit as one unit.
func (s *Scheduler) PopulateRecipients(
	ctx context.Context,
	batchID uint64,
	config domain.RecipientConfig,
	executeImmediately bool,
) (*domain.Batch, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	staged, err := s.registry.Get(batchID)
	if err != nil {
		return nil, err
	}
	if err := guardLive(staged); err != nil {
		return nil, err
	}

	firstPopulation := len(staged.Recipients) == 0
	staged.Recipients = config
	staged.UpdatedAt = s.now().UTC()

	var execution *domain.Execution
	if executeImmediately {
		epoch := s.clock.CurrentEpoch(s.now())
		exec, execErr := s.executeStaged(ctx, staged, epoch)
		if execErr != nil {
			return nil, execErr
		}
		execution = exec
	}

	if execution != nil {
		err = s.journal.CommitExecutions(ctx, []*domain.Batch{staged}, []domain.Execution{*execution})
	} else {
		err = s.journal.UpdateBatch(ctx, staged)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to persist recipient config for batch %d: %w", batchID, err)
	}
	if err := s.registry.Commit(staged); err != nil {
		return nil, err
	}

	kind := events.KindRecipientsUpdated
	if firstPopulation {
		kind = events.KindRecipientsPopulated
	}
	s.logger.Info("recipient config applied",
		zap.Uint64("batchId", batchID),
		zap.Int("recipients", len(config)),
		zap.Bool("executed", execution != nil),
	)
	s.publish(ctx, events.BatchEvent{Kind: kind, BatchID: batchID, RewardToken: staged.RewardToken})
	if execution != nil {
		s.recordExecution(ctx, staged, execution)
	}
	s.updateActiveGauge()

	return staged.Clone(), nil
}

// ExecuteBatches runs one distribution period for every listed batch and
// returns the epoch the call gated on. All-or-nothing across the list: one
// bad id fails the whole call and no batch's state moves. Duplicate ids
// within one call see each other's staged state, so a repeated id fails the
// epoch gate rather than double-paying.
//
// Guards run for the whole list before any collaborator is touched, so a
// rejected id never follows a payment.
func (s *Scheduler) ExecuteBatches(ctx context.Context, batchIDs []uint64) ([]domain.Batch, uint64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(batchIDs) == 0 {
		return nil, 0, fmt.Errorf("%w: at least one batch id is required", domain.ErrValidation)
	}

	unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer unlock()

	start := s.now()
	epoch := s.clock.CurrentEpoch(start)

	stagedByID := make(map[uint64]*domain.Batch, len(batchIDs))
	staged := make([]*domain.Batch, 0, len(batchIDs))
	executions := make([]domain.Execution, 0, len(batchIDs))

	for _, id := range batchIDs {
		batch, ok := stagedByID[id]
		if !ok {
			loaded, getErr := s.registry.Get(id)
			if getErr != nil {
				return nil, 0, getErr
			}
			batch = loaded
			stagedByID[id] = batch
			staged = append(staged, batch)
		}

		execution, execErr := s.stagePeriod(batch, epoch)
		if execErr != nil {
			return nil, 0, fmt.Errorf("batch %d: %w", id, execErr)
		}
		executions = append(executions, *execution)
	}

	for i := range executions {
		batch := stagedByID[executions[i].BatchID]
		if err := s.payout(ctx, batch, executions[i].Amount); err != nil {
			return nil, 0, fmt.Errorf("batch %d: %w", batch.ID, err)
		}
	}

	if err := s.journal.CommitExecutions(ctx, staged, executions); err != nil {
		return nil, 0, fmt.Errorf("failed to persist executions: %w", err)
	}
	for _, batch := range staged {
		if err := s.registry.Commit(batch); err != nil {
			return nil, 0, err
		}
	}

	s.logger.Info("batches executed",
		zap.Uint64("epoch", epoch),
		zap.Int("batches", len(staged)),
		zap.Int("periods", len(executions)),
	)
	for i := range executions {
		s.recordExecution(ctx, stagedByID[executions[i].BatchID], &executions[i])
	}
	s.metrics.ObserveExecutionDuration(s.now().Sub(start))
	s.updateActiveGauge()

	out := make([]domain.Batch, 0, len(staged))
	for _, batch := range staged {
		out = append(out, *batch.Clone())
	}
	return out, epoch, nil
}

// Stop halts a live batch. Terminal and irreversible; the escrowed remainder
// stays in custody until swept.
func (s *Scheduler) Stop(ctx context.Context, batchID uint64) (*domain.Batch, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	staged, err := s.registry.Get(batchID)
	if err != nil {
		return nil, err
	}
	if err := guardLive(staged); err != nil {
		return nil, err
	}

	staged.Status = domain.StatusStopped
	staged.UpdatedAt = s.now().UTC()

	if err := s.journal.UpdateBatch(ctx, staged); err != nil {
		return nil, fmt.Errorf("failed to persist stop for batch %d: %w", batchID, err)
	}
	if err := s.registry.Commit(staged); err != nil {
		return nil, err
	}

	s.logger.Info("batch stopped",
		zap.Uint64("batchId", batchID),
		zap.Uint64("periodsExecuted", staged.PeriodsExecuted),
		zap.String("remaining", staged.RemainingAmount().String()),
	)
	s.metrics.IncBatchStopped(staged.RewardToken)
	s.updateActiveGauge()
	s.publish(ctx, events.BatchEvent{
		Kind:        events.KindBatchStopped,
		BatchID:     batchID,
		RewardToken: staged.RewardToken,
		Amount:      staged.RemainingAmount().String(),
	})

	return staged.Clone(), nil
}

// SweepStopped releases the undistributed remainder of a stopped batch back
// to the depositor (or an explicit override recipient). One sweep per batch.
func (s *Scheduler) SweepStopped(ctx context.Context, batchID uint64, to string) (*big.Int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	staged, err := s.registry.Get(batchID)
	if err != nil {
		return nil, err
	}
	if staged.Status != domain.StatusStopped {
		return nil, fmt.Errorf("%w: batch %d is not stopped", domain.ErrValidation, batchID)
	}
	if staged.SweptAt != nil {
		return nil, fmt.Errorf("%w: batch %d already swept", domain.ErrNothingToSweep, batchID)
	}

	remaining := staged.RemainingAmount()
	if remaining.Sign() == 0 {
		return nil, fmt.Errorf("%w: batch %d has no remainder", domain.ErrNothingToSweep, batchID)
	}
	if to == "" {
		to = staged.Depositor
	}

	if err := s.custody.TransferOut(ctx, to, staged.RewardToken, remaining); err != nil {
		return nil, err
	}

	sweptAt := s.now().UTC()
	staged.SweptAt = &sweptAt
	staged.UpdatedAt = sweptAt

	if err := s.journal.UpdateBatch(ctx, staged); err != nil {
		return nil, fmt.Errorf("failed to persist sweep for batch %d: %w", batchID, err)
	}
	if err := s.registry.Commit(staged); err != nil {
		return nil, err
	}

	s.logger.Info("stopped batch swept",
		zap.Uint64("batchId", batchID),
		zap.String("to", to),
		zap.String("amount", remaining.String()),
	)
	s.publish(ctx, events.BatchEvent{
		Kind:        events.KindBatchSwept,
		BatchID:     batchID,
		RewardToken: staged.RewardToken,
		Amount:      remaining.String(),
	})

	return remaining, nil
}

func (s *Scheduler) Get(batchID uint64) (*domain.Batch, error) {
	return s.registry.Get(batchID)
}

func (s *Scheduler) ListActive() []domain.Batch {
	return s.registry.ListActive()
}

func (s *Scheduler) ListActivePaginated(offset, limit int) ([]domain.Batch, int) {
	return s.registry.ListActivePaginated(offset, limit)
}

func (s *Scheduler) ListByDepositor(depositor string) []domain.Batch {
	return s.registry.ListByDepositor(depositor)
}

func (s *Scheduler) ActiveIDs() []uint64 {
	batches := s.registry.ListActive()
	ids := make([]uint64, 0, len(batches))
	for i := range batches {
		ids = append(ids, batches[i].ID)
	}
	return ids
}

func (s *Scheduler) CurrentEpoch() uint64 {
	return s.clock.CurrentEpoch(s.now())
}

func (s *Scheduler) Executions(ctx context.Context, batchID uint64) ([]domain.Execution, error) {
	if _, err := s.registry.Get(batchID); err != nil {
		return nil, err
	}
	return s.journal.ListExecutions(ctx, batchID)
}

// executeStaged stages one period and pays it out, for the single-batch
// create and populate paths.
func (s *Scheduler) executeStaged(ctx context.Context, b *domain.Batch, epoch uint64) (*domain.Execution, error) {
	execution, err := s.stagePeriod(b, epoch)
	if err != nil {
		return nil, err
	}
	if err := s.payout(ctx, b, execution.Amount); err != nil {
		return nil, err
	}
	return execution, nil
}

// stagePeriod applies one period to the staged copy: state-machine guards,
// epoch gate, counter moves. No collaborator is touched; on any error the
// staged copy must be discarded by the caller.
func (s *Scheduler) stagePeriod(b *domain.Batch, epoch uint64) (*domain.Execution, error) {
	switch {
	case b.Status == domain.StatusStopped:
		return nil, domain.ErrBatchAlreadyStopped
	case b.Status == domain.StatusFinished || b.PeriodsExecuted >= b.TotalPeriods:
		return nil, domain.ErrBatchCompleted
	}

	// The first execution has no prior epoch to compare against; afterwards
	// the gate is strict.
	if b.Status == domain.StatusActive && b.LastExecutedEpoch != nil && epoch <= *b.LastExecutedEpoch {
		return nil, fmt.Errorf("%w: batch %d already executed in epoch %d", domain.ErrTooEarlyToExecute, b.ID, *b.LastExecutedEpoch)
	}

	if b.Status == domain.StatusPendingRecipients {
		if len(b.Recipients) == 0 {
			return nil, fmt.Errorf("%w: batch %d has no recipient config", domain.ErrBatchNotActive, b.ID)
		}
		b.Status = domain.StatusActive
	}

	executedEpoch := epoch
	b.LastExecutedEpoch = &executedEpoch

	amount := b.NextPeriodAmount()
	b.PeriodsExecuted++
	if b.PeriodsExecuted >= b.TotalPeriods {
		b.Status = domain.StatusFinished
	}
	b.UpdatedAt = s.now().UTC()

	return &domain.Execution{
		ID:        uuid.NewString(),
		BatchID:   b.ID,
		Epoch:     epoch,
		Period:    b.PeriodsExecuted,
		Amount:    amount,
		CreatedAt: s.now().UTC(),
	}, nil
}

// payout runs the weighted fan-out of one staged period against the custody
// and sink collaborators. Failures propagate as-is and abort the whole call.
func (s *Scheduler) payout(ctx context.Context, b *domain.Batch, amount *big.Int) error {
	for _, share := range domain.SplitByWeight(amount, b.Recipients) {
		if err := s.custody.Approve(ctx, share.Recipient, b.RewardToken, share.Amount); err != nil {
			return err
		}
		if err := s.sinks.Notify(ctx, share.Recipient, b.RewardToken, share.Amount); err != nil {
			return err
		}
	}
	return nil
}

// guardLive rejects terminal batches with the status-specific error kind.
func guardLive(b *domain.Batch) error {
	switch b.Status {
	case domain.StatusFinished:
		return fmt.Errorf("%w: batch %d", domain.ErrBatchCompleted, b.ID)
	case domain.StatusStopped:
		return fmt.Errorf("%w: batch %d", domain.ErrBatchAlreadyStopped, b.ID)
	}
	return nil
}

// acquire takes the cross-replica lease and the in-process mutex, in that
// order. The returned func releases both.
func (s *Scheduler) acquire(ctx context.Context) (func(), error) {
	if err := s.locker.Wait(ctx, schedulerLockKey, schedulerLockTTL); err != nil {
		return nil, fmt.Errorf("failed to acquire scheduler lock: %w", err)
	}
	s.mu.Lock()

	return func() {
		s.mu.Unlock()
		if err := s.locker.Release(context.WithoutCancel(ctx), schedulerLockKey); err != nil {
			s.logger.Warn("failed to release scheduler lock", zap.Error(err))
		}
	}, nil
}

// refundEscrow best-effort returns the unexecuted remainder when creation
// fails after escrow. A period already paid out stays paid, so only
// RemainingAmount goes back.
func (s *Scheduler) refundEscrow(ctx context.Context, b *domain.Batch) {
	remaining := b.RemainingAmount()
	if remaining.Sign() == 0 {
		return
	}
	if err := s.custody.TransferOut(ctx, b.Depositor, b.RewardToken, remaining); err != nil {
		s.logger.Error("failed to refund escrow after create failure",
			zap.String("depositor", b.Depositor),
			zap.String("amount", remaining.String()),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) recordExecution(ctx context.Context, b *domain.Batch, execution *domain.Execution) {
	s.metrics.IncPeriodExecuted(b.RewardToken)
	s.metrics.AddDistributedAmount(b.RewardToken, execution.Amount)

	epoch := execution.Epoch
	s.publish(ctx, events.BatchEvent{
		Kind:        events.KindBatchExecuted,
		BatchID:     b.ID,
		RewardToken: b.RewardToken,
		Epoch:       &epoch,
		Period:      execution.Period,
		Amount:      execution.Amount.String(),
	})
	if b.Status == domain.StatusFinished {
		s.publish(ctx, events.BatchEvent{
			Kind:        events.KindBatchFinished,
			BatchID:     b.ID,
			RewardToken: b.RewardToken,
			Epoch:       &epoch,
		})
	}
}

// publish is best-effort: events fire after commit and a broker failure never
// fails the call.
func (s *Scheduler) publish(ctx context.Context, e events.BatchEvent) {
	if s.publisher == nil {
		return
	}
	if cid, ok := observability.CorrelationIDFromContext(ctx); ok {
		e.CorrelationID = cid
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish batch event",
			zap.String("kind", e.Kind.String()),
			zap.Uint64("batchId", e.BatchID),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) updateActiveGauge() {
	s.metrics.SetActiveBatches(s.registry.ActiveCount())
}
