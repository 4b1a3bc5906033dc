package domain

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// BatchStatus represents the lifecycle state of a bribe batch.
type BatchStatus string

const (
	// StatusPendingRecipients means the batch is funded but has no recipient
	// config yet; only reachable when recipients were deferred at creation.
	StatusPendingRecipients BatchStatus = "PENDING_RECIPIENTS"
	// StatusActive means the batch has executed at least once and has a valid
	// recipient config.
	StatusActive BatchStatus = "ACTIVE"
	// StatusFinished means all periods have been executed. Terminal.
	StatusFinished BatchStatus = "FINISHED"
	// StatusStopped means an admin halted the batch early. Terminal.
	StatusStopped BatchStatus = "STOPPED"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case StatusPendingRecipients, StatusActive, StatusFinished, StatusStopped:
		return true
	}
	return false
}

// IsTerminal reports whether the batch can never execute again.
func (s BatchStatus) IsTerminal() bool {
	return s == StatusFinished || s == StatusStopped
}

func ParseBatchStatusFromString(s string) (BatchStatus, error) {
	st := BatchStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid batch status %q", ErrValidation, s)
	}
	return st, nil
}

// Batch is a funded, recurring distribution commitment split across periods.
// TotalAmount and TotalPeriods are immutable after creation.
type Batch struct {
	ID                uint64
	Depositor         string
	RewardToken       string
	TotalAmount       *big.Int
	TotalPeriods      uint64
	PeriodsExecuted   uint64
	StartTime         time.Time
	LastExecutedEpoch *uint64
	Status            BatchStatus
	Recipients        RecipientConfig
	SweptAt           *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ValidateNew checks creation-time invariants: at least one period, a
// positive amount, and at least one unit per period so no period distributes
// zero.
func (b *Batch) ValidateNew() error {
	if strings.TrimSpace(b.Depositor) == "" {
		return fmt.Errorf("%w: depositor is required", ErrValidation)
	}
	if strings.TrimSpace(b.RewardToken) == "" {
		return fmt.Errorf("%w: reward token is required", ErrValidation)
	}
	if b.TotalPeriods == 0 {
		return fmt.Errorf("%w: total periods must be at least 1", ErrInvalidPeriods)
	}
	if b.TotalAmount == nil || b.TotalAmount.Sign() <= 0 {
		return fmt.Errorf("%w: total amount must be positive", ErrInvalidAmount)
	}
	if b.PeriodAmount().Sign() == 0 {
		return fmt.Errorf("%w: amount %s does not cover %d periods", ErrInvalidAmount, b.TotalAmount, b.TotalPeriods)
	}
	if len(b.Recipients) > 0 {
		return b.Recipients.Validate()
	}
	return nil
}

// PeriodAmount returns floor(totalAmount / totalPeriods), the amount
// distributed in every period except possibly the last.
func (b *Batch) PeriodAmount() *big.Int {
	if b.TotalAmount == nil || b.TotalPeriods == 0 {
		return new(big.Int)
	}
	return new(big.Int).Quo(b.TotalAmount, new(big.Int).SetUint64(b.TotalPeriods))
}

// NextPeriodAmount returns the amount for the upcoming execution. The final
// period absorbs all floor-division dust so the lifetime sum equals
// TotalAmount exactly.
func (b *Batch) NextPeriodAmount() *big.Int {
	if b.PeriodsExecuted == b.TotalPeriods-1 {
		distributed := new(big.Int).Mul(b.PeriodAmount(), new(big.Int).SetUint64(b.PeriodsExecuted))
		return new(big.Int).Sub(b.TotalAmount, distributed)
	}
	return b.PeriodAmount()
}

// RemainingAmount returns the escrowed amount not yet distributed.
func (b *Batch) RemainingAmount() *big.Int {
	distributed := new(big.Int).Mul(b.PeriodAmount(), new(big.Int).SetUint64(b.PeriodsExecuted))
	if b.PeriodsExecuted >= b.TotalPeriods {
		return new(big.Int)
	}
	return new(big.Int).Sub(b.TotalAmount, distributed)
}

// Clone returns a deep copy so callers can stage mutations and commit them
// atomically.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	clone := *b
	if b.TotalAmount != nil {
		clone.TotalAmount = new(big.Int).Set(b.TotalAmount)
	}
	if b.LastExecutedEpoch != nil {
		epoch := *b.LastExecutedEpoch
		clone.LastExecutedEpoch = &epoch
	}
	if b.SweptAt != nil {
		sweptAt := *b.SweptAt
		clone.SweptAt = &sweptAt
	}
	if b.Recipients != nil {
		clone.Recipients = make(RecipientConfig, len(b.Recipients))
		copy(clone.Recipients, b.Recipients)
	}
	return &clone
}

// Execution is the journal record of a single period distribution.
type Execution struct {
	ID        string
	BatchID   uint64
	Epoch     uint64
	Period    uint64
	Amount    *big.Int
	CreatedAt time.Time
}
