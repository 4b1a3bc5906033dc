package repository

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/hydrex-protocol/bribe-batcher/internal/domain"
)

// BatchModel is the persistence model for the batches journal table. Amounts
// are stored as decimal strings in numeric(78,0) columns, wide enough for
// 256-bit token amounts.
type BatchModel struct {
	ID                uint64             `gorm:"primaryKey;autoIncrement:false"`
	Depositor         string             `gorm:"type:varchar(64);not null;index"`
	RewardToken       string             `gorm:"type:varchar(64);not null"`
	TotalAmount       string             `gorm:"type:numeric(78,0);not null"`
	TotalPeriods      uint64             `gorm:"not null"`
	PeriodsExecuted   uint64             `gorm:"not null;default:0"`
	StartTime         time.Time          `gorm:"not null"`
	LastExecutedEpoch *uint64            `gorm:"type:bigint"`
	Status            domain.BatchStatus `gorm:"type:varchar(20);not null"`
	Recipients        []byte             `gorm:"type:jsonb"`
	SweptAt           *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (BatchModel) TableName() string {
	return "batches"
}

// ExecutionModel is the persistence model for per-period execution rows.
type ExecutionModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	BatchID   uint64 `gorm:"not null;index"`
	Epoch     uint64 `gorm:"not null"`
	Period    uint64 `gorm:"not null"`
	Amount    string `gorm:"type:numeric(78,0);not null"`
	CreatedAt time.Time
}

func (ExecutionModel) TableName() string {
	return "batch_executions"
}

type recipientJSON struct {
	Handle    string `json:"handle"`
	WeightBps uint32 `json:"weightBps"`
}

func batchModelFromDomain(b *domain.Batch) (*BatchModel, error) {
	if b == nil {
		return nil, nil
	}

	var recipients []byte
	if len(b.Recipients) > 0 {
		encoded := make([]recipientJSON, 0, len(b.Recipients))
		for _, r := range b.Recipients {
			encoded = append(encoded, recipientJSON{Handle: r.Handle, WeightBps: r.WeightBps})
		}
		var err error
		recipients, err = json.Marshal(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to encode recipients: %w", err)
		}
	}

	amount := "0"
	if b.TotalAmount != nil {
		amount = b.TotalAmount.String()
	}

	return &BatchModel{
		ID:                b.ID,
		Depositor:         b.Depositor,
		RewardToken:       b.RewardToken,
		TotalAmount:       amount,
		TotalPeriods:      b.TotalPeriods,
		PeriodsExecuted:   b.PeriodsExecuted,
		StartTime:         b.StartTime,
		LastExecutedEpoch: b.LastExecutedEpoch,
		Status:            b.Status,
		Recipients:        recipients,
		SweptAt:           b.SweptAt,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}, nil
}

func batchModelToDomain(m *BatchModel) (*domain.Batch, error) {
	if m == nil {
		return nil, nil
	}

	amount, ok := new(big.Int).SetString(m.TotalAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored amount %q for batch %d", m.TotalAmount, m.ID)
	}

	var recipients domain.RecipientConfig
	if len(m.Recipients) > 0 {
		var decoded []recipientJSON
		if err := json.Unmarshal(m.Recipients, &decoded); err != nil {
			return nil, fmt.Errorf("failed to decode recipients for batch %d: %w", m.ID, err)
		}
		recipients = make(domain.RecipientConfig, 0, len(decoded))
		for _, r := range decoded {
			recipients = append(recipients, domain.Recipient{Handle: r.Handle, WeightBps: r.WeightBps})
		}
	}

	return &domain.Batch{
		ID:                m.ID,
		Depositor:         m.Depositor,
		RewardToken:       m.RewardToken,
		TotalAmount:       amount,
		TotalPeriods:      m.TotalPeriods,
		PeriodsExecuted:   m.PeriodsExecuted,
		StartTime:         m.StartTime,
		LastExecutedEpoch: m.LastExecutedEpoch,
		Status:            m.Status,
		Recipients:        recipients,
		SweptAt:           m.SweptAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}, nil
}

func executionModelFromDomain(e *domain.Execution) *ExecutionModel {
	if e == nil {
		return nil
	}

	amount := "0"
	if e.Amount != nil {
		amount = e.Amount.String()
	}

	return &ExecutionModel{
		ID:        e.ID,
		BatchID:   e.BatchID,
		Epoch:     e.Epoch,
		Period:    e.Period,
		Amount:    amount,
		CreatedAt: e.CreatedAt,
	}
}

func executionModelToDomain(m *ExecutionModel) (*domain.Execution, error) {
	if m == nil {
		return nil, nil
	}

	amount, ok := new(big.Int).SetString(m.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored amount %q for execution %s", m.Amount, m.ID)
	}

	return &domain.Execution{
		ID:        m.ID,
		BatchID:   m.BatchID,
		Epoch:     m.Epoch,
		Period:    m.Period,
		Amount:    amount,
		CreatedAt: m.CreatedAt,
	}, nil
}
