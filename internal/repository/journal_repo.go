package repository

import (
	"context"
	"errors"

	"github.com/hydrex-protocol/bribe-batcher/internal/domain"
	"gorm.io/gorm"
)

// JournalRepository persists the durable record behind the in-memory
// registry: batch rows plus one execution row per distributed period. The
// registry is rebuilt from this journal at startup.
type JournalRepository interface {
	SaveBatch(ctx context.Context, b *domain.Batch) error
	// SaveBatchWithExecution inserts a new batch row together with its first
	// execution row in one transaction, for the create-and-execute path.
	SaveBatchWithExecution(ctx context.Context, b *domain.Batch, execution domain.Execution) error
	UpdateBatch(ctx context.Context, b *domain.Batch) error
	// CommitExecutions writes the updated batch rows and their execution rows
	// in a single transaction, so a crash never records a period as executed
	// without its batch counters having moved (or vice versa).
	CommitExecutions(ctx context.Context, batches []*domain.Batch, executions []domain.Execution) error
	LoadBatches(ctx context.Context) ([]domain.Batch, error)
	ListExecutions(ctx context.Context, batchID uint64) ([]domain.Execution, error)
}

type GormJournalRepo struct {
	db *gorm.DB
}

func NewGormJournalRepo(db *gorm.DB) *GormJournalRepo {
	return &GormJournalRepo{db: db}
}

func (r *GormJournalRepo) SaveBatch(ctx context.Context, b *domain.Batch) error {
	model, err := batchModelFromDomain(b)
	if err != nil {
		return err
	}
	if model == nil {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	b.CreatedAt = model.CreatedAt
	b.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *GormJournalRepo) SaveBatchWithExecution(ctx context.Context, b *domain.Batch, execution domain.Execution) error {
	model, err := batchModelFromDomain(b)
	if err != nil {
		return err
	}
	if model == nil {
		return nil
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		return tx.Create(executionModelFromDomain(&execution)).Error
	})
	if err != nil {
		return err
	}

	b.CreatedAt = model.CreatedAt
	b.UpdatedAt = model.UpdatedAt
	return nil
}

func (r *GormJournalRepo) UpdateBatch(ctx context.Context, b *domain.Batch) error {
	model, err := batchModelFromDomain(b)
	if err != nil {
		return err
	}
	if model == nil {
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&BatchModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]any{
			"periods_executed":    model.PeriodsExecuted,
			"last_executed_epoch": model.LastExecutedEpoch,
			"status":              model.Status,
			"recipients":          model.Recipients,
			"swept_at":            model.SweptAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrBatchNotFound
	}
	return nil
}

func (r *GormJournalRepo) CommitExecutions(ctx context.Context, batches []*domain.Batch, executions []domain.Execution) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, b := range batches {
			model, err := batchModelFromDomain(b)
			if err != nil {
				return err
			}
			result := tx.Model(&BatchModel{}).
				Where("id = ?", model.ID).
				Updates(map[string]any{
					"periods_executed":    model.PeriodsExecuted,
					"last_executed_epoch": model.LastExecutedEpoch,
					"status":              model.Status,
					"recipients":          model.Recipients,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return domain.ErrBatchNotFound
			}
		}

		models := make([]ExecutionModel, 0, len(executions))
		for i := range executions {
			models = append(models, *executionModelFromDomain(&executions[i]))
		}
		if len(models) == 0 {
			return nil
		}
		return tx.CreateInBatches(&models, 100).Error
	})
}

func (r *GormJournalRepo) LoadBatches(ctx context.Context) ([]domain.Batch, error) {
	var models []BatchModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	batches := make([]domain.Batch, 0, len(models))
	for i := range models {
		b, err := batchModelToDomain(&models[i])
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, nil
}

func (r *GormJournalRepo) ListExecutions(ctx context.Context, batchID uint64) ([]domain.Execution, error) {
	var models []ExecutionModel
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("period ASC").
		Find(&models).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrBatchNotFound
	}
	if err != nil {
		return nil, err
	}

	executions := make([]domain.Execution, 0, len(models))
	for i := range models {
		e, convErr := executionModelToDomain(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		executions = append(executions, *e)
	}
	return executions, nil
}
