package repository

import (
	"context"
	"errors"

	"renthouse-scheduler/internal/model"
	"renthouse-scheduler/pkg/utils"

	"gorm.io/gorm"
)

type ScheduleJobRepository interface {
	Create(ctx context.Context, job *model.ScheduleJob, opts ...utils.DBOption) error
	Update(ctx context.Context, job *model.ScheduleJob, opts ...utils.DBOption) error
	Deactivate(ctx context.Context, id uint, opts ...utils.DBOption) error
	Remove(ctx context.Context, id uint) error
	FindByID(ctx context.Context, id uint) (*model.ScheduleJob, error)
	FindActiveByTarget(ctx context.Context, kind, targetID string) ([]model.ScheduleJob, error)
	Get(ctx context.Context, param *model.GetScheduleJobParam, opts ...utils.DBOption) ([]model.ScheduleJob, error)
}

type scheduleJobRepository struct {
	db *gorm.DB
}

func NewScheduleJobRepository(db *gorm.DB) ScheduleJobRepository {
	return &scheduleJobRepository{db: db}
}

func (r *scheduleJobRepository) Create(ctx context.Context, job *model.ScheduleJob, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(job).Error
}

func (r *scheduleJobRepository) Update(ctx context.Context, job *model.ScheduleJob, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Save(job).Error
}

// Deactivate flips is_active off without touching the rest of the record.
// A plain struct update would skip the false value, so the column is named.
func (r *scheduleJobRepository) Deactivate(ctx context.Context, id uint, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.ScheduleJob{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

// Remove deactivates and soft-deletes the record in a single transaction.
func (r *scheduleJobRepository) Remove(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.Deactivate(ctx, id, utils.WithTx(tx)); err != nil {
			return err
		}
		return tx.Delete(&model.ScheduleJob{}, id).Error
	})
}

func (r *scheduleJobRepository) FindByID(ctx context.Context, id uint) (*model.ScheduleJob, error) {
	var job model.ScheduleJob
	err := r.db.WithContext(ctx).First(&job, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// FindActiveByTarget returns the active jobs whose metadata points at the
// given (kind, target) pair. Used to detect conflicts before creation.
func (r *scheduleJobRepository) FindActiveByTarget(ctx context.Context, kind, targetID string) ([]model.ScheduleJob, error) {
	var jobs []model.ScheduleJob
	err := utils.ApplyOptions(r.db.WithContext(ctx),
		utils.WithWhere("is_active = ?", true),
		utils.WithWhere("metadata->>'kind' = ? AND metadata->>'target_id' = ?", kind, targetID),
	).Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *scheduleJobRepository) Get(ctx context.Context, param *model.GetScheduleJobParam, opts ...utils.DBOption) ([]model.ScheduleJob, error) {
	var jobs []model.ScheduleJob
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...).Model(&model.ScheduleJob{})
	if param.IsActive != nil {
		db = db.Where("is_active = ?", *param.IsActive)
	}
	if len(param.IDs) > 0 {
		db = db.Where("id IN ?", param.IDs)
	}
	if param.Limit != nil {
		db = db.Limit(*param.Limit)
	}
	if err := db.Order("id").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
