package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jumadata/warehouse-worker/internal/models"
)

// RunRepository persists ETL run history. It satisfies the scheduler's
// RunRecorder interface.
type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Start inserts a running record for a table load and returns its run ID.
func (r *RunRepository) Start(ctx context.Context, table string) (string, error) {
	now := time.Now()
	run := models.ETLRun{
		ID:        uuid.NewString(),
		TableName: table,
		Status:    models.RunStatusRunning,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := r.db.WithContext(ctx).Create(&run).Error; err != nil {
		return "", fmt.Errorf("failed to create run record: %w", err)
	}
	return run.ID, nil
}

// Finish marks a run as terminal with its outcome message.
func (r *RunRepository) Finish(ctx context.Context, runID string, success bool, message string) error {
	status := models.RunStatusSuccess
	if !success {
		status = models.RunStatusError
	}

	now := time.Now()
	updates := map[string]any{
		"status":      status,
		"message":     message,
		"finished_at": now,
		"updated_at":  now,
	}

	result := r.db.WithContext(ctx).Model(&models.ETLRun{}).Where("id = ?", runID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to finish run record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// LatestForTable returns the most recent run for a table, or nil when the
// table has never been loaded.
func (r *RunRepository) LatestForTable(ctx context.Context, table string) (*models.ETLRun, error) {
	var run models.ETLRun
	err := r.db.WithContext(ctx).
		Where("table_name = ?", table).
		Order("started_at DESC").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	return &run, nil
}

// StaleRunning returns runs stuck in running state longer than maxAge,
// typically left behind by a crashed worker.
func (r *RunRepository) StaleRunning(ctx context.Context, maxAge time.Duration) ([]models.ETLRun, error) {
	var runs []models.ETLRun
	cutoff := time.Now().Add(-maxAge)

	err := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", models.RunStatusRunning, cutoff).
		Order("started_at ASC").
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query stale runs: %w", err)
	}
	return runs, nil
}
