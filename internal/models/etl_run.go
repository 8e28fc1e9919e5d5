package models

import "time"

type RunStatus string

const (
	RunStatusRunning RunStatus = "running" // load in progress
	RunStatusSuccess RunStatus = "success" // finished, possibly with skipped ranges (see Message)
	RunStatusError   RunStatus = "error"   // aborted
)

// ETLRun is one table-load execution in the run history.
type ETLRun struct {
	ID         string     `gorm:"column:id;primaryKey"`
	TableName  string     `gorm:"column:table_name;index"`
	Status     RunStatus  `gorm:"column:status;index"`
	Message    *string    `gorm:"column:message"`
	StartedAt  time.Time  `gorm:"column:started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at"`
}
