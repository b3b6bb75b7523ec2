package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pitabwire/frame/datastore"
	"github.com/pitabwire/frame/datastore/pool"
	"gorm.io/gorm"
)

// ErrDatabaseUnavailable is returned when the database connection is not available.
var ErrDatabaseUnavailable = errors.New("database connection is not available")

// RunStatus represents the status of a pipeline run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run represents a workflow generation run record.
type Run struct {
	ID           string     `json:"id"                      gorm:"primaryKey"`
	Channel      string     `json:"channel"`
	ClientEmail  string     `json:"client_email"`
	Source       string     `json:"source"`
	Status       RunStatus  `json:"status"`
	FailedStage  string     `json:"failed_stage,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	NodeCount    int        `json:"node_count"`
	Confidence   float64    `json:"confidence"`
	ReceivedAt   time.Time  `json:"received_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the table name for the Run model.
func (Run) TableName() string {
	return "runs"
}

// RunOutcome carries the result fields recorded when a run finishes.
type RunOutcome struct {
	ClientEmail  string
	Source       string
	FailedStage  string
	ErrorMessage string
	NodeCount    int
	Confidence   float64
}

// RunRepository defines the interface for run persistence.
type RunRepository interface {
	Create(ctx context.Context, run *Run) error
	GetByID(ctx context.Context, id string) (*Run, error)
	MarkRunning(ctx context.Context, id string) error
	MarkFinished(ctx context.Context, id string, status RunStatus, outcome RunOutcome) error
}

// PGRunRepository is the PostgreSQL implementation of RunRepository.
type PGRunRepository struct {
	pool pool.Pool
}

// NewRunRepository creates a new run repository.
func NewRunRepository(_ context.Context, p pool.Pool) RunRepository {
	return &PGRunRepository{
		pool: p,
	}
}

func (r *PGRunRepository) db(ctx context.Context, readOnly bool) *gorm.DB {
	if r.pool == nil {
		return nil
	}
	return r.pool.DB(ctx, readOnly)
}

// Create creates a new run record.
func (r *PGRunRepository) Create(ctx context.Context, run *Run) error {
	db := r.db(ctx, false)
	if db == nil {
		return nil // No database, stub mode
	}

	if run.Status == "" {
		run.Status = RunStatusPending
	}
	run.CreatedAt = time.Now()
	run.UpdatedAt = time.Now()
	return db.Create(run).Error
}

// GetByID retrieves a run by ID.
func (r *PGRunRepository) GetByID(ctx context.Context, id string) (*Run, error) {
	db := r.db(ctx, true)
	if db == nil {
		return nil, fmt.Errorf("run not found: %s", id)
	}

	var run Run
	if err := db.First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, err
	}
	return &run, nil
}

// MarkRunning transitions a run to the running status.
func (r *PGRunRepository) MarkRunning(ctx context.Context, id string) error {
	db := r.db(ctx, false)
	if db == nil {
		return nil
	}

	now := time.Now()
	return db.Model(&Run{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     RunStatusRunning,
		"started_at": &now,
		"updated_at": now,
	}).Error
}

// MarkFinished records the terminal status and outcome of a run.
func (r *PGRunRepository) MarkFinished(
	ctx context.Context,
	id string,
	status RunStatus,
	outcome RunOutcome,
) error {
	db := r.db(ctx, false)
	if db == nil {
		return nil
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":        status,
		"client_email":  outcome.ClientEmail,
		"source":        outcome.Source,
		"failed_stage":  outcome.FailedStage,
		"error_message": outcome.ErrorMessage,
		"node_count":    outcome.NodeCount,
		"confidence":    outcome.Confidence,
		"completed_at":  &now,
		"updated_at":    now,
	}

	return db.Model(&Run{}).Where("id = ?", id).Updates(updates).Error
}

// Migrate runs database migrations.
func Migrate(ctx context.Context, dbManager datastore.Manager, migrationPath string) error {
	pl := dbManager.GetPool(ctx, datastore.DefaultPoolName)
	if pl == nil {
		return ErrDatabaseUnavailable
	}
	db := pl.DB(ctx, false)
	if db == nil {
		return ErrDatabaseUnavailable
	}
	_ = migrationPath
	return db.AutoMigrate(&Run{})
}
