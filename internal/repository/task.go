package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ytreport/internal/model"
)

// ErrNotFound is returned when a repository lookup finds no matching row.
// Callers treat this as spec.md's missing-entity error kind.
var ErrNotFound = errors.New("not found")

// TaskRepository tracks the three-axis task-status record 1:1 with a
// Report. Like ReportRepository, Create and the per-axis update are
// distinct methods rather than one dispatching on id presence.
type TaskRepository interface {
	Create(ctx context.Context, reportID int64) (model.Task, error)
	Get(ctx context.Context, reportID int64) (model.Task, error)
	SetOverviewStatus(ctx context.Context, reportID int64, status model.TaskStatus) error
	SetAnalysisStatus(ctx context.Context, reportID int64, status model.TaskStatus) error
	SetIdeaStatus(ctx context.Context, reportID int64, status model.TaskStatus) error
}

type pgTaskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository constructs a Postgres-backed TaskRepository.
func NewTaskRepository(pool *pgxpool.Pool) TaskRepository {
	return &pgTaskRepository{pool: pool}
}

func (r *pgTaskRepository) Create(ctx context.Context, reportID int64) (model.Task, error) {
	var t model.Task
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (report_id, overview_status, analysis_status, idea_status, created_at, updated_at)
		VALUES ($1, $2, $2, $2, now(), now())
		RETURNING id, report_id, overview_status, analysis_status, idea_status, created_at, updated_at
	`, reportID, model.TaskPending).Scan(&t.ID, &t.ReportID, &t.OverviewStatus, &t.AnalysisStatus, &t.IdeaStatus, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.Task{}, fmt.Errorf("create task for report %d: %w", reportID, err)
	}
	return t, nil
}

func (r *pgTaskRepository) Get(ctx context.Context, reportID int64) (model.Task, error) {
	var t model.Task
	err := r.pool.QueryRow(ctx, `
		SELECT id, report_id, overview_status, analysis_status, idea_status, created_at, updated_at
		FROM tasks WHERE report_id = $1
	`, reportID).Scan(&t.ID, &t.ReportID, &t.OverviewStatus, &t.AnalysisStatus, &t.IdeaStatus, &t.CreatedAt, &t.UpdatedAt)
	if err == pgx.ErrNoRows {
		return model.Task{}, fmt.Errorf("task for report %d: %w", reportID, ErrNotFound)
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("get task for report %d: %w", reportID, err)
	}
	return t, nil
}

func (r *pgTaskRepository) SetOverviewStatus(ctx context.Context, reportID int64, status model.TaskStatus) error {
	return r.setStatus(ctx, "overview_status", reportID, status)
}

func (r *pgTaskRepository) SetAnalysisStatus(ctx context.Context, reportID int64, status model.TaskStatus) error {
	return r.setStatus(ctx, "analysis_status", reportID, status)
}

func (r *pgTaskRepository) SetIdeaStatus(ctx context.Context, reportID int64, status model.TaskStatus) error {
	return r.setStatus(ctx, "idea_status", reportID, status)
}

func (r *pgTaskRepository) setStatus(ctx context.Context, column string, reportID int64, status model.TaskStatus) error {
	query := fmt.Sprintf(`UPDATE tasks SET %s = $1, updated_at = now() WHERE report_id = $2`, column)
	if _, err := r.pool.Exec(ctx, query, status, reportID); err != nil {
		return fmt.Errorf("set %s for report %d: %w", column, reportID, err)
	}
	return nil
}
