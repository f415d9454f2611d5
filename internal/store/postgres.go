package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"image-pipeline/internal/models"
)

// ErrNotFound is returned when a task id has no row.
var ErrNotFound = errors.New("task not found")

// Store wraps pgxpool for Postgres persistence of image tasks.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertBatch creates one pending task per URL, all sharing the same transform
// spec, inside a single transaction. A failure on any row aborts the whole
// batch.
func (s *Store) InsertBatch(ctx context.Context, urls []string, spec models.TransformSpec) ([]models.Task, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	now := time.Now().UTC()
	tasks := make([]models.Task, 0, len(urls))
	for _, url := range urls {
		task := models.Task{
			ID:           uuid.New().String(),
			URL:          url,
			Status:       models.StatusPending,
			ResizeWidth:  spec.ResizeWidth,
			ResizeHeight: spec.ResizeHeight,
			Grayscale:    spec.Grayscale,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO image_tasks (id, url, status, resize_width, resize_height, grayscale, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		`, task.ID, task.URL, task.Status, task.ResizeWidth, task.ResizeHeight, task.Grayscale, now)
		if err != nil {
			return nil, fmt.Errorf("insert task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return tasks, nil
}

const taskColumns = `id, url, status, resize_width, resize_height, grayscale, output_path, error_message, created_at, updated_at`

// FindPending returns up to limit pending tasks in insertion order.
func (s *Store) FindPending(ctx context.Context, limit int) ([]models.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM image_tasks
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2
	`, models.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// GetTask fetches a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (models.Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM image_tasks WHERE id = $1
	`, id)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Task{}, ErrNotFound
	}
	return task, err
}

// MarkSuccess finalizes a pending task as success. The status guard makes the
// transition idempotent: a row already finalized by another execution path is
// left untouched and false is returned.
func (s *Store) MarkSuccess(ctx context.Context, id, outputPath string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE image_tasks
		SET status = $2, output_path = $3, error_message = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, models.StatusSuccess, outputPath, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("mark success: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed finalizes a pending task as failed, recording the error message.
// Same status guard as MarkSuccess.
func (s *Store) MarkFailed(ctx context.Context, id, errMsg string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE image_tasks
		SET status = $2, error_message = $3, output_path = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, models.StatusFailed, errMsg, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Summary holds outcome counts over a created_at range. Pending tasks count
// toward Total only.
type Summary struct {
	Total     int64 `json:"total"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
}

// Summarize counts tasks created within the inclusive [from, to] range,
// partitioned by terminal status. Nil bounds leave that side open.
func (s *Store) Summarize(ctx context.Context, from, to *time.Time) (Summary, error) {
	var sum Summary
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = $3),
		       COUNT(*) FILTER (WHERE status = $4)
		FROM image_tasks
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
	`, from, to, models.StatusSuccess, models.StatusFailed).Scan(&sum.Total, &sum.Successes, &sum.Failures)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize tasks: %w", err)
	}
	return sum, nil
}

func scanTask(row pgx.Row) (models.Task, error) {
	var task models.Task
	var width, height pgtype.Int4
	var outputPath, errMsg pgtype.Text

	if err := row.Scan(&task.ID, &task.URL, &task.Status, &width, &height, &task.Grayscale,
		&outputPath, &errMsg, &task.CreatedAt, &task.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Task{}, err
		}
		return models.Task{}, fmt.Errorf("scan task: %w", err)
	}

	task.ResizeWidth = int4Ptr(width)
	task.ResizeHeight = int4Ptr(height)
	task.OutputPath = textPtr(outputPath)
	task.ErrorMessage = textPtr(errMsg)
	return task, nil
}

func int4Ptr(v pgtype.Int4) *int {
	if v.Valid {
		n := int(v.Int32)
		return &n
	}
	return nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
