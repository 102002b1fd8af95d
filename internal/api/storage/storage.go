package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/domain"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/api/model"
	"github.com/licanhuadev/Grok-Imagine-Assistant/shared/database"
)

const jobColumns = `
	job_id, job_type, prompt, image, request_payload, client_id, status,
	created_at, started_at, completed_at, video_path, text_response, error
`

var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		job_id          TEXT PRIMARY KEY,
		job_type        TEXT NOT NULL,
		prompt          TEXT NOT NULL,
		image           TEXT,
		request_payload TEXT,
		client_id       TEXT,
		status          TEXT NOT NULL,
		created_at      BIGINT NOT NULL,
		started_at      BIGINT,
		completed_at    BIGINT,
		video_path      TEXT,
		text_response   TEXT,
		error           TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_type_status ON jobs (job_type, status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs (created_at)`,
}

type Storage struct {
	client *database.Client
	db     *sqlx.DB
}

func NewStorage(client *database.Client) *Storage {
	return &Storage{
		client: client,
		db:     client.GetDB(),
	}
}

// HealthCheck reports whether the database answers queries
func (s *Storage) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

// Migrate creates the jobs table when it does not exist
func (s *Storage) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *Storage) CreateJob(ctx context.Context, job *model.Job) error {
	query := s.db.Rebind(`
		INSERT INTO jobs (
			job_id, job_type, prompt, image, request_payload, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.JobType,
		job.Prompt,
		job.Image,
		job.RequestPayload,
		job.Status,
		job.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE job_id = ?`)

	err := s.db.GetContext(ctx, &job, query, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// ClaimNextJob moves the oldest pending job of jobType to processing for
// clientID. It returns nil when the queue is empty.
func (s *Storage) ClaimNextJob(ctx context.Context, jobType, clientID string, now time.Time) (*model.Job, error) {
	tx, err := s.client.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var job model.Job
	query := tx.Rebind(`
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE job_type = ? AND status = ?
		ORDER BY created_at ASC, job_id ASC
		LIMIT 1
	`)
	err = tx.GetContext(ctx, &job, query, jobType, domain.JobStatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select pending job: %w", err)
	}

	started := model.Millis(now)
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE jobs SET status = ?, client_id = ?, started_at = ?
		WHERE job_id = ? AND status = ?
	`), domain.JobStatusProcessing, clientID, started, job.JobID, domain.JobStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrJobNotClaimable
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	job.Status = domain.JobStatusProcessing
	job.ClientID = &clientID
	job.StartedAt = &started
	return &job, nil
}

// ReapStale fails processing jobs of jobType started before cutoff
func (s *Storage) ReapStale(ctx context.Context, jobType string, cutoff, now time.Time) (int64, error) {
	query := s.db.Rebind(`
		UPDATE jobs SET status = ?, error = ?, completed_at = ?
		WHERE job_type = ? AND status = ? AND COALESCE(started_at, created_at) < ?
	`)

	res, err := s.db.ExecContext(ctx, query,
		domain.JobStatusFailed, domain.ReasonTimedOut, model.Millis(now),
		jobType, domain.JobStatusProcessing, model.Millis(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale jobs: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reaped jobs: %w", err)
	}
	return n, nil
}

// CompleteVideo marks a job completed with its stored video location
func (s *Storage) CompleteVideo(ctx context.Context, jobID, videoPath string, now time.Time) error {
	return s.finish(ctx, jobID, domain.JobStatusCompleted, now, "video_path", videoPath)
}

// CompleteChat marks a job completed with the assistant's answer
func (s *Storage) CompleteChat(ctx context.Context, jobID, content string, now time.Time) error {
	return s.finish(ctx, jobID, domain.JobStatusCompleted, now, "text_response", content)
}

// FailJob marks a job failed with reason
func (s *Storage) FailJob(ctx context.Context, jobID, reason string, now time.Time) error {
	return s.finish(ctx, jobID, domain.JobStatusFailed, now, "error", reason)
}

// finish sets a terminal status plus one result column. column is always
// one of the fixed names above.
func (s *Storage) finish(ctx context.Context, jobID, status string, now time.Time, column, value string) error {
	query := s.db.Rebind(fmt.Sprintf(
		`UPDATE jobs SET status = ?, completed_at = ?, %s = ? WHERE job_id = ?`, column))

	res, err := s.db.ExecContext(ctx, query, status, model.Millis(now), value, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

type JobFilter struct {
	Status   string
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	CreatedAt int64
	JobID     string
}

// ListJobs returns up to PageSize+1 jobs, newest first; the extra row
// tells the caller another page exists
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	if filter.Cursor != nil {
		query += " AND (created_at < ? OR (created_at = ? AND job_id < ?))"
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.JobID)
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC LIMIT ?"
	args = append(args, filter.PageSize+1)

	var jobs []model.Job
	err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// ClearJobs deletes every job and returns how many were removed
func (s *Storage) ClearJobs(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared jobs: %w", err)
	}
	return n, nil
}
