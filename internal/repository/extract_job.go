package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// ErrJobNotFound is returned when a finish targets an unknown job id.
var ErrJobNotFound = errors.New("extract_job not found")

// JobStart is what is known about a process-invoice call before extraction.
type JobStart struct {
	RequestID   string
	Subject     string
	FileName    string
	ContentType string
}

type ExtractJobRepository interface {
	Start(ctx context.Context, in JobStart) (*entity.ExtractJob, error)
	FinishSuccess(ctx context.Context, jobID uuid.UUID, method, outcome string) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, method, message string) error
	ListRecent(ctx context.Context, limit int) ([]entity.ExtractJob, error)
}

type extractJobRepo struct {
	db  *DB
	log *slog.Logger
	now func() time.Time
}

func NewExtractJobRepository(db *DB, log *slog.Logger) ExtractJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &extractJobRepo{db: db, log: log, now: time.Now}
}

func (r *extractJobRepo) Start(ctx context.Context, in JobStart) (*entity.ExtractJob, error) {
	job := &entity.ExtractJob{
		ID:          uuid.New(),
		RequestID:   in.RequestID,
		Subject:     in.Subject,
		FileName:    in.FileName,
		ContentType: in.ContentType,
		Status:      string(constants.JobStatusRunning),
		StartedAt:   r.now().UTC(),
	}
	_, err := r.db.SQL.ExecContext(ctx, r.db.rebind(`
		INSERT INTO extract_job (id, request_id, subject, file_name, content_type, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		job.ID.String(), job.RequestID, job.Subject, job.FileName, job.ContentType, job.Status, job.StartedAt.UnixMilli(),
	)
	if err != nil {
		r.log.Error("extract_job.start.failed", "req_id", in.RequestID, "file_name", in.FileName, "error", err)
		return nil, err
	}
	r.log.Debug("extract_job.started", "job_id", job.ID, "req_id", in.RequestID)
	return job, nil
}

func (r *extractJobRepo) FinishSuccess(ctx context.Context, jobID uuid.UUID, method, outcome string) error {
	err := r.finish(ctx, jobID, constants.JobStatusOK, method, outcome, "")
	if err != nil {
		r.log.Error("extract_job.finish_ok.failed", "job_id", jobID, "error", err)
		return err
	}
	r.log.Debug("extract_job.finished", "job_id", jobID, "status", constants.JobStatusOK, "outcome", outcome)
	return nil
}

func (r *extractJobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, method, message string) error {
	err := r.finish(ctx, jobID, constants.JobStatusFailed, method, "", message)
	if err != nil {
		r.log.Error("extract_job.finish_failed.failed", "job_id", jobID, "error", err)
		return err
	}
	r.log.Debug("extract_job.finished", "job_id", jobID, "status", constants.JobStatusFailed)
	return nil
}

func (r *extractJobRepo) finish(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, method, outcome, message string) error {
	now := r.now().UTC()
	res, err := r.db.SQL.ExecContext(ctx, r.db.rebind(`
		UPDATE extract_job
		SET status = ?, method = ?, outcome = ?, error_message = ?, finished_at = ?, elapsed_ms = ? - started_at
		WHERE id = ?`),
		string(status), nullString(method), nullString(outcome), nullString(message),
		now.UnixMilli(), now.UnixMilli(), jobID.String(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ListRecent returns up to limit jobs, newest first.
func (r *extractJobRepo) ListRecent(ctx context.Context, limit int) ([]entity.ExtractJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.SQL.QueryContext(ctx, r.db.rebind(`
		SELECT id, request_id, subject, file_name, content_type, method, outcome, status,
		       error_message, started_at, finished_at, elapsed_ms
		FROM extract_job
		ORDER BY started_at DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.ExtractJob
	for rows.Next() {
		var (
			job                     entity.ExtractJob
			method, outcome, errMsg sql.NullString
			startedAt               int64
			finishedAt, elapsed     sql.NullInt64
		)
		if err := rows.Scan(&job.ID, &job.RequestID, &job.Subject, &job.FileName, &job.ContentType,
			&method, &outcome, &job.Status, &errMsg, &startedAt, &finishedAt, &elapsed); err != nil {
			return nil, err
		}
		job.StartedAt = time.UnixMilli(startedAt).UTC()
		job.Method = stringPtr(method)
		job.Outcome = stringPtr(outcome)
		job.ErrorMessage = stringPtr(errMsg)
		if finishedAt.Valid {
			t := time.UnixMilli(finishedAt.Int64).UTC()
			job.FinishedAt = &t
		}
		if elapsed.Valid {
			v := elapsed.Int64
			job.ElapsedMS = &v
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
