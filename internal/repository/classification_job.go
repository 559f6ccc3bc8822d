package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/collateral-classifier/constants"
	"github.com/joseph-ayodele/collateral-classifier/internal/common"
	"github.com/joseph-ayodele/collateral-classifier/internal/entity"
)

const tableClassificationJob = "classification_job"

var jobColumns = []string{
	"id", "filename", "content_sha256", "size_bytes", "page_count", "status",
	"error_message", "threshold", "model_type", "predictions", "started_at", "finished_at",
}

type ClassificationJobRepository interface {
	Start(ctx context.Context, job *entity.ClassificationJob) error
	Finish(ctx context.Context, id uuid.UUID, pageCount int, modelType string, predictions json.RawMessage) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
	Get(ctx context.Context, id uuid.UUID) (*entity.ClassificationJob, error)
	ListRecent(ctx context.Context, limit int) ([]*entity.ClassificationJob, error)
}

type classificationJobRepo struct {
	db  *DB
	log *slog.Logger
	now func() time.Time
}

func NewClassificationJobRepository(db *DB, log *slog.Logger) ClassificationJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &classificationJobRepo{db: db, log: log, now: time.Now}
}

func (r *classificationJobRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.dialect)
}

func (r *classificationJobRepo) Start(ctx context.Context, job *entity.ClassificationJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = r.now()
	}
	job.Status = constants.JobStatusRunning

	query, args := r.builder().
		Insert(tableClassificationJob).
		Columns("id", "filename", "content_sha256", "size_bytes", "status", "threshold", "started_at").
		Values(job.ID.String(), job.Filename, job.ContentSHA256, job.SizeBytes, string(job.Status), job.Threshold, job.StartedAt.UnixMilli()).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		r.log.Error("classification_job start failed", "filename", job.Filename, "err", err)
		return fmt.Errorf("%w: insert classification_job: %w", common.ErrDatabase, err)
	}
	r.log.Info("classification_job started", "job_id", job.ID, "filename", job.Filename)
	return nil
}

func (r *classificationJobRepo) Finish(ctx context.Context, id uuid.UUID, pageCount int, modelType string, predictions json.RawMessage) error {
	query, args := r.builder().
		Update(tableClassificationJob).
		Set("status", string(constants.JobStatusSucceeded)).
		Set("page_count", pageCount).
		Set("model_type", modelType).
		Set("predictions", string(predictions)).
		Set("finished_at", r.now().UnixMilli()).
		Where(entsql.EQ("id", id.String())).
		Query()
	if err := r.exec1(ctx, query, args); err != nil {
		r.log.Error("classification_job finish(OK) failed", "job_id", id, "err", err)
		return err
	}
	r.log.Info("classification_job finished (SUCCEEDED)", "job_id", id, "pages", pageCount)
	return nil
}

func (r *classificationJobRepo) Fail(ctx context.Context, id uuid.UUID, message string) error {
	query, args := r.builder().
		Update(tableClassificationJob).
		Set("status", string(constants.JobStatusFailed)).
		Set("error_message", message).
		Set("finished_at", r.now().UnixMilli()).
		Where(entsql.EQ("id", id.String())).
		Query()
	if err := r.exec1(ctx, query, args); err != nil {
		r.log.Error("classification_job finish(FAILED) failed", "job_id", id, "err", err)
		return err
	}
	r.log.Warn("classification_job finished (FAILED)", "job_id", id, "error", message)
	return nil
}

// exec1 runs an UPDATE that must touch exactly one row.
func (r *classificationJobRepo) exec1(ctx context.Context, query string, args []any) error {
	var res sql.Result
	if err := r.db.drv.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("%w: update classification_job: %w", common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %w", common.ErrDatabase, err)
	}
	if n == 0 {
		return fmt.Errorf("classification_job: %w", common.ErrNotFound)
	}
	return nil
}

func (r *classificationJobRepo) Get(ctx context.Context, id uuid.UUID) (*entity.ClassificationJob, error) {
	query, args := r.builder().
		Select(jobColumns...).
		From(entsql.Table(tableClassificationJob)).
		Where(entsql.EQ("id", id.String())).
		Query()
	jobs, err := r.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("classification_job %s: %w", id, common.ErrNotFound)
	}
	return jobs[0], nil
}

func (r *classificationJobRepo) ListRecent(ctx context.Context, limit int) ([]*entity.ClassificationJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args := r.builder().
		Select(jobColumns...).
		From(entsql.Table(tableClassificationJob)).
		OrderBy(entsql.Desc("started_at")).
		Limit(limit).
		Query()
	return r.query(ctx, query, args)
}

func (r *classificationJobRepo) query(ctx context.Context, query string, args []any) ([]*entity.ClassificationJob, error) {
	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: query classification_job: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*entity.ClassificationJob
	for rows.Next() {
		job, err := scanJob(&rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate classification_job: %w", common.ErrDatabase, err)
	}
	return out, nil
}

func scanJob(rows *entsql.Rows) (*entity.ClassificationJob, error) {
	var (
		id, status, predictions string
		startedAt               int64
		finishedAt              sql.NullInt64
		job                     entity.ClassificationJob
	)
	err := rows.Scan(&id, &job.Filename, &job.ContentSHA256, &job.SizeBytes, &job.PageCount, &status,
		&job.ErrorMessage, &job.Threshold, &job.ModelType, &predictions, &startedAt, &finishedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: scan classification_job: %w", common.ErrDatabase, err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: bad id %q: %w", common.ErrDatabase, id, err)
	}
	job.ID = parsed
	job.Status = constants.JobStatus(status)
	job.StartedAt = time.UnixMilli(startedAt).UTC()
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64).UTC()
		job.FinishedAt = &t
	}
	if predictions != "" {
		if !json.Valid([]byte(predictions)) {
			return nil, fmt.Errorf("%w: predictions of %s are not valid json", common.ErrDatabase, id)
		}
		job.Predictions = json.RawMessage(predictions)
	}
	return &job, nil
}

// IsNotFound reports whether err means the job does not exist.
func IsNotFound(err error) bool { return errors.Is(err, common.ErrNotFound) }
