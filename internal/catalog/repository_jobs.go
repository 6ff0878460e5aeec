package catalog

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = now
	}
	if j.Status == "" {
		j.Status = JobStatusPending
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (type, status, progress, payload_json, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, j.Type, j.Status, j.Progress, optJSON(j.Payload), nullString(j.Error),
		j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return err
	}
	j.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, type, status, progress, payload_json, error, created_at, updated_at
		FROM jobs WHERE id = ?
	`, id)
	return r.scanJob(row)
}

func (r *SQLiteRepository) scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var payload, errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.Type, &j.Status, &j.Progress, &payload, &errMsg, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	j.Payload = fromJSON[JobPayload](payload)
	j.Error = errMsg.String
	j.CreatedAt = parseStoredTime(createdAt)
	j.UpdatedAt = parseStoredTime(updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, status, progress, payload_json, error, created_at, updated_at
		FROM jobs ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, status, progress, payload_json, error, created_at, updated_at
		FROM jobs WHERE status = 'Pending' ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

func (r *SQLiteRepository) ListJobsByStatus(ctx context.Context, statuses ...string) ([]*Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, status, progress, payload_json, error, created_at, updated_at
		FROM jobs WHERE status IN (`+placeholders+`) ORDER BY created_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanJobs(rows)
}

func (r *SQLiteRepository) scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var j Job
		var payload, errMsg sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&j.ID, &j.Type, &j.Status, &j.Progress, &payload, &errMsg, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		j.Payload = fromJSON[JobPayload](payload)
		j.Error = errMsg.String
		j.CreatedAt = parseStoredTime(createdAt)
		j.UpdatedAt = parseStoredTime(updatedAt)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// ClaimJob flips a job from Pending to Running in a single conditional
// update. Exactly one caller wins when several race for the same job;
// everyone else sees false.
func (r *SQLiteRepository) ClaimJob(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'Running', updated_at = datetime('now') WHERE id = ? AND status = 'Pending'
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id int64, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = datetime('now') WHERE id = ?
	`, status, nullString(errorMsg), id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id int64, progress float64) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, updated_at = datetime('now') WHERE id = ?
	`, progress, id)
	return err
}

// CancelPendingJob cancels a job only if it has not been claimed yet.
// Running jobs are cancelled cooperatively by the runner instead.
func (r *SQLiteRepository) CancelPendingJob(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'Cancelled', updated_at = datetime('now') WHERE id = ? AND status = 'Pending'
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// parseStoredTime accepts both RFC3339 strings written on insert and
// the datetime('now') format sqlite writes on update.
func parseStoredTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}
