package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateBatchJob persists a job and its targets atomically.
func (db *DB) CreateBatchJob(job *BatchJob, targets []BatchTarget) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	if job.Status == "" {
		job.Status = BatchQueued
	}
	job.CreatedAt = now
	if _, err := tx.Exec(`
		INSERT INTO batch_jobs (id, owner_id, items, interval_ms, big_interval_ms, messages_until_big, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.OwnerID, job.Items, job.IntervalMs, job.BigIntervalMs, job.MessagesUntilBig, job.Status, now, now); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	for i, t := range targets {
		if _, err := tx.Exec(`
			INSERT INTO batch_targets (job_id, channel_id, position, params, status, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			job.ID, t.ChannelID, i, t.Params, TargetQueued, now); err != nil {
			return fmt.Errorf("insert target %q: %w", t.ChannelID, err)
		}
	}
	return tx.Commit()
}

// GetBatchJob returns a job by id, or nil when absent.
func (db *DB) GetBatchJob(id string) (*BatchJob, error) {
	var j BatchJob
	err := db.QueryRow(`
		SELECT id, owner_id, items, interval_ms, big_interval_ms, messages_until_big, status, created_at
		FROM batch_jobs WHERE id = ?`, id).
		Scan(&j.ID, &j.OwnerID, &j.Items, &j.IntervalMs, &j.BigIntervalMs, &j.MessagesUntilBig, &j.Status, &j.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// NextRunnableJob returns the oldest queued or running job, or nil.
func (db *DB) NextRunnableJob() (*BatchJob, error) {
	var id string
	err := db.QueryRow(`
		SELECT id FROM batch_jobs
		WHERE status IN (?, ?)
		ORDER BY created_at, id
		LIMIT 1`, BatchQueued, BatchRunning).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return db.GetBatchJob(id)
}

// SetJobStatus updates a job's state.
func (db *DB) SetJobStatus(id, status string) error {
	_, err := db.Exec(`UPDATE batch_jobs SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UnixMilli(), id)
	return err
}

// PendingTargets returns the queued targets of a job in position order.
func (db *DB) PendingTargets(jobID string) ([]BatchTarget, error) {
	rows, err := db.Query(`
		SELECT job_id, channel_id, position, params, status, error_message, server_msg_id
		FROM batch_targets
		WHERE job_id = ? AND status = ?
		ORDER BY position`, jobID, TargetQueued)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []BatchTarget
	for rows.Next() {
		var t BatchTarget
		if err := rows.Scan(&t.JobID, &t.ChannelID, &t.Position, &t.Params, &t.Status, &t.ErrorMessage, &t.ServerMsgID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (db *DB) setTarget(jobID, channelID, status, errMsg, serverID string) error {
	_, err := db.Exec(`
		UPDATE batch_targets SET status = ?, error_message = ?, server_msg_id = ?, updated_at = ?
		WHERE job_id = ? AND channel_id = ?`,
		status, errMsg, serverID, time.Now().UnixMilli(), jobID, channelID)
	return err
}

// MarkTargetSending marks a target as in progress.
func (db *DB) MarkTargetSending(jobID, channelID string) error {
	return db.setTarget(jobID, channelID, TargetSending, "", "")
}

// MarkTargetSent records a delivered target and the provider's message id.
func (db *DB) MarkTargetSent(jobID, channelID, serverMsgID string) error {
	return db.setTarget(jobID, channelID, TargetSent, "", serverMsgID)
}

// MarkTargetFailed records a failed target.
func (db *DB) MarkTargetFailed(jobID, channelID, errMsg string) error {
	return db.setTarget(jobID, channelID, TargetFailed, errMsg, "")
}

// FinishJob closes a job: done when at least one target was sent, failed otherwise.
func (db *DB) FinishJob(jobID string) (BatchProgress, error) {
	p, err := db.JobProgress(jobID)
	if err != nil {
		return p, err
	}
	status := BatchDone
	if p.Total > 0 && p.Sent == 0 {
		status = BatchFailed
	}
	if err := db.SetJobStatus(jobID, status); err != nil {
		return p, err
	}
	p.Status = status
	return p, nil
}

// JobProgress counts a job's targets by state.
func (db *DB) JobProgress(jobID string) (BatchProgress, error) {
	p := BatchProgress{JobID: jobID}
	err := db.QueryRow(`
		SELECT j.status,
		       COUNT(t.channel_id),
		       COALESCE(SUM(CASE WHEN t.status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN t.status = ? THEN 1 ELSE 0 END), 0)
		FROM batch_jobs j
		LEFT JOIN batch_targets t ON t.job_id = j.id
		WHERE j.id = ?
		GROUP BY j.id`, TargetSent, TargetFailed, jobID).
		Scan(&p.Status, &p.Total, &p.Sent, &p.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("batch job %q not found", jobID)
	}
	return p, err
}

// RequeueInterrupted puts targets left in the sending state back in the
// queue. Called on startup, after an unclean stop.
func (db *DB) RequeueInterrupted() (int64, error) {
	res, err := db.Exec(`UPDATE batch_targets SET status = ?, updated_at = ? WHERE status = ?`,
		TargetQueued, time.Now().UnixMilli(), TargetSending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CancelJob marks a job canceled and fails its remaining queued targets.
func (db *DB) CancelJob(jobID string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	now := time.Now().UnixMilli()
	res, err := tx.Exec(`UPDATE batch_jobs SET status = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		BatchCanceled, now, jobID, BatchQueued, BatchRunning)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("batch job %q is not active", jobID)
	}
	if _, err := tx.Exec(`UPDATE batch_targets SET status = ?, error_message = 'canceled', updated_at = ? WHERE job_id = ? AND status = ?`,
		TargetFailed, now, jobID, TargetQueued); err != nil {
		return err
	}
	return tx.Commit()
}
