// Package queuestore owns the processing_queue state machine and its
// concurrency primitives, grounded on the reference QueueDB and adapted to
// database/sql + lib/pq in the style of CineVault's db package.
package queuestore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/jtdct/ingestor/internal/models"
)

// MaxRetries is the highest retry_count a row may reach before the retry
// scheduler stops offering it.
const MaxRetries = 3

// RetryBackoff is the per-attempt backoff schedule, indexed by
// min(retry_count-1, len-1).
var RetryBackoff = []time.Duration{
	1 * time.Minute, 5 * time.Minute, 15 * time.Minute,
}

// ErrNotFound is returned when an operation targets a row that does not
// exist or is not in the expected status.
var ErrNotFound = errors.New("queuestore: not found")

type Store struct {
	db *sql.DB
}

// New wraps an already-connected pool. Callers obtain that pool via
// internal/db.Connect, which sizes it to the pipeline's production bounds
// (min=1, max=5) before running migrations.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const queueColumns = `id, file_path, movie_code, actress, subtitle, status,
	error_message, new_path, emby_item_id, metadata_json, retry_count,
	next_retry_at, created_at, updated_at`

func scanQueueItem(row interface{ Scan(dest ...interface{}) error }) (*models.QueueItem, error) {
	var item models.QueueItem
	err := row.Scan(
		&item.ID, &item.FilePath, &item.MovieCode, &item.Actress, &item.Subtitle,
		&item.Status, &item.ErrorMessage, &item.NewPath, &item.EmbyItemID,
		&item.MetadataJSON, &item.RetryCount, &item.NextRetryAt,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Add inserts a new row with status=pending. On a unique conflict on
// file_path it returns the existing row unchanged, making the call
// idempotent.
func (s *Store) Add(filePath string, movieCode, actress, subtitle *string) (*models.QueueItem, error) {
	row := s.db.QueryRow(
		fmt.Sprintf(`INSERT INTO processing_queue (file_path, movie_code, actress, subtitle)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (file_path) DO NOTHING
		 RETURNING %s`, queueColumns),
		filePath, movieCode, actress, subtitle,
	)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s.GetByPath(filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("add queue item: %w", err)
	}
	return item, nil
}

func (s *Store) Get(id int64) (*models.QueueItem, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM processing_queue WHERE id = $1`, queueColumns), id)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

func (s *Store) GetByPath(filePath string) (*models.QueueItem, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT %s FROM processing_queue WHERE file_path = $1`, queueColumns), filePath)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item by path: %w", err)
	}
	return item, nil
}

// ClaimPending atomically picks the oldest pending row, transitions it to
// processing, and returns it. Concurrent callers never observe the same
// row: the select skips rows already locked by another transaction.
func (s *Store) ClaimPending() (*models.QueueItem, error) {
	return s.claim("pending", "processing")
}

// ClaimMoved atomically picks the oldest moved row, transitions it to
// emby_pending, and returns it.
func (s *Store) ClaimMoved() (*models.QueueItem, error) {
	return s.claim("moved", "emby_pending")
}

func (s *Store) claim(fromStatus, toStatus string) (*models.QueueItem, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(
		fmt.Sprintf(`UPDATE processing_queue
		 SET status = $1
		 WHERE id = (
			 SELECT id FROM processing_queue
			 WHERE status = $2
			 ORDER BY created_at ASC
			 LIMIT 1
			 FOR UPDATE SKIP LOCKED
		 )
		 RETURNING %s`, queueColumns),
		toStatus, fromStatus,
	)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim %s item: %w", fromStatus, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return item, nil
}

// StatusPatch carries the optional fields update_status may apply alongside
// the status transition.
type StatusPatch struct {
	ErrorMessage *string
	NewPath      *string
	EmbyItemID   *string
	Actress      *string
	Subtitle     *string
	MovieCode    *string
	Metadata     interface{}
}

// UpdateStatus applies patch fields and transitions status. When newStatus
// is "error" it also increments retry_count and, if the row is still
// within MaxRetries, sets next_retry_at per the backoff schedule.
func (s *Store) UpdateStatus(id int64, newStatus models.Status, patch StatusPatch) (*models.QueueItem, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin update tx: %w", err)
	}
	defer tx.Rollback()

	setClauses := []string{"status = $1"}
	args := []interface{}{newStatus}
	argN := 2

	if patch.ErrorMessage != nil {
		setClauses = append(setClauses, fmt.Sprintf("error_message = $%d", argN))
		args = append(args, *patch.ErrorMessage)
		argN++
	}
	if patch.NewPath != nil {
		setClauses = append(setClauses, fmt.Sprintf("new_path = $%d", argN))
		args = append(args, *patch.NewPath)
		argN++
	}
	if patch.EmbyItemID != nil {
		setClauses = append(setClauses, fmt.Sprintf("emby_item_id = $%d", argN))
		args = append(args, *patch.EmbyItemID)
		argN++
	}
	if patch.Actress != nil {
		setClauses = append(setClauses, fmt.Sprintf("actress = $%d", argN))
		args = append(args, *patch.Actress)
		argN++
	}
	if patch.Subtitle != nil {
		setClauses = append(setClauses, fmt.Sprintf("subtitle = $%d", argN))
		args = append(args, *patch.Subtitle)
		argN++
	}
	if patch.MovieCode != nil {
		setClauses = append(setClauses, fmt.Sprintf("movie_code = $%d", argN))
		args = append(args, *patch.MovieCode)
		argN++
	}
	if patch.Metadata != nil {
		encoded, err := json.Marshal(patch.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("metadata_json = $%d", argN))
		args = append(args, string(encoded))
		argN++
	}
	if newStatus == models.StatusError {
		setClauses = append(setClauses, "retry_count = retry_count + 1")
	}

	query := "UPDATE processing_queue SET "
	for i, c := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += c
	}
	query += fmt.Sprintf(" WHERE id = $%d RETURNING %s", argN, queueColumns)
	args = append(args, id)

	row := tx.QueryRow(query, args...)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	if newStatus == models.StatusError && item.RetryCount <= MaxRetries {
		idx := item.RetryCount - 1
		if idx >= len(RetryBackoff) {
			idx = len(RetryBackoff) - 1
		}
		if idx < 0 {
			idx = 0
		}
		nextRetry := time.Now().UTC().Add(RetryBackoff[idx])
		row := tx.QueryRow(
			fmt.Sprintf(`UPDATE processing_queue SET next_retry_at = $1 WHERE id = $2 RETURNING %s`, queueColumns),
			nextRetry, id,
		)
		item, err = scanQueueItem(row)
		if err != nil {
			return nil, fmt.Errorf("set next_retry_at: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update tx: %w", err)
	}
	return item, nil
}

// ListRetryableErrors returns error rows eligible for automatic retry:
// retry_count <= MaxRetries and next_retry_at has passed.
func (s *Store) ListRetryableErrors(limit int) ([]*models.QueueItem, error) {
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT %s FROM processing_queue
		 WHERE status = 'error' AND retry_count <= $1 AND next_retry_at <= NOW()
		 ORDER BY next_retry_at ASC
		 LIMIT $2`, queueColumns),
		MaxRetries, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list retryable errors: %w", err)
	}
	defer rows.Close()
	return scanQueueItems(rows)
}

// ResetForRetry moves a row from error back to pending, or to moved if the
// file had already been relocated (new_path set) — so processing resumes
// at the media-server stage rather than re-running the whole pipeline. It
// clears error_message and next_retry_at, and does not touch retry_count.
func (s *Store) ResetForRetry(id int64) (*models.QueueItem, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin reset tx: %w", err)
	}
	defer tx.Rollback()

	var newPath sql.NullString
	err = tx.QueryRow(`SELECT new_path FROM processing_queue WHERE id = $1 AND status = 'error'`, id).Scan(&newPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check reset eligibility: %w", err)
	}

	resumeStatus := models.StatusPending
	if newPath.Valid && newPath.String != "" {
		resumeStatus = models.StatusMoved
	}

	row := tx.QueryRow(
		fmt.Sprintf(`UPDATE processing_queue
		 SET status = $1, error_message = NULL, next_retry_at = NULL
		 WHERE id = $2 AND status = 'error' AND retry_count <= $3
		 RETURNING %s`, queueColumns),
		resumeStatus, id, MaxRetries,
	)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reset for retry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reset tx: %w", err)
	}
	return item, nil
}

// ForceReset moves a row from any status back to pending, for operator use.
func (s *Store) ForceReset(id int64) (*models.QueueItem, error) {
	row := s.db.QueryRow(
		fmt.Sprintf(`UPDATE processing_queue
		 SET status = 'pending', error_message = NULL, next_retry_at = NULL
		 WHERE id = $1
		 RETURNING %s`, queueColumns),
		id,
	)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("force reset: %w", err)
	}
	return item, nil
}

func (s *Store) Delete(id int64) error {
	res, err := s.db.Exec(`DELETE FROM processing_queue WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete queue item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete queue item: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListByStatus(status models.Status, limit int) ([]*models.QueueItem, error) {
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT %s FROM processing_queue WHERE status = $1 ORDER BY created_at DESC LIMIT $2`, queueColumns),
		status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	defer rows.Close()
	return scanQueueItems(rows)
}

func (s *Store) CountByStatus() (models.StatusCounts, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM processing_queue GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := models.StatusCounts{}
	for rows.Next() {
		var status models.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// CleanupCompleted deletes completed rows last updated more than olderThan
// ago and returns how many rows were removed.
func (s *Store) CleanupCompleted(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.Exec(
		`DELETE FROM processing_queue WHERE status = 'completed' AND updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup completed: %w", err)
	}
	return n, nil
}

func scanQueueItems(rows *sql.Rows) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
