package worker

import (
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/jtdct/ingestor/internal/queuestore"
)

var retryQueueCols = []string{
	"id", "file_path", "movie_code", "actress", "subtitle", "status",
	"error_message", "new_path", "emby_item_id", "metadata_json", "retry_count",
	"next_retry_at", "created_at", "updated_at",
}

func retryErrorRow(id int64, errMsg string) []driver.Value {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []driver.Value{
		id, "/incoming/video.mp4", nil, nil, nil, "error",
		errMsg, nil, nil, nil, 1,
		now, now, now,
	}
}

func TestRetryScheduler_SkipsNonRetriableErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM processing_queue WHERE status = 'error'").
		WillReturnRows(sqlmock.NewRows(retryQueueCols).
			AddRow(retryErrorRow(1, "No movie code found in clip.mp4")...))

	rs := NewRetryScheduler(queuestore.New(db))
	rs.processOnce()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryScheduler_ResetsRetriableErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT .* FROM processing_queue WHERE status = 'error'").
		WillReturnRows(sqlmock.NewRows(retryQueueCols).
			AddRow(retryErrorRow(2, "No metadata found for ABC-123")...))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT new_path FROM processing_queue").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"new_path"}).AddRow(nil))
	mock.ExpectQuery("UPDATE processing_queue").
		WillReturnRows(sqlmock.NewRows(retryQueueCols).
			AddRow(retryErrorRow(2, "")...))
	mock.ExpectCommit()

	rs := NewRetryScheduler(queuestore.New(db))
	rs.processOnce()

	require.NoError(t, mock.ExpectationsWereMet())
}
