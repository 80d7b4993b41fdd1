package worker

import (
	"database/sql/driver"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/jtdct/ingestor/internal/catalog"
	"github.com/jtdct/ingestor/internal/models"
	"github.com/jtdct/ingestor/internal/queuestore"
)

var fpQueueCols = []string{
	"id", "file_path", "movie_code", "actress", "subtitle", "status",
	"error_message", "new_path", "emby_item_id", "metadata_json", "retry_count",
	"next_retry_at", "created_at", "updated_at",
}

func fpRow(id int64, filePath string, status string, newPath driver.Value) []driver.Value {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []driver.Value{
		id, filePath, nil, nil, nil, status,
		nil, newPath, nil, nil, 0,
		nil, now, now,
	}
}

func TestFileProcessor_NoCodeRecordsPermanentError(t *testing.T) {
	srcDir := t.TempDir()
	srcFile := filepath.Join(srcDir, "random clip.mp4")
	require.NoError(t, os.WriteFile(srcFile, []byte("data"), 0o644))

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE processing_queue").
		WillReturnRows(sqlmock.NewRows(fpQueueCols).AddRow(fpRow(1, srcFile, "processing", nil)...))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE processing_queue SET status").
		WillReturnRows(sqlmock.NewRows(fpQueueCols).AddRow(fpRow(1, srcFile, "processing", nil)...))
	mock.ExpectQuery("UPDATE processing_queue SET next_retry_at").
		WillReturnRows(sqlmock.NewRows(fpQueueCols).AddRow(fpRow(1, srcFile, "processing", nil)...))
	mock.ExpectCommit()

	store := queuestore.New(db)
	catalogClient := catalog.New("http://unused.invalid", "token", []string{"missav"})
	fp := NewFileProcessor(store, catalogClient, t.TempDir())
	fp.processOnce()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFileProcessor_HappyPathMovesFileAndMarksMoved(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	srcFile := filepath.Join(srcDir, "SONE-760 English subbed The same commute train as always.mp4")
	require.NoError(t, os.WriteFile(srcFile, []byte("data"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(struct {
			Success bool                  `json:"success"`
			Data    *models.CatalogRecord `json:"data"`
		}{
			Success: true,
			Data: &models.CatalogRecord{
				MovieCode: "SONE-760",
				Title:     "The Same Commute Train As Always",
				Actress:   []string{"Ruri Saijo"},
				Label:     "S1 NO.1 STYLE",
			},
		})
	}))
	defer srv.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE processing_queue").
		WillReturnRows(sqlmock.NewRows(fpQueueCols).AddRow(fpRow(1, srcFile, "processing", nil)...))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE processing_queue SET status").
		WillReturnRows(sqlmock.NewRows(fpQueueCols).AddRow(fpRow(1, srcFile, "moved", "moved")...))
	mock.ExpectCommit()

	store := queuestore.New(db)
	catalogClient := catalog.New(srv.URL, "token", []string{"missav"})
	fp := NewFileProcessor(store, catalogClient, destDir)
	fp.processOnce()

	require.NoError(t, mock.ExpectationsWereMet())

	entries, err := os.ReadDir(filepath.Join(destDir, "Ruri Saijo"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
