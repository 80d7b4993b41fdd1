package worker

import (
	"database/sql/driver"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/jtdct/ingestor/internal/mediaserver"
	"github.com/jtdct/ingestor/internal/queuestore"
)

var msuQueueCols = []string{
	"id", "file_path", "movie_code", "actress", "subtitle", "status",
	"error_message", "new_path", "emby_item_id", "metadata_json", "retry_count",
	"next_retry_at", "created_at", "updated_at",
}

func msuRow(id int64, newPath, metadataJSON string) []driver.Value {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []driver.Value{
		id, "/incoming/video.mp4", "SONE-760", "Ruri Saijo", "English Sub", "emby_pending",
		nil, newPath, nil, metadataJSON, 0,
		nil, now, now,
	}
}

type fakeImageUploader struct {
	calls int
}

func (f *fakeImageUploader) EnqueueUpload(itemID, imageCropped, rawImageURL string) error {
	f.calls++
	return nil
}

func TestMediaServerUpdater_HappyPathCompletesItem(t *testing.T) {
	origSleep := mediaserver.SleepFunc
	defer func() { mediaserver.SleepFunc = origSleep }()
	mediaserver.SleepFunc = func(time.Duration) {}

	newPath := "/library/Ruri Saijo/Ruri Saijo - [English Sub] SONE-760 Title.mp4"
	metadataJSON := `{"original_title":"Original","overview":"Overview text","release_date":"2026-01-15","actress":["Ruri Saijo"],"genre":["Drama"],"label":"S1 NO.1 STYLE"}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/Items/parent-1/Refresh":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/Items":
			json.NewEncoder(w).Encode(struct {
				Items []mediaserver.Item `json:"Items"`
			}{Items: []mediaserver.Item{{ID: "item-1", Path: newPath}}})
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(mediaserver.Item{ID: "item-1", Path: newPath})
		case r.Method == http.MethodPost && r.URL.Path == "/Items/item-1":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE processing_queue").
		WillReturnRows(sqlmock.NewRows(msuQueueCols).AddRow(msuRow(1, newPath, metadataJSON)...))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE processing_queue SET status").
		WillReturnRows(sqlmock.NewRows(msuQueueCols).AddRow(msuRow(1, newPath, metadataJSON)...))
	mock.ExpectCommit()

	store := queuestore.New(db)
	client := mediaserver.New(srv.URL, "key", "user")
	uploader := &fakeImageUploader{}
	msu := NewMediaServerUpdater(store, client, "parent-1", uploader)
	msu.processOnce()

	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, 0, uploader.calls)
}

func TestMediaServerUpdater_ImageUploadFailureFallsBackToQueue(t *testing.T) {
	origSleep := mediaserver.SleepFunc
	defer func() { mediaserver.SleepFunc = origSleep }()
	mediaserver.SleepFunc = func(time.Duration) {}

	newPath := "/library/Ruri Saijo/Ruri Saijo - [English Sub] SONE-760 Title.mp4"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/Items/parent-1/Refresh":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/Items":
			json.NewEncoder(w).Encode(struct {
				Items []mediaserver.Item `json:"Items"`
			}{Items: []mediaserver.Item{{ID: "item-1", Path: newPath}}})
		case r.Method == http.MethodGet && r.URL.Path == "/broken-image.jpg":
			w.WriteHeader(http.StatusInternalServerError)
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(mediaserver.Item{ID: "item-1", Path: newPath})
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	metadataJSON := `{"image_cropped":"` + srv.URL + `/broken-image.jpg","original_title":"Original","actress":["Ruri Saijo"]}`

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE processing_queue").
		WillReturnRows(sqlmock.NewRows(msuQueueCols).AddRow(msuRow(1, newPath, metadataJSON)...))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE processing_queue SET status").
		WillReturnRows(sqlmock.NewRows(msuQueueCols).AddRow(msuRow(1, newPath, metadataJSON)...))
	mock.ExpectCommit()

	store := queuestore.New(db)
	client := mediaserver.New(srv.URL, "key", "user")
	uploader := &fakeImageUploader{}
	msu := NewMediaServerUpdater(store, client, "parent-1", uploader)
	msu.processOnce()

	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, 1, uploader.calls)
}

func TestMediaServerUpdater_NotIndexedRecordsRetriableError(t *testing.T) {
	origSleep := mediaserver.SleepFunc
	defer func() { mediaserver.SleepFunc = origSleep }()
	mediaserver.SleepFunc = func(time.Duration) {}

	newPath := "/library/Actress/missing.mp4"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		json.NewEncoder(w).Encode(struct {
			Items []mediaserver.Item `json:"Items"`
		}{})
	}))
	defer srv.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE processing_queue").
		WillReturnRows(sqlmock.NewRows(msuQueueCols).AddRow(msuRow(1, newPath, "")...))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE processing_queue SET status").
		WillReturnRows(sqlmock.NewRows(msuQueueCols).AddRow(msuRow(1, newPath, "")...))
	mock.ExpectQuery("UPDATE processing_queue SET next_retry_at").
		WillReturnRows(sqlmock.NewRows(msuQueueCols).AddRow(msuRow(1, newPath, "")...))
	mock.ExpectCommit()

	store := queuestore.New(db)
	client := mediaserver.New(srv.URL, "key", "user")
	uploader := &fakeImageUploader{}
	msu := NewMediaServerUpdater(store, client, "parent-1", uploader)
	msu.processOnce()

	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, 0, uploader.calls)
}
