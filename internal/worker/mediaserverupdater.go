package worker

import (
	"errors"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jtdct/ingestor/internal/mediaserver"
	"github.com/jtdct/ingestor/internal/models"
	"github.com/jtdct/ingestor/internal/queuestore"
)

const mediaServerUpdaterInterval = 5 * time.Second

// MediaServerUpdater registers moved files with the downstream media
// server: rescan, indexing wait, modify-and-post write, then a synchronous
// image upload attempt that falls back to the background retry queue on
// failure.
type MediaServerUpdater struct {
	store           *queuestore.Store
	client          *mediaserver.Client
	parentFolderID  string
	imageUploader   ImageUploader
	stop            chan struct{}
	done            chan struct{}
}

// ImageUploader schedules a background retry of a failed synchronous image
// upload; it never gates item completion.
type ImageUploader interface {
	EnqueueUpload(itemID, imageCropped, rawImageURL string) error
}

func NewMediaServerUpdater(store *queuestore.Store, client *mediaserver.Client, parentFolderID string, imageUploader ImageUploader) *MediaServerUpdater {
	return &MediaServerUpdater{
		store:          store,
		client:         client,
		parentFolderID: parentFolderID,
		imageUploader:  imageUploader,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func (w *MediaServerUpdater) Start() {
	go w.run()
}

func (w *MediaServerUpdater) Stop() {
	close(w.stop)
	<-w.done
}

func (w *MediaServerUpdater) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			log.Println("[media-server-updater] stopped")
			return
		default:
		}

		w.processOnce()

		select {
		case <-time.After(mediaServerUpdaterInterval):
		case <-w.stop:
			log.Println("[media-server-updater] stopped")
			return
		}
	}
}

func (w *MediaServerUpdater) processOnce() {
	item, err := w.store.ClaimMoved()
	if err != nil {
		log.Printf("[media-server-updater] claim failed: %v", err)
		return
	}
	if item == nil {
		return
	}

	cid := uuid.NewString()
	log.Printf("[media-server-updater][%s] claimed id=%d path=%s", cid, item.ID, item.NewPath.String)

	found, err := w.client.WaitForIndexing(w.parentFolderID, item.NewPath.String)
	if errors.Is(err, mediaserver.ErrItemNotIndexed) {
		w.fail(item.ID, "Item not indexed")
		return
	}
	if err != nil {
		w.fail(item.ID, "Rescan failure: "+err.Error())
		return
	}
	if found == nil {
		w.fail(item.ID, "Item not indexed")
		return
	}

	fresh, err := w.client.GetItem(found.ID)
	if err != nil {
		w.fail(item.ID, "Metadata write failure: "+err.Error())
		return
	}

	var record models.CatalogRecord
	if item.MetadataJSON.Valid {
		if err := unmarshalMetadata(item.MetadataJSON.String, &record); err != nil {
			w.fail(item.ID, "Metadata write failure: "+err.Error())
			return
		}
	}

	mediaserver.ApplyMetadata(fresh, filepath.Base(item.NewPath.String), mediaserver.MetadataFields{
		OriginalTitle: record.OriginalTitle,
		Overview:      record.Overview,
		ReleaseDate:   record.ReleaseDate,
		Actress:       record.Actress,
		Genre:         record.Genre,
		Label:         record.Label,
	})

	if err := w.client.PostItem(fresh); err != nil {
		w.fail(item.ID, "Metadata write failure: "+err.Error())
		return
	}

	if err := w.client.UploadImages(fresh.ID, record.ImageCropped, record.RawImageURL); err != nil {
		log.Printf("[media-server-updater][%s] id=%d: synchronous image upload failed, deferring to background retry: %v", cid, item.ID, err)
		if err := w.imageUploader.EnqueueUpload(fresh.ID, record.ImageCropped, record.RawImageURL); err != nil {
			log.Printf("[media-server-updater][%s] id=%d: image upload enqueue failed (non-fatal): %v", cid, item.ID, err)
		}
	}

	embyID := fresh.ID
	if _, err := w.store.UpdateStatus(item.ID, models.StatusCompleted, queuestore.StatusPatch{EmbyItemID: &embyID}); err != nil {
		log.Printf("[media-server-updater] id=%d: update to completed failed: %v", item.ID, err)
		return
	}

	log.Printf("[media-server-updater][%s] id=%d completed emby_item_id=%s", cid, item.ID, embyID)
}

func (w *MediaServerUpdater) fail(id int64, message string) {
	msg := message
	if _, err := w.store.UpdateStatus(id, models.StatusError, queuestore.StatusPatch{ErrorMessage: &msg}); err != nil {
		log.Printf("[media-server-updater] id=%d: record error failed: %v", id, err)
	}
}
