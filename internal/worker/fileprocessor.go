// Package worker holds the three consumer loops that cooperate only
// through the queue store, in the ticker-loop style of CineVault's
// scheduler with graceful, finish-current-row shutdown.
package worker

import (
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jtdct/ingestor/internal/catalog"
	"github.com/jtdct/ingestor/internal/models"
	"github.com/jtdct/ingestor/internal/parser"
	"github.com/jtdct/ingestor/internal/queuestore"
	"github.com/jtdct/ingestor/internal/renamer"
)

// fileProcessorInterval is the sleep between claim attempts.
const fileProcessorInterval = 2 * time.Second

// FileProcessor parses, enriches, and relocates newly-watched files.
type FileProcessor struct {
	store          *queuestore.Store
	catalogClient  *catalog.Client
	destinationDir string
	stop           chan struct{}
	done           chan struct{}
}

func NewFileProcessor(store *queuestore.Store, catalogClient *catalog.Client, destinationDir string) *FileProcessor {
	return &FileProcessor{
		store:          store,
		catalogClient:  catalogClient,
		destinationDir: destinationDir,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start runs the loop in the background. On shutdown signal, the worker
// finishes its current row before exiting — it never abandons in-flight
// state.
func (w *FileProcessor) Start() {
	go w.run()
}

// Stop signals the loop to exit after its current cycle and blocks until
// it has.
func (w *FileProcessor) Stop() {
	close(w.stop)
	<-w.done
}

func (w *FileProcessor) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			log.Println("[file-processor] stopped")
			return
		default:
		}

		w.processOnce()

		select {
		case <-time.After(fileProcessorInterval):
		case <-w.stop:
			log.Println("[file-processor] stopped")
			return
		}
	}
}

func (w *FileProcessor) processOnce() {
	item, err := w.store.ClaimPending()
	if err != nil {
		log.Printf("[file-processor] claim failed: %v", err)
		return
	}
	if item == nil {
		return
	}

	cid := uuid.NewString()
	log.Printf("[file-processor][%s] claimed id=%d path=%s", cid, item.ID, item.FilePath)

	if item.NewPath.Valid && item.NewPath.String != "" {
		if _, err := w.store.UpdateStatus(item.ID, models.StatusMoved, queuestore.StatusPatch{}); err != nil {
			log.Printf("[file-processor] id=%d: advance pre-moved row: %v", item.ID, err)
		}
		return
	}

	code := parser.ExtractCode(item.FilePath)
	if code == "" {
		w.fail(item.ID, "No movie code found in "+filepath.Base(item.FilePath))
		return
	}

	subtitle := parser.DetectSubtitle(item.FilePath)

	record := w.catalogClient.Search(code)
	if record == nil {
		w.fail(item.ID, "No metadata found for "+code)
		return
	}

	if len(record.Actress) == 0 {
		w.fail(item.ID, "No metadata found for "+code+" (no actress listed)")
		return
	}
	actress := record.Actress[0]

	ext := filepath.Ext(item.FilePath)
	filename := renamer.BuildFilename(actress, subtitle, code, record.Title, ext)

	newPath, err := renamer.Move(item.FilePath, w.destinationDir, actress, filename)
	if err != nil {
		w.fail(item.ID, "File move failure: "+err.Error())
		return
	}

	patch := queuestore.StatusPatch{
		NewPath:   &newPath,
		Metadata:  record,
		Actress:   &actress,
		Subtitle:  &subtitle,
		MovieCode: &code,
	}
	if _, err := w.store.UpdateStatus(item.ID, models.StatusMoved, patch); err != nil {
		log.Printf("[file-processor] id=%d: update to moved failed: %v", item.ID, err)
		return
	}

	log.Printf("[file-processor][%s] id=%d moved -> %s", cid, item.ID, newPath)
}

func (w *FileProcessor) fail(id int64, message string) {
	msg := message
	if _, err := w.store.UpdateStatus(id, models.StatusError, queuestore.StatusPatch{ErrorMessage: &msg}); err != nil {
		log.Printf("[file-processor] id=%d: record error failed: %v", id, err)
	}
}
