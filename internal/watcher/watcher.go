// Package watcher observes the ingest directory for new video files and,
// once a file's size has stabilized, enqueues it for processing. Adapted
// from CineVault's fsnotify-based watcher and the reference stability
// checker.
package watcher

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jtdct/ingestor/internal/models"
)

// Enqueuer is the subset of the queue store the watcher depends on. It
// tolerates unique-key races silently: a duplicate add for an already
// in-flight path is not an error.
type Enqueuer interface {
	Add(filePath string, movieCode, actress, subtitle *string) (*models.QueueItem, error)
}

// Watcher monitors a single root directory for new video files and hands
// off stabilized paths to an Enqueuer.
type Watcher struct {
	root             string
	extensions       map[string]bool
	checkInterval    time.Duration
	minStableChecks  int
	enqueuer         Enqueuer
	fsw              *fsnotify.Watcher
	stop             chan struct{}
	wg               sync.WaitGroup
}

// New creates a watcher over root. extensions holds the eligible set
// (e.g. ".mp4"); checkInterval and minStableChecks configure the
// stability protocol.
func New(root string, extensions map[string]bool, checkInterval time.Duration, minStableChecks int, enqueuer Enqueuer) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		root:            root,
		extensions:      extensions,
		checkInterval:   checkInterval,
		minStableChecks: minStableChecks,
		enqueuer:        enqueuer,
		fsw:             fsw,
		stop:            make(chan struct{}),
	}, nil
}

// Start begins the event loop in the background.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.eventLoop()
	log.Printf("[watcher] watching %s", w.root)
}

// Stop closes the underlying fsnotify watcher and waits for the event loop
// and any in-flight stability checks to finish.
func (w *Watcher) Stop() {
	close(w.stop)
	w.fsw.Close()
	w.wg.Wait()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[watcher] error: %v", err)
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	ext := strings.ToLower(filepath.Ext(event.Name))
	if !w.extensions[ext] {
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.waitForStability(event.Name)
	}()
}

// waitForStability polls the file's size until it has been unchanged for
// minStableChecks consecutive checks, then enqueues it. It aborts silently
// if the file disappears before stabilizing.
func (w *Watcher) waitForStability(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	lastSize := info.Size()
	stableCount := 1

	for stableCount < w.minStableChecks {
		select {
		case <-time.After(w.checkInterval):
		case <-w.stop:
			return
		}

		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.Size() == lastSize {
			stableCount++
		} else {
			lastSize = info.Size()
			stableCount = 1
		}
	}

	if _, err := w.enqueuer.Add(path, nil, nil, nil); err != nil {
		log.Printf("[watcher] enqueue %s: %v", path, err)
	}
}
