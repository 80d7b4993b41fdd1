package worker

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jtdct/ingestor/internal/queuestore"
)

const retrySchedulerInterval = 30 * time.Second

// retryListLimit is the batch size per scheduler cycle, per the reference
// retry handler.
const retryListLimit = 10

// nonRetriablePrefix marks the one permanent error class: a missing
// movie code can never be recovered by retrying.
const nonRetriablePrefix = "No movie code"

// IsRetriable reports whether an error_message belongs to a retriable
// class. Shared with the operator CLI's retry-all command so both paths
// agree on which rows are worth re-arming.
func IsRetriable(errorMessage string) bool {
	return !strings.HasPrefix(errorMessage, nonRetriablePrefix)
}

// RetryScheduler re-arms retriable error rows once their backoff window
// has elapsed.
type RetryScheduler struct {
	store *queuestore.Store
	stop  chan struct{}
	done  chan struct{}
}

func NewRetryScheduler(store *queuestore.Store) *RetryScheduler {
	return &RetryScheduler{
		store: store,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (w *RetryScheduler) Start() {
	go w.run()
}

func (w *RetryScheduler) Stop() {
	close(w.stop)
	<-w.done
}

func (w *RetryScheduler) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			log.Println("[retry-scheduler] stopped")
			return
		default:
		}

		w.processOnce()

		select {
		case <-time.After(retrySchedulerInterval):
		case <-w.stop:
			log.Println("[retry-scheduler] stopped")
			return
		}
	}
}

func (w *RetryScheduler) processOnce() {
	items, err := w.store.ListRetryableErrors(retryListLimit)
	if err != nil {
		log.Printf("[retry-scheduler] list retryable errors failed: %v", err)
		return
	}
	if len(items) == 0 {
		return
	}

	cid := uuid.NewString()
	log.Printf("[retry-scheduler][%s] cycle: %d candidate row(s)", cid, len(items))

	for _, item := range items {
		if item.ErrorMessage.Valid && !IsRetriable(item.ErrorMessage.String) {
			continue
		}
		if _, err := w.store.ResetForRetry(item.ID); err != nil {
			log.Printf("[retry-scheduler][%s] id=%d: reset for retry failed: %v", cid, item.ID, err)
		}
	}
}
