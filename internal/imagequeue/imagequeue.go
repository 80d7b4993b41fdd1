// Package imagequeue retries an image upload that failed on its first,
// synchronous attempt in the media-server updater. It runs decoupled from
// the processing_queue state machine — an image failure never blocks an
// item from reaching completed. Adapted from the reference asynq job
// queue.
package imagequeue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/jtdct/ingestor/internal/mediaserver"
)

// TaskUploadImages is the asynq task type for a deferred image upload.
const TaskUploadImages = "image:upload"

// Payload is the JSON body of a TaskUploadImages task.
type Payload struct {
	ItemID       string `json:"item_id"`
	ImageCropped string `json:"image_cropped"`
	RawImageURL  string `json:"raw_image_url"`
}

type Queue struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
}

func New(redisAddr string) *Queue {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				"default": 1,
			},
			RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
				return time.Duration(n+1) * 30 * time.Second
			},
		},
	)
	mux := asynq.NewServeMux()
	inspector := asynq.NewInspector(redisOpt)
	return &Queue{client: client, server: server, mux: mux, inspector: inspector}
}

// isTaskConflict reports whether err indicates the task ID is already
// pending, active, or otherwise present in the queue.
func isTaskConflict(err error) bool {
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "task ID conflicts") || strings.Contains(msg, "duplicate task")
}

// EnqueueUpload schedules a best-effort image upload for itemID, deduped on
// the item id so re-running the pipeline for the same item never piles up
// duplicate retry tasks.
func (q *Queue) EnqueueUpload(itemID, imageCropped, rawImageURL string) error {
	data, err := json.Marshal(Payload{ItemID: itemID, ImageCropped: imageCropped, RawImageURL: rawImageURL})
	if err != nil {
		return fmt.Errorf("marshal image upload payload: %w", err)
	}

	task := asynq.NewTask(TaskUploadImages, data, asynq.TaskID(itemID), asynq.MaxRetry(5))
	_, err = q.client.Enqueue(task)
	if err == nil {
		return nil
	}
	if isTaskConflict(err) {
		log.Printf("imagequeue: upload already queued for item %s, skipping", itemID)
		return nil
	}
	return fmt.Errorf("enqueue image upload: %w", err)
}

// RegisterHandler wires msClient's UploadImages as the handler for
// TaskUploadImages, logging (never failing the outer item) on error.
func (q *Queue) RegisterHandler(msClient *mediaserver.Client) {
	q.mux.HandleFunc(TaskUploadImages, func(ctx context.Context, t *asynq.Task) error {
		var p Payload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("unmarshal image upload payload: %w", err)
		}
		if err := msClient.UploadImages(p.ItemID, p.ImageCropped, p.RawImageURL); err != nil {
			log.Printf("imagequeue: upload failed for item %s: %v", p.ItemID, err)
			return err
		}
		return nil
	})
}

func (q *Queue) Start() error {
	log.Println("imagequeue: worker starting")
	return q.server.Start(q.mux)
}

func (q *Queue) Stop() {
	q.server.Shutdown()
	q.client.Close()
	q.inspector.Close()
}
