package models

import (
	"database/sql"
	"time"
)

// Status is one of the six values the processing_queue.status column ever
// holds. No other string is ever written.
type Status string

const (
	StatusPending     Status = "pending"
	StatusProcessing  Status = "processing"
	StatusMoved       Status = "moved"
	StatusEmbyPending Status = "emby_pending"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// QueueItem is one row of processing_queue — the unit of work and the unit
// of state for the pipeline.
type QueueItem struct {
	ID           int64
	FilePath     string
	MovieCode    sql.NullString
	Actress      sql.NullString
	Subtitle     sql.NullString
	Status       Status
	ErrorMessage sql.NullString
	NewPath      sql.NullString
	EmbyItemID   sql.NullString
	MetadataJSON sql.NullString
	RetryCount   int
	NextRetryAt  sql.NullTime
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CatalogRecord is the metadata record returned by a catalog source.
type CatalogRecord struct {
	MovieCode     string   `json:"movie_code"`
	Title         string   `json:"title"`
	Actress       []string `json:"actress"`
	OriginalTitle string   `json:"original_title,omitempty"`
	Overview      string   `json:"overview,omitempty"`
	ReleaseDate   string   `json:"release_date,omitempty"`
	Genre         []string `json:"genre,omitempty"`
	Maker         string   `json:"maker,omitempty"`
	Label         string   `json:"label,omitempty"`
	Series        string   `json:"series,omitempty"`
	ImageCropped  string   `json:"image_cropped,omitempty"`
	RawImageURL   string   `json:"raw_image_url,omitempty"`
}

// StatusCounts is the result of count_by_status.
type StatusCounts map[Status]int
