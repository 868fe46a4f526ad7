package batch

import (
	"fmt"
	"math/rand/v2"
	"time"

	"photolog/internal/pkg/exifdata"
	"photolog/internal/pkg/staging"
)

// Status is the lifecycle state of one record. Transitions only move
// forward: pending, processing, then completed or error.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// statusRank orders states so a transition can never move backward. A
// thumbnail retry may still lift an errored record to completed.
var statusRank = map[Status]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusError:      2,
	StatusCompleted:  3,
}

const (
	// GroupSize is the number of records processed concurrently per
	// dispatch group.
	GroupSize = 4
	// MaxDescriptionLen caps per-record descriptions.
	MaxDescriptionLen = 100
	// DescriptionSeparator joins the batch description with a record's own.
	DescriptionSeparator = " - "
)

// Progress checkpoints per record.
const (
	progressDispatched = 10
	progressMetadata   = 60
	progressComplete   = 100
)

// Thumb is one staged rendered thumbnail of a record.
type Thumb struct {
	Handle *staging.Handle
	Width  int
	Height int
	Size   int64
	Format string
}

// Record tracks one admitted file through the pipeline. Records are owned
// exclusively by the Batch; workers only ever see the record id and the
// staged file path.
type Record struct {
	ID          string
	FileName    string
	ContentType string
	Size        int64
	Description string
	Status      Status
	Progress    int
	ErrorMsg    string
	Location    *exifdata.Location
	Exif        *exifdata.Bundle
	Thumbnails  map[string]*Thumb
	Preview     *staging.Handle // staged original, doubles as the preview
	CreatedAt   time.Time
}

// newRecordID builds a collision-tolerant id from a high-resolution
// timestamp and a random suffix.
func newRecordID() string {
	return fmt.Sprintf("%d-%04d", time.Now().UnixNano(), rand.IntN(10000))
}

// ThumbView is the read-only form of a staged thumbnail.
type ThumbView struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int64  `json:"size"`
	Format string `json:"format"`
}

// RecordView is a read-only snapshot of one record.
type RecordView struct {
	ID          string               `json:"id"`
	FileName    string               `json:"file_name"`
	ContentType string               `json:"content_type"`
	Size        int64                `json:"size"`
	Description string               `json:"description,omitempty"`
	Status      Status               `json:"status"`
	Progress    int                  `json:"progress"`
	ErrorMsg    string               `json:"error,omitempty"`
	Location    *exifdata.Location   `json:"location,omitempty"`
	Exif        *exifdata.Bundle     `json:"exif_data,omitempty"`
	Thumbnails  map[string]ThumbView `json:"thumbnails,omitempty"`
	PreviewPath string               `json:"preview_path"`
}

// Snapshot is a read-only view of the whole batch.
type Snapshot struct {
	Records       []RecordView `json:"records"`
	Description   string       `json:"description"`
	TotalProgress float64      `json:"total_progress"`
	Processing    bool         `json:"processing"`
}
