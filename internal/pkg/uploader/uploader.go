// Package uploader defines the boundary to the upload collaborator. The
// pipeline hands a finalized batch over as an ordered item list; transport,
// retries and persistence are the collaborator's responsibility and the
// pipeline never retries on its own.
package uploader

import (
	"context"

	"photolog/internal/pkg/exifdata"
)

// Thumbnail references one rendered thumbnail of an item.
type Thumbnail struct {
	Path   string `json:"-"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int64  `json:"size"`
	Format string `json:"format"`
}

// Item is one completed record ready for upload.
type Item struct {
	FileName    string
	ContentType string
	FilePath    string
	Description string
	Location    *exifdata.Location
	Thumbnails  map[string]Thumbnail
	Exif        *exifdata.Bundle
}

// Result is the per-item outcome reported by the collaborator.
type Result struct {
	FileName string
	PhotoID  string
	Err      error
}

// Uploader consumes a finalized batch.
type Uploader interface {
	Upload(ctx context.Context, items []Item) ([]Result, error)
}
