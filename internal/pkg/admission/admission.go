// Package admission screens incoming files before any expensive pipeline
// work starts. Rejections never enter the pipeline; they are collected per
// file and reported as one aggregated message.
package admission

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

const (
	// MaxBatchSize is the maximum number of records one batch may hold.
	MaxBatchSize = 50
	// MaxFileSize is the per-file byte limit.
	MaxFileSize = 10 << 20 // 10 MiB
)

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".heic": true,
}

var allowedMime = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/heic": true,
	"image/heif": true,
}

var (
	ErrBatchFull       = errors.New("batch size limit reached")
	ErrUnsupportedType = errors.New("unsupported image format")
	ErrFileTooLarge    = errors.New("file exceeds size limit")
)

// Candidate is one incoming file presented to the guard.
type Candidate struct {
	Name string
	Size int64
	Head []byte // first bytes for content sniffing
}

// Rejection records why one candidate was turned away.
type Rejection struct {
	Name   string
	Reason string
}

// Report is the outcome of screening a set of candidates against the
// current batch size. Accepted holds indexes into the screened slice so
// callers can match accepted candidates back to their payloads.
type Report struct {
	Accepted []int
	Rejected []Rejection
}

// Screen applies the admission rules in order: batch capacity, format,
// size. Candidates beyond the remaining capacity are rejected; the rest are
// judged independently.
func Screen(currentCount int, files []Candidate) Report {
	var report Report
	capacity := MaxBatchSize - currentCount
	if capacity < 0 {
		capacity = 0
	}

	for i, f := range files {
		if len(report.Accepted) >= capacity {
			report.Rejected = append(report.Rejected, Rejection{
				Name:   f.Name,
				Reason: fmt.Sprintf("%v (max %d files)", ErrBatchFull, MaxBatchSize),
			})
			continue
		}
		if _, err := ValidateImageBySniff(f.Name, f.Head); err != nil {
			report.Rejected = append(report.Rejected, Rejection{Name: f.Name, Reason: err.Error()})
			continue
		}
		if f.Size > MaxFileSize {
			report.Rejected = append(report.Rejected, Rejection{
				Name:   f.Name,
				Reason: fmt.Sprintf("%v (max %d MiB)", ErrFileTooLarge, MaxFileSize>>20),
			})
			continue
		}
		report.Accepted = append(report.Accepted, i)
	}

	return report
}

// Message joins all rejections into one user-facing string, empty when
// everything was accepted.
func (r Report) Message() string {
	if len(r.Rejected) == 0 {
		return ""
	}
	parts := make([]string, 0, len(r.Rejected))
	for _, rej := range r.Rejected {
		parts = append(parts, fmt.Sprintf("%s: %s", rej.Name, rej.Reason))
	}
	return strings.Join(parts, "; ")
}

// ValidateImageBySniff checks the provided filename (extension) and the first
// bytes (head) against the supported image types. Returns the detected mime
// or an error.
func ValidateImageBySniff(filename string, head []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", fmt.Errorf("%w: only JPG, JPEG, PNG and HEIC are supported", ErrUnsupportedType)
	}

	detected := http.DetectContentType(head)

	// Block obvious scriptable types regardless of extension
	if strings.HasPrefix(detected, "text/html") || strings.HasPrefix(detected, "application/xhtml") {
		return "", fmt.Errorf("%w: HTML content is not allowed", ErrUnsupportedType)
	}
	if strings.HasPrefix(detected, "text/xml") || strings.HasPrefix(detected, "application/xml") || detected == "image/svg+xml" {
		return "", fmt.Errorf("%w: SVG/XML content is not allowed", ErrUnsupportedType)
	}

	// HEIC containers are detected as octet-stream by the stdlib sniffer;
	// allow them by extension
	if detected == "application/octet-stream" && allowedExt[ext] {
		return detected, nil
	}

	if allowedMime[detected] {
		return detected, nil
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, detected)
}
