// Package batch orchestrates the photo ingestion pipeline: it owns the
// per-file records, dispatches them in bounded concurrent groups through
// metadata extraction and thumbnail rendering, aggregates progress and
// hands the completed subset over to the upload collaborator.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2/log"

	"photolog/internal/pkg/admission"
	"photolog/internal/pkg/exifdata"
	"photolog/internal/pkg/staging"
	"photolog/internal/pkg/thumbnail"
	"photolog/internal/pkg/uploader"
)

var (
	ErrMissingDescription = errors.New("batch description is required")
	ErrAlreadyProcessing  = errors.New("batch is already processing")
	ErrNoRecords          = errors.New("batch has no records")
	ErrRecordNotFound     = errors.New("record not found")
	ErrDescriptionTooLong = errors.New("description exceeds maximum length")
	ErrNotRetryable       = errors.New("record is not in error state")
)

// ExtractFunc resolves a metadata bundle for a staged file. A nil bundle
// means the file carries no usable metadata; it is never a record failure.
type ExtractFunc func(path string) *exifdata.Bundle

// RenderFunc renders the thumbnail set for a staged file.
type RenderFunc func(ctx context.Context, path string) (map[string]*thumbnail.Result, error)

// StatusPublisher receives best-effort status snapshots after every record
// transition. Implementations must not block for long.
type StatusPublisher interface {
	Publish(recordID string, status Status, progress int)
}

// Config wires a Batch.
type Config struct {
	Store     *staging.Store
	Extract   ExtractFunc
	Render    RenderFunc
	Uploader  uploader.Uploader
	Publisher StatusPublisher
	GroupSize int
}

// Batch is the single writer over its record arena. Workers receive only a
// record id and a staged path; every mutation goes through Batch methods
// under one mutex.
type Batch struct {
	mu           sync.Mutex
	records      map[string]*Record
	order        []string
	description  string
	autoFinalize bool
	processing   bool

	store     *staging.Store
	extract   ExtractFunc
	render    RenderFunc
	uploader  uploader.Uploader
	publisher StatusPublisher
	groupSize int
}

func New(cfg Config) *Batch {
	groupSize := cfg.GroupSize
	if groupSize <= 0 {
		groupSize = GroupSize
	}
	return &Batch{
		records:   make(map[string]*Record),
		store:     cfg.Store,
		extract:   cfg.Extract,
		render:    cfg.Render,
		uploader:  cfg.Uploader,
		publisher: cfg.Publisher,
		groupSize: groupSize,
	}
}

// IncomingFile is one file offered to the admission guard.
type IncomingFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// AddReport is the outcome of one admission round.
type AddReport struct {
	AcceptedIDs []string
	Rejected    []admission.Rejection
	Message     string
}

// AddFiles screens the incoming files and creates a pending record with a
// staged preview for every accepted one. Rejections are aggregated into a
// single message; accepted files proceed independently.
func (b *Batch) AddFiles(files []IncomingFile) AddReport {
	candidates := make([]admission.Candidate, len(files))
	for i, f := range files {
		head := f.Data
		if len(head) > 512 {
			head = head[:512]
		}
		candidates[i] = admission.Candidate{Name: f.Name, Size: int64(len(f.Data)), Head: head}
	}

	b.mu.Lock()
	report := admission.Screen(len(b.records), candidates)
	rejected := report.Rejected

	var accepted []string
	var published []*Record
	for _, idx := range report.Accepted {
		f := files[idx]
		handle, err := b.store.Put(f.Name, f.Data)
		if err != nil {
			log.Errorf("[Batch] Failed to stage %s: %v", f.Name, err)
			rejected = append(rejected, admission.Rejection{Name: f.Name, Reason: "failed to stage file"})
			continue
		}
		rec := &Record{
			ID:          newRecordID(),
			FileName:    f.Name,
			ContentType: f.ContentType,
			Size:        int64(len(f.Data)),
			Status:      StatusPending,
			Thumbnails:  make(map[string]*Thumb),
			Preview:     handle,
			CreatedAt:   time.Now(),
		}
		b.records[rec.ID] = rec
		b.order = append(b.order, rec.ID)
		accepted = append(accepted, rec.ID)
		published = append(published, rec)
	}
	b.mu.Unlock()

	for _, rec := range published {
		b.publish(rec.ID, StatusPending, 0)
	}

	return AddReport{
		AcceptedIDs: accepted,
		Rejected:    rejected,
		Message:     admission.Report{Rejected: rejected}.Message(),
	}
}

// SetDescription sets the shared batch description required before
// processing may start.
func (b *Batch) SetDescription(desc string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.description = strings.TrimSpace(desc)
}

// SetRecordDescription sets the free-text description of one record.
func (b *Batch) SetRecordDescription(id, desc string) error {
	desc = strings.TrimSpace(desc)
	if utf8.RuneCountInString(desc) > MaxDescriptionLen {
		return fmt.Errorf("%w (%d characters)", ErrDescriptionTooLong, MaxDescriptionLen)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.Description = desc
	return nil
}

// Validate reports whether processing may start.
func (b *Batch) Validate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.validateLocked()
}

func (b *Batch) validateLocked() error {
	if b.description == "" {
		return ErrMissingDescription
	}
	if b.processing {
		return ErrAlreadyProcessing
	}
	if len(b.records) == 0 {
		return ErrNoRecords
	}
	return nil
}

// Start runs the dispatch loop to completion: pending records are taken in
// groups of at most groupSize, each group runs concurrently and the next
// group only starts once the previous one fully settled. When no record
// remains pending or processing the completed subset is emitted to the
// uploader and the batch is cleared. Callers wanting asynchronous
// processing run Start on their own goroutine.
func (b *Batch) Start(ctx context.Context) error {
	b.mu.Lock()
	if err := b.validateLocked(); err != nil {
		b.mu.Unlock()
		return err
	}
	b.processing = true
	b.autoFinalize = true
	total := len(b.records)
	b.mu.Unlock()

	log.Infof("[Batch] Processing started with %d records", total)

	for {
		group := b.takeGroup()
		if len(group) == 0 {
			break
		}

		var wg sync.WaitGroup
		for _, id := range group {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				b.processRecord(ctx, id)
			}(id)
		}
		wg.Wait()
	}

	return b.finalize(ctx)
}

// takeGroup marks up to groupSize pending records as processing and
// returns their ids in admission order.
func (b *Batch) takeGroup() []string {
	b.mu.Lock()
	var group []string
	for _, id := range b.order {
		if len(group) == b.groupSize {
			break
		}
		rec := b.records[id]
		if rec.Status != StatusPending {
			continue
		}
		b.advanceLocked(rec, StatusProcessing)
		rec.Progress = progressDispatched
		group = append(group, id)
	}
	b.mu.Unlock()

	for _, id := range group {
		b.publish(id, StatusProcessing, progressDispatched)
	}
	return group
}

// processRecord runs extraction then rendering for one record. Extraction
// failures degrade silently; rendering failures move the record to error.
// A panic anywhere also moves it to error so no record can stay stuck in
// processing.
func (b *Batch) processRecord(ctx context.Context, id string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("[Batch] Record %s processing panicked: %v", id, rec)
			b.failRecord(id, "processing failed unexpectedly")
		}
	}()

	b.mu.Lock()
	rec, ok := b.records[id]
	if !ok {
		// Removed while in flight
		b.mu.Unlock()
		return
	}
	path := rec.Preview.Path()
	b.mu.Unlock()

	bundle := b.extract(path)
	b.applyMetadata(id, bundle)

	results, err := b.render(ctx, path)
	if err != nil {
		log.Errorf("[Batch] Thumbnail rendering failed for record %s: %v", id, err)
		b.failRecord(id, "thumbnail generation failed")
		return
	}
	b.completeRecord(id, results)
}

// applyMetadata attaches the bundle (possibly nil) and the resolved
// location, and moves progress to the metadata checkpoint.
func (b *Batch) applyMetadata(id string, bundle *exifdata.Bundle) {
	b.mu.Lock()
	rec, ok := b.records[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	rec.Exif = bundle
	if loc := bundle.Location(); loc != nil {
		rec.Location = loc
	}
	rec.Progress = progressMetadata
	status := rec.Status
	b.mu.Unlock()

	b.publish(id, status, progressMetadata)
}

// completeRecord stages the rendered thumbnails and moves the record to
// completed.
func (b *Batch) completeRecord(id string, results map[string]*thumbnail.Result) {
	staged := make(map[string]*Thumb, len(results))
	for name, res := range results {
		handle, err := b.store.Put(fmt.Sprintf("%s_%s.%s", id, name, extFor(res.Format)), res.Data)
		if err != nil {
			log.Errorf("[Batch] Failed to stage %s thumbnail for record %s: %v", name, id, err)
			continue
		}
		staged[name] = &Thumb{Handle: handle, Width: res.Width, Height: res.Height, Size: res.Size, Format: res.Format}
	}
	if len(staged) == 0 {
		b.failRecord(id, "thumbnail generation failed")
		return
	}

	b.mu.Lock()
	rec, ok := b.records[id]
	if !ok {
		// Removed while in flight; nothing keeps these thumbnails alive
		b.mu.Unlock()
		for _, t := range staged {
			_ = t.Handle.Release()
		}
		return
	}
	rec.Thumbnails = staged
	b.advanceLocked(rec, StatusCompleted)
	rec.Progress = progressComplete
	rec.ErrorMsg = ""
	b.mu.Unlock()

	b.publish(id, StatusCompleted, progressComplete)
}

func (b *Batch) failRecord(id, msg string) {
	b.mu.Lock()
	rec, ok := b.records[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	b.advanceLocked(rec, StatusError)
	rec.ErrorMsg = msg
	status, progress := rec.Status, rec.Progress
	b.mu.Unlock()

	b.publish(id, status, progress)
}

// advanceLocked moves a record's status forward. Backward transitions are
// dropped, so a terminal state can never regress.
func (b *Batch) advanceLocked(rec *Record, to Status) bool {
	if statusRank[to] <= statusRank[rec.Status] {
		return false
	}
	rec.Status = to
	return true
}

// finalize emits the completed subset to the uploader and resets the
// batch. When every record failed, nothing is emitted and the batch stays
// for manual retry or clearing.
func (b *Batch) finalize(ctx context.Context) error {
	b.mu.Lock()
	if !b.autoFinalize {
		b.mu.Unlock()
		return nil
	}

	var items []uploader.Item
	for _, id := range b.order {
		rec := b.records[id]
		if rec.Status != StatusCompleted {
			continue
		}
		desc := b.description
		if rec.Description != "" {
			desc += DescriptionSeparator + rec.Description
		}
		thumbs := make(map[string]uploader.Thumbnail, len(rec.Thumbnails))
		for name, t := range rec.Thumbnails {
			thumbs[name] = uploader.Thumbnail{Path: t.Handle.Path(), Width: t.Width, Height: t.Height, Size: t.Size, Format: t.Format}
		}
		items = append(items, uploader.Item{
			FileName:    rec.FileName,
			ContentType: rec.ContentType,
			FilePath:    rec.Preview.Path(),
			Description: desc,
			Location:    rec.Location,
			Thumbnails:  thumbs,
			Exif:        rec.Exif,
		})
	}

	if len(items) == 0 {
		b.processing = false
		b.autoFinalize = false
		b.mu.Unlock()
		log.Warnf("[Batch] No completed records, skipping upload")
		return nil
	}
	b.mu.Unlock()

	log.Infof("[Batch] Uploading %d completed records", len(items))
	results, err := b.uploader.Upload(ctx, items)
	if err != nil {
		log.Errorf("[Batch] Upload hand-off failed: %v", err)
		b.mu.Lock()
		b.processing = false
		b.mu.Unlock()
		return err
	}
	for _, res := range results {
		if res.Err != nil {
			log.Errorf("[Batch] Upload failed for %s: %v", res.FileName, res.Err)
		}
	}

	// Hand-off done; the batch and its staged resources are released
	b.Clear()
	return nil
}

// RetryThumbnail re-runs thumbnail rendering for an errored record. A
// success lifts the record to completed; metadata stays untouched.
func (b *Batch) RetryThumbnail(ctx context.Context, id string) error {
	b.mu.Lock()
	rec, ok := b.records[id]
	if !ok {
		b.mu.Unlock()
		return ErrRecordNotFound
	}
	if rec.Status != StatusError {
		b.mu.Unlock()
		return ErrNotRetryable
	}
	path := rec.Preview.Path()
	b.mu.Unlock()

	results, err := b.render(ctx, path)
	if err != nil {
		b.failRecord(id, "thumbnail generation failed")
		return err
	}
	b.completeRecord(id, results)
	return nil
}

// Remove deletes one record in any state and releases its staged
// resources immediately.
func (b *Batch) Remove(id string) error {
	b.mu.Lock()
	rec, ok := b.records[id]
	if !ok {
		b.mu.Unlock()
		return ErrRecordNotFound
	}
	delete(b.records, id)
	for i, rid := range b.order {
		if rid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	releaseRecord(rec)
	return nil
}

// Clear removes every record and releases all staged resources.
func (b *Batch) Clear() {
	b.mu.Lock()
	records := b.records
	b.records = make(map[string]*Record)
	b.order = nil
	b.description = ""
	b.processing = false
	b.autoFinalize = false
	b.mu.Unlock()

	for _, rec := range records {
		releaseRecord(rec)
	}
}

func releaseRecord(rec *Record) {
	if rec.Preview != nil {
		if err := rec.Preview.Release(); err != nil {
			log.Warnf("[Batch] Failed to release preview for %s: %v", rec.ID, err)
		}
	}
	for name, t := range rec.Thumbnails {
		if err := t.Handle.Release(); err != nil {
			log.Warnf("[Batch] Failed to release %s thumbnail for %s: %v", name, rec.ID, err)
		}
	}
}

// Count reports the number of records currently in the batch.
func (b *Batch) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// TotalProgress is the arithmetic mean of all record progress values,
// derived on demand and never stored.
func (b *Batch) TotalProgress() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalProgressLocked()
}

func (b *Batch) totalProgressLocked() float64 {
	if len(b.order) == 0 {
		return 0
	}
	sum := 0
	for _, id := range b.order {
		sum += b.records[id].Progress
	}
	return float64(sum) / float64(len(b.order))
}

// Record returns a read-only view of one record.
func (b *Batch) Record(id string) (RecordView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[id]
	if !ok {
		return RecordView{}, ErrRecordNotFound
	}
	return viewOf(rec), nil
}

// Snapshot returns a read-only view of the whole batch in admission order.
func (b *Batch) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	views := make([]RecordView, 0, len(b.order))
	for _, id := range b.order {
		views = append(views, viewOf(b.records[id]))
	}
	return Snapshot{
		Records:       views,
		Description:   b.description,
		TotalProgress: b.totalProgressLocked(),
		Processing:    b.processing,
	}
}

func viewOf(rec *Record) RecordView {
	view := RecordView{
		ID:          rec.ID,
		FileName:    rec.FileName,
		ContentType: rec.ContentType,
		Size:        rec.Size,
		Description: rec.Description,
		Status:      rec.Status,
		Progress:    rec.Progress,
		ErrorMsg:    rec.ErrorMsg,
		Location:    rec.Location,
		Exif:        rec.Exif,
		PreviewPath: rec.Preview.Path(),
	}
	if len(rec.Thumbnails) > 0 {
		view.Thumbnails = make(map[string]ThumbView, len(rec.Thumbnails))
		for name, t := range rec.Thumbnails {
			view.Thumbnails[name] = ThumbView{Path: t.Handle.Path(), Width: t.Width, Height: t.Height, Size: t.Size, Format: t.Format}
		}
	}
	return view
}

func (b *Batch) publish(id string, status Status, progress int) {
	if b.publisher == nil {
		return
	}
	b.publisher.Publish(id, status, progress)
}

func extFor(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}
