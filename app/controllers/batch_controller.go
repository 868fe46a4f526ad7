package controllers

import (
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"photolog/internal/pkg/batch"
	"photolog/internal/pkg/geocode"
)

// BatchController exposes the ingestion pipeline over the JSON API. All
// handlers operate on a single shared batch, mirroring the one-batch-at-a-
// time workflow of the client.
type BatchController struct {
	batch   *batch.Batch
	geocode *geocode.Cache
}

func NewBatchController(b *batch.Batch, g *geocode.Cache) *BatchController {
	return &BatchController{batch: b, geocode: g}
}

// HandleAddFiles accepts a multipart upload under the "files" field,
// screens every part and responds with the accepted record ids plus an
// aggregated rejection message.
// Request: multipart/form-data with one or more "files" parts
// Response: { accepted, rejected, message }
func (bc *BatchController) HandleAddFiles(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid multipart form"})
	}
	parts := form.File["files"]
	if len(parts) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no files provided"})
	}

	incoming := make([]batch.IncomingFile, 0, len(parts))
	for _, part := range parts {
		f, err := part.Open()
		if err != nil {
			fiberlog.Errorf("[BatchController] Failed to open part %s: %v", part.Filename, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read upload"})
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read upload"})
		}
		incoming = append(incoming, batch.IncomingFile{
			Name:        part.Filename,
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	report := bc.batch.AddFiles(incoming)
	return c.JSON(fiber.Map{
		"accepted": report.AcceptedIDs,
		"rejected": report.Rejected,
		"message":  report.Message,
	})
}

// HandleSetDescription sets the shared batch description.
// Request: JSON { "description": string }
func (bc *BatchController) HandleSetDescription(c *fiber.Ctx) error {
	var req struct {
		Description string `json:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	bc.batch.SetDescription(req.Description)
	return c.JSON(fiber.Map{"success": true})
}

// HandleSetRecordDescription sets the free-text description of one record.
// Request: JSON { "description": string }
func (bc *BatchController) HandleSetRecordDescription(c *fiber.Ctx) error {
	id := c.Params("id")
	var req struct {
		Description string `json:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if err := bc.batch.SetRecordDescription(id, req.Description); err != nil {
		switch {
		case errors.Is(err, batch.ErrRecordNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "record not found"})
		case errors.Is(err, batch.ErrDescriptionTooLong):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to set description"})
		}
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandleStart validates the batch and kicks off processing in the
// background. The client polls the snapshot endpoint for progress.
func (bc *BatchController) HandleStart(c *fiber.Ctx) error {
	if err := bc.batch.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}

	go func() {
		if err := bc.batch.Start(context.Background()); err != nil {
			fiberlog.Errorf("[BatchController] Batch processing failed: %v", err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true})
}

// HandleSnapshot returns the full batch state including per-record
// progress and the aggregate mean.
func (bc *BatchController) HandleSnapshot(c *fiber.Ctx) error {
	return c.JSON(bc.batch.Snapshot())
}

// HandleRecordStatus returns the cached status snapshot of one record.
func (bc *BatchController) HandleRecordStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	status, err := batch.GetRecordStatus(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "status not found"})
	}
	return c.JSON(status)
}

// HandleRemove removes one record and releases its staged files.
func (bc *BatchController) HandleRemove(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := bc.batch.Remove(id); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "record not found"})
	}
	return c.JSON(fiber.Map{"success": true})
}

// HandleClear removes every record and releases all staged files.
func (bc *BatchController) HandleClear(c *fiber.Ctx) error {
	bc.batch.Clear()
	return c.JSON(fiber.Map{"success": true})
}

// HandleRetryThumbnail re-runs thumbnail rendering for an errored record.
func (bc *BatchController) HandleRetryThumbnail(c *fiber.Ctx) error {
	id := c.Params("id")
	err := bc.batch.RetryThumbnail(c.Context(), id)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"success": true})
	case errors.Is(err, batch.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "record not found"})
	case errors.Is(err, batch.ErrNotRetryable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "record is not in error state"})
	default:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "thumbnail generation failed"})
	}
}

// HandleReverseGeocode resolves coordinates to a place name through the
// TTL cache.
// Request: GET ?lat=<float>&lng=<float>
// Response: { place }
func (bc *BatchController) HandleReverseGeocode(c *fiber.Ctx) error {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "lat and lng must be decimal coordinates"})
	}

	place, err := bc.geocode.Resolve(c.Context(), lat, lng)
	if err != nil {
		fiberlog.Warnf("[BatchController] Reverse geocode failed for %.4f,%.4f: %v", lat, lng, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "reverse geocoding unavailable"})
	}
	return c.JSON(fiber.Map{"place": place})
}
