package uploader

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// HTTPUploader posts each item as a JSON document to the photolog upload
// API. Items are sent in order; one failed item does not stop the rest.
type HTTPUploader struct {
	endpoint string
	client   *http.Client
}

func NewHTTPUploader(endpoint string) *HTTPUploader {
	return &HTTPUploader{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

type uploadRequest struct {
	Filename    string                   `json:"filename"`
	FileData    string                   `json:"file_data"`
	ContentType string                   `json:"content_type"`
	Description string                   `json:"description,omitempty"`
	Thumbnails  map[string]uploadedThumb `json:"thumbnails,omitempty"`
	ExifData    map[string]interface{}   `json:"exif_data,omitempty"`
	Location    map[string]float64       `json:"location,omitempty"`
}

type uploadedThumb struct {
	Data   string `json:"data"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int64  `json:"size"`
	Format string `json:"format"`
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		PhotoID string `json:"photo_id"`
	} `json:"data"`
}

// Upload sends every item and collects per-item results. The returned error
// is non-nil only when the context is canceled.
func (u *HTTPUploader) Upload(ctx context.Context, items []Item) ([]Result, error) {
	results := make([]Result, 0, len(items))

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		photoID, err := u.uploadOne(ctx, item)
		if err != nil {
			log.Errorf("[Uploader] Upload failed for %s: %v", item.FileName, err)
		}
		results = append(results, Result{FileName: item.FileName, PhotoID: photoID, Err: err})
	}

	return results, nil
}

func (u *HTTPUploader) uploadOne(ctx context.Context, item Item) (string, error) {
	payload, err := buildRequest(item)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal upload request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	var decoded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !decoded.Success {
		return "", fmt.Errorf("upload rejected with status %d: %s", resp.StatusCode, decoded.Message)
	}

	return decoded.Data.PhotoID, nil
}

func buildRequest(item Item) (*uploadRequest, error) {
	data, err := os.ReadFile(item.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read staged file: %w", err)
	}

	req := &uploadRequest{
		Filename:    item.FileName,
		FileData:    base64.StdEncoding.EncodeToString(data),
		ContentType: item.ContentType,
		Description: item.Description,
	}

	if len(item.Thumbnails) > 0 {
		req.Thumbnails = make(map[string]uploadedThumb, len(item.Thumbnails))
		for name, thumb := range item.Thumbnails {
			thumbData, err := os.ReadFile(thumb.Path)
			if err != nil {
				log.Warnf("[Uploader] Skipping thumbnail %s for %s: %v", name, item.FileName, err)
				continue
			}
			req.Thumbnails[name] = uploadedThumb{
				Data:   base64.StdEncoding.EncodeToString(thumbData),
				Width:  thumb.Width,
				Height: thumb.Height,
				Size:   thumb.Size,
				Format: thumb.Format,
			}
		}
	}

	if item.Exif != nil && !item.Exif.Empty() {
		raw, err := json.Marshal(item.Exif)
		if err == nil {
			exifMap := map[string]interface{}{}
			if json.Unmarshal(raw, &exifMap) == nil {
				req.ExifData = exifMap
			}
		}
	}

	if item.Location != nil {
		req.Location = map[string]float64{
			"latitude":  item.Location.Latitude,
			"longitude": item.Location.Longitude,
		}
	}

	return req, nil
}
