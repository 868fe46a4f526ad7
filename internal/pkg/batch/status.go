package batch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"photolog/internal/pkg/cache"
)

// Cache key format for record processing status
const (
	RecordStatusKeyFormat = "batch:record:status:%s" // Format: batch:record:status:<id>

	statusTTL = 24 * time.Hour
)

// RecordStatus is the cached status snapshot of one record.
type RecordStatus struct {
	Status    Status `json:"status"`
	Progress  int    `json:"progress"`
	UpdatedAt string `json:"updated_at"`
}

// CachePublisher writes record status snapshots to the cache so other
// processes can poll them. Publishing is best effort; cache errors are
// logged and dropped.
type CachePublisher struct{}

func NewCachePublisher() *CachePublisher {
	return &CachePublisher{}
}

func (p *CachePublisher) Publish(recordID string, status Status, progress int) {
	snapshot := RecordStatus{
		Status:    status,
		Progress:  progress,
		UpdatedAt: time.Now().Format(time.RFC3339),
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		log.Errorf("[Batch] Failed to marshal status for record %s: %v", recordID, err)
		return
	}

	key := fmt.Sprintf(RecordStatusKeyFormat, recordID)
	if err := cache.Set(key, string(data), statusTTL); err != nil {
		log.Warnf("[Batch] Failed to cache status for record %s: %v", recordID, err)
	}
}

// GetRecordStatus retrieves the cached status snapshot of a record.
func GetRecordStatus(recordID string) (RecordStatus, error) {
	key := fmt.Sprintf(RecordStatusKeyFormat, recordID)
	raw, err := cache.Get(key)
	if err != nil {
		return RecordStatus{}, err
	}

	var snapshot RecordStatus
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return RecordStatus{}, err
	}
	return snapshot, nil
}
