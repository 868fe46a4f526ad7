package thumbnail

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Multi-size rendering bounds.
const (
	MaxSizesInFlight = 3
	chunkPause       = 100 * time.Millisecond
)

// SizeSpec names one thumbnail size of a multi-size set.
type SizeSpec struct {
	Name    string
	Options Options
}

// DefaultSizes returns the standard photolog thumbnail set: a square grid
// thumbnail plus two aspect-preserving preview sizes.
func DefaultSizes() []SizeSpec {
	return []SizeSpec{
		{Name: "small", Options: Options{Width: 150, Height: 150, Mode: ModeCrop, Quality: DefaultQuality, Format: "jpeg"}},
		{Name: "medium", Options: Options{Width: 400, Height: 400, Mode: ModeFit, Quality: DefaultQuality, Format: "jpeg"}},
		{Name: "large", Options: Options{Width: 800, Height: 600, Mode: ModeFit, Quality: DefaultQuality, Format: "jpeg"}},
	}
}

// RenderSet renders several named thumbnails for one file with at most
// MaxSizesInFlight renders running at once and a short pause between chunks
// to ease memory pressure. A failed size does not abort the others; the
// operation fails only when every requested size failed.
func (r *Renderer) RenderSet(ctx context.Context, path string, specs []SizeSpec) (map[string]*Result, error) {
	results := make(map[string]*Result, len(specs))
	var failures []string
	var mu sync.Mutex

	for start := 0; start < len(specs); start += MaxSizesInFlight {
		end := min(start+MaxSizesInFlight, len(specs))

		var wg sync.WaitGroup
		for _, spec := range specs[start:end] {
			wg.Add(1)
			go func(spec SizeSpec) {
				defer wg.Done()
				res, err := r.Render(ctx, path, spec.Options)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					log.Errorf("[Thumbnail] Size %s failed for %s: %v", spec.Name, path, err)
					failures = append(failures, fmt.Sprintf("%s: %v", spec.Name, err))
					return
				}
				results[spec.Name] = res
			}(spec)
		}
		wg.Wait()

		if end < len(specs) {
			time.Sleep(chunkPause)
		}
	}

	if len(results) == 0 && len(specs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrAllSizesFailed, strings.Join(failures, "; "))
	}
	return results, nil
}
