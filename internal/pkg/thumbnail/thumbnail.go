// Package thumbnail renders resource-bounded thumbnails from staged image
// files. Every render is preflighted against size and pixel-buffer limits
// before any decode happens and raced against a fixed wall-clock timeout.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-playground/validator/v10"
	webpenc "github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	_ "golang.org/x/image/webp"
)

// Mode selects how the source is mapped onto the target canvas.
type Mode string

const (
	// ModeCrop fills the target exactly by cropping the source symmetrically.
	ModeCrop Mode = "crop"
	// ModeFit shrinks the source so it is fully visible; output dimensions
	// are at most the target.
	ModeFit Mode = "fit"
	// ModeFill stretches the source to the exact target size, ignoring
	// aspect ratio.
	ModeFill Mode = "fill"
)

// Resource bounds.
const (
	MaxSourceBytes      = 100 << 20 // 100 MiB
	MinSourceBytes      = 1 << 10   // 1 KiB
	MaxPixelBufferBytes = 100 << 20 // width*height*4 ceiling
	RenderTimeout       = 30 * time.Second

	DefaultQuality = 0.85
)

// Typed failure reasons. Callers match with errors.Is.
var (
	ErrInvalidOptions    = errors.New("invalid thumbnail options")
	ErrUnsupportedFormat = errors.New("unsupported thumbnail source format")
	ErrSourceTooLarge    = errors.New("source file exceeds size limit")
	ErrSourceTooSmall    = errors.New("source file below minimum size")
	ErrPixelBudget       = errors.New("requested thumbnail exceeds pixel buffer budget")
	ErrDecode            = errors.New("image decode failed")
	ErrEncode            = errors.New("image encode failed")
	ErrTimeout           = errors.New("thumbnail render timed out")
	ErrAllSizesFailed    = errors.New("all thumbnail sizes failed")
)

var supportedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// Options describes one requested thumbnail.
type Options struct {
	Width   int     `validate:"required,gt=0"`
	Height  int     `validate:"required,gt=0"`
	Mode    Mode    `validate:"required,oneof=crop fit fill"`
	Quality float64 `validate:"gte=0,lte=1"`
	Format  string  `validate:"required,oneof=jpeg jpg png webp"`
}

// Result is one rendered thumbnail. Width and Height equal the requested
// target for crop and fill, and are at most the target for fit.
type Result struct {
	Data   []byte
	Width  int
	Height int
	Size   int64
	Format string
}

// Renderer renders thumbnails with a fixed per-render timeout.
type Renderer struct {
	timeout  time.Duration
	validate *validator.Validate
}

func NewRenderer() *Renderer {
	return &Renderer{
		timeout:  RenderTimeout,
		validate: validator.New(),
	}
}

// Render produces a single thumbnail for the staged image at path. It fails
// fast on preflight violations without touching the image data, then decodes,
// composites and encodes under the render timeout. Every exit path drops the
// intermediate decode buffer and canvas with the worker goroutine.
func (r *Renderer) Render(ctx context.Context, path string, opts Options) (*Result, error) {
	if err := r.preflight(path, opts); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return runWithTimeout(ctx, func() (*Result, error) {
		return render(path, opts)
	})
}

func (r *Renderer) preflight(path string, opts Options) error {
	if err := r.validate.Struct(opts); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExt[ext] {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if info.Size() > MaxSourceBytes {
		return fmt.Errorf("%w: %d bytes", ErrSourceTooLarge, info.Size())
	}
	if info.Size() < MinSourceBytes {
		return fmt.Errorf("%w: %d bytes", ErrSourceTooSmall, info.Size())
	}

	// Bound worst-case raster memory before any decode, independent of the
	// source image's own dimensions
	if buf := int64(opts.Width) * int64(opts.Height) * 4; buf > MaxPixelBufferBytes {
		return fmt.Errorf("%w: %dx%d needs %d bytes", ErrPixelBudget, opts.Width, opts.Height, buf)
	}

	return nil
}

// runWithTimeout races fn against ctx. The worker goroutine owns all
// intermediate buffers; losing the race abandons them to the GC, so nothing
// is retained past a timeout.
func runWithTimeout(ctx context.Context, fn func() (*Result, error)) (*Result, error) {
	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrDecode, rec)}
			}
		}()
		res, err := fn()
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ErrTimeout
	case out := <-done:
		return out.res, out.err
	}
}

func render(path string, opts Options) (*Result, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	canvas := compose(img, opts)

	data, err := encode(canvas, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	bounds := canvas.Bounds()
	return &Result{
		Data:   data,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Size:   int64(len(data)),
		Format: normalizeFormat(opts.Format),
	}, nil
}

func compose(img image.Image, opts Options) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	var out image.Image
	switch opts.Mode {
	case ModeCrop:
		cw, ch := cropSize(srcW, srcH, opts.Width, opts.Height)
		out = imaging.Resize(imaging.CropCenter(img, cw, ch), opts.Width, opts.Height, imaging.Lanczos)
	case ModeFit:
		fw, fh := fitSize(srcW, srcH, opts.Width, opts.Height)
		out = imaging.Resize(img, fw, fh, imaging.Lanczos)
	default: // ModeFill
		out = imaging.Resize(img, opts.Width, opts.Height, imaging.Lanczos)
	}

	// JPEG has no alpha channel; flatten onto a solid background
	if f := normalizeFormat(opts.Format); f == "jpeg" {
		ob := out.Bounds()
		background := imaging.New(ob.Dx(), ob.Dy(), color.White)
		out = imaging.PasteCenter(background, out)
	}

	return out
}

func encode(img image.Image, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	quality := opts.Quality
	if quality == 0 {
		quality = DefaultQuality
	}

	switch normalizeFormat(opts.Format) {
	case "jpeg":
		q := int(math.Round(quality * 100))
		if q < 1 {
			q = 1
		}
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
			return nil, err
		}
	case "png":
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, err
		}
	case "webp":
		encOpts, err := webpenc.NewLossyEncoderOptions(webpenc.PresetDefault, float32(quality*100))
		if err != nil {
			return nil, err
		}
		if err := webp.Encode(&buf, img, encOpts); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown output format %q", opts.Format)
	}

	return buf.Bytes(), nil
}

func normalizeFormat(format string) string {
	format = strings.ToLower(format)
	if format == "jpg" {
		return "jpeg"
	}
	return format
}
