package thumbnail

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeNoisePNG writes a random-pixel PNG so the file stays above the
// minimum source size even after compression.
func writeNoisePNG(t *testing.T, width, height int) string {
	t.Helper()

	rng := rand.New(rand.NewPCG(1, 2))
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.UintN(256)),
				G: uint8(rng.UintN(256)),
				B: uint8(rng.UintN(256)),
				A: 255,
			})
		}
	}

	path := filepath.Join(t.TempDir(), "source.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestCropSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                   string
		srcW, srcH, dstW, dstH int
		wantW, wantH           int
	}{
		{name: "wide source square target", srcW: 4000, srcH: 2000, dstW: 300, dstH: 300, wantW: 2000, wantH: 2000},
		{name: "tall source square target", srcW: 2000, srcH: 4000, dstW: 300, dstH: 300, wantW: 2000, wantH: 2000},
		{name: "matching aspect keeps source", srcW: 800, srcH: 600, dstW: 400, dstH: 300, wantW: 800, wantH: 600},
		{name: "wide target on square source", srcW: 1000, srcH: 1000, dstW: 400, dstH: 200, wantW: 1000, wantH: 500},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w, h := cropSize(tc.srcW, tc.srcH, tc.dstW, tc.dstH)
			assert.Equal(t, tc.wantW, w)
			assert.Equal(t, tc.wantH, h)
		})
	}
}

func TestFitSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                   string
		srcW, srcH, dstW, dstH int
		wantW, wantH           int
	}{
		{name: "tall source shrinks to height", srcW: 2000, srcH: 4000, dstW: 300, dstH: 300, wantW: 150, wantH: 300},
		{name: "wide source shrinks to width", srcW: 4000, srcH: 2000, dstW: 300, dstH: 300, wantW: 300, wantH: 150},
		{name: "small source is not upscaled", srcW: 100, srcH: 50, dstW: 300, dstH: 300, wantW: 100, wantH: 50},
		{name: "never collapses to zero", srcW: 4000, srcH: 10, dstW: 300, dstH: 300, wantW: 300, wantH: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w, h := fitSize(tc.srcW, tc.srcH, tc.dstW, tc.dstH)
			assert.Equal(t, tc.wantW, w)
			assert.Equal(t, tc.wantH, h)
		})
	}
}

func TestRenderCropFillsTargetExactly(t *testing.T) {
	t.Parallel()

	path := writeNoisePNG(t, 400, 200)
	r := NewRenderer()

	res, err := r.Render(context.Background(), path, Options{
		Width: 150, Height: 150, Mode: ModeCrop, Quality: DefaultQuality, Format: "jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, 150, res.Width)
	assert.Equal(t, 150, res.Height)
	assert.Equal(t, "jpeg", res.Format)
	assert.Equal(t, int64(len(res.Data)), res.Size)
	assert.NotEmpty(t, res.Data)
}

func TestRenderFitPreservesAspect(t *testing.T) {
	t.Parallel()

	path := writeNoisePNG(t, 600, 300)
	r := NewRenderer()

	res, err := r.Render(context.Background(), path, Options{
		Width: 300, Height: 300, Mode: ModeFit, Quality: DefaultQuality, Format: "png",
	})
	require.NoError(t, err)
	assert.Equal(t, 300, res.Width)
	assert.Equal(t, 150, res.Height)
	assert.Equal(t, "png", res.Format)
}

func TestRenderFillIgnoresAspect(t *testing.T) {
	t.Parallel()

	path := writeNoisePNG(t, 600, 300)
	r := NewRenderer()

	res, err := r.Render(context.Background(), path, Options{
		Width: 200, Height: 200, Mode: ModeFill, Quality: DefaultQuality, Format: "jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Width)
	assert.Equal(t, 200, res.Height)
	assert.Equal(t, "jpeg", res.Format)
}

func TestRenderPreflightFailures(t *testing.T) {
	t.Parallel()

	path := writeNoisePNG(t, 400, 200)
	r := NewRenderer()

	valid := Options{Width: 100, Height: 100, Mode: ModeCrop, Quality: DefaultQuality, Format: "jpeg"}

	t.Run("pixel budget", func(t *testing.T) {
		t.Parallel()

		opts := valid
		opts.Width, opts.Height = 20000, 20000
		_, err := r.Render(context.Background(), path, opts)
		assert.ErrorIs(t, err, ErrPixelBudget)
	})

	t.Run("invalid options", func(t *testing.T) {
		t.Parallel()

		opts := valid
		opts.Width = 0
		_, err := r.Render(context.Background(), path, opts)
		assert.ErrorIs(t, err, ErrInvalidOptions)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		t.Parallel()

		txt := filepath.Join(t.TempDir(), "notes.txt")
		require.NoError(t, os.WriteFile(txt, make([]byte, 2048), 0644))
		_, err := r.Render(context.Background(), txt, valid)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("source too small", func(t *testing.T) {
		t.Parallel()

		tiny := filepath.Join(t.TempDir(), "tiny.jpg")
		require.NoError(t, os.WriteFile(tiny, []byte{0xFF, 0xD8, 0xFF}, 0644))
		_, err := r.Render(context.Background(), tiny, valid)
		assert.ErrorIs(t, err, ErrSourceTooSmall)
	})

	t.Run("corrupt image body", func(t *testing.T) {
		t.Parallel()

		bad := filepath.Join(t.TempDir(), "bad.jpg")
		require.NoError(t, os.WriteFile(bad, make([]byte, 4096), 0644))
		_, err := r.Render(context.Background(), bad, valid)
		assert.ErrorIs(t, err, ErrDecode)
	})
}

func TestRunWithTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := runWithTimeout(ctx, func() (*Result, error) {
		time.Sleep(500 * time.Millisecond)
		return &Result{}, nil
	})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRunWithTimeoutRecoversPanic(t *testing.T) {
	t.Parallel()

	_, err := runWithTimeout(context.Background(), func() (*Result, error) {
		panic("decoder blew up")
	})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestRenderSetSurvivesPartialFailure(t *testing.T) {
	t.Parallel()

	path := writeNoisePNG(t, 400, 200)
	r := NewRenderer()

	specs := []SizeSpec{
		{Name: "small", Options: Options{Width: 100, Height: 100, Mode: ModeCrop, Quality: DefaultQuality, Format: "jpeg"}},
		{Name: "broken", Options: Options{Width: 20000, Height: 20000, Mode: ModeFit, Quality: DefaultQuality, Format: "jpeg"}},
	}

	results, err := r.RenderSet(context.Background(), path, specs)
	require.NoError(t, err)
	assert.Contains(t, results, "small")
	assert.NotContains(t, results, "broken")
}

func TestRenderSetAllSizesFailed(t *testing.T) {
	t.Parallel()

	path := writeNoisePNG(t, 400, 200)
	r := NewRenderer()

	specs := []SizeSpec{
		{Name: "a", Options: Options{Width: 20000, Height: 20000, Mode: ModeFit, Quality: DefaultQuality, Format: "jpeg"}},
		{Name: "b", Options: Options{Width: 0, Height: 100, Mode: ModeCrop, Quality: DefaultQuality, Format: "jpeg"}},
	}

	_, err := r.RenderSet(context.Background(), path, specs)
	assert.ErrorIs(t, err, ErrAllSizesFailed)
}

func TestDefaultSizes(t *testing.T) {
	t.Parallel()

	specs := DefaultSizes()
	require.Len(t, specs, 3)
	assert.Equal(t, "small", specs[0].Name)
	assert.Equal(t, ModeCrop, specs[0].Options.Mode)
	assert.Equal(t, ModeFit, specs[1].Options.Mode)
	assert.Equal(t, 800, specs[2].Options.Width)
	assert.Equal(t, 600, specs[2].Options.Height)
}
