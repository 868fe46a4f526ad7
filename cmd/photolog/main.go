package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"photolog/app/controllers"
	"photolog/internal/pkg/admission"
	"photolog/internal/pkg/batch"
	"photolog/internal/pkg/cache"
	"photolog/internal/pkg/env"
	"photolog/internal/pkg/exifdata"
	"photolog/internal/pkg/geocode"
	"photolog/internal/pkg/router"
	"photolog/internal/pkg/staging"
	"photolog/internal/pkg/thumbnail"
	"photolog/internal/pkg/uploader"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	cache.SetupCache()

	store, err := staging.NewStore(env.GetEnv("STAGING_DIR", "uploads/staging"))
	if err != nil {
		log.Fatal(err)
	}

	renderer := thumbnail.NewRenderer()
	sizes := thumbnail.DefaultSizes()

	b := batch.New(batch.Config{
		Store:   store,
		Extract: exifdata.ExtractFile,
		Render: func(ctx context.Context, path string) (map[string]*thumbnail.Result, error) {
			return renderer.RenderSet(ctx, path, sizes)
		},
		Uploader:  uploader.NewHTTPUploader(env.GetEnv("UPLOAD_ENDPOINT", "http://localhost:8000/api/photos/upload")),
		Publisher: batch.NewCachePublisher(),
		GroupSize: env.GetEnvInt("BATCH_GROUP_SIZE", batch.GroupSize),
	})

	geocoder := geocode.NewCache(
		geocode.NewHTTPLookup(env.GetEnv("GEOCODE_ENDPOINT", "https://nominatim.openstreetmap.org/reverse")),
		geocode.DefaultTTL,
	)

	app := fiber.New(fiber.Config{
		// Room for a full batch of maximum-size files in one request
		BodyLimit: admission.MaxBatchSize * admission.MaxFileSize,
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, router.NewApiRouter(controllers.NewBatchController(b, geocoder)))

	return app
}
