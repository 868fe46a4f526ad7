package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"photolog/app/controllers"
)

type ApiRouter struct {
	batch *controllers.BatchController
}

func NewApiRouter(batch *controllers.BatchController) *ApiRouter {
	return &ApiRouter{batch: batch}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")

	v1.Post("/batch/files", h.batch.HandleAddFiles)
	v1.Patch("/batch/description", h.batch.HandleSetDescription)
	v1.Post("/batch/start", h.batch.HandleStart)
	v1.Get("/batch", h.batch.HandleSnapshot)
	v1.Delete("/batch", h.batch.HandleClear)

	v1.Patch("/batch/records/:id/description", h.batch.HandleSetRecordDescription)
	v1.Get("/batch/records/:id/status", h.batch.HandleRecordStatus)
	v1.Post("/batch/records/:id/thumbnail/retry", h.batch.HandleRetryThumbnail)
	v1.Delete("/batch/records/:id", h.batch.HandleRemove)

	v1.Get("/geocode/reverse", h.batch.HandleReverseGeocode)
}
