// Package web serves the JSON API: chart data and summaries per rider,
// statement uploads, manual entries, and job polling.
package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/kavwad/clippertv/internal/config"
	"github.com/kavwad/clippertv/internal/filestore"
	"github.com/kavwad/clippertv/internal/ingest"
	"github.com/kavwad/clippertv/internal/logger"
	"github.com/kavwad/clippertv/internal/store"
)

// maxUploadSize bounds statement uploads. Statements run a few hundred
// KB; anything near the limit is not a statement.
const maxUploadSize = 32 << 20

// Handler holds the API's dependencies.
type Handler struct {
	cfg     config.Config
	db      *store.DB
	archive *filestore.Store
	pipe    *ingest.Pipeline
}

// New creates a handler with its dependencies.
func New(cfg config.Config, db *store.DB, archive *filestore.Store, pipe *ingest.Pipeline) *Handler {
	return &Handler{cfg: cfg, db: db, archive: archive, pipe: pipe}
}

// NewApp builds the fiber application: middleware, error rendering,
// and all API routes.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "clippertv",
		BodyLimit:             maxUploadSize,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(RequestLogger())
	h.Register(app)
	return app
}

// Register mounts the API routes.
func (h *Handler) Register(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/health", h.Health)
	api.Get("/riders", h.Riders)
	api.Get("/trips/:rider", h.Trips)
	api.Get("/costs/:rider", h.Costs)
	api.Get("/summary/:rider", h.Summary)
	api.Get("/comparison", h.Comparison)
	api.Get("/jobs", h.Jobs)
	api.Get("/jobs/:id", h.JobStatus)
	api.Post("/statements/:rider", h.UploadStatement)
	api.Post("/transactions/:rider", h.AddManualEntries)
	api.Get("/transactions/:rider/export", h.ExportTransactions)
}

// errorHandler renders every handler error as a JSON body with the
// right status code.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= 500 {
		logger.FromContext(c.UserContext()).Error("request_failed",
			"method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
