package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"polegrid/internal/model"
	"polegrid/internal/service"
	"polegrid/internal/storage"
)

// LivenessMessage is the plain-text body served at "/".
const LivenessMessage = "PoleGrid Services API running!"

type listResponse struct {
	Success bool           `json:"success"`
	Data    []model.Record `json:"data"`
}

type recordResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    *model.Record `json:"data"`
}

type uploadResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	FilePath string `json:"filePath"`
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// metrics may be nil, in which case /metrics is not exposed.
// The not-found handler is registered last and must stay last.
func RegisterRoutes(app *fiber.App, svc service.RegistrationService, files storage.Storage, metrics prometheus.Gatherer) {
	app.Get("/", Root())
	app.Get("/healthz", LivenessProbe())
	app.Get("/health", HealthCheck(svc))
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(metrics, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")
	api.Get("/landlords", ListRecords(svc, model.EntityLandlord))
	api.Get("/organizations", ListRecords(svc, model.EntityOrganization))
	api.Get("/contact", ListRecords(svc, model.EntityContact))

	api.Post("/landlord/register", Register(svc, model.EntityLandlord))
	api.Post("/organization/register", Register(svc, model.EntityOrganization))
	api.Post("/contact/create", Register(svc, model.EntityContact))

	api.Post("/upload", UploadFile(svc))

	app.Get("/uploads/:filename", ServeUpload(files))

	app.Use(NotFound())
}

// Root godoc
// @Summary Liveness text
// @Produce plain
// @Success 200 {string} string
// @Router / [get]
func Root() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendString(LivenessMessage)
	}
}

// LivenessProbe is a bare 200 for orchestrators.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// HealthCheck godoc
// @Summary Record store health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} errorPayload
// @Router /health [get]
func HealthCheck(svc service.RegistrationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := svc.Ping(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// ListRecords godoc
// @Summary List all records of an entity type
// @Produce json
// @Success 200 {object} listResponse
// @Failure 500 {object} errorPayload
// @Router /api/landlords [get]
// @Router /api/organizations [get]
// @Router /api/contact [get]
func ListRecords(svc service.RegistrationService, entity model.Entity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		items, err := svc.List(c.UserContext(), entity)
		if err != nil {
			return err
		}
		return c.JSON(listResponse{Success: true, Data: items})
	}
}

// Register godoc
// @Summary Submit a registration
// @Accept mpfd
// @Accept x-www-form-urlencoded
// @Accept json
// @Produce json
// @Success 200 {object} recordResponse
// @Failure 400 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /api/landlord/register [post]
// @Router /api/organization/register [post]
// @Router /api/contact/create [post]
func Register(svc service.RegistrationService, entity model.Entity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sub, release, err := parseSubmission(c)
		defer release()
		if err != nil {
			if errors.Is(err, errInvalidBody) {
				return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "Invalid request body")
			}
			return err
		}

		rec, err := svc.Register(c.UserContext(), entity, sub)
		if err != nil {
			var vErr *service.ValidationError
			var tmErr *service.TooManyFilesError
			switch {
			case errors.As(err, &vErr):
				return c.Status(fiber.StatusBadRequest).JSON(errorPayload{
					Success:   false,
					Message:   "Missing required fields: " + strings.Join(vErr.Missing, ", "),
					Code:      "VALIDATION_FAILED",
					RequestID: requestIDFromCtx(c),
					Missing:   vErr.Missing,
				})
			case errors.As(err, &tmErr):
				return writeError(c, fiber.StatusBadRequest, "TOO_MANY_FILES", "Too many files for field "+tmErr.Field)
			}
			return err
		}

		return c.JSON(recordResponse{
			Success: true,
			Message: svc.Message(entity),
			Data:    rec,
		})
	}
}

// UploadFile godoc
// @Summary Upload a single file
// @Accept mpfd
// @Produce json
// @Param file formData file true "file to store"
// @Success 200 {object} uploadResponse
// @Failure 400 {object} errorPayload
// @Router /api/upload [post]
func UploadFile(svc service.RegistrationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "No file uploaded")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "Cannot open uploaded file")
		}
		defer f.Close()

		sf, err := svc.Upload(c.UserContext(), service.File{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Size:        fh.Size,
			Reader:      f,
		})
		if err != nil {
			return err
		}
		return c.JSON(uploadResponse{
			Success:  true,
			Message:  "File uploaded successfully!",
			FilePath: sf.Path,
		})
	}
}

// ServeUpload godoc
// @Summary Download a stored upload
// @Produce octet-stream
// @Param filename path string true "generated file name"
// @Success 200 {file} file
// @Failure 404 {object} errorPayload
// @Router /uploads/{filename} [get]
func ServeUpload(files storage.Storage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := c.Params("filename")
		rc, info, err := files.Get(c.UserContext(), name)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "File not found")
			}
			return err
		}

		if info.ContentType != "" {
			c.Set(fiber.HeaderContentType, info.ContentType)
		}
		if !info.LastModified.IsZero() {
			c.Set(fiber.HeaderLastModified, info.LastModified.UTC().Format(http.TimeFormat))
		}
		return c.SendStream(rc, int(info.Size))
	}
}
