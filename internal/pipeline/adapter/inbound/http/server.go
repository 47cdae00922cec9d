package http_handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/anthanhphan/statement-pipeline/internal/pipeline/config"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const (
	// userHeader carries the caller's identity, set by the fronting gateway.
	userHeader = "X-User-ID"
	// adminHeader carries the shared token guarding /v1/admin.
	adminHeader = "X-Admin-Token"
)

var (
	errAdminDisabled     = errors.New("admin routes are disabled")
	errInvalidAdminToken = errors.New("invalid admin token")
)

type Server struct {
	app     *fiber.App
	cfg     *config.Config
	service port.PipelineService
	blobs   http.Handler
}

// Option customizes the server.
type Option func(*Server)

// WithBlobHandler serves signed blob links under /blobs. Used with the memory storage driver.
func WithBlobHandler(h http.Handler) Option {
	return func(s *Server) { s.blobs = h }
}

func NewServer(cfg *config.Config, service port.PipelineService, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
	}
	for _, opt := range opts {
		opt(s)
	}

	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.Server.BodyLimit,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s.app = app

	// Routes
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/healthz", s.handleHealth)

	v1 := s.app.Group("/v1")

	admin := v1.Group("/admin", keyauth.New(keyauth.Config{
		KeyLookup:    "header:" + adminHeader,
		Validator:    s.validateAdminToken,
		ErrorHandler: adminAuthError,
	}))
	admin.Post("/sweep", s.handleSweep)

	sessions := v1.Group("/sessions", s.requireUser)
	sessions.Post("/", s.handleStartSession)
	sessions.Get("/", s.handleListSessions)
	sessions.Post("/recover", s.handleRecover)
	sessions.Delete("/failed", s.handlePurgeFailed)
	sessions.Get("/:id", s.handleGetSession)
	sessions.Get("/:id/events", s.handleEvents)
	sessions.Post("/:id/archive-url", s.handleReissueArchiveURL)
	sessions.Get("/:id/artifacts", s.handleListArtifacts)
	sessions.Get("/:id/artifacts/*", s.handleGetArtifact)

	if s.blobs != nil {
		blobs := adaptor.HTTPHandler(s.blobs)
		s.app.Get("/blobs/*", blobs)
		s.app.Head("/blobs/*", blobs)
	}
}

// App exposes the fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) sendJSONError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

// handleError renders every returned error as a JSON body.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return s.sendJSONError(c, fe.Code, fe.Message)
	}
	return s.sendJSONError(c, fiber.StatusInternalServerError, err.Error())
}

// serviceError maps service errors onto HTTP statuses.
func serviceError(err error) *fiber.Error {
	var status int
	switch {
	case errors.Is(err, port.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, port.ErrSessionNotFound), errors.Is(err, port.ErrObjectNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, port.ErrSessionExists), errors.Is(err, port.ErrBuildInProgress):
		status = fiber.StatusConflict
	case errors.Is(err, port.ErrFetch), errors.Is(err, port.ErrFormat), errors.Is(err, port.ErrBackendCall):
		status = fiber.StatusBadGateway
	case errors.Is(err, port.ErrQueueFull):
		status = fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = fiber.StatusGatewayTimeout
	default:
		status = fiber.StatusInternalServerError
	}
	return fiber.NewError(status, err.Error())
}

// requireUser rejects requests without a caller identity and stores it in locals.
func (s *Server) requireUser(c *fiber.Ctx) error {
	uid := c.Get(userHeader)
	if uid == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing "+userHeader+" header")
	}
	c.Locals(userHeader, uid)
	return c.Next()
}

// validateAdminToken accepts the configured admin token. An empty token disables admin routes.
func (s *Server) validateAdminToken(_ *fiber.Ctx, key string) (bool, error) {
	want := s.cfg.Server.AdminToken
	if want == "" {
		return false, errAdminDisabled
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(want)) != 1 {
		return false, errInvalidAdminToken
	}
	return true, nil
}

func adminAuthError(_ *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, errAdminDisabled):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, keyauth.ErrMissingOrMalformedAPIKey):
		return fiber.NewError(fiber.StatusUnauthorized, "Missing "+adminHeader+" header")
	default:
		return fiber.NewError(fiber.StatusUnauthorized, errInvalidAdminToken.Error())
	}
}

func userID(c *fiber.Ctx) string {
	uid, _ := c.Locals(userHeader).(string)
	return uid
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
