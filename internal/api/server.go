package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/tucentropdf/engine-v2/internal/api/handlers"
	"github.com/tucentropdf/engine-v2/internal/api/middleware"
	"github.com/tucentropdf/engine-v2/internal/api/routes"
	"github.com/tucentropdf/engine-v2/internal/config"
	"github.com/tucentropdf/engine-v2/pkg/logger"
)

// Server wraps the Fiber app exposing the C7 read API surface.
type Server struct {
	app    *fiber.App
	config *config.Config
	logger *logger.Logger
}

// ShutdownState is a concurrency-safe flag the caller flips once
// graceful shutdown has started. It is built before NewServer so the
// 503-during-drain middleware below can be installed at app-build time
// and shared afterwards with whatever drives the drain (cmd/server's
// ShutdownManager).
type ShutdownState struct {
	mu           sync.RWMutex
	shuttingDown bool
}

func NewShutdownState() *ShutdownState {
	return &ShutdownState{}
}

func (s *ShutdownState) MarkShuttingDown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shuttingDown = true
}

func (s *ShutdownState) IsShuttingDown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shuttingDown
}

// shutdownMiddleware rejects new requests with 503 once state reports
// shutdown has started, so a load balancer stops routing traffic here
// quickly instead of racing the listener close.
func shutdownMiddleware(state *ShutdownState) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if state.IsShuttingDown() {
			c.Set("Connection", "close")
			return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
				"success": false,
				"error": fiber.Map{
					"code":    "SERVER_SHUTTING_DOWN",
					"message": "server is shutting down, please retry",
				},
			})
		}
		return c.Next()
	}
}

// NewServer builds the Fiber app and registers the C7 routes against h.
// state is installed as the first middleware so it can start rejecting
// traffic the moment the caller marks shutdown underway.
func NewServer(cfg *config.Config, log *logger.Logger, h *handlers.Handlers, state *ShutdownState) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "invoice-extraction-api",
		DisableStartupMessage: true,
		BodyLimit:             4 * 1024 * 1024, // small JSON bodies only; no file uploads in this core
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
		ErrorHandler:          middleware.ErrorHandler(log),
	})

	app.Use(shutdownMiddleware(state))
	app.Use(recover.New())
	app.Use(middleware.RequestLogger(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	routes.Setup(app, h)

	return &Server{app: app, config: cfg, logger: log}
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
