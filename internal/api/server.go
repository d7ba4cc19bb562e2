// Package api exposes the engine over HTTP: medication CRUD, intake
// acknowledgments, supply replenishment, adherence statistics, and
// the daily schedule.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pgorski/dosetrack/internal/config"
	"github.com/pgorski/dosetrack/internal/intake"
	"github.com/pgorski/dosetrack/internal/reminder"
	"github.com/pgorski/dosetrack/internal/store"
)

// Server handles the HTTP API.
type Server struct {
	app         *fiber.App
	config      *config.Config
	store       *store.Store
	coordinator *intake.Coordinator
	scheduler   *reminder.Scheduler
	registry    *prometheus.Registry
	logger      *zap.Logger

	now func() time.Time
}

// New creates a new API server.
func New(cfg *config.Config, st *store.Store, coordinator *intake.Coordinator, scheduler *reminder.Scheduler, registry *prometheus.Registry, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	s := &Server{
		app:         app,
		config:      cfg,
		store:       st,
		coordinator: coordinator,
		scheduler:   scheduler,
		registry:    registry,
		logger:      logger,
		now:         time.Now,
	}

	s.setupRoutes()
	return s
}

// WithClock overrides the clock for tests.
func (s *Server) WithClock(now func() time.Time) *Server {
	s.now = now
	return s
}

func (s *Server) setupRoutes() {
	// Middleware
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New())

	// Health check
	s.app.Get("/api/health", s.handleHealth)

	// Prometheus scrape endpoint
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	// API routes
	api := s.app.Group("/api")

	// Medications
	api.Get("/medications", s.handleListMedications)
	api.Post("/medications", s.handleCreateMedication)
	api.Get("/medications/:id", s.handleGetMedication)
	api.Put("/medications/:id", s.handleUpdateMedication)
	api.Delete("/medications/:id", s.handleDeleteMedication)

	// Intake
	api.Post("/medications/:id/taken", s.handleMarkTaken)
	api.Post("/medications/:id/not-taken", s.handleMarkNotTaken)
	api.Post("/medications/:id/supply", s.handleAddSupply)

	// Derived views
	api.Get("/stats", s.handleStats)
	api.Get("/schedule", s.handleSchedule)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
