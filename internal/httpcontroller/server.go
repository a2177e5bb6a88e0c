// internal/httpcontroller/server.go
package httpcontroller

import (
	"fmt"
	"io"
	"log"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mousetube/mousetube-go/internal/api/v2"
	"github.com/mousetube/mousetube-go/internal/conf"
	"github.com/mousetube/mousetube-go/internal/datastore"
	"github.com/mousetube/mousetube-go/internal/logging"
	"github.com/mousetube/mousetube-go/internal/observability"
	"github.com/mousetube/mousetube-go/internal/publish"
	"github.com/mousetube/mousetube-go/internal/repository"
)

// Server encapsulates the Echo server and related configurations.
type Server struct {
	Echo      *echo.Echo
	DS        datastore.Interface
	Settings  *conf.Settings
	Publisher *publish.Service
	Registry  *repository.Registry
	Metrics   *observability.Metrics
	APIV2     *api.Controller

	webLogger      *slog.Logger
	webLoggerClose func() error
}

// New initializes a new HTTP server with the given datastore and services.
func New(settings *conf.Settings, dataStore datastore.Interface, publisher *publish.Service,
	registry *repository.Registry, metrics *observability.Metrics) (*Server, error) {
	configureDefaultSettings(settings)

	s := &Server{
		Echo:      echo.New(),
		DS:        dataStore,
		Settings:  settings,
		Publisher: publisher,
		Registry:  registry,
		Metrics:   metrics,
	}

	s.Echo.IPExtractor = echo.ExtractIPFromXFFHeader()

	if err := s.initializeServer(); err != nil {
		return nil, err
	}
	return s, nil
}

// initializeServer configures middleware and routes.
func (s *Server) initializeServer() error {
	s.Echo.HideBanner = true
	s.initLogger()

	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.Gzip())

	if s.Metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}

	apiController, err := api.New(s.Echo, s.DS, s.Settings, s.Publisher, s.Registry,
		log.Default(), s.Metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize JSON API v2: %w", err)
	}
	s.APIV2 = apiController

	return nil
}

// Start begins listening and serving HTTP requests.
func (s *Server) Start() {
	errChan := make(chan error)

	go func() {
		if err := s.Echo.Start(":" + s.Settings.WebServer.Port); err != nil {
			errChan <- err
		}
	}()

	go handleServerError(errChan)

	fmt.Printf("HTTP server started on port %s\n", s.Settings.WebServer.Port)
}

// configureDefaultSettings sets default values for server settings.
func configureDefaultSettings(settings *conf.Settings) {
	if settings.WebServer.Port == "" {
		settings.WebServer.Port = "8080"
	}
}

// handleServerError listens for server errors and handles them.
func handleServerError(errChan chan error) {
	for err := range errChan {
		log.Printf("Server error: %v", err)
	}
}

// initLogger initializes the structured web logger.
func (s *Server) initLogger() {
	webLogPath := "logs/web.log"
	webLogger, closeFunc, err := logging.NewFileLogger(webLogPath, "web", slog.LevelInfo)
	if err != nil {
		log.Printf("Warning: Failed to initialize web structured logger: %v", err)
		return
	}
	s.webLogger = webLogger
	s.webLoggerClose = closeFunc
	log.Printf("Web structured logging initialized to %s", webLogPath)

	// Rely on middleware logging, discard Echo's own output.
	s.Echo.Logger.SetOutput(io.Discard)
	s.Echo.Logger.SetLevel(99)
}

// Debug logs debug messages if debug mode is enabled
func (s *Server) Debug(format string, v ...interface{}) {
	if s.Settings.WebServer.Debug {
		log.Printf(format, v...)
		if s.webLogger != nil {
			s.webLogger.Debug(fmt.Sprintf(format, v...))
		}
	}
}

// Shutdown performs cleanup operations and gracefully stops the server
func (s *Server) Shutdown() error {
	if s.APIV2 != nil {
		s.APIV2.Shutdown()
	}

	if s.webLoggerClose != nil {
		if err := s.webLoggerClose(); err != nil {
			log.Printf("Error closing web log file: %v", err)
		}
	}

	return s.Echo.Close()
}
