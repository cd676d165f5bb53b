// Package server exposes the REST surface: auth, sessions, the per-turn
// chat endpoint, turn logs, and health.
package server

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/shieldllm/ileguard/pkg/auth"
	"github.com/shieldllm/ileguard/pkg/defense"
	"github.com/shieldllm/ileguard/pkg/llm"
	"github.com/shieldllm/ileguard/pkg/model"
	"github.com/shieldllm/ileguard/pkg/store"
)

// Server wires the fiber app with its handlers and dependencies.
type Server struct {
	app      *fiber.App
	store    store.Store
	pipeline *defense.Pipeline
	tokens   *auth.TokenManager
	log      *logrus.Logger

	primaryURL string
	shadowURL  string
}

// New builds the server and registers all routes.
func New(
	st store.Store,
	pipeline *defense.Pipeline,
	tokens *auth.TokenManager,
	primaryURL, shadowURL string,
	log *logrus.Logger,
) *Server {
	s := &Server{
		store:      st,
		pipeline:   pipeline,
		tokens:     tokens,
		log:        log,
		primaryURL: primaryURL,
		shadowURL:  shadowURL,
	}
	s.app = fiber.New(fiber.Config{
		AppName:      "ileguard",
		ErrorHandler: s.errorHandler,
	})
	s.routes()
	return s
}

// App exposes the underlying fiber app for listening and tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) routes() {
	s.app.Get("/health", s.handleHealth)

	// The bearer check must sit ahead of the handlers in the route stack,
	// so protected routes hang off groups carrying the middleware.
	protected := auth.Middleware(s.tokens)

	authGroup := s.app.Group("/auth")
	authGroup.Post("/register", s.handleRegister)
	authGroup.Post("/login", s.handleLogin)
	authGroup.Use("/me", protected)
	authGroup.Get("/me", s.handleMe)

	sessions := s.app.Group("/sessions", protected)
	sessions.Post("", s.handleCreateSession)
	sessions.Get("", s.handleListSessions)
	sessions.Get("/:id", s.handleGetSession)
	sessions.Post("/:id/message", s.handleMessage)
	sessions.Get("/:id/logs", s.handleListLogs)

	logs := s.app.Group("/logs", protected)
	logs.Get("/:id", s.handleGetLog)
}

// errorHandler maps error kinds onto HTTP statuses with a {"detail": ...}
// body. Upstream model failures surface as 502; unknown errors as 500
// without leaking internals.
func (s *Server) errorHandler(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	detail := "internal server error"

	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		status = fiberErr.Code
		detail = fiberErr.Message
	case errors.Is(err, model.ErrUnauthorized):
		status = fiber.StatusUnauthorized
		detail = "missing or invalid token"
	case errors.Is(err, model.ErrForbidden):
		status = fiber.StatusForbidden
		detail = "access denied"
	case errors.Is(err, model.ErrNotFound):
		status = fiber.StatusNotFound
		detail = "not found"
	case errors.Is(err, model.ErrEmailTaken):
		status = fiber.StatusBadRequest
		detail = "email already registered"
	case errors.Is(err, model.ErrRateLimited):
		status = fiber.StatusTooManyRequests
		detail = "rate limit exceeded"
	case errors.Is(err, model.ErrInputTooLong):
		status = fiber.StatusBadRequest
		detail = err.Error()
	case llm.IsUpstream(err):
		status = fiber.StatusBadGateway
		detail = "upstream model unavailable"
	}

	if status >= fiber.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	return c.Status(status).JSON(fiber.Map{"detail": detail})
}
