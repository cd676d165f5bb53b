package server

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/shieldllm/ileguard/pkg/auth"
	"github.com/shieldllm/ileguard/pkg/defense"
	"github.com/shieldllm/ileguard/pkg/model"
	"github.com/shieldllm/ileguard/pkg/store"
)

// Log listing bounds.
const (
	logPageDefault = 50
	logPageMax     = 100
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) handleRegister(c fiber.Ctx) error {
	var req registerRequest
	if err := c.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || len(req.Name) > 200 {
		return fiber.NewError(fiber.StatusBadRequest, "name must be 1-200 characters")
	}
	if !strings.Contains(req.Email, "@") {
		return fiber.NewError(fiber.StatusBadRequest, "invalid email address")
	}
	if len(req.Password) < 8 || len(req.Password) > 128 {
		return fiber.NewError(fiber.StatusBadRequest, "password must be 8-128 characters")
	}
	role := model.UserRole(req.Role)
	if req.Role == "" {
		role = model.UserRoleDeveloper
	}
	if !role.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "unknown role")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return err
	}
	user, err := s.store.CreateUser(c.Context(), req.Name, req.Email, hash, role)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user registered")
	return c.JSON(user)
}

func (s *Server) handleLogin(c fiber.Ctx) error {
	var req loginRequest
	if err := c.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	user, err := s.store.UserByEmail(c.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		// Same response for unknown email and bad password.
		return model.ErrUnauthorized
	}
	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		return model.ErrUnauthorized
	}
	token, err := s.tokens.Generate(user.ID, user.Email)
	if err != nil {
		return err
	}
	return c.JSON(tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleMe(c fiber.Ctx) error {
	user, err := s.store.UserByID(c.Context(), auth.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(user)
}

type createSessionRequest struct {
	ToolType    string `json:"tool_type"`
	DefenseMode string `json:"defense_mode"`
}

func (s *Server) handleCreateSession(c fiber.Ctx) error {
	req := createSessionRequest{
		ToolType:    string(model.ToolCodeReview),
		DefenseMode: string(model.ModeActive),
	}
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	tool := model.ToolType(req.ToolType)
	if !tool.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "unknown tool_type")
	}
	mode := model.DefenseMode(req.DefenseMode)
	if !mode.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "unknown defense_mode")
	}

	graph := defense.NewIntentGraph()
	graph.Goal = string(tool)
	session, err := s.store.CreateSession(c.Context(), auth.UserID(c), tool, mode, graph)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"session_id": session.ID,
		"tool_type":  tool,
		"mode":       mode,
	}).Info("session created")
	return c.JSON(session)
}

func (s *Server) handleListSessions(c fiber.Ctx) error {
	limit := fiber.Query[int](c, "limit", 50)
	if limit < 1 || limit > 100 {
		limit = 50
	}
	sessions, err := s.store.SessionsByUser(c.Context(), auth.UserID(c), limit)
	if err != nil {
		return err
	}
	return c.JSON(sessions)
}

func (s *Server) handleGetSession(c fiber.Ctx) error {
	session, err := s.ownedSession(c)
	if err != nil {
		return err
	}
	return c.JSON(session)
}

type messageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleMessage(c fiber.Ctx) error {
	var req messageRequest
	if err := c.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "text is required")
	}
	// Fiber params are buffer-backed and only valid for this request; the
	// pipeline persists the session id, so it needs a stable copy.
	result, err := s.pipeline.Run(c.Context(), auth.UserID(c), strings.Clone(c.Params("id")), req.Text)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (s *Server) handleListLogs(c fiber.Ctx) error {
	session, err := s.ownedSession(c)
	if err != nil {
		return err
	}

	limit := fiber.Query[int](c, "limit", logPageDefault)
	if limit < 1 || limit > logPageMax {
		limit = logPageDefault
	}
	offset := fiber.Query[int](c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	filter := store.LogFilter{
		Limit:  limit,
		Offset: offset,
		Level:  model.DecisionLevel(c.Query("level")),
		Action: model.DefenseAction(c.Query("action")),
	}

	logs, total, err := s.store.TurnLogsBySession(c.Context(), session.ID, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": logs, "total": total})
}

func (s *Server) handleGetLog(c fiber.Ctx) error {
	entry, err := s.store.TurnLogByID(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	session, err := s.store.SessionByID(c.Context(), entry.SessionID)
	if err != nil {
		return err
	}
	if session.UserID != auth.UserID(c) {
		return model.ErrForbidden
	}
	return c.JSON(entry)
}

// handleHealth reports liveness plus the MongoDB probe. A degraded database
// still answers 200 so load balancers keep routing to a process that can
// report its own state.
func (s *Server) handleHealth(c fiber.Ctx) error {
	mongoStatus := "ok"
	status := "ok"
	if err := s.store.Ping(c.Context()); err != nil {
		mongoStatus = "error"
		status = "degraded"
	}
	return c.JSON(fiber.Map{
		"status":      status,
		"mongodb":     mongoStatus,
		"primary_url": s.primaryURL,
		"shadow_url":  s.shadowURL,
	})
}

// ownedSession loads the path session and verifies the caller owns it.
func (s *Server) ownedSession(c fiber.Ctx) (*model.Session, error) {
	session, err := s.store.SessionByID(c.Context(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if session.UserID != auth.UserID(c) {
		return nil, model.ErrForbidden
	}
	return session, nil
}
