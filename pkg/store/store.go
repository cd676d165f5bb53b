// Package store abstracts persistence for users, sessions, messages, and
// turn logs over a document database.
package store

import (
	"context"

	"github.com/shieldllm/ileguard/pkg/model"
)

// LogFilter narrows and pages a turn-log listing.
type LogFilter struct {
	Limit  int
	Offset int
	Level  model.DecisionLevel // empty means any
	Action model.DefenseAction // empty means any
}

// Store is the full persistence surface. Implementations must be safe for
// concurrent use. Lookups return model.ErrNotFound for unknown ids;
// CreateUser returns model.ErrEmailTaken on a duplicate email.
type Store interface {
	CreateUser(ctx context.Context, name, email, passwordHash string, role model.UserRole) (*model.User, error)
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	UserByID(ctx context.Context, id string) (*model.User, error)

	CreateSession(ctx context.Context, userID string, tool model.ToolType, mode model.DefenseMode, graph model.IntentGraph) (*model.Session, error)
	SessionByID(ctx context.Context, id string) (*model.Session, error)
	SessionsByUser(ctx context.Context, userID string, limit int) ([]model.Session, error)
	UpdateSessionState(ctx context.Context, id string, graph model.IntentGraph, trustScore int) error

	CreateMessage(ctx context.Context, sessionID string, role model.Role, content string) (*model.Message, error)
	// MessagesBySession returns the most recent limit messages in
	// chronological order; limit 0 means all.
	MessagesBySession(ctx context.Context, sessionID string, limit int) ([]model.Message, error)
	CountUserMessages(ctx context.Context, sessionID string) (int, error)

	CreateTurnLog(ctx context.Context, log *model.TurnLog) (*model.TurnLog, error)
	TurnLogByID(ctx context.Context, id string) (*model.TurnLog, error)
	TurnLogsBySession(ctx context.Context, sessionID string, filter LogFilter) ([]model.TurnLog, int64, error)

	Ping(ctx context.Context) error
}
