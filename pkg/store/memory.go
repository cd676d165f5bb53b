package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shieldllm/ileguard/pkg/model"
)

// Memory is an in-memory Store used by tests and local development without
// a database. A single mutex guards all maps; the workloads involved are
// tiny.
type Memory struct {
	mu       sync.Mutex
	users    map[string]*model.User
	sessions map[string]*model.Session
	messages map[string][]model.Message
	logs     map[string]*model.TurnLog
	logOrder []string
	now      func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]*model.User),
		sessions: make(map[string]*model.Session),
		messages: make(map[string][]model.Message),
		logs:     make(map[string]*model.TurnLog),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error { return nil }

// CreateUser inserts a user, enforcing case-insensitive email uniqueness.
func (m *Memory) CreateUser(ctx context.Context, name, email, passwordHash string, role model.UserRole) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	folded := strings.ToLower(email)
	for _, u := range m.users {
		if u.Email == folded {
			return nil, model.ErrEmailTaken
		}
	}
	user := &model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        folded,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    m.now(),
	}
	m.users[user.ID] = user
	out := *user
	return &out, nil
}

// UserByEmail looks a user up by case-folded email.
func (m *Memory) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	folded := strings.ToLower(email)
	for _, u := range m.users {
		if u.Email == folded {
			out := *u
			return &out, nil
		}
	}
	return nil, model.ErrNotFound
}

// UserByID fetches a user by id.
func (m *Memory) UserByID(ctx context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	out := *u
	return &out, nil
}

// CreateSession inserts a session with full trust.
func (m *Memory) CreateSession(ctx context.Context, userID string, tool model.ToolType, mode model.DefenseMode, graph model.IntentGraph) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session := &model.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		ToolType:    tool,
		DefenseMode: mode,
		TrustScore:  100,
		IntentGraph: graph.Clone(),
		CreatedAt:   m.now(),
	}
	m.sessions[session.ID] = session
	out := *session
	out.IntentGraph = session.IntentGraph.Clone()
	return &out, nil
}

// SessionByID fetches a session by id.
func (m *Memory) SessionByID(ctx context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	out := *s
	out.IntentGraph = s.IntentGraph.Clone()
	return &out, nil
}

// SessionsByUser lists a user's sessions newest first.
func (m *Memory) SessionsByUser(ctx context.Context, userID string, limit int) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := []model.Session{}
	for _, s := range m.sessions {
		if s.UserID == userID {
			out := *s
			out.IntentGraph = s.IntentGraph.Clone()
			sessions = append(sessions, out)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// UpdateSessionState rewrites the intent graph and trust score.
func (m *Memory) UpdateSessionState(ctx context.Context, id string, graph model.IntentGraph, trustScore int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return model.ErrNotFound
	}
	s.IntentGraph = graph.Clone()
	s.TrustScore = trustScore
	return nil
}

// CreateMessage appends a conversation message.
func (m *Memory) CreateMessage(ctx context.Context, sessionID string, role model.Role, content string) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := model.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: m.now(),
	}
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	return &msg, nil
}

// MessagesBySession lists the most recent limit messages in insertion
// (chronological) order.
func (m *Memory) MessagesBySession(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := append([]model.Message{}, m.messages[sessionID]...)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// CountUserMessages counts the user-authored messages of a session.
func (m *Memory) CountUserMessages(ctx context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages[sessionID] {
		if msg.Role == model.RoleUser {
			n++
		}
	}
	return n, nil
}

// CreateTurnLog persists one turn log.
func (m *Memory) CreateTurnLog(ctx context.Context, log *model.TurnLog) (*model.TurnLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := *log
	entry.ID = uuid.NewString()
	entry.CreatedAt = m.now()
	if entry.StrippedSpans == nil {
		entry.StrippedSpans = []string{}
	}
	if entry.Reasons == nil {
		entry.Reasons = []string{}
	}
	m.logs[entry.ID] = &entry
	m.logOrder = append(m.logOrder, entry.ID)
	out := entry
	return &out, nil
}

// TurnLogByID fetches one turn log.
func (m *Memory) TurnLogByID(ctx context.Context, id string) (*model.TurnLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.logs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	out := *entry
	return &out, nil
}

// TurnLogsBySession lists logs newest first with optional filters.
func (m *Memory) TurnLogsBySession(ctx context.Context, sessionID string, filter LogFilter) ([]model.TurnLog, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := []model.TurnLog{}
	// logOrder is insertion order; walk backwards for newest first.
	for i := len(m.logOrder) - 1; i >= 0; i-- {
		entry := m.logs[m.logOrder[i]]
		if entry.SessionID != sessionID {
			continue
		}
		if filter.Level != "" && entry.DecisionLevel != filter.Level {
			continue
		}
		if filter.Action != "" && entry.DefenseAction != filter.Action {
			continue
		}
		matched = append(matched, *entry)
	}
	total := int64(len(matched))
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = []model.TurnLog{}
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}
