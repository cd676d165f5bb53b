package model

import "time"

// Role identifies who authored a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// UserRole is the account role assigned at registration.
type UserRole string

const (
	UserRoleAdmin     UserRole = "admin"
	UserRoleEngineer  UserRole = "engineer"
	UserRoleDeveloper UserRole = "developer"
)

// Valid reports whether the role is one of the known account roles.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleEngineer, UserRoleDeveloper:
		return true
	}
	return false
}

// ToolType selects which review workflow a session runs.
type ToolType string

const (
	ToolCodeReview        ToolType = "code_review"
	ToolPolicyEnforcement ToolType = "policy_enforcement"
	ToolComplianceCheck   ToolType = "compliance_check"
)

// Valid reports whether the tool type is recognized.
func (t ToolType) Valid() bool {
	switch t {
	case ToolCodeReview, ToolPolicyEnforcement, ToolComplianceCheck:
		return true
	}
	return false
}

// DefenseMode scales the action thresholds of the defense controller.
type DefenseMode string

const (
	ModePassive DefenseMode = "passive"
	ModeActive  DefenseMode = "active"
	ModeStrict  DefenseMode = "strict"
)

// Valid reports whether the defense mode is recognized.
func (m DefenseMode) Valid() bool {
	switch m {
	case ModePassive, ModeActive, ModeStrict:
		return true
	}
	return false
}

// DecisionLevel is the severity label derived from the divergence total
// against the unscaled base thresholds.
type DecisionLevel string

const (
	LevelLow      DecisionLevel = "low"
	LevelMedium   DecisionLevel = "medium"
	LevelHigh     DecisionLevel = "high"
	LevelCritical DecisionLevel = "critical"
)

// DefenseAction is the per-turn verdict applied to the primary output.
type DefenseAction string

const (
	ActionAllow      DefenseAction = "allow"
	ActionClarify    DefenseAction = "clarify"
	ActionStripRerun DefenseAction = "strip_and_rerun"
	ActionContain    DefenseAction = "contain"
)

// String returns the string representation of a DefenseAction.
func (a DefenseAction) String() string {
	return string(a)
}

// Strictness orders actions from most permissive to most restrictive.
// Used to verify that higher scores never produce softer actions.
func (a DefenseAction) Strictness() int {
	switch a {
	case ActionAllow:
		return 0
	case ActionClarify:
		return 1
	case ActionStripRerun:
		return 2
	case ActionContain:
		return 3
	}
	return -1
}

// ChatMessage is one entry of an OpenAI-compatible chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IntentNode is one append-only history entry of an intent graph.
type IntentNode struct {
	Turn           int      `bson:"turn" json:"turn"`
	Intent         string   `bson:"intent" json:"intent"`
	RawTextPreview string   `bson:"raw_text_preview" json:"raw_text_preview"`
	Signals        []string `bson:"signals" json:"signals"`
	Suspicion      int      `bson:"suspicion" json:"suspicion"`
	Violations     []string `bson:"violations" json:"violations"`
}

// IntentEdge is reserved for future relations between graph nodes.
type IntentEdge struct {
	From int    `bson:"from" json:"from"`
	To   int    `bson:"to" json:"to"`
	Kind string `bson:"kind,omitempty" json:"kind,omitempty"`
}

// IntentGraph is the per-session policy state driving Intent-Locked Execution:
// the active goal, the allowed and forbidden action sets, and the append-only
// turn history.
type IntentGraph struct {
	Goal             string       `bson:"goal" json:"goal"`
	AllowedActions   []string     `bson:"allowed_actions" json:"allowed_actions"`
	ForbiddenActions []string     `bson:"forbidden_actions" json:"forbidden_actions"`
	Nodes            []IntentNode `bson:"nodes" json:"nodes"`
	Edges            []IntentEdge `bson:"edges" json:"edges"`
}

// Clone returns a deep copy of the graph. Updates always operate on a copy so
// a failed turn never leaves a half-mutated graph behind.
func (g IntentGraph) Clone() IntentGraph {
	out := IntentGraph{
		Goal:             g.Goal,
		AllowedActions:   append([]string(nil), g.AllowedActions...),
		ForbiddenActions: append([]string(nil), g.ForbiddenActions...),
		Nodes:            make([]IntentNode, len(g.Nodes)),
		Edges:            append([]IntentEdge(nil), g.Edges...),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = IntentNode{
			Turn:           n.Turn,
			Intent:         n.Intent,
			RawTextPreview: n.RawTextPreview,
			Signals:        append([]string(nil), n.Signals...),
			Suspicion:      n.Suspicion,
			Violations:     append([]string(nil), n.Violations...),
		}
	}
	return out
}

// HasNodeIntent reports whether any node in the graph carries the given intent.
func (g IntentGraph) HasNodeIntent(intent string) bool {
	for _, n := range g.Nodes {
		if n.Intent == intent {
			return true
		}
	}
	return false
}

// IsForbidden reports whether the action identifier is in the forbidden set.
func (g IntentGraph) IsForbidden(action string) bool {
	for _, f := range g.ForbiddenActions {
		if f == action {
			return true
		}
	}
	return false
}

// User is a registered account. Password hashes are bcrypt and never leave
// the store layer in API responses.
type User struct {
	ID           string    `bson:"_id" json:"id"`
	Name         string    `bson:"name" json:"name"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	Role         UserRole  `bson:"role" json:"role"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

// Session is one review conversation owned by a single user. The trust score
// starts at 100 and only ever decays.
type Session struct {
	ID          string      `bson:"_id" json:"id"`
	UserID      string      `bson:"user_id" json:"user_id"`
	ToolType    ToolType    `bson:"tool_type" json:"tool_type"`
	DefenseMode DefenseMode `bson:"defense_mode" json:"defense_mode"`
	TrustScore  int         `bson:"trust_score" json:"trust_score"`
	IntentGraph IntentGraph `bson:"intent_graph" json:"intent_graph"`
	CreatedAt   time.Time   `bson:"created_at" json:"created_at"`
}

// Message is one persisted conversation entry, append-only per session.
type Message struct {
	ID        string    `bson:"_id" json:"id"`
	SessionID string    `bson:"session_id" json:"session_id"`
	Role      Role      `bson:"role" json:"role"`
	Content   string    `bson:"content" json:"content"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// TurnLog records the full defense trace of one user turn.
type TurnLog struct {
	ID              string        `bson:"_id" json:"id"`
	SessionID       string        `bson:"session_id" json:"session_id"`
	TurnIndex       int           `bson:"turn_index" json:"turn_index"`
	UserInput       string        `bson:"user_input" json:"user_input"`
	SanitizedInput  string        `bson:"sanitized_input" json:"sanitized_input"`
	PrimaryOutput   string        `bson:"primary_output" json:"primary_output"`
	ShadowOutput    string        `bson:"shadow_output" json:"shadow_output"`
	DivergenceScore float64       `bson:"divergence_score" json:"divergence_score"`
	DecisionLevel   DecisionLevel `bson:"decision_level" json:"decision_level"`
	DefenseAction   DefenseAction `bson:"defense_action" json:"defense_action"`
	StrippedSpans   []string      `bson:"stripped_spans" json:"stripped_spans"`
	Reasons         []string      `bson:"reasons" json:"reasons"`
	LatencyMs       float64       `bson:"latency_ms" json:"latency_ms"`
	CreatedAt       time.Time     `bson:"created_at" json:"created_at"`
}
