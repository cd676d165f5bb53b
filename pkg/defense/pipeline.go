package defense

import (
	"context"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/shieldllm/ileguard/pkg/model"
)

// Store is the persistence surface the pipeline needs. The full store
// carries more (users, session creation, log queries); the pipeline only
// sees this slice of it.
type Store interface {
	SessionByID(ctx context.Context, id string) (*model.Session, error)
	UpdateSessionState(ctx context.Context, id string, graph model.IntentGraph, trustScore int) error
	MessagesBySession(ctx context.Context, sessionID string, limit int) ([]model.Message, error)
	CountUserMessages(ctx context.Context, sessionID string) (int, error)
	CreateMessage(ctx context.Context, sessionID string, role model.Role, content string) (*model.Message, error)
	CreateTurnLog(ctx context.Context, log *model.TurnLog) (*model.TurnLog, error)
}

// RateLimiter gates turn processing per user.
type RateLimiter interface {
	Allow(ctx context.Context, userID string) bool
}

const historyLimit = 100

// TurnResult is what a completed turn surfaces to the API layer.
type TurnResult struct {
	FinalAnswer     string              `json:"final_answer"`
	DivergenceScore float64             `json:"divergence_score"`
	DecisionLevel   model.DecisionLevel `json:"decision_level"`
	DefenseAction   model.DefenseAction `json:"defense_action"`
	TrustScore      int                 `json:"trust_score"`
	LogID           string              `json:"log_id"`
}

// Pipeline orchestrates one user turn end to end. All dependencies are
// injected; the pipeline holds no global state and is safe for concurrent
// turns. Two concurrent turns on the same session may race on the
// intent-graph update (last writer wins); turns are not serialized here.
type Pipeline struct {
	store         Store
	limiter       RateLimiter
	primary       ModelClient
	shadow        ModelClient
	controller    *Controller
	maxTokens     int
	inputMaxChars int
	log           *logrus.Logger
}

// NewPipeline wires a turn pipeline from its collaborators.
func NewPipeline(
	store Store,
	limiter RateLimiter,
	primary, shadow ModelClient,
	controller *Controller,
	maxTokens, inputMaxChars int,
	log *logrus.Logger,
) *Pipeline {
	return &Pipeline{
		store:         store,
		limiter:       limiter,
		primary:       primary,
		shadow:        shadow,
		controller:    controller,
		maxTokens:     maxTokens,
		inputMaxChars: inputMaxChars,
		log:           log,
	}
}

// Run processes one user turn for the given session. On upstream failure
// the turn aborts without persisting messages or a turn log. The returned
// error is one of the model sentinel kinds or an llm upstream error.
func (p *Pipeline) Run(ctx context.Context, userID, sessionID, text string) (*TurnResult, error) {
	if utf8.RuneCountInString(text) > p.inputMaxChars {
		return nil, fmt.Errorf("%w: %d character limit", model.ErrInputTooLong, p.inputMaxChars)
	}
	if !p.limiter.Allow(ctx, userID) {
		return nil, model.ErrRateLimited
	}

	session, err := p.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, fmt.Errorf("%w: session belongs to another user", model.ErrForbidden)
	}

	t0 := time.Now()
	userInput := text

	canonical, canonSignals := Canonicalize(userInput)
	sanitized := SanitizeForShadow(userInput)

	graph, violations, trustDecay := UpdateIntentGraph(session.IntentGraph, canonical, canonSignals)
	newTrust := session.TrustScore - trustDecay
	if newTrust < 0 {
		newTrust = 0
	}
	if err := p.store.UpdateSessionState(ctx, sessionID, graph, newTrust); err != nil {
		return nil, err
	}

	// The turn index counts all user turns ever recorded, not just the
	// context window fetched below.
	priorUserTurns, err := p.store.CountUserMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	turnIndex := priorUserTurns + 1

	history, err := p.store.MessagesBySession(ctx, sessionID, historyLimit)
	if err != nil {
		return nil, err
	}
	messages := make([]model.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, model.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, model.ChatMessage{Role: string(model.RoleUser), Content: userInput})

	systemPrompt := BuildSystemPrompt(graph)
	shadowInput := BuildShadowInput(BuildSessionSummary(history), sanitized)

	// Dual dispatch: both calls run simultaneously and both must complete
	// before scoring. A failure on either side cancels the survivor and
	// fails the whole turn.
	var primaryOut, shadowOut string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := p.primary.Complete(gctx, systemPrompt, messages, p.maxTokens)
		if err != nil {
			return err
		}
		primaryOut = out
		return nil
	})
	g.Go(func() error {
		out, err := p.shadow.Complete(gctx, ShadowSystemPrompt,
			[]model.ChatMessage{{Role: string(model.RoleUser), Content: shadowInput}}, p.maxTokens)
		if err != nil {
			return err
		}
		shadowOut = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scores := ComputeDivergence(primaryOut, shadowOut, graph)
	action := p.controller.Decide(scores.Total, session.DefenseMode)
	level := p.controller.Level(scores.Total)

	final, strippedSpans, err := p.controller.Apply(ctx, action, userInput, primaryOut, graph, messages)
	if err != nil {
		return nil, err
	}
	final = EnsureAnswerFormat(final)

	if _, err := p.store.CreateMessage(ctx, sessionID, model.RoleUser, userInput); err != nil {
		return nil, err
	}
	if _, err := p.store.CreateMessage(ctx, sessionID, model.RoleAssistant, final); err != nil {
		return nil, err
	}

	latencyMs := float64(time.Since(t0)) / float64(time.Millisecond)

	logEntry, err := p.store.CreateTurnLog(ctx, &model.TurnLog{
		SessionID:       sessionID,
		TurnIndex:       turnIndex,
		UserInput:       userInput,
		SanitizedInput:  sanitized,
		PrimaryOutput:   primaryOut,
		ShadowOutput:    shadowOut,
		DivergenceScore: scores.Total,
		DecisionLevel:   level,
		DefenseAction:   action,
		StrippedSpans:   strippedSpans,
		Reasons:         append(scoreReasons(scores), violations...),
		LatencyMs:       latencyMs,
	})
	if err != nil {
		return nil, err
	}

	p.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"turn":       turnIndex,
		"divergence": scores.Total,
		"level":      level,
		"action":     action,
		"latency_ms": round4(latencyMs),
	}).Info("chat turn processed")

	return &TurnResult{
		FinalAnswer:     final,
		DivergenceScore: scores.Total,
		DecisionLevel:   level,
		DefenseAction:   action,
		TrustScore:      newTrust,
		LogID:           logEntry.ID,
	}, nil
}

// scoreReasons renders the sub-scores as explanation strings for the log.
func scoreReasons(s DivergenceScores) []string {
	return []string{
		"semantic_drift=" + strconv.FormatFloat(s.SemanticDrift, 'g', -1, 64),
		"policy_stress=" + strconv.FormatFloat(s.PolicyStress, 'g', -1, 64),
		"reasoning_mismatch=" + strconv.FormatFloat(s.ReasoningMismatch, 'g', -1, 64),
	}
}
