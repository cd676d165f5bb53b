package defense

import (
	"context"
	"strings"

	"github.com/shieldllm/ileguard/pkg/model"
)

// Fixed user-facing messages for the clarify and contain actions.
const (
	ClarifyMessage = "Your request may be ambiguous or conflict with safety policies. " +
		"Please clarify your intent so I can respond appropriately."
	ContainmentMessage = "I cannot answer this query due to potential policy violations. " +
		"Please rephrase or limit your request to allowed actions."
)

// Threshold mode multipliers. Strict tightens every band; passive loosens.
const (
	strictScale  = 0.8
	passiveScale = 1.5
)

// Thresholds are the base divergence cut points. Decision levels always use
// the base values; actions use the mode-scaled values.
type Thresholds struct {
	Low      float64
	High     float64
	Critical float64
}

// DefaultThresholds returns the standard cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.25, High: 0.55, Critical: 0.75}
}

// ModelClient is the chat-completion contract the controller and pipeline
// consume. Implementations must be safe for concurrent calls.
type ModelClient interface {
	Complete(ctx context.Context, systemPrompt string, messages []model.ChatMessage, maxTokens int) (string, error)
}

// Controller decides and applies defense actions from divergence totals.
type Controller struct {
	thresholds Thresholds
	primary    ModelClient
	maxTokens  int
}

// NewController builds a controller. The primary client is only used by the
// strip-and-rerun action.
func NewController(thresholds Thresholds, primary ModelClient, maxTokens int) *Controller {
	return &Controller{thresholds: thresholds, primary: primary, maxTokens: maxTokens}
}

// Level maps the divergence total onto a severity label using the base
// thresholds, independent of defense mode.
func (c *Controller) Level(total float64) model.DecisionLevel {
	switch {
	case total < c.thresholds.Low:
		return model.LevelLow
	case total < c.thresholds.High:
		return model.LevelMedium
	case total < c.thresholds.Critical:
		return model.LevelHigh
	}
	return model.LevelCritical
}

// Decide picks the defense action from the divergence total and the
// session's defense mode. Scaling the thresholds rather than the score keeps
// the action ordering monotonic in the score for every mode.
func (c *Controller) Decide(total float64, mode model.DefenseMode) model.DefenseAction {
	low, high, critical := c.thresholds.Low, c.thresholds.High, c.thresholds.Critical
	switch mode {
	case model.ModeStrict:
		low, high, critical = low*strictScale, high*strictScale, critical*strictScale
	case model.ModePassive:
		low, high, critical = low*passiveScale, high*passiveScale, critical*passiveScale
	}

	switch {
	case total < low:
		return model.ActionAllow
	case total < high:
		return model.ActionClarify
	case total < critical:
		return model.ActionStripRerun
	}
	return model.ActionContain
}

// Apply executes the chosen action and returns the final answer plus any
// stripped spans. Only strip_and_rerun touches the Primary model again: it
// strips the high-confidence spans from the user input, swaps the last user
// message for the cleaned text, and reruns under the same system prompt. An
// input that strips to nothing falls back to the original primary output.
func (c *Controller) Apply(
	ctx context.Context,
	action model.DefenseAction,
	userInput string,
	primaryOutput string,
	graph model.IntentGraph,
	messages []model.ChatMessage,
) (string, []string, error) {
	switch action {
	case model.ActionAllow:
		return primaryOutput, []string{}, nil
	case model.ActionClarify:
		return ClarifyMessage, []string{}, nil
	case model.ActionContain:
		return ContainmentMessage, []string{}, nil
	case model.ActionStripRerun:
		cleaned, spans := StripMaliciousSpans(userInput)
		if strings.TrimSpace(cleaned) == "" {
			return primaryOutput, spans, nil
		}
		msgs := messages
		if len(msgs) > 0 && msgs[len(msgs)-1].Role == string(model.RoleUser) {
			msgs = msgs[:len(msgs)-1]
		}
		msgs = append(append([]model.ChatMessage(nil), msgs...),
			model.ChatMessage{Role: string(model.RoleUser), Content: cleaned})

		rerun, err := c.primary.Complete(ctx, BuildSystemPrompt(graph), msgs, c.maxTokens)
		if err != nil {
			return "", nil, err
		}
		return rerun, spans, nil
	}
	return primaryOutput, []string{}, nil
}
