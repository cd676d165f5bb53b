package defense

import (
	"strings"

	"github.com/shieldllm/ileguard/pkg/model"
)

// Default action sets for freshly created sessions.
var (
	DefaultAllowedActions = []string{
		"read_code", "explain_vulnerability", "suggest_fix", "policy_check",
	}
	DefaultForbiddenActions = []string{
		"ignore_rules", "override_policy", "leak_system_prompt", "approve_insecure_code",
	}
)

// Trust decay amounts per violation class.
const (
	decayOverrideAttempt = 10
	decayObfuscation     = 15
	decayForbiddenIntent = 20
)

const previewMaxRunes = 50

// NewIntentGraph returns the default graph for a fresh session: code-review
// goal, default action sets, no history.
func NewIntentGraph() model.IntentGraph {
	return model.IntentGraph{
		Goal:             "code_review",
		AllowedActions:   append([]string(nil), DefaultAllowedActions...),
		ForbiddenActions: append([]string(nil), DefaultForbiddenActions...),
		Nodes:            []model.IntentNode{},
		Edges:            []model.IntentEdge{},
	}
}

// UpdateIntentGraph advances the per-session policy state by one turn.
// It deep-copies the prior graph (synthesizing defaults for a zero graph),
// scans the canonical text for override phrases, flags obfuscation signals,
// extracts a coarse intent, and appends exactly one history node. The
// returned trust decay is the caller's to apply: new trust is
// max(0, old - decay), so trust never recovers within a session.
func UpdateIntentGraph(prior model.IntentGraph, userText string, signals []string) (model.IntentGraph, []string, int) {
	graph := prior.Clone()
	if graph.Goal == "" {
		graph.Goal = "code_review"
	}
	if graph.AllowedActions == nil {
		graph.AllowedActions = append([]string(nil), DefaultAllowedActions...)
	}
	if graph.ForbiddenActions == nil {
		graph.ForbiddenActions = append([]string(nil), DefaultForbiddenActions...)
	}
	if graph.Nodes == nil {
		graph.Nodes = []model.IntentNode{}
	}
	if graph.Edges == nil {
		graph.Edges = []model.IntentEdge{}
	}

	violations := []string{}
	trustDecay := 0

	// Override scan: only the first matching phrase counts. A forbidden
	// marker node is appended once per phrase over the session's life.
	textLower := strings.ToLower(userText)
	for _, phrase := range activeLexicon().override {
		if !strings.Contains(textLower, phrase) {
			continue
		}
		slug := strings.ReplaceAll(phrase, " ", "_")
		violations = append(violations, "override_attempt_"+slug)
		trustDecay += decayOverrideAttempt

		marker := "forbidden_" + slug
		if !graph.HasNodeIntent(marker) {
			graph.Nodes = append(graph.Nodes, model.IntentNode{
				Turn:           len(graph.Nodes) + 1,
				Intent:         marker,
				RawTextPreview: previewText(userText),
				Signals:        append([]string(nil), signals...),
				Violations:     append([]string(nil), violations...),
			})
		}
		break
	}

	for _, s := range signals {
		if IsBase64Signal(s) {
			violations = append(violations, "obfuscation_attempt")
			trustDecay += decayObfuscation
			break
		}
	}

	intent := ExtractIntent(userText)
	graph.Nodes = append(graph.Nodes, model.IntentNode{
		Turn:           len(graph.Nodes) + 1,
		Intent:         intent,
		RawTextPreview: previewText(userText),
		Signals:        append([]string(nil), signals...),
		Suspicion:      minInt(trustDecay, 100),
		Violations:     append([]string(nil), violations...),
	})

	if graph.IsForbidden(intent) {
		violations = append(violations, "forbidden_intent_"+intent)
		trustDecay += decayForbiddenIntent
	}

	return graph, violations, trustDecay
}

// ExtractIntent maps user text to a coarse intent identifier via ordered
// keyword rules; the first matching rule wins.
func ExtractIntent(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "ignore") &&
		(strings.Contains(lower, "instruction") || strings.Contains(lower, "rule")):
		return "override_policy"
	case strings.Contains(lower, "system prompt") || strings.Contains(lower, "system instruction"):
		return "leak_system_prompt"
	case strings.Contains(lower, "eval(") || strings.Contains(lower, "exec("):
		return "rce_attempt"
	case strings.Contains(lower, "review") || strings.Contains(lower, "check"):
		return "read_code"
	case strings.Contains(lower, "explain"):
		return "explain_vulnerability"
	case strings.Contains(lower, "fix") || strings.Contains(lower, "solve"):
		return "suggest_fix"
	case strings.Contains(lower, "policy") || strings.Contains(lower, "compliance"):
		return "policy_check"
	}
	return "general_chat"
}

// previewText truncates to the first 50 runes, appending an ellipsis only
// when something was cut.
func previewText(text string) string {
	r := []rune(text)
	if len(r) > previewMaxRunes {
		return string(r[:previewMaxRunes]) + "..."
	}
	return text
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
