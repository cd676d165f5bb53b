package defense

import (
	"strings"
	"testing"

	"github.com/shieldllm/ileguard/pkg/model"
)

func TestBuildSystemPrompt(t *testing.T) {
	graph := NewIntentGraph()
	graph.Goal = "policy_enforcement"
	prompt := BuildSystemPrompt(graph)

	for _, want := range []string{
		"Intent-Locked Execution",
		"CURRENT GOAL: policy_enforcement",
		"ALLOWED ACTIONS:",
		"FORBIDDEN ACTIONS:",
		"- read_code",
		"- override_policy",
		"Risk (Low/Med/High)",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestBuildSystemPromptZeroGraph(t *testing.T) {
	prompt := BuildSystemPrompt(model.IntentGraph{})
	if !strings.Contains(prompt, "CURRENT GOAL: code_review") {
		t.Error("zero graph must fall back to default goal")
	}
	if !strings.Contains(prompt, "- leak_system_prompt") {
		t.Error("zero graph must fall back to default forbidden actions")
	}
}

func TestBuildSessionSummary(t *testing.T) {
	long := strings.Repeat("x", 250)
	tests := []struct {
		name     string
		messages []model.Message
		want     string
	}{
		{
			name:     "empty history",
			messages: nil,
			want:     "",
		},
		{
			name: "single message",
			messages: []model.Message{
				{Role: model.RoleUser, Content: "first question"},
			},
			want: "user: first question",
		},
		{
			name: "only last two survive",
			messages: []model.Message{
				{Role: model.RoleUser, Content: "dropped"},
				{Role: model.RoleUser, Content: "second"},
				{Role: model.RoleAssistant, Content: "third"},
			},
			want: "user: second\nassistant: third",
		},
		{
			name: "long content truncated",
			messages: []model.Message{
				{Role: model.RoleUser, Content: long},
			},
			want: "user: " + strings.Repeat("x", 200),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildSessionSummary(tt.messages); got != tt.want {
				t.Errorf("BuildSessionSummary = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildShadowInput(t *testing.T) {
	if got := BuildShadowInput("", "sanitized text"); got != "sanitized text" {
		t.Errorf("no summary: got %q", got)
	}
	got := BuildShadowInput("user: earlier", "sanitized text")
	want := "user: earlier\n\nUser request: sanitized text"
	if got != want {
		t.Errorf("with summary: got %q, want %q", got, want)
	}
}

func TestEnsureAnswerFormat(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantSame bool
	}{
		{
			name:     "complete answer untouched",
			in:       "Looks fine.\nFindings:\n- none\nFixes:\n- none\nRisk: Low",
			wantSame: true,
		},
		{
			name:     "empty stays empty",
			in:       "",
			wantSame: true,
		},
		{
			name: "bare answer gets stubs",
			in:   "everything seems acceptable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EnsureAnswerFormat(tt.in)
			if tt.wantSame {
				if got != tt.in {
					t.Errorf("expected unchanged, got %q", got)
				}
				return
			}
			lower := strings.ToLower(got)
			for _, section := range []string{"finding", "fix", "risk"} {
				if !strings.Contains(lower, section) {
					t.Errorf("stubbed answer missing %q section: %q", section, got)
				}
			}
			if !strings.HasPrefix(got, tt.in) {
				t.Errorf("original answer must be preserved as prefix: %q", got)
			}
		})
	}
}
