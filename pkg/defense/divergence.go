package defense

import (
	"math"
	"regexp"
	"strings"

	"github.com/shieldllm/ileguard/pkg/model"
)

// Sub-score weights for the combined divergence total.
const (
	weightSemanticDrift     = 0.4
	weightPolicyStress      = 0.4
	weightReasoningMismatch = 0.2
)

const (
	stressPerPhrase       = 0.15
	stressPerForbiddenHit = 0.20
	mismatchPerSection    = 0.20
	mismatchPerBullet     = 0.05
	bulletMismatchCeiling = 0.40
)

var (
	wordToken    = regexp.MustCompile(`\b\w+\b`)
	bulletLine   = regexp.MustCompile(`(?m)^\s*[-•*]\s+`)
	numberedLine = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
)

// DivergenceScores holds the three sub-scores and their weighted total, all
// in [0,1] and rounded to 4 decimals.
type DivergenceScores struct {
	SemanticDrift     float64 `json:"semantic_drift"`
	PolicyStress      float64 `json:"policy_stress"`
	ReasoningMismatch float64 `json:"reasoning_mismatch"`
	Total             float64 `json:"total"`
}

// ComputeDivergence compares the primary and shadow outputs along three axes:
//
//	semantic_drift:     1 - Jaccard over lowercased word tokens
//	policy_stress:      fixed lexicon hits plus forbidden-action mentions
//	                    in the primary output
//	reasoning_mismatch: section-presence differences plus bullet-count delta
//
// and combines them 0.4/0.4/0.2 into the clamped total.
func ComputeDivergence(primary, shadow string, graph model.IntentGraph) DivergenceScores {
	drift := jaccardDrift(tokenize(primary), tokenize(shadow))

	primaryLower := strings.ToLower(primary)
	stress := 0.0
	for _, phrase := range activeLexicon().stress {
		if strings.Contains(primaryLower, phrase) {
			stress += stressPerPhrase
		}
	}
	for _, forbidden := range graph.ForbiddenActions {
		if strings.Contains(primaryLower, strings.ReplaceAll(forbidden, "_", " ")) {
			stress += stressPerForbiddenHit
		}
	}
	stress = math.Min(stress, 1.0)

	pSections := sectionPresence(primary)
	sSections := sectionPresence(shadow)
	sectionMismatch := 0.0
	for i := range pSections {
		if pSections[i] != sSections[i] {
			sectionMismatch += mismatchPerSection
		}
	}
	bulletDiff := math.Abs(float64(bulletCount(primary) - bulletCount(shadow)))
	bulletMismatch := math.Min(bulletDiff*mismatchPerBullet, bulletMismatchCeiling)
	mismatch := math.Min(sectionMismatch+bulletMismatch, 1.0)

	total := drift*weightSemanticDrift + stress*weightPolicyStress + mismatch*weightReasoningMismatch
	total = math.Min(math.Max(total, 0.0), 1.0)

	return DivergenceScores{
		SemanticDrift:     round4(drift),
		PolicyStress:      round4(stress),
		ReasoningMismatch: round4(mismatch),
		Total:             round4(total),
	}
}

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, t := range wordToken.FindAllString(strings.ToLower(text), -1) {
		tokens[t] = struct{}{}
	}
	return tokens
}

// jaccardDrift returns 1 - Jaccard similarity: 0 means identical token sets,
// 1 means no overlap. Both empty counts as identical; exactly one empty as
// total drift.
func jaccardDrift(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 1.0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 1.0
	}
	return 1.0 - float64(inter)/float64(union)
}

// sectionPresence probes for the findings, fixes, and risk sections of the
// output contract, in that order. The heuristics are deliberately loose;
// only the primary/shadow difference matters.
func sectionPresence(text string) [3]bool {
	lower := strings.ToLower(text)
	return [3]bool{
		strings.Contains(lower, "finding") || strings.Contains(text, "•") || strings.Contains(text, "- "),
		strings.Contains(lower, "fix") || strings.Contains(lower, "solution"),
		strings.Contains(lower, "risk") || strings.Contains(lower, "low") ||
			strings.Contains(lower, "med") || strings.Contains(lower, "high"),
	}
}

// bulletCount counts bullet-marker lines, falling back to numbered lines
// when there are none.
func bulletCount(text string) int {
	n := len(bulletLine.FindAllString(text, -1))
	if n == 0 {
		n = len(numberedLine.FindAllString(text, -1))
	}
	return n
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
