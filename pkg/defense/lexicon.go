package defense

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"
)

// LexiconConfig is the YAML-overridable phrase/pattern fixture set driving
// the sanitizer, the intent-graph override scan, and the policy-stress score.
// Keeping these table-driven allows tuning without touching orchestration.
type LexiconConfig struct {
	// SanitizePatterns are regexes removed from the shadow-path view.
	SanitizePatterns []string `yaml:"sanitize_patterns"`

	// MaliciousPatterns is the smaller high-confidence set removed by
	// strip-and-rerun. Matched literals are surfaced as stripped spans.
	MaliciousPatterns []string `yaml:"malicious_patterns"`

	// OverridePhrases are plain lowercase substrings scanned by the
	// intent-graph updater.
	OverridePhrases []string `yaml:"override_phrases"`

	// StressPhrases are plain lowercase substrings scored by the
	// policy-stress divergence sub-score (+0.15 each).
	StressPhrases []string `yaml:"stress_phrases"`
}

// lexicon is the compiled, ready-to-match form.
type lexicon struct {
	sanitize  []*regexp.Regexp
	malicious []*regexp.Regexp
	override  []string
	stress    []string
}

var (
	loadedLexicon *lexicon
	lexiconMu     sync.RWMutex
)

// defaultSanitizePatterns covers the injection-phrase families removed for
// the shadow path: instruction override, persona switching, policy bypass,
// insecure approval, prompt exfiltration, and defense toggling.
var defaultSanitizePatterns = []string{
	`(?i)\bignore\s+(?:all\s+)?(?:previous|prior|above|rules?)\s*(?:instructions?)?\b`,
	`(?i)\bdisregard\s+(?:all\s+)?(?:previous|prior|rules?)\s*(?:instructions?)?\b`,
	`(?i)\bact\s+as\s+(?:a\s+)?system\b`,
	`(?i)\byou\s+are\s+now\s+[^.]*\.?`,
	`(?i)\bbypass\s+(?:security|rules?|instructions?)\b`,
	`(?i)\boverride\s+(?:previous|prior|rules?|instructions?)\b`,
	`(?i)\bapprove\s+anyway\b`,
	`(?i)\bapprove\s+without\s+review\b`,
	`(?i)\bforget\s+(?:everything|all)\s+(?:above|prior)\b`,
	`(?i)\bshow\s+(?:me\s+)?(?:the\s+)?system\s+prompt\b`,
	`(?i)\breveal\s+(?:the\s+)?(?:system\s+)?(?:prompt|instructions?)\b`,
	`(?i)\bdisable\s+(?:all\s+)?defenses?\b`,
}

// defaultMaliciousPatterns is the high-confidence subset used by
// strip-and-rerun. Each match is recorded literally as a stripped span.
var defaultMaliciousPatterns = []string{
	`(?i)\bignore\s+(?:all\s+)?(?:previous|prior|above)\s+instructions?\b`,
	`(?i)\bdisregard\s+(?:all\s+)?(?:previous|prior)\s+instructions?\b`,
	`(?i)\bforget\s+(?:everything|all)\s+(?:above|prior)\b`,
	`(?i)\bshow\s+(?:me\s+)?(?:the\s+)?system\s+prompt\b`,
	`(?i)\breveal\s+(?:the\s+)?(?:system\s+)?(?:prompt|instructions?)\b`,
	`(?i)\byou\s+are\s+now\s+[^.]*\.?`,
}

// defaultOverridePhrases are scanned case-insensitively against canonical
// input; the first hit flags an override attempt.
var defaultOverridePhrases = []string{
	"ignore", "bypass", "system prompt", "act as system",
	"override", "disregard", "forget previous", "reveal prompt",
}

// defaultStressPhrases each add 0.15 to policy stress when present in the
// primary output.
var defaultStressPhrases = []string{
	"password", "secret", "key", "token", "system prompt",
	"ignore previous", "hacked", "pwned", "override", "bypass",
}

func compileLexicon(cfg LexiconConfig) (*lexicon, error) {
	lx := &lexicon{
		override: cfg.OverridePhrases,
		stress:   cfg.StressPhrases,
	}
	for _, p := range cfg.SanitizePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("bad sanitize pattern %q: %w", p, err)
		}
		lx.sanitize = append(lx.sanitize, re)
	}
	for _, p := range cfg.MaliciousPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("bad malicious pattern %q: %w", p, err)
		}
		lx.malicious = append(lx.malicious, re)
	}
	return lx, nil
}

var defaultLexicon = func() *lexicon {
	lx, err := compileLexicon(LexiconConfig{
		SanitizePatterns:  defaultSanitizePatterns,
		MaliciousPatterns: defaultMaliciousPatterns,
		OverridePhrases:   defaultOverridePhrases,
		StressPhrases:     defaultStressPhrases,
	})
	if err != nil {
		panic(err)
	}
	return lx
}()

// LoadLexicon loads lexicon overrides from defense_lexicon.yaml in configDir.
// A missing file is not an error: the hardcoded defaults stay active, so
// deployments need no config files to get full coverage. Sections omitted
// from the YAML keep their defaults.
func LoadLexicon(configDir string) error {
	path := filepath.Join(configDir, "defense_lexicon.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read lexicon file: %w", err)
	}

	var cfg LexiconConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse lexicon file: %w", err)
	}
	if len(cfg.SanitizePatterns) == 0 {
		cfg.SanitizePatterns = defaultSanitizePatterns
	}
	if len(cfg.MaliciousPatterns) == 0 {
		cfg.MaliciousPatterns = defaultMaliciousPatterns
	}
	if len(cfg.OverridePhrases) == 0 {
		cfg.OverridePhrases = defaultOverridePhrases
	}
	if len(cfg.StressPhrases) == 0 {
		cfg.StressPhrases = defaultStressPhrases
	}

	lx, err := compileLexicon(cfg)
	if err != nil {
		return err
	}

	lexiconMu.Lock()
	loadedLexicon = lx
	lexiconMu.Unlock()
	return nil
}

// ResetLexicon restores the hardcoded defaults. Primarily for tests.
func ResetLexicon() {
	lexiconMu.Lock()
	loadedLexicon = nil
	lexiconMu.Unlock()
}

// activeLexicon returns the loaded lexicon, or the defaults when none loaded.
func activeLexicon() *lexicon {
	lexiconMu.RLock()
	defer lexiconMu.RUnlock()
	if loadedLexicon != nil {
		return loadedLexicon
	}
	return defaultLexicon
}
