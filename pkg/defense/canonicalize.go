// Package defense implements the per-turn dual-path reasoning pipeline:
// canonicalization, sanitization, intent-graph update, concurrent
// Primary/Shadow dispatch, divergence scoring, and defense application.
package defense

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Signals emitted by canonicalization. Base64 carries a trailing count.
const (
	SignalUnicodeNormalized = "unicode_normalization_applied"
	SignalZeroWidthRemoved  = "zero_width_chars_removed"
	signalBase64Prefix      = "base64_detected_"
)

// zeroWidthReplacer removes the zero-width characters commonly used to split
// trigger words past keyword filters.
var zeroWidthReplacer = strings.NewReplacer(
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\ufeff", "",
)

// base64Candidate matches maximal base64-alphabet runs of 20+ chars.
var base64Candidate = regexp.MustCompile(`[A-Za-z0-9+/=]{20,}`)

// Canonicalize normalizes text for analysis and reports what it changed.
// Steps, in order: NFKC normalization (converts mathematical/fullwidth/
// circled Unicode variants to ASCII equivalents), zero-width removal, and
// base64 run flagging. Base64 candidates are flagged, never decoded:
// decoding untrusted payloads is off the table.
//
// Canonicalize is idempotent after the first pass.
func Canonicalize(text string) (canonical string, signals []string) {
	normalized := norm.NFKC.String(text)
	if normalized != text {
		signals = append(signals, SignalUnicodeNormalized)
	}

	canonical = zeroWidthReplacer.Replace(normalized)
	if canonical != normalized {
		signals = append(signals, SignalZeroWidthRemoved)
	}

	count := 0
	for _, run := range base64Candidate.FindAllString(canonical, -1) {
		if len(run)%4 == 0 {
			count++
		}
	}
	if count > 0 {
		signals = append(signals, fmt.Sprintf("%scount_%d", signalBase64Prefix, count))
	}
	return canonical, signals
}

// IsBase64Signal reports whether a signal tag was emitted by the base64
// detector.
func IsBase64Signal(signal string) bool {
	return strings.Contains(signal, "base64_detected")
}
