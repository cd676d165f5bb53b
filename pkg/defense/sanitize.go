package defense

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// SanitizeForShadow builds the shadow model's view of the user input:
// NFKC-normalized, zero-width stripped, with every injection phrase from the
// sanitize lexicon replaced by a space and whitespace collapsed. When
// sanitization would erase the whole message, the original text is returned
// instead so the shadow still sees something to answer.
func SanitizeForShadow(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	cleaned := norm.NFKC.String(text)
	cleaned = zeroWidthReplacer.Replace(cleaned)
	for _, re := range activeLexicon().sanitize {
		cleaned = re.ReplaceAllString(cleaned, " ")
	}
	cleaned = strings.TrimSpace(whitespaceRun.ReplaceAllString(cleaned, " "))
	if cleaned == "" {
		return text
	}
	return cleaned
}

// StripMaliciousSpans removes the high-confidence injection phrases from
// text and reports the literal substrings it removed. Used by the
// strip-and-rerun defense before the Primary retry. Stripping a fully
// malicious input yields an empty cleaned string; the controller falls back
// to the original primary output in that case rather than rerunning.
//
// Applying StripMaliciousSpans to its own cleaned output removes nothing.
func StripMaliciousSpans(text string) (cleaned string, strippedSpans []string) {
	strippedSpans = []string{}
	cleaned = text
	for _, re := range activeLexicon().malicious {
		for _, m := range re.FindAllString(cleaned, -1) {
			strippedSpans = append(strippedSpans, strings.TrimSpace(m))
		}
		cleaned = re.ReplaceAllString(cleaned, " ")
	}
	cleaned = strings.TrimSpace(whitespaceRun.ReplaceAllString(cleaned, " "))
	return cleaned, strippedSpans
}
