// Package validate rejects malformed claim submissions before the pipeline
// starts and sanitizes text that will be interpolated into LLM prompts.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MinClaimLength is the shortest acceptable claim text
	MinClaimLength = 3
	// MaxClaimLength bounds submissions to prevent abuse
	MaxClaimLength = 2000
)

// Error is an input validation failure. It is the only error class that
// blocks the pipeline; everything downstream degrades in place.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "invalid input: " + e.Reason
}

// injectionPatterns are common prompt-injection prefixes. Matches are
// replaced, not rejected, so a legitimate claim quoting one still verifies.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(previous|all|above)\s+instructions?`),
	regexp.MustCompile(`(?i)forget\s+(everything|all)`),
	regexp.MustCompile(`(?i)new\s+instructions?:`),
	regexp.MustCompile(`(?i)system\s*:`),
	regexp.MustCompile(`(?i)assistant\s*:`),
	regexp.MustCompile(`(?i)user\s*:`),
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// ClaimInput validates raw claim text and returns the sanitized form.
// Returns *Error when the input is malformed.
func ClaimInput(text string) (string, error) {
	text = strings.TrimSpace(text)

	if text == "" {
		return "", &Error{Reason: "claim text is required"}
	}
	// Length limits count characters, not bytes, so multibyte scripts get
	// the same budget as ASCII.
	n := utf8.RuneCountInString(text)
	if n < MinClaimLength {
		return "", &Error{Reason: fmt.Sprintf("claim is too short (minimum %d characters)", MinClaimLength)}
	}
	if n > MaxClaimLength {
		return "", &Error{Reason: fmt.Sprintf("claim exceeds maximum length of %d characters", MaxClaimLength)}
	}

	hasLetter := false
	for _, r := range text {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return "", &Error{Reason: "claim must contain text characters"}
	}

	return SanitizeClaimText(text), nil
}

// SanitizeClaimText makes user text safe for LLM prompts: strips control
// characters, collapses whitespace, filters injection prefixes, and escapes
// quotes so the text cannot break out of a JSON-shaped prompt.
func SanitizeClaimText(text string) string {
	if text == "" {
		return ""
	}
	if utf8.RuneCountInString(text) > MaxClaimLength {
		text = string([]rune(text)[:MaxClaimLength])
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' || r == ' ' {
			b.WriteRune(r)
		}
	}
	text = whitespaceRE.ReplaceAllString(b.String(), " ")

	for _, re := range injectionPatterns {
		text = re.ReplaceAllString(text, "[FILTERED]")
	}

	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, `"`, `\"`)

	return strings.TrimSpace(text)
}
