package injection

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrUnknownViolation = errors.New("unknown violation")

// Violation is the way the last assistant reply broke character, if any.
type Violation string

const (
	NoViolation     Violation = ""
	FormatViolation Violation = "format_violation"
	CharacterDrift  Violation = "character_drift"
)

func (v Violation) Valid() bool {
	switch v {
	case NoViolation, FormatViolation, CharacterDrift:
		return true
	default:
		return false
	}
}

func ParseViolation(s string) (Violation, error) {
	v := Violation(strings.ToLower(strings.TrimSpace(s)))
	if v == "none" {
		return NoViolation, nil
	}
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownViolation, s)
	}
	return v, nil
}

var (
	bulletLineRe   = regexp.MustCompile(`(?m)^\s*[-*•]\s+`)
	numberedLineRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+`)
)

var formalWords = []string{
	"i recommend", "i suggest", "it is necessary", "you should",
	"рекомендую", "предлагаю", "следует", "необходимо",
}

// DetectViolation inspects the last assistant reply. Lists or numbered lines
// or more than two formal phrases count as a violation; a bullet list is a
// format violation, anything else is drift.
func DetectViolation(lastAssistant string) Violation {
	if strings.TrimSpace(lastAssistant) == "" {
		return NoViolation
	}
	bullets := bulletLineRe.MatchString(lastAssistant)
	numbered := numberedLineRe.MatchString(lastAssistant)

	lower := strings.ToLower(lastAssistant)
	formal := 0
	for _, w := range formalWords {
		if strings.Contains(lower, w) {
			formal++
		}
	}

	switch {
	case bullets:
		return FormatViolation
	case numbered || formal > 2:
		return CharacterDrift
	default:
		return NoViolation
	}
}
