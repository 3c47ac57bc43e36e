package aboutness

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// CurrentVersion is written to every generated row. Rows below it are
// regenerated by the next backfill.
const CurrentVersion = "1.0.0"

const (
	// MaxChars is the hard cap on a profile text, tag included.
	MaxChars = 500
	// TargetMinChars and TargetMaxChars bound the length asked of the model.
	TargetMinChars = 220
	TargetMaxChars = 420
)

var (
	// ErrInvalidGenerationOutput marks text that breaks the output contract.
	ErrInvalidGenerationOutput = errors.New("invalid generation output")
	// ErrBackfillInProgress is returned when a backfill is already running.
	ErrBackfillInProgress = errors.New("backfill already in progress")
)

// Axis names one of the two profiles.
type Axis string

const (
	Emotions Axis = "emotions"
	Moments  Axis = "moments"
)

// Confidence is the model's self-reported certainty.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

var (
	trailingTag  = regexp.MustCompile(`\[confidence:\s*(low|medium|high)\]$`)
	anyTag       = regexp.MustCompile(`(?i)\[\s*confidence\b[^\]]*\]?`)
	barePrefix   = regexp.MustCompile(`(?i)^confidence\s*:`)
	listMarker   = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+`)
	dangling     = regexp.MustCompile(`(?i)\s*confidence\s*:\s*(?:low|medium|high)?[\s.]*$`)
	leadingLabel = regexp.MustCompile(`(?i)^\s*confidence\s*:\s*(?:low|medium|high)?[\s.,;]*`)
)

// ValidationError explains why a text was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidGenerationOutput, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidGenerationOutput }

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks text against the output contract: non-empty, at most
// MaxChars, one paragraph without list markers, no leading "Confidence:"
// label, and exactly one trailing confidence tag.
func Validate(text string) error {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return invalid("empty")
	case utf8.RuneCountInString(text) > MaxChars:
		return invalid("%d characters exceeds %d", utf8.RuneCountInString(text), MaxChars)
	case barePrefix.MatchString(text):
		return invalid("starts with a bare confidence label")
	case strings.Contains(text, "\n\n"):
		return invalid("more than one paragraph")
	case listMarker.MatchString(text):
		return invalid("contains a list")
	case !trailingTag.MatchString(text):
		return invalid("missing or malformed trailing confidence tag")
	case len(anyTag.FindAllString(text, -1)) != 1:
		return invalid("more than one confidence tag")
	}
	if strings.TrimSpace(trailingTag.ReplaceAllString(text, "")) == "" {
		return invalid("confidence tag without text")
	}
	return nil
}

// Split separates a valid text into its body and confidence.
func Split(text string) (string, Confidence) {
	text = strings.TrimSpace(text)
	m := trailingTag.FindStringSubmatch(text)
	if m == nil {
		return text, ""
	}
	return strings.TrimSpace(strings.TrimSuffix(text, m[0])), Confidence(m[1])
}

// ForceValid salvages text that failed validation: tag fragments and list
// markers are dropped, paragraphs are joined, the body is truncated and a
// low confidence tag is appended. It returns "" when nothing is left.
func ForceValid(text string) string {
	body := leadingLabel.ReplaceAllString(strings.TrimSpace(text), "")
	body = listMarker.ReplaceAllString(body, "")
	body = anyTag.ReplaceAllString(body, " ")
	body = strings.Join(strings.Fields(body), " ")
	body = dangling.ReplaceAllString(body, "")
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}

	tag := " [confidence: " + string(ConfidenceLow) + "]"
	limit := MaxChars - utf8.RuneCountInString(tag)
	body = truncate(body, limit)
	return body + tag
}

// truncate cuts s to at most limit runes, preferring the last word boundary.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := string(runes[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:-")
}
