package contentfilter

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Clarity bonuses.
const (
	ClarityBoost   = 0.2
	ClarityPenalty = -0.2

	obscureMaxLen          = 100
	obscureMaxSpecialChars = 3
	obscureMaxWordLen      = 15
)

// ClarityAssessment explains how literally a message refers to a title.
type ClarityAssessment struct {
	ExactMatch   bool    `json:"exact_match"`
	CommonIdiom  bool    `json:"common_idiom"`
	Metaphorical bool    `json:"metaphorical"`
	Obscure      bool    `json:"obscure"`
	Bonus        float64 `json:"bonus"`
	Reason       string  `json:"reason,omitempty"`
}

// AssessClarity scores a keyword match of message against title. An exact
// phrase or a common idiom earns +0.2; otherwise a metaphorical or obscure
// title costs 0.2.
func AssessClarity(message, title string) ClarityAssessment {
	msg := normalizePhrase(message)
	t := normalizePhrase(title)

	var a ClarityAssessment
	if t != "" && msg != "" {
		pm, pt := " "+msg+" ", " "+t+" "
		a.ExactMatch = strings.Contains(pm, pt) || strings.Contains(pt, pm)
	}
	_, a.CommonIdiom = commonIdioms[t]
	_, a.Metaphorical = metaphoricalTitles[t]
	a.Obscure = isObscure(title)

	switch {
	case a.ExactMatch:
		a.Bonus, a.Reason = ClarityBoost, "exact phrase match"
	case a.CommonIdiom:
		a.Bonus, a.Reason = ClarityBoost, "common idiom"
	case a.Metaphorical:
		a.Bonus, a.Reason = ClarityPenalty, "metaphorical title"
	case a.Obscure:
		a.Bonus, a.Reason = ClarityPenalty, "obscure title"
	}
	return a
}

// ClaritySignal rebases a bonus onto the reranker's [0,1] clarity scale.
func ClaritySignal(bonus float64) float64 {
	return min(max(0.5+bonus, 0), 1)
}

// Signal returns the assessment as a reranker clarity signal.
func (a ClarityAssessment) Signal() float64 {
	return ClaritySignal(a.Bonus)
}

func isObscure(title string) bool {
	if utf8.RuneCountInString(title) > obscureMaxLen {
		return true
	}

	special := 0
	for _, r := range title {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			special++
		}
	}
	if special > obscureMaxSpecialChars {
		return true
	}

	for _, w := range strings.Fields(title) {
		if utf8.RuneCountInString(w) > obscureMaxWordLen {
			return true
		}
	}
	return false
}

// normalizePhrase lowercases, drops apostrophes, turns other punctuation
// into spaces and collapses whitespace. It must agree with phrase.Normalize.
func normalizePhrase(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '’' || r == '\'':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
