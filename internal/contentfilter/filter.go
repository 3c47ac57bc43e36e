// Package contentfilter classifies song text by explicitness, applies room
// content policy, finds radio edits, and scores how literally a message
// refers to a song title.
package contentfilter

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
)

// ErrContentAnalysis is logged when analysis fails internally. Callers never
// see it: the result degrades to Clean.
var ErrContentAnalysis = errors.New("content analysis failed")

// Severity orders content from clean to explicit.
type Severity int

const (
	Clean Severity = iota
	Mild
	Moderate
	Explicit
)

func (s Severity) String() string {
	switch s {
	case Clean:
		return "clean"
	case Mild:
		return "mild"
	case Moderate:
		return "moderate"
	case Explicit:
		return "explicit"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText renders the severity name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Category names the scan that produced a finding.
type Category string

const (
	CategoryLanguage Category = "explicit_language"
	CategorySexual   Category = "sexual_content"
	CategoryDrugs    Category = "drug_reference"
	CategoryViolence Category = "violent_content"
)

// Result is the classification of one text or song.
type Result struct {
	Severity   Severity   `json:"severity"`
	Reasons    []string   `json:"reasons,omitempty"`
	Categories []Category `json:"categories,omitempty"`
}

// merge folds o into r keeping the maximum severity and first-seen order of
// reasons and categories.
func (r *Result) merge(o Result) {
	if o.Severity > r.Severity {
		r.Severity = o.Severity
	}
	for _, reason := range o.Reasons {
		if !contains(r.Reasons, reason) {
			r.Reasons = append(r.Reasons, reason)
		}
	}
	for _, c := range o.Categories {
		if !contains(r.Categories, c) {
			r.Categories = append(r.Categories, c)
		}
	}
}

func contains[T comparable](s []T, v T) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// SongText is the analyzable text of a song. Lyrics are optional.
type SongText struct {
	Title  string
	Artist string
	Lyrics string
}

// RoomPolicy is the content policy of a room or user.
type RoomPolicy struct {
	AllowExplicit bool
}

// Filter classifies text. The zero value is usable; Strict additionally
// filters explicit songs from rooms that allow explicit content.
type Filter struct {
	Strict bool

	logger zerolog.Logger
	scan   func(string) Result
}

// New creates a filter.
func New(strict bool, logger zerolog.Logger) *Filter {
	return &Filter{
		Strict: strict,
		logger: logger.With().Str("component", "contentfilter").Logger(),
		scan:   scanText,
	}
}

// AnalyzeText classifies one text. Internal failures are logged and yield a
// Clean result.
func (f *Filter) AnalyzeText(text string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error().
				Err(fmt.Errorf("%w: %v", ErrContentAnalysis, r)).
				Int("text_len", len(text)).
				Msg("content analysis degraded to clean")
			res = Result{Severity: Clean}
		}
	}()

	scan := f.scan
	if scan == nil {
		scan = scanText
	}
	return scan(text)
}

// AnalyzeSong classifies title, artist and lyrics and returns the maximum.
func (f *Filter) AnalyzeSong(song SongText) Result {
	var res Result
	for _, text := range []string{song.Title, song.Artist, song.Lyrics} {
		if text == "" {
			continue
		}
		res.merge(f.AnalyzeText(text))
	}
	return res
}

// ShouldFilterForRoom reports whether a song with result res must be hidden
// from a room with the given policy.
func (f *Filter) ShouldFilterForRoom(res Result, policy RoomPolicy) bool {
	if !policy.AllowExplicit {
		return res.Severity >= Moderate
	}
	return f.Strict && res.Severity == Explicit
}

// scanText runs the four category scans over normalized text.
func scanText(text string) Result {
	var res Result
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return res
	}

	for _, tok := range tokens {
		if sev, ok := explicitWords[tok]; ok {
			res.merge(Result{
				Severity:   sev,
				Reasons:    []string{"explicit language: " + tok},
				Categories: []Category{CategoryLanguage},
			})
		}
	}

	joined := " " + strings.Join(tokens, " ") + " "
	scanPhrases(&res, joined, sexualPhrases, CategorySexual, "sexual content")
	scanPhrases(&res, joined, drugPhrases, CategoryDrugs, "drug reference")
	scanPhrases(&res, joined, violentPhrases, CategoryViolence, "violent content")
	return res
}

func scanPhrases(res *Result, joined string, phrases []string, cat Category, label string) {
	for _, p := range phrases {
		if strings.Contains(joined, " "+p+" ") {
			res.merge(Result{
				Severity:   Moderate,
				Reasons:    []string{label + ": " + p},
				Categories: []Category{cat},
			})
		}
	}
}

// tokenize lowercases text and splits on anything that is not a letter,
// digit or apostrophe. Apostrophes are then dropped so "fuckin'" and
// "fuckin" agree.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.NewReplacer("'", "", "’", "").Replace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// RadioEditResult is a censored title for a song.
type RadioEditResult struct {
	OriginalTitle string   `json:"original_title"`
	CleanTitle    string   `json:"clean_title"`
	AlternativeID string   `json:"alternative_id"`
	Replaced      []string `json:"replaced"`
}

// RadioEditSuffix is appended to a song id to name its radio edit.
const RadioEditSuffix = "-clean"

type replacement struct {
	re   *regexp.Regexp
	from string
	to   string
}

var radioEditRules = buildRadioEditRules()

// buildRadioEditRules orders multi-word overrides before single words and
// longer patterns before shorter ones.
func buildRadioEditRules() []replacement {
	var rules []replacement
	add := func(m map[string]string, bounded bool) {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if len(keys[i]) != len(keys[j]) {
				return len(keys[i]) > len(keys[j])
			}
			return keys[i] < keys[j]
		})
		for _, k := range keys {
			pattern := regexp.QuoteMeta(k)
			if bounded {
				pattern = `\b` + pattern + `\b`
			}
			rules = append(rules, replacement{re: regexp.MustCompile(`(?i)` + pattern), from: k, to: m[k]})
		}
	}
	add(radioEditOverrides, true)
	add(radioEditWords, false)
	return rules
}

// RadioEdit returns the censored title for songID. ok is false when the
// title contains nothing to censor.
func RadioEdit(songID, title string) (RadioEditResult, bool) {
	clean := title
	var replaced []string
	for _, rule := range radioEditRules {
		if !rule.re.MatchString(clean) {
			continue
		}
		clean = rule.re.ReplaceAllStringFunc(clean, func(m string) string {
			return matchCase(m, rule.to)
		})
		replaced = append(replaced, rule.from)
	}
	if len(replaced) == 0 {
		return RadioEditResult{}, false
	}
	return RadioEditResult{
		OriginalTitle: title,
		CleanTitle:    clean,
		AlternativeID: songID + RadioEditSuffix,
		Replaced:      replaced,
	}, true
}

// matchCase gives repl the capitalization style of orig.
func matchCase(orig, repl string) string {
	switch {
	case orig == strings.ToUpper(orig) && orig != strings.ToLower(orig):
		return strings.ToUpper(repl)
	case startsUpper(orig):
		return titleWords(repl, orig)
	default:
		return repl
	}
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

// titleWords capitalizes each word of repl whose counterpart in orig is
// capitalized; the first word follows orig's first word.
func titleWords(repl, orig string) string {
	ow := strings.Fields(orig)
	rw := strings.Fields(repl)
	for i := range rw {
		src := ow[min(i, len(ow)-1)]
		if startsUpper(src) {
			r := []rune(rw[i])
			r[0] = unicode.ToUpper(r[0])
			rw[i] = string(r)
		}
	}
	return strings.Join(rw, " ")
}
