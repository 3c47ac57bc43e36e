package searcher

import (
	"strings"

	"github.com/dshills/songmatch-mcp/internal/phrase"
)

// moodLexicon maps message words to the catalog mood tags they evoke.
var moodLexicon = map[string][]string{
	"happy":      {"happy", "upbeat"},
	"joy":        {"happy", "upbeat"},
	"excited":    {"upbeat", "energetic"},
	"celebrate":  {"party", "happy"},
	"party":      {"party", "dance"},
	"dance":      {"dance", "party"},
	"dancing":    {"dance", "party"},
	"sad":        {"sad", "melancholy"},
	"cry":        {"sad", "melancholy"},
	"crying":     {"sad", "melancholy"},
	"lonely":     {"sad", "melancholy"},
	"heartbreak": {"sad", "breakup"},
	"breakup":    {"breakup", "sad"},
	"miss":       {"nostalgic", "sad"},
	"remember":   {"nostalgic"},
	"nostalgia":  {"nostalgic"},
	"love":       {"romantic", "love"},
	"romantic":   {"romantic", "love"},
	"date":       {"romantic"},
	"angry":      {"angry", "aggressive"},
	"mad":        {"angry"},
	"furious":    {"angry", "aggressive"},
	"chill":      {"chill", "relaxed"},
	"relax":      {"chill", "relaxed"},
	"relaxing":   {"chill", "relaxed"},
	"calm":       {"chill", "calm"},
	"sleep":      {"calm", "chill"},
	"tired":      {"calm", "mellow"},
	"workout":    {"energetic", "motivational"},
	"gym":        {"energetic", "motivational"},
	"run":        {"energetic"},
	"running":    {"energetic"},
	"pumped":     {"energetic", "motivational"},
	"motivated":  {"motivational"},
	"focus":      {"focus", "instrumental"},
	"study":      {"focus", "instrumental"},
	"summer":     {"summer", "upbeat"},
	"rain":       {"melancholy", "rainy"},
	"rainy":      {"melancholy", "rainy"},
	"night":      {"night"},
	"drive":      {"driving", "road trip"},
	"driving":    {"driving", "road trip"},
	"roadtrip":   {"road trip", "driving"},
}

// messageMoods returns the distinct mood tags evoked by a normalized message.
func messageMoods(normMessage string) map[string]struct{} {
	moods := make(map[string]struct{})
	for _, w := range strings.Fields(normMessage) {
		for _, m := range moodLexicon[w] {
			moods[m] = struct{}{}
		}
	}
	return moods
}

// moodScore is the share of the message's moods that the song's tags carry.
func moodScore(moods map[string]struct{}, tags []string) float64 {
	if len(moods) == 0 || len(tags) == 0 {
		return 0
	}
	hit := 0
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := moods[t]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(moods))
}

// entityScore is 1 when the message names the song's artist or title.
func entityScore(normMessage, artist, title string) float64 {
	for _, name := range []string{artist, title} {
		n := phrase.Normalize(name)
		// single short words ("Yes", "Go") match too much chat text
		if len(n) < 4 && !strings.Contains(n, " ") {
			continue
		}
		if phrase.ContainsPhrase(normMessage, n) {
			return 1
		}
	}
	return 0
}
