package contentfilter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssessClarity(t *testing.T) {
	tests := []struct {
		name    string
		message string
		title   string
		bonus   float64
		check   func(t *testing.T, a ClarityAssessment)
	}{
		{
			name:    "title inside message",
			message: "ok everyone, Shake It Off!",
			title:   "Shake It Off",
			bonus:   ClarityBoost,
			check:   func(t *testing.T, a ClarityAssessment) { assert.True(t, a.ExactMatch) },
		},
		{
			name:    "message inside title",
			message: "umbrella",
			title:   "Umbrella (feat. Jay-Z)",
			bonus:   ClarityBoost,
			check:   func(t *testing.T, a ClarityAssessment) { assert.True(t, a.ExactMatch) },
		},
		{
			name:    "idiom without exact match",
			message: "happy bday to my friend",
			title:   "Happy Birthday",
			bonus:   ClarityBoost,
			check:   func(t *testing.T, a ClarityAssessment) { assert.True(t, a.CommonIdiom) },
		},
		{
			name:    "exact match beats metaphor",
			message: "play wonderwall",
			title:   "Wonderwall",
			bonus:   ClarityBoost,
			check: func(t *testing.T, a ClarityAssessment) {
				assert.True(t, a.ExactMatch)
				assert.True(t, a.Metaphorical)
			},
		},
		{
			name:    "apostrophe in title, message with apostrophe",
			message: "play don't look back in anger",
			title:   "Don't Look Back in Anger",
			bonus:   ClarityBoost,
			check:   func(t *testing.T, a ClarityAssessment) { assert.True(t, a.ExactMatch) },
		},
		{
			name:    "apostrophe in title, message without",
			message: "dont look back in anger mate",
			title:   "Don’t Look Back in Anger",
			bonus:   ClarityBoost,
			check:   func(t *testing.T, a ClarityAssessment) { assert.True(t, a.ExactMatch) },
		},
		{
			name:    "idiom with apostrophe",
			message: "friday night energy",
			title:   "Don't Stop Me Now",
			bonus:   ClarityBoost,
			check:   func(t *testing.T, a ClarityAssessment) { assert.True(t, a.CommonIdiom) },
		},
		{
			name:    "metaphor",
			message: "it's pouring outside and I'm sad",
			title:   "Purple Rain",
			bonus:   ClarityPenalty,
			check:   func(t *testing.T, a ClarityAssessment) { assert.True(t, a.Metaphorical) },
		},
		{
			name:    "obscure by special characters",
			message: "something upbeat",
			title:   "#$%& (Remix) [Live]",
			bonus:   ClarityPenalty,
			check:   func(t *testing.T, a ClarityAssessment) { assert.True(t, a.Obscure) },
		},
		{
			name:    "obscure by long word",
			message: "something upbeat",
			title:   "Supercalifragilisticexpialidocious",
			bonus:   ClarityPenalty,
			check:   func(t *testing.T, a ClarityAssessment) { assert.True(t, a.Obscure) },
		},
		{
			name:    "obscure by length",
			message: "something upbeat",
			title:   strings.Repeat("la ", 40),
			bonus:   ClarityPenalty,
			check:   func(t *testing.T, a ClarityAssessment) { assert.True(t, a.Obscure) },
		},
		{
			name:    "neutral",
			message: "something for a road trip",
			title:   "Fast Car",
			bonus:   0,
			check:   func(t *testing.T, a ClarityAssessment) { assert.Empty(t, a.Reason) },
		},
		{
			name:    "word boundary",
			message: "that was helpful",
			title:   "Help",
			bonus:   ClarityBoost,
			check: func(t *testing.T, a ClarityAssessment) {
				assert.False(t, a.ExactMatch)
				assert.True(t, a.CommonIdiom)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AssessClarity(tt.message, tt.title)
			assert.InDelta(t, tt.bonus, a.Bonus, 1e-9)
			tt.check(t, a)
		})
	}
}

func TestClaritySignal(t *testing.T) {
	assert.InDelta(t, 0.7, ClaritySignal(ClarityBoost), 1e-9)
	assert.InDelta(t, 0.3, ClaritySignal(ClarityPenalty), 1e-9)
	assert.InDelta(t, 0.5, ClaritySignal(0), 1e-9)
	assert.Equal(t, 1.0, ClaritySignal(0.9))
	assert.Equal(t, 0.0, ClaritySignal(-0.9))

	assert.InDelta(t, 0.7, AssessClarity("hello", "Hello").Signal(), 1e-9)
}
