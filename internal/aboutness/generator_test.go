package aboutness

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM answers each axis from its own queue; the last answer repeats.
type scriptedLLM struct {
	mu      sync.Mutex
	answers map[Axis][]string
	err     error
	calls   map[Axis]int
	prompts []string
}

func newScriptedLLM(emotions, moments []string) *scriptedLLM {
	return &scriptedLLM{
		answers: map[Axis][]string{Emotions: emotions, Moments: moments},
		calls:   map[Axis]int{},
	}
}

func (s *scriptedLLM) Model() string { return "scripted" }

func (s *scriptedLLM) Generate(ctx context.Context, system, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	axis := Moments
	if strings.HasPrefix(system, axisInstructions[Emotions]) {
		axis = Emotions
	}
	s.prompts = append(s.prompts, prompt)
	queue := s.answers[axis]
	i := s.calls[axis]
	s.calls[axis]++
	if i >= len(queue) {
		i = len(queue) - 1
	}
	return queue[i], nil
}

func valid(conf Confidence) string {
	return goodBody + " [confidence: " + string(conf) + "]"
}

func TestGenerateValidFirstTry(t *testing.T) {
	llm := newScriptedLLM([]string{valid(ConfidenceHigh)}, []string{valid(ConfidenceMedium)})
	g := NewGenerator(llm, zerolog.Nop())

	p, err := g.Generate(context.Background(), "Someone Like You", "Adele")
	require.NoError(t, err)
	assert.Equal(t, OutcomeValid, p.Emotions.Outcome)
	assert.Equal(t, ConfidenceHigh, p.Emotions.Confidence)
	assert.Equal(t, ConfidenceMedium, p.Moments.Confidence)
	assert.Equal(t, 1, p.Emotions.Attempts)
	assert.False(t, p.Forced())
	assert.Equal(t, "scripted", p.Model)
	assert.Equal(t, "scripted", g.Model())
}

func TestGenerateRetriesOnce(t *testing.T) {
	llm := newScriptedLLM([]string{"Confidence: high. nope", valid(ConfidenceLow)}, []string{valid(ConfidenceHigh)})
	g := NewGenerator(llm, zerolog.Nop())

	res, err := g.GenerateAxis(context.Background(), Emotions, "Title", "Artist")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetried, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, ConfidenceLow, res.Confidence)
	require.Len(t, llm.prompts, 2)
	assert.Contains(t, llm.prompts[1], "rejected")
}

func TestGenerateForcesAfterSecondFailure(t *testing.T) {
	llm := newScriptedLLM([]string{goodBody, goodBody + "\n\nand more"}, nil)
	g := NewGenerator(llm, zerolog.Nop())

	res, err := g.GenerateAxis(context.Background(), Emotions, "Title", "Artist")
	require.NoError(t, err)
	assert.True(t, res.Forced())
	assert.Equal(t, ConfidenceLow, res.Confidence)
	assert.NoError(t, Validate(res.Text))
	assert.Equal(t, 2, res.Attempts)
}

func TestGenerateForceFallsBackToFirstAnswer(t *testing.T) {
	llm := newScriptedLLM([]string{goodBody, ""}, nil)
	g := NewGenerator(llm, zerolog.Nop())

	res, err := g.GenerateAxis(context.Background(), Emotions, "Title", "Artist")
	require.NoError(t, err)
	assert.True(t, res.Forced())
	assert.Contains(t, res.Text, "slow-burning ballad")
}

func TestGenerateEmptyAfterRetryFails(t *testing.T) {
	llm := newScriptedLLM([]string{""}, []string{valid(ConfidenceHigh)})
	g := NewGenerator(llm, zerolog.Nop())

	res, err := g.GenerateAxis(context.Background(), Emotions, "Title", "Artist")
	assert.ErrorIs(t, err, ErrInvalidGenerationOutput)
	assert.Equal(t, OutcomeFailed, res.Outcome)

	_, err = g.Generate(context.Background(), "Title", "Artist")
	assert.ErrorIs(t, err, ErrInvalidGenerationOutput)
}

func TestGenerateTransportError(t *testing.T) {
	llm := newScriptedLLM(nil, nil)
	llm.err = errors.New("connection refused")
	g := NewGenerator(llm, zerolog.Nop())

	_, err := g.GenerateAxis(context.Background(), Moments, "Title", "Artist")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidGenerationOutput)
	assert.Contains(t, err.Error(), "connection refused")
}
