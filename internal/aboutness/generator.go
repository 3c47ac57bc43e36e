package aboutness

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/songmatch-mcp/internal/metrics"
)

// Outcome labels how an axis text was obtained.
type Outcome string

const (
	OutcomeValid   Outcome = "valid"
	OutcomeRetried Outcome = "retried"
	OutcomeForced  Outcome = "forced"
	OutcomeFailed  Outcome = "failed"
)

// AxisResult is one generated profile text.
type AxisResult struct {
	Axis       Axis
	Text       string
	Confidence Confidence
	Outcome    Outcome
	Attempts   int
}

// Forced reports whether the text was salvaged by ForceValid.
func (r AxisResult) Forced() bool {
	return r.Outcome == OutcomeForced
}

// Profile holds both axes for a song.
type Profile struct {
	Emotions AxisResult
	Moments  AxisResult
	Model    string
}

// Forced reports whether either axis was forced.
func (p *Profile) Forced() bool {
	return p.Emotions.Forced() || p.Moments.Forced()
}

// Generator turns (title, artist) into a Profile.
type Generator struct {
	llm    TextGenerator
	logger zerolog.Logger
}

// NewGenerator creates a generator backed by llm.
func NewGenerator(llm TextGenerator, logger zerolog.Logger) *Generator {
	return &Generator{
		llm:    llm,
		logger: logger.With().Str("component", "aboutness").Logger(),
	}
}

// Model returns the underlying chat model name.
func (g *Generator) Model() string {
	return g.llm.Model()
}

// Generate produces both axes concurrently.
func (g *Generator) Generate(ctx context.Context, title, artist string) (*Profile, error) {
	p := &Profile{Model: g.llm.Model()}
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		p.Emotions, err = g.GenerateAxis(ctx, Emotions, title, artist)
		return err
	})
	eg.Go(func() (err error) {
		p.Moments, err = g.GenerateAxis(ctx, Moments, title, artist)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return p, nil
}

// GenerateAxis runs generate, validate, retry once, then force. Transport
// errors are returned as is; output that cannot be salvaged fails with
// ErrInvalidGenerationOutput.
func (g *Generator) GenerateAxis(ctx context.Context, axis Axis, title, artist string) (AxisResult, error) {
	res := AxisResult{Axis: axis}
	system := systemPrompt(axis)

	first, err := g.llm.Generate(ctx, system, userPrompt(title, artist))
	res.Attempts++
	if err != nil {
		return g.fail(res, fmt.Errorf("generate %s: %w", axis, err))
	}
	verr := Validate(first)
	if verr == nil {
		return g.accept(res, first, OutcomeValid), nil
	}
	g.logger.Debug().Str("axis", string(axis)).Str("title", title).Err(verr).Msg("retrying invalid output")

	second, err := g.llm.Generate(ctx, system, retryPrompt(title, artist, verr))
	res.Attempts++
	if err != nil {
		return g.fail(res, fmt.Errorf("generate %s retry: %w", axis, err))
	}
	if err := Validate(second); err == nil {
		return g.accept(res, second, OutcomeRetried), nil
	}

	forced := ForceValid(second)
	if forced == "" {
		forced = ForceValid(first)
	}
	if forced == "" {
		return g.fail(res, fmt.Errorf("%s for %q: %w", axis, title, ErrInvalidGenerationOutput))
	}
	g.logger.Warn().
		Str("axis", string(axis)).
		Str("title", title).
		Str("artist", artist).
		Msg("forced low-confidence aboutness text")
	return g.accept(res, forced, OutcomeForced), nil
}

func (g *Generator) accept(res AxisResult, text string, outcome Outcome) AxisResult {
	res.Text = text
	_, res.Confidence = Split(text)
	res.Outcome = outcome
	metrics.GenerationOutcomes.WithLabelValues(string(res.Axis), string(outcome)).Inc()
	return res
}

func (g *Generator) fail(res AxisResult, err error) (AxisResult, error) {
	res.Outcome = OutcomeFailed
	metrics.GenerationOutcomes.WithLabelValues(string(res.Axis), string(OutcomeFailed)).Inc()
	return res, err
}
