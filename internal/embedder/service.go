package embedder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/songmatch-mcp/internal/metrics"
	"github.com/dshills/songmatch-mcp/internal/vecmath"
)

// Factory builds a provider on first use.
type Factory func(ctx context.Context) (Embedder, error)

// State is a step of the fallback chain.
type State int

const (
	StatePrimary State = iota
	StateFallback
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePrimary:
		return "primary"
	case StateFallback:
		return "fallback"
	default:
		return "failed"
	}
}

// ServiceConfig wires a Service. Fallback is optional.
type ServiceConfig struct {
	PrimaryName  string
	Primary      Factory
	FallbackName string
	Fallback     Factory
	Logger       zerolog.Logger

	// Breaker settings; zero values use defaults.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Service is the embedding entry point used by retrieval and backfill. It
// initializes its providers lazily, exactly once per successful init, and
// walks primary -> fallback -> failed on every call.
type Service struct {
	cfg    ServiceConfig
	logger zerolog.Logger
	group  singleflight.Group

	mu       sync.RWMutex
	ready    bool
	primary  Embedder
	fallback Embedder
	breakers map[string]*gobreaker.CircuitBreaker[[][]float32]
}

// NewService creates an uninitialized service. No provider is contacted
// until the first call that needs one.
func NewService(cfg ServiceConfig) *Service {
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	return &Service{
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "embedder").Logger(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[[][]float32]),
	}
}

func (s *Service) init(ctx context.Context) error {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()
	if ready {
		return nil
	}

	_, err, _ := s.group.Do("init", func() (any, error) {
		s.mu.RLock()
		ready := s.ready
		s.mu.RUnlock()
		if ready {
			return nil, nil
		}

		primary, perr := s.build(ctx, s.cfg.PrimaryName, s.cfg.Primary)
		fallback, ferr := s.build(ctx, s.cfg.FallbackName, s.cfg.Fallback)
		if primary == nil && fallback == nil {
			if perr == nil {
				perr = ErrProviderUnavailable
			}
			name := s.cfg.PrimaryName
			if ferr != nil {
				name = s.cfg.FallbackName
				perr = errors.Join(perr, ferr)
			}
			return nil, &ProviderError{Provider: name, Err: fmt.Errorf("%w: %w", ErrProviderUnavailable, perr)}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.primary = primary
		s.fallback = fallback
		for _, e := range []Embedder{primary, fallback} {
			if e != nil {
				s.breakers[e.Provider()] = s.newBreaker(e.Provider())
			}
		}
		s.ready = true

		ev := s.logger.Info()
		if primary != nil {
			ev = ev.Str("primary", primary.Provider()).Int("dimensions", primary.Dimension())
		}
		if fallback != nil {
			ev = ev.Str("fallback", fallback.Provider())
		}
		ev.Msg("embedding providers initialized")
		return nil, nil
	})
	return err
}

// build constructs one provider. A nil factory is not an error.
// Availability is probed per call, not here.
func (s *Service) build(ctx context.Context, name string, f Factory) (Embedder, error) {
	if f == nil {
		return nil, nil
	}
	e, err := f(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider", name).Msg("embedding provider init failed")
		return nil, err
	}
	return e, nil
}

func (s *Service) newBreaker(name string) *gobreaker.CircuitBreaker[[][]float32] {
	failures := s.cfg.BreakerFailures
	return gobreaker.NewCircuitBreaker[[][]float32](gobreaker.Settings{
		Name:        "embedder-" + name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     s.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrInvalidInput)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			s.logger.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("embedding circuit breaker state change")
		},
	})
}

func (s *Service) providers() (primary, fallback Embedder) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.primary, s.fallback
}

func (s *Service) breaker(name string) *gobreaker.CircuitBreaker[[][]float32] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.breakers[name]
}

// Served names the provider and model that produced a set of vectors.
type Served struct {
	Provider string
	Model    string
}

// Embed returns one vector per text, in order. An empty input returns an
// empty result without initializing any provider.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, _, err := s.EmbedServed(ctx, texts)
	return vecs, err
}

// EmbedServed is Embed reporting which provider answered. After a fallback
// that is the fallback provider, not the configured primary.
func (s *Service) EmbedServed(ctx context.Context, texts []string) ([][]float32, Served, error) {
	if len(texts) == 0 {
		return [][]float32{}, Served{}, nil
	}
	if err := ValidateBatchRequest(BatchEmbeddingRequest{Texts: texts}); err != nil {
		return nil, Served{}, err
	}
	if err := s.init(ctx); err != nil {
		return nil, Served{}, err
	}

	primary, fallback := s.providers()

	var lastErr error
	lastProvider := s.cfg.PrimaryName
	state := StatePrimary
	for {
		switch state {
		case StatePrimary:
			if primary == nil {
				state = StateFallback
				continue
			}
			vecs, err := s.try(ctx, primary, texts)
			if err == nil {
				return vecs, Served{Provider: primary.Provider(), Model: primary.Model()}, nil
			}
			if ctx.Err() != nil {
				return nil, Served{}, ctx.Err()
			}
			lastErr, lastProvider = err, primary.Provider()
			s.logger.Warn().Err(err).Str("provider", lastProvider).Msg("primary embedding failed")
			state = StateFallback

		case StateFallback:
			if fallback == nil {
				state = StateFailed
				continue
			}
			vecs, err := s.try(ctx, fallback, texts)
			if err == nil {
				metrics.EmbeddingFallbacks.Inc()
				s.logger.Info().Str("provider", fallback.Provider()).Int("texts", len(texts)).Msg("served by fallback provider")
				return vecs, Served{Provider: fallback.Provider(), Model: fallback.Model()}, nil
			}
			if ctx.Err() != nil {
				return nil, Served{}, ctx.Err()
			}
			lastErr, lastProvider = err, fallback.Provider()
			s.logger.Error().Err(err).Str("provider", lastProvider).Msg("fallback embedding failed")
			state = StateFailed

		case StateFailed:
			if lastErr == nil {
				lastErr = ErrProviderUnavailable
			}
			return nil, Served{}, &ProviderError{
				Provider: lastProvider,
				Err:      fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr),
			}
		}
	}
}

// EmbedSingle embeds one text.
func (s *Service) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	vecs, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// try probes e and, when it is available, embeds texts through its breaker.
func (s *Service) try(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if err := e.Available(ctx); err != nil {
		metrics.EmbeddingRequests.WithLabelValues(e.Provider(), "unavailable").Inc()
		return nil, err
	}
	return s.call(ctx, e, texts)
}

func (s *Service) call(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	name := e.Provider()
	start := time.Now()
	defer metrics.ObserveSince(metrics.EmbeddingDuration.WithLabelValues(name), start)

	run := func() ([][]float32, error) {
		resp, err := e.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			return nil, err
		}
		return resp.Vectors(), nil
	}

	var vecs [][]float32
	var err error
	if cb := s.breaker(name); cb != nil {
		vecs, err = cb.Execute(run)
	} else {
		vecs, err = run()
	}

	outcome := "success"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "breaker_open"
		err = &ProviderError{Provider: name, Err: fmt.Errorf("%w: %w", ErrProviderUnavailable, err)}
	case err != nil:
		outcome = "error"
	}
	metrics.EmbeddingRequests.WithLabelValues(name, outcome).Inc()
	return vecs, err
}

// active returns the provider the next call would try first: the primary
// unless it is unavailable or its breaker is open.
func (s *Service) active(ctx context.Context) (Embedder, State) {
	primary, fallback := s.providers()
	if primary != nil {
		usable := primary.Available(ctx) == nil
		if cb := s.breaker(primary.Provider()); cb != nil && cb.State() == gobreaker.StateOpen {
			usable = false
		}
		if usable || fallback == nil {
			return primary, StatePrimary
		}
	}
	if fallback != nil {
		return fallback, StateFallback
	}
	return nil, StateFailed
}

// ActiveDimensions returns the dimension of the vectors the service is
// currently producing.
func (s *Service) ActiveDimensions(ctx context.Context) (int, error) {
	if err := s.init(ctx); err != nil {
		return 0, err
	}
	e, _ := s.active(ctx)
	if e == nil {
		return 0, ErrProviderUnavailable
	}
	return e.Dimension(), nil
}

// ActiveModel returns the provider and model of the active embedder.
func (s *Service) ActiveModel(ctx context.Context) (provider, model string, err error) {
	if err := s.init(ctx); err != nil {
		return "", "", err
	}
	e, _ := s.active(ctx)
	if e == nil {
		return "", "", ErrProviderUnavailable
	}
	return e.Provider(), e.Model(), nil
}

// AssertDimensions fails when stored vectors of dimension stored could not be
// compared with vectors from the active embedder.
func (s *Service) AssertDimensions(ctx context.Context, stored int) error {
	dim, err := s.ActiveDimensions(ctx)
	if err != nil {
		return err
	}
	if dim != stored {
		return fmt.Errorf("%w: embedder produces %d, store holds %d", vecmath.ErrDimensionMismatch, dim, stored)
	}
	return nil
}

// Status describes the service for diagnostics.
type Status struct {
	Provider       string            `json:"provider"`
	Model          string            `json:"model"`
	Dimensions     int               `json:"dimensions"`
	State          string            `json:"state"`
	Fallback       string            `json:"fallback,omitempty"`
	Breakers       map[string]string `json:"breakers"`
	ProbeMagnitude float64           `json:"probe_magnitude,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// Status reports the active provider. With probe set it embeds a short text
// end to end and records the vector magnitude.
func (s *Service) Status(ctx context.Context, probe bool) Status {
	st := Status{Breakers: map[string]string{}}
	if err := s.init(ctx); err != nil {
		st.State = StateFailed.String()
		st.Error = err.Error()
		return st
	}

	e, state := s.active(ctx)
	st.State = state.String()
	if e != nil {
		st.Provider, st.Model, st.Dimensions = e.Provider(), e.Model(), e.Dimension()
	}
	if _, fb := s.providers(); fb != nil {
		st.Fallback = fb.Provider()
	}

	s.mu.RLock()
	for name, cb := range s.breakers {
		st.Breakers[name] = cb.State().String()
	}
	s.mu.RUnlock()

	if probe {
		vec, err := s.EmbedSingle(ctx, "songmatch status probe")
		if err != nil {
			st.Error = err.Error()
		} else {
			st.ProbeMagnitude = vecmath.Magnitude(vec)
		}
	}
	return st
}

// Close releases provider resources.
func (s *Service) Close() error {
	primary, fallback := s.providers()
	var errs []error
	for _, e := range []Embedder{primary, fallback} {
		if e != nil {
			errs = append(errs, e.Close())
		}
	}
	return errors.Join(errs...)
}
