package reranker

import (
	"errors"
	"fmt"
)

// Weights are the reranker's scoring weights. They need not sum to one;
// the final score is clamped instead.
type Weights struct {
	Semantic          float64 `json:"semantic"`
	Keyword           float64 `json:"keyword"`
	Popularity        float64 `json:"popularity"`
	Clarity           float64 `json:"clarity"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
}

// DefaultWeights returns the production weights.
func DefaultWeights() Weights {
	return Weights{
		Semantic:          0.45,
		Keyword:           0.30,
		Popularity:        0.15,
		Clarity:           0.10,
		RepetitionPenalty: 0.2,
	}
}

// Validate rejects negative weights.
func (w Weights) Validate() error {
	var errs []error
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"semantic", w.Semantic},
		{"keyword", w.Keyword},
		{"popularity", w.Popularity},
		{"clarity", w.Clarity},
		{"repetition_penalty", w.RepetitionPenalty},
	} {
		if f.v < 0 {
			errs = append(errs, fmt.Errorf("%s weight must not be negative, got %v", f.name, f.v))
		}
	}
	return errors.Join(errs...)
}

// WeightsUpdate is a partial update; nil fields are left unchanged.
type WeightsUpdate struct {
	Semantic          *float64 `json:"semantic,omitempty"`
	Keyword           *float64 `json:"keyword,omitempty"`
	Popularity        *float64 `json:"popularity,omitempty"`
	Clarity           *float64 `json:"clarity,omitempty"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`
}

// Apply returns w with u merged in.
func (u WeightsUpdate) Apply(w Weights) Weights {
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&w.Semantic, u.Semantic)
	set(&w.Keyword, u.Keyword)
	set(&w.Popularity, u.Popularity)
	set(&w.Clarity, u.Clarity)
	set(&w.RepetitionPenalty, u.RepetitionPenalty)
	return w
}

// Signals are raw per-signal scores for one candidate. The similarity
// pointers are nil when the corresponding leg did not run.
type Signals struct {
	Keyword    float64  `json:"keyword"`
	Semantic   float64  `json:"semantic"`
	Mood       float64  `json:"mood"`
	Entity     float64  `json:"entity"`
	MetaSim    *float64 `json:"meta_sim,omitempty"`
	EmotionSim *float64 `json:"emotion_sim,omitempty"`
	MomentSim  *float64 `json:"moment_sim,omitempty"`
	AboutScore *float64 `json:"about_score,omitempty"`
}

// Reason records which signal surfaced a candidate.
type Reason string

const (
	ReasonKeyword   Reason = "keyword"
	ReasonSemantic  Reason = "semantic"
	ReasonMood      Reason = "mood"
	ReasonEntity    Reason = "entity"
	ReasonAboutness Reason = "aboutness"
	ReasonRadioEdit Reason = "radio_edit"
)

// Breakdown is the normalized contribution of each term to Final.
type Breakdown struct {
	Semantic   float64 `json:"semantic"`
	Keyword    float64 `json:"keyword"`
	Popularity float64 `json:"popularity"`
	Clarity    float64 `json:"clarity"`
	Penalty    float64 `json:"penalty"`
	Final      float64 `json:"final"`
}

// Candidate is a song under consideration for one query.
type Candidate struct {
	SongID string `json:"song_id"`
	// OriginalID is the catalog id when SongID names a substitute such as a
	// radio edit.
	OriginalID string   `json:"original_id,omitempty"`
	Title      string   `json:"title"`
	Artist     string   `json:"artist"`
	Year       int      `json:"year,omitempty"`
	Decade     int      `json:"decade,omitempty"`
	Popularity int      `json:"popularity"`
	Tags       []string `json:"tags,omitempty"`
	Signals    Signals  `json:"signals"`

	// Clarity is the clarity signal in [0,1]; nil means neutral.
	Clarity *float64 `json:"clarity,omitempty"`

	Reasons []Reason  `json:"reasons,omitempty"`
	Score   Breakdown `json:"score"`
}

// AddReason appends r unless already present.
func (c *Candidate) AddReason(r Reason) {
	for _, x := range c.Reasons {
		if x == r {
			return
		}
	}
	c.Reasons = append(c.Reasons, r)
}

// decade returns the explicit decade, or derives it from the year.
func (c *Candidate) decade() int {
	if c.Decade != 0 {
		return c.Decade
	}
	if c.Year > 0 {
		return c.Year / 10 * 10
	}
	return 0
}

// Context carries per-query ranking state.
type Context struct {
	RecentSongs  []string `json:"recent_songs,omitempty"`
	AvoidDecades []int    `json:"avoid_decades,omitempty"`
	UserID       string   `json:"user_id,omitempty"`
	TimeOfDay    string   `json:"time_of_day,omitempty"`
}
