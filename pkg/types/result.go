package types

// SongMatch is one ranked song returned to a caller. Index 0 of a result
// list is the primary pick; the rest are alternates.
type SongMatch struct {
	// Identification
	Rank   int    `json:"rank"` // 1-based
	SongID string `json:"song_id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`

	// Catalog metadata
	Year       int      `json:"year,omitempty"`
	Decade     int      `json:"decade,omitempty"`
	Popularity int      `json:"popularity"`
	Tags       []string `json:"tags,omitempty"`

	// Scoring
	Score     float64        `json:"score"` // final reranker score in [0,1]
	Breakdown ScoreBreakdown `json:"breakdown"`
	Signals   SignalScores   `json:"signals"`
	Reasons   []string       `json:"reasons"`

	Clarity   *ClarityInfo   `json:"clarity,omitempty"`
	Content   ContentInfo    `json:"content"`
	Aboutness *AboutnessInfo `json:"aboutness,omitempty"`
}

// ScoreBreakdown is each weighted term of the final score.
type ScoreBreakdown struct {
	Semantic   float64 `json:"semantic"`
	Keyword    float64 `json:"keyword"`
	Popularity float64 `json:"popularity"`
	Clarity    float64 `json:"clarity"`
	Penalty    float64 `json:"penalty"`
}

// SignalScores are the raw signals before weighting. Similarities are nil
// when their retrieval leg did not run.
type SignalScores struct {
	Keyword    float64  `json:"keyword"`
	Semantic   float64  `json:"semantic"`
	Mood       float64  `json:"mood"`
	Entity     float64  `json:"entity"`
	MetaSim    *float64 `json:"meta_sim,omitempty"`
	EmotionSim *float64 `json:"emotion_sim,omitempty"`
	MomentSim  *float64 `json:"moment_sim,omitempty"`
	AboutScore *float64 `json:"about_score,omitempty"`
}

// ClarityInfo explains the clarity prior applied to a keyword match.
type ClarityInfo struct {
	Bonus  float64 `json:"bonus"`
	Reason string  `json:"reason,omitempty"`
}

// ContentInfo is the content classification of the song as returned.
type ContentInfo struct {
	Severity      string   `json:"severity"`
	Reasons       []string `json:"reasons,omitempty"`
	RadioEdit     bool     `json:"radio_edit,omitempty"`
	OriginalID    string   `json:"original_id,omitempty"`
	OriginalTitle string   `json:"original_title,omitempty"`
}

// AboutnessInfo carries the stored aboutness texts of a song.
type AboutnessInfo struct {
	EmotionsText       string `json:"emotions_text"`
	EmotionsConfidence string `json:"emotions_confidence"`
	MomentsText        string `json:"moments_text"`
	MomentsConfidence  string `json:"moments_confidence"`
	Version            string `json:"version"`
	Forced             bool   `json:"forced,omitempty"`
}

// Validate checks if the match is well formed
func (m *SongMatch) Validate() error {
	if m.SongID == "" {
		return ErrInvalidSongID
	}

	if m.Rank < 1 {
		return ErrInvalidRank
	}

	if m.Score < 0 || m.Score > 1 {
		return ErrInvalidScore
	}

	if m.Title == "" {
		return ErrEmptyTitle
	}

	if len(m.Reasons) == 0 {
		return ErrMissingReasons
	}

	return nil
}
