package searcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/songmatch-mcp/internal/config"
	"github.com/dshills/songmatch-mcp/internal/contentfilter"
	"github.com/dshills/songmatch-mcp/internal/metrics"
	"github.com/dshills/songmatch-mcp/internal/phrase"
	"github.com/dshills/songmatch-mcp/internal/reranker"
	"github.com/dshills/songmatch-mcp/internal/storage"
	"github.com/dshills/songmatch-mcp/internal/vecmath"
	"github.com/dshills/songmatch-mcp/pkg/types"
)

// Mode names the retrieval path a match took.
type Mode string

const (
	ModeThreeSignal Mode = "three_signal" // metadata + emotion KNN, moments rerank
	ModeTwoSignal   Mode = "two_signal"   // metadata KNN + keyword
	ModeLexical     Mode = "lexical"      // keyword only, embedding unavailable
)

const (
	DefaultMetadataK = 50
	DefaultEmotionK  = 50
	DefaultKeywordK  = 50

	// moodScale caps how far a mood match alone can lift the semantic signal.
	moodScale = 0.6
)

// ErrEmptyMessage is returned for a blank message.
var ErrEmptyMessage = errors.New("message is empty")

// Embedder embeds the query. embedder.Service satisfies it.
type Embedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// KeywordIndex produces the keyword leg. phrase.Index satisfies it.
type KeywordIndex interface {
	Search(ctx context.Context, message string, k int) ([]phrase.Hit, error)
}

// Config tunes retrieval.
type Config struct {
	ThreeSignal   bool
	MetaWeight    float64
	EmotionWeight float64
	MomentWeight  float64
	MetadataK     int
	EmotionK      int
	KeywordK      int
}

// DefaultConfig is the two-signal configuration with three-signal weights
// preset.
func DefaultConfig() Config {
	return Config{
		MetaWeight:    0.2,
		EmotionWeight: 0.5,
		MomentWeight:  0.3,
		MetadataK:     DefaultMetadataK,
		EmotionK:      DefaultEmotionK,
		KeywordK:      DefaultKeywordK,
	}
}

// ConfigFrom maps the three_signal section onto a Config.
func ConfigFrom(ts config.ThreeSignalConfig) Config {
	c := DefaultConfig()
	c.ThreeSignal = ts.Enabled
	c.MetaWeight = ts.MetaWeight
	c.EmotionWeight = ts.EmotionWeight
	c.MomentWeight = ts.MomentWeight
	if ts.MetadataK > 0 {
		c.MetadataK = ts.MetadataK
	}
	if ts.EmotionK > 0 {
		c.EmotionK = ts.EmotionK
	}
	return c
}

// MatchRequest is one chat message to answer with songs.
type MatchRequest struct {
	Message string
	Room    contentfilter.RoomPolicy
	Context *reranker.Context
	Limit   int // 1..reranker.MaxResults; 0 means MaxResults
}

// MatchResponse is the ranked answer. Matches[0] is the primary pick.
type MatchResponse struct {
	RequestID  string            `json:"request_id"`
	Mode       Mode              `json:"mode"`
	Matches    []types.SongMatch `json:"matches"`
	Candidates int               `json:"candidates"`
	Filtered   int               `json:"filtered"`
	Degraded   []string          `json:"degraded,omitempty"`
	Duration   time.Duration     `json:"duration"`
}

// Searcher answers match requests. It holds no per-query state and is safe
// for concurrent use.
type Searcher struct {
	store    storage.Storage
	embedder Embedder
	keywords KeywordIndex
	filter   *contentfilter.Filter
	ranker   *reranker.Reranker
	cfg      Config
	logger   zerolog.Logger
}

// New creates a Searcher. keywords may be nil, which disables the keyword leg.
func New(store storage.Storage, emb Embedder, keywords KeywordIndex, filter *contentfilter.Filter,
	ranker *reranker.Reranker, cfg Config, logger zerolog.Logger) *Searcher {
	if cfg.MetadataK <= 0 {
		cfg.MetadataK = DefaultMetadataK
	}
	if cfg.EmotionK <= 0 {
		cfg.EmotionK = DefaultEmotionK
	}
	if cfg.KeywordK <= 0 {
		cfg.KeywordK = DefaultKeywordK
	}
	return &Searcher{
		store:    store,
		embedder: emb,
		keywords: keywords,
		filter:   filter,
		ranker:   ranker,
		cfg:      cfg,
		logger:   logger.With().Str("component", "searcher").Logger(),
	}
}

// Ranker exposes the reranker for weight updates.
func (s *Searcher) Ranker() *reranker.Reranker {
	return s.ranker
}

// matchDetail is presentation data kept beside a ranked candidate.
type matchDetail struct {
	content types.ContentInfo
	clarity *contentfilter.ClarityAssessment
}

// songID returns the catalog id behind a possibly radio-edited id.
func (d matchDetail) songID(id string) string {
	if d.content.RadioEdit {
		return d.content.OriginalID
	}
	return id
}

// candidate accumulates leg results for one song.
type candidate struct {
	id         string
	order      int
	metaSim    *float64
	emotionSim *float64
	keyword    *phrase.Hit
}

// Match embeds the message once, runs the retrieval legs concurrently,
// unions their candidates and reranks only that union. Scoring-signal
// failures degrade the response; only Song Store failures are returned.
func (s *Searcher) Match(ctx context.Context, req MatchRequest) (*MatchResponse, error) {
	start := time.Now()
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	limit := req.Limit
	if limit <= 0 || limit > reranker.MaxResults {
		limit = reranker.MaxResults
	}

	resp := &MatchResponse{RequestID: uuid.NewString()}
	log := s.logger.With().Str("request_id", resp.RequestID).Logger()

	query, err := s.embedder.EmbedSingle(ctx, message)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Msg("query embedding failed, matching lexically")
		resp.degrade("semantic")
		query = nil
	}
	if query != nil {
		stored, err := s.store.VectorDimensions(ctx)
		if err != nil {
			return nil, fmt.Errorf("load vector dimensions: %w", err)
		}
		if len(stored) > 0 && !slices.Contains(stored, len(query)) {
			log.Warn().
				Int("query_dimensions", len(query)).
				Ints("stored_dimensions", stored).
				Msg("query vector does not match the catalog, matching lexically")
			resp.degrade("semantic")
			query = nil
		}
	}

	resp.Mode = ModeTwoSignal
	switch {
	case query == nil:
		resp.Mode = ModeLexical
	case s.cfg.ThreeSignal:
		resp.Mode = ModeThreeSignal
	}

	var (
		metaHits      []storage.VectorResult
		emotionHits   []storage.VectorResult
		keywordHits   []phrase.Hit
		keywordFailed bool
	)
	g, gctx := errgroup.WithContext(ctx)
	if query != nil {
		g.Go(func() error {
			hits, err := s.store.SearchMetadata(gctx, query, s.cfg.MetadataK)
			if err != nil {
				return fmt.Errorf("metadata search: %w", err)
			}
			metaHits = hits
			return nil
		})
	}
	if resp.Mode == ModeThreeSignal {
		g.Go(func() error {
			hits, err := s.store.SearchEmotions(gctx, query, s.cfg.EmotionK)
			if err != nil {
				return fmt.Errorf("emotion search: %w", err)
			}
			emotionHits = hits
			return nil
		})
	}
	if s.keywords != nil {
		g.Go(func() error {
			hits, err := s.keywords.Search(gctx, message, s.cfg.KeywordK)
			if err != nil {
				if gctx.Err() == nil {
					log.Warn().Err(err).Msg("keyword search failed")
				}
				keywordFailed = true
				return nil
			}
			keywordHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if keywordFailed {
		resp.degrade("keyword")
	}

	cands, ids := union(metaHits, emotionHits, keywordHits)
	resp.Candidates = len(ids)
	if len(ids) == 0 {
		return s.finish(resp, start, log), nil
	}

	songs, err := s.store.GetSongs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	var moments map[string][]float32
	if resp.Mode == ModeThreeSignal {
		moments, err = s.store.MomentVectors(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load moment vectors: %w", err)
		}
	}

	normMessage := phrase.Normalize(message)
	moods := messageMoods(normMessage)

	ranked := make([]reranker.Candidate, 0, len(ids))
	details := make(map[string]matchDetail, len(ids))
	momentsSkipped := 0
	for _, id := range ids {
		song, ok := songs[id]
		if !ok {
			continue
		}
		rc, clarity, skipped := s.buildCandidate(cands[id], song, query, moments, normMessage, moods, resp.Mode, log)
		if skipped {
			momentsSkipped++
		}

		info, keep := s.applyContentPolicy(&rc, song, req.Room)
		if !keep {
			resp.Filtered++
			continue
		}
		details[rc.SongID] = matchDetail{content: info, clarity: clarity}
		ranked = append(ranked, rc)
	}

	if momentsSkipped > 0 {
		resp.degrade("moments")
	}

	ranked = s.ranker.Rank(ranked, message, req.Context)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	var about map[string]*storage.Aboutness
	if resp.Mode == ModeThreeSignal && len(ranked) > 0 {
		songIDs := make([]string, len(ranked))
		for i, rc := range ranked {
			songIDs[i] = details[rc.SongID].songID(rc.SongID)
		}
		about, err = s.store.GetAboutnessBatch(ctx, songIDs)
		if err != nil {
			log.Warn().Err(err).Msg("aboutness lookup failed")
			resp.degrade("aboutness_text")
		}
	}

	resp.Matches = make([]types.SongMatch, len(ranked))
	for i, rc := range ranked {
		d := details[rc.SongID]
		resp.Matches[i] = toSongMatch(i+1, rc, d, about[d.songID(rc.SongID)])
	}
	return s.finish(resp, start, log), nil
}

func (r *MatchResponse) degrade(signal string) {
	r.Degraded = append(r.Degraded, signal)
	metrics.MatchDegraded.WithLabelValues(signal).Inc()
}

func (s *Searcher) finish(resp *MatchResponse, start time.Time, log zerolog.Logger) *MatchResponse {
	if resp.Matches == nil {
		resp.Matches = []types.SongMatch{}
	}
	resp.Duration = time.Since(start)
	metrics.MatchDuration.WithLabelValues(string(resp.Mode)).Observe(resp.Duration.Seconds())
	log.Debug().
		Str("mode", string(resp.Mode)).
		Int("candidates", resp.Candidates).
		Int("filtered", resp.Filtered).
		Int("matches", len(resp.Matches)).
		Dur("duration", resp.Duration).
		Msg("match complete")
	return resp
}

// union merges the legs in first-seen order: metadata, emotion, keyword. A
// song found by one leg only keeps nil for the others.
func union(meta, emotion []storage.VectorResult, keyword []phrase.Hit) (map[string]*candidate, []string) {
	cands := make(map[string]*candidate)
	var ids []string
	get := func(id string) *candidate {
		c, ok := cands[id]
		if !ok {
			c = &candidate{id: id, order: len(ids)}
			cands[id] = c
			ids = append(ids, id)
		}
		return c
	}
	for _, h := range meta {
		sim := h.Similarity
		get(h.SongID).metaSim = &sim
	}
	for _, h := range emotion {
		sim := h.Similarity
		get(h.SongID).emotionSim = &sim
	}
	for i := range keyword {
		get(keyword[i].SongID).keyword = &keyword[i]
	}
	return cands, ids
}

func (s *Searcher) buildCandidate(c *candidate, song *storage.Song, query []float32,
	moments map[string][]float32, normMessage string, moods map[string]struct{},
	mode Mode, log zerolog.Logger) (reranker.Candidate, *contentfilter.ClarityAssessment, bool) {

	rc := reranker.Candidate{
		SongID:     song.ID,
		Title:      song.Title,
		Artist:     song.Artist,
		Year:       song.Year,
		Decade:     song.Decade,
		Popularity: song.Popularity,
		Tags:       song.Tags,
	}

	momentSkipped := false
	metaSim := deref(c.metaSim)
	semantic := metaSim
	if mode != ModeLexical {
		rc.Signals.MetaSim = &metaSim
	}
	if c.metaSim != nil {
		rc.AddReason(reranker.ReasonSemantic)
	}

	if mode == ModeThreeSignal {
		emotionSim := deref(c.emotionSim)
		momentSim := 0.0
		if mv, ok := moments[song.ID]; ok {
			sim, err := vecmath.CosineSimilarity(query, mv)
			if err != nil {
				log.Warn().Err(err).
					Str("song_id", song.ID).
					Int("query_dimensions", len(query)).
					Int("moment_dimensions", len(mv)).
					Msg("moment vector skipped")
				momentSkipped = true
			} else {
				momentSim = sim
			}
		}
		rc.Signals.EmotionSim = &emotionSim
		rc.Signals.MomentSim = &momentSim
		semantic = s.cfg.MetaWeight*metaSim + s.cfg.EmotionWeight*emotionSim + s.cfg.MomentWeight*momentSim
		aboutScore := semantic
		rc.Signals.AboutScore = &aboutScore
		if c.emotionSim != nil || momentSim > 0 {
			rc.AddReason(reranker.ReasonAboutness)
		}
	}

	keyword := 0.0
	var clarity *contentfilter.ClarityAssessment
	if c.keyword != nil {
		keyword = c.keyword.Score
		rc.AddReason(reranker.ReasonKeyword)
		a := contentfilter.AssessClarity(normMessage, song.Title)
		signal := a.Signal()
		rc.Clarity = &signal
		clarity = &a
	}

	mood := moodScore(moods, song.Tags)
	if mood > 0 {
		rc.AddReason(reranker.ReasonMood)
		semantic = max(semantic, mood*moodScale)
	}
	entity := entityScore(normMessage, song.Artist, song.Title)
	if entity > 0 {
		rc.AddReason(reranker.ReasonEntity)
		keyword = max(keyword, entity)
	}

	rc.Signals.Semantic = semantic
	rc.Signals.Keyword = keyword
	rc.Signals.Mood = mood
	rc.Signals.Entity = entity
	return rc, clarity, momentSkipped
}

// applyContentPolicy drops songs the room does not allow, substituting a
// radio edit when one exists and passes the policy.
func (s *Searcher) applyContentPolicy(rc *reranker.Candidate, song *storage.Song,
	room contentfilter.RoomPolicy) (types.ContentInfo, bool) {

	res := s.filter.AnalyzeSong(contentfilter.SongText{Title: song.Title, Artist: song.Artist})
	info := types.ContentInfo{Severity: res.Severity.String(), Reasons: res.Reasons}
	if !s.filter.ShouldFilterForRoom(res, room) {
		return info, true
	}

	edit, ok := contentfilter.RadioEdit(song.ID, song.Title)
	if ok {
		clean := s.filter.AnalyzeSong(contentfilter.SongText{Title: edit.CleanTitle, Artist: song.Artist})
		if !s.filter.ShouldFilterForRoom(clean, room) {
			metrics.FilteredSongs.WithLabelValues("radio_edit").Inc()
			rc.OriginalID = song.ID
			rc.SongID = edit.AlternativeID
			rc.Title = edit.CleanTitle
			rc.AddReason(reranker.ReasonRadioEdit)
			return types.ContentInfo{
				Severity:      clean.Severity.String(),
				Reasons:       clean.Reasons,
				RadioEdit:     true,
				OriginalID:    song.ID,
				OriginalTitle: song.Title,
			}, true
		}
	}
	metrics.FilteredSongs.WithLabelValues("removed").Inc()
	return info, false
}

func toSongMatch(rank int, rc reranker.Candidate, d matchDetail, about *storage.Aboutness) types.SongMatch {
	m := types.SongMatch{
		Rank:       rank,
		SongID:     rc.SongID,
		Title:      rc.Title,
		Artist:     rc.Artist,
		Year:       rc.Year,
		Decade:     rc.Decade,
		Popularity: rc.Popularity,
		Tags:       rc.Tags,
		Score:      rc.Score.Final,
		Breakdown: types.ScoreBreakdown{
			Semantic:   rc.Score.Semantic,
			Keyword:    rc.Score.Keyword,
			Popularity: rc.Score.Popularity,
			Clarity:    rc.Score.Clarity,
			Penalty:    rc.Score.Penalty,
		},
		Signals: types.SignalScores{
			Keyword:    rc.Signals.Keyword,
			Semantic:   rc.Signals.Semantic,
			Mood:       rc.Signals.Mood,
			Entity:     rc.Signals.Entity,
			MetaSim:    rc.Signals.MetaSim,
			EmotionSim: rc.Signals.EmotionSim,
			MomentSim:  rc.Signals.MomentSim,
			AboutScore: rc.Signals.AboutScore,
		},
		Content: d.content,
	}
	for _, r := range rc.Reasons {
		m.Reasons = append(m.Reasons, string(r))
	}
	if d.clarity != nil {
		m.Clarity = &types.ClarityInfo{Bonus: d.clarity.Bonus, Reason: d.clarity.Reason}
	}
	if about != nil {
		m.Aboutness = &types.AboutnessInfo{
			EmotionsText:       about.EmotionsText,
			EmotionsConfidence: about.EmotionsConfidence,
			MomentsText:        about.MomentsText,
			MomentsConfidence:  about.MomentsConfidence,
			Version:            about.Version,
			Forced:             about.Forced,
		}
	}
	return m
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
