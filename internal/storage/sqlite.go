package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/goccy/go-json"

	"github.com/dshills/songmatch-mcp/internal/vecmath"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidSong is returned when a song lacks required fields
	ErrInvalidSong = errors.New("invalid song")
	// ErrInvalidAboutness is returned when an aboutness row lacks required fields
	ErrInvalidAboutness = errors.New("invalid aboutness")
)

// maxInArgs bounds the ids bound into a single IN (...) clause.
const maxInArgs = 500

// maxDimensionSamples bounds the ids listed in a DimensionReport.
const maxDimensionSamples = 5

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// single connection: one writer, and :memory: databases stay shared
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage opens dbPath and applies pending migrations
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) UpsertSong(ctx context.Context, song *Song) error {
	return upsertSong(ctx, t.tx, song)
}

func (t *sqliteTx) UpsertAboutness(ctx context.Context, a *Aboutness) error {
	return upsertAboutness(ctx, t.tx, a)
}

// Song operations

func upsertSong(ctx context.Context, q querier, song *Song) error {
	if song == nil || song.ID == "" || song.Title == "" || song.Artist == "" {
		return fmt.Errorf("%w: id, title and artist are required", ErrInvalidSong)
	}
	if song.Decade == 0 && song.Year > 0 {
		song.Decade = song.Year / 10 * 10
	}
	song.Dimension = len(song.Embedding)

	tags, err := json.Marshal(nonNil(song.Tags))
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	phrases, err := json.Marshal(nonNil(song.Phrases))
	if err != nil {
		return fmt.Errorf("failed to encode phrases: %w", err)
	}

	query := `
		INSERT INTO songs (id, title, artist, year, decade, popularity, tags, phrases,
			embedding, embedding_model, dimension, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			year = excluded.year,
			decade = excluded.decade,
			popularity = excluded.popularity,
			tags = excluded.tags,
			phrases = excluded.phrases,
			embedding = excluded.embedding,
			embedding_model = excluded.embedding_model,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	if _, err := q.ExecContext(ctx, query,
		song.ID, song.Title, song.Artist, song.Year, song.Decade, song.Popularity,
		string(tags), string(phrases), serializeVector(song.Embedding),
		song.EmbeddingModel, song.Dimension, now, now); err != nil {
		return fmt.Errorf("failed to upsert song %s: %w", song.ID, err)
	}
	if song.CreatedAt.IsZero() {
		song.CreatedAt = now
	}
	song.UpdatedAt = now
	return nil
}

// UpsertSong inserts or replaces a song by id
func (s *SQLiteStorage) UpsertSong(ctx context.Context, song *Song) error {
	return upsertSong(ctx, s.db, song)
}

const songColumns = `id, title, artist, year, decade, popularity, tags, phrases,
	embedding, embedding_model, dimension, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSong(r rowScanner) (*Song, error) {
	var song Song
	var tags, phrases string
	var blob []byte
	if err := r.Scan(&song.ID, &song.Title, &song.Artist, &song.Year, &song.Decade,
		&song.Popularity, &tags, &phrases, &blob, &song.EmbeddingModel,
		&song.Dimension, &song.CreatedAt, &song.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &song.Tags); err != nil {
		return nil, fmt.Errorf("song %s: bad tags: %w", song.ID, err)
	}
	if err := json.Unmarshal([]byte(phrases), &song.Phrases); err != nil {
		return nil, fmt.Errorf("song %s: bad phrases: %w", song.ID, err)
	}
	song.Embedding = deserializeVector(blob)
	return &song, nil
}

// GetSong returns one song or ErrNotFound
func (s *SQLiteStorage) GetSong(ctx context.Context, id string) (*Song, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+songColumns+" FROM songs WHERE id = ?", id)
	song, err := scanSong(row)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get song %s: %w", id, err)
	}
	return song, nil
}

// GetSongs returns the songs that exist among ids, keyed by id
func (s *SQLiteStorage) GetSongs(ctx context.Context, ids []string) (map[string]*Song, error) {
	out := make(map[string]*Song, len(ids))
	err := forChunks(ids, func(chunk []string) error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT "+songColumns+" FROM songs WHERE id IN ("+placeholders(len(chunk))+")",
			stringArgs(chunk)...)
		if err != nil {
			return fmt.Errorf("failed to get songs: %w", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			song, err := scanSong(rows)
			if err != nil {
				return err
			}
			out[song.ID] = song
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListSongs pages through the catalog ordered by id
func (s *SQLiteStorage) ListSongs(ctx context.Context, opts ListOptions) ([]*Song, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+songColumns+" FROM songs ORDER BY id LIMIT ? OFFSET ?",
		limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var songs []*Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// DeleteSong removes a song and, by cascade, its aboutness row
func (s *SQLiteStorage) DeleteSong(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM songs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete song %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Aboutness operations

func upsertAboutness(ctx context.Context, q querier, a *Aboutness) error {
	if a == nil || a.SongID == "" || a.Version == "" {
		return fmt.Errorf("%w: song id and version are required", ErrInvalidAboutness)
	}
	if _, err := semver.NewVersion(a.Version); err != nil {
		return fmt.Errorf("%w: version %q: %w", ErrInvalidAboutness, a.Version, err)
	}
	if a.EmotionsVector != nil && a.MomentsVector != nil && len(a.EmotionsVector) != len(a.MomentsVector) {
		return fmt.Errorf("%w: emotions %d, moments %d", vecmath.ErrDimensionMismatch,
			len(a.EmotionsVector), len(a.MomentsVector))
	}
	a.Dimension = len(a.EmotionsVector)
	if a.Dimension == 0 {
		a.Dimension = len(a.MomentsVector)
	}

	query := `
		INSERT INTO song_aboutness (song_id, emotions_text, emotions_vector, emotions_confidence,
			moments_text, moments_vector, moments_confidence, provider, generation_model,
			embedding_model, dimension, version, forced, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(song_id) DO UPDATE SET
			emotions_text = excluded.emotions_text,
			emotions_vector = excluded.emotions_vector,
			emotions_confidence = excluded.emotions_confidence,
			moments_text = excluded.moments_text,
			moments_vector = excluded.moments_vector,
			moments_confidence = excluded.moments_confidence,
			provider = excluded.provider,
			generation_model = excluded.generation_model,
			embedding_model = excluded.embedding_model,
			dimension = excluded.dimension,
			version = excluded.version,
			forced = excluded.forced,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	if _, err := q.ExecContext(ctx, query,
		a.SongID, a.EmotionsText, serializeVector(a.EmotionsVector), a.EmotionsConfidence,
		a.MomentsText, serializeVector(a.MomentsVector), a.MomentsConfidence,
		a.Provider, a.GenerationModel, a.EmbeddingModel, a.Dimension, a.Version,
		a.Forced, now, now); err != nil {
		return fmt.Errorf("failed to upsert aboutness %s: %w", a.SongID, err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	return nil
}

// UpsertAboutness writes the aboutness row of an existing song
func (s *SQLiteStorage) UpsertAboutness(ctx context.Context, a *Aboutness) error {
	return upsertAboutness(ctx, s.db, a)
}

const aboutnessColumns = `song_id, emotions_text, emotions_vector, emotions_confidence,
	moments_text, moments_vector, moments_confidence, provider, generation_model,
	embedding_model, dimension, version, forced, created_at, updated_at`

func scanAboutness(r rowScanner) (*Aboutness, error) {
	var a Aboutness
	var emotions, moments []byte
	if err := r.Scan(&a.SongID, &a.EmotionsText, &emotions, &a.EmotionsConfidence,
		&a.MomentsText, &moments, &a.MomentsConfidence, &a.Provider, &a.GenerationModel,
		&a.EmbeddingModel, &a.Dimension, &a.Version, &a.Forced,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.EmotionsVector = deserializeVector(emotions)
	a.MomentsVector = deserializeVector(moments)
	return &a, nil
}

// GetAboutness returns a song's aboutness row or ErrNotFound
func (s *SQLiteStorage) GetAboutness(ctx context.Context, songID string) (*Aboutness, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+aboutnessColumns+" FROM song_aboutness WHERE song_id = ?", songID)
	a, err := scanAboutness(row)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get aboutness %s: %w", songID, err)
	}
	return a, nil
}

// GetAboutnessBatch returns the aboutness rows that exist among songIDs
func (s *SQLiteStorage) GetAboutnessBatch(ctx context.Context, songIDs []string) (map[string]*Aboutness, error) {
	out := make(map[string]*Aboutness, len(songIDs))
	err := forChunks(songIDs, func(chunk []string) error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT "+aboutnessColumns+" FROM song_aboutness WHERE song_id IN ("+placeholders(len(chunk))+")",
			stringArgs(chunk)...)
		if err != nil {
			return fmt.Errorf("failed to get aboutness: %w", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			a, err := scanAboutness(rows)
			if err != nil {
				return err
			}
			out[a.SongID] = a
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListBackfillCandidates returns songs, ordered by id, whose aboutness row is
// missing or older than q.CurrentVersion. Force returns every selected song.
func (s *SQLiteStorage) ListBackfillCandidates(ctx context.Context, q BackfillQuery) ([]*Song, error) {
	var current *semver.Version
	if !q.Force {
		v, err := semver.NewVersion(q.CurrentVersion)
		if err != nil {
			return nil, fmt.Errorf("invalid current version %q: %w", q.CurrentVersion, err)
		}
		current = v
	}

	var songs []*Song
	if len(q.IDs) > 0 {
		found, err := s.GetSongs(ctx, q.IDs)
		if err != nil {
			return nil, err
		}
		for _, song := range found {
			songs = append(songs, song)
		}
		sort.Slice(songs, func(i, j int) bool { return songs[i].ID < songs[j].ID })
	} else {
		all, err := s.ListSongs(ctx, ListOptions{})
		if err != nil {
			return nil, err
		}
		songs = all
	}

	if !q.Force {
		versions, err := s.aboutnessVersions(ctx)
		if err != nil {
			return nil, err
		}
		kept := songs[:0]
		for _, song := range songs {
			raw, ok := versions[song.ID]
			if ok {
				v, err := semver.NewVersion(raw)
				if err == nil && !v.LessThan(current) {
					continue
				}
			}
			kept = append(kept, song)
		}
		songs = kept
	}

	if q.Limit > 0 && len(songs) > q.Limit {
		songs = songs[:q.Limit]
	}
	return songs, nil
}

func (s *SQLiteStorage) aboutnessVersions(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT song_id, version FROM song_aboutness")
	if err != nil {
		return nil, fmt.Errorf("failed to read aboutness versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	versions := make(map[string]string)
	for rows.Next() {
		var id, v string
		if err := rows.Scan(&id, &v); err != nil {
			return nil, err
		}
		versions[id] = v
	}
	return versions, rows.Err()
}

// Retrieval

// SearchMetadata ranks songs by metadata embedding similarity
func (s *SQLiteStorage) SearchMetadata(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	return searchVector(ctx, s.db, metadataSource, query, k)
}

// SearchEmotions ranks songs by emotions vector similarity
func (s *SQLiteStorage) SearchEmotions(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	return searchVector(ctx, s.db, emotionSource, query, k)
}

// MomentVectors returns stored moments vectors for the songs that have one
func (s *SQLiteStorage) MomentVectors(ctx context.Context, songIDs []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(songIDs))
	err := forChunks(songIDs, func(chunk []string) error {
		rows, err := s.db.QueryContext(ctx,
			"SELECT song_id, moments_vector FROM song_aboutness WHERE moments_vector IS NOT NULL AND song_id IN ("+
				placeholders(len(chunk))+")",
			stringArgs(chunk)...)
		if err != nil {
			return fmt.Errorf("failed to load moment vectors: %w", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var id string
			var blob []byte
			if err := rows.Scan(&id, &blob); err != nil {
				return err
			}
			if v := deserializeVector(blob); len(v) > 0 {
				out[id] = v
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Diagnostics

// VerifyDimensions counts stored vectors whose dimension differs from dim
func (s *SQLiteStorage) VerifyDimensions(ctx context.Context, dim int) (*DimensionReport, error) {
	report := &DimensionReport{Expected: dim}

	checks := []struct {
		table, idCol, where string
		checked, mismatched *int
	}{
		{"songs", "id", "embedding IS NOT NULL", &report.SongsChecked, &report.SongMismatches},
		{"song_aboutness", "song_id", "(emotions_vector IS NOT NULL OR moments_vector IS NOT NULL)",
			&report.AboutnessChecked, &report.AboutnessMismatches},
	}
	for _, c := range checks {
		err := s.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*), COALESCE(SUM(CASE WHEN dimension != ? THEN 1 ELSE 0 END), 0) FROM %s WHERE %s", c.table, c.where),
			dim).Scan(c.checked, c.mismatched)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s dimensions: %w", c.table, err)
		}
		if *c.mismatched == 0 || len(report.Samples) >= maxDimensionSamples {
			continue
		}

		rows, err := s.db.QueryContext(ctx,
			fmt.Sprintf("SELECT %s, dimension FROM %s WHERE %s AND dimension != ? ORDER BY %s LIMIT ?", c.idCol, c.table, c.where, c.idCol),
			dim, maxDimensionSamples-len(report.Samples))
		if err != nil {
			return nil, fmt.Errorf("failed to sample %s dimensions: %w", c.table, err)
		}
		for rows.Next() {
			var id string
			var d int
			if err := rows.Scan(&id, &d); err != nil {
				_ = rows.Close()
				return nil, err
			}
			report.Samples = append(report.Samples, fmt.Sprintf("%s:%s=%d", c.table, id, d))
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return report, nil
}

// GetStatus summarizes catalog and aboutness coverage
func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{
		BuildMode:          BuildMode,
		AboutnessByVersion: make(map[string]int),
		Dimensions:         make(map[int]int),
	}

	v, err := SchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = v.String()

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(CASE WHEN embedding IS NOT NULL THEN 1 ELSE 0 END), 0) FROM songs",
	).Scan(&status.Songs, &status.SongsWithEmbedding); err != nil {
		return nil, fmt.Errorf("failed to count songs: %w", err)
	}

	err = s.countGroups(ctx, "SELECT version, COUNT(*) FROM song_aboutness GROUP BY version",
		func(rows *sql.Rows) error {
			var version string
			var n int
			if err := rows.Scan(&version, &n); err != nil {
				return err
			}
			status.AboutnessByVersion[version] = n
			status.Aboutness += n
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to count aboutness: %w", err)
	}

	err = s.countGroups(ctx, "SELECT dimension, COUNT(*) FROM songs WHERE embedding IS NOT NULL GROUP BY dimension",
		func(rows *sql.Rows) error {
			var dim, n int
			if err := rows.Scan(&dim, &n); err != nil {
				return err
			}
			status.Dimensions[dim] = n
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to count dimensions: %w", err)
	}
	return status, nil
}

// VectorDimensions lists the distinct dimensions of stored song embeddings,
// ascending. It is empty when no song has an embedding.
func (s *SQLiteStorage) VectorDimensions(ctx context.Context) ([]int, error) {
	dims := []int{}
	err := s.countGroups(ctx, "SELECT DISTINCT dimension FROM songs WHERE embedding IS NOT NULL ORDER BY dimension",
		func(rows *sql.Rows) error {
			var d int
			if err := rows.Scan(&d); err != nil {
				return err
			}
			dims = append(dims, d)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list vector dimensions: %w", err)
	}
	return dims, nil
}

// countGroups runs query and hands every row to scan, including the
// iteration error the driver reports after the last row.
func (s *SQLiteStorage) countGroups(ctx context.Context, query string, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func forChunks(ids []string, fn func([]string) error) error {
	for start := 0; start < len(ids); start += maxInArgs {
		end := start + maxInArgs
		if end > len(ids) {
			end = len(ids)
		}
		if err := fn(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
