// Package storage persists the song catalog and per-song aboutness profiles
// in SQLite and answers the nearest-neighbour queries used by matching.
//
// Two tables are managed by semver-ordered migrations:
//
//	songs           (1.0.0) title, artist, year, popularity, tags, phrases
//	                        and the metadata embedding
//	song_aboutness  (1.1.0) emotions and moments text, their vectors and
//	                        confidence, plus generation provenance
//
// Vectors are stored as little-endian float32 BLOBs next to a dimension
// column. Searches only compare rows whose dimension equals the query's;
// VerifyDimensions reports rows that would be skipped.
//
// Two builds are supported. The default uses modernc.org/sqlite and scores
// candidates in Go. Building with the sqlite_vec tag switches to
// mattn/go-sqlite3 and pushes cosine scoring into SQL.
//
// Usage:
//
//	store, err := storage.NewSQLiteStorage("songmatch.db")
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	hits, err := store.SearchMetadata(ctx, queryVec, 50)
package storage
