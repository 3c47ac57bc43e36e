// Package types holds the result types songmatch hands to its callers.
//
// A match request returns an ordered []SongMatch. Each entry carries enough
// to explain the pick without recomputing anything: the final score and its
// weighted terms, the raw signals, the reasons that surfaced the song, the
// content classification (including any radio edit substitution) and, when
// the song has one, its aboutness profile.
//
//	for _, m := range resp.Matches {
//	    fmt.Printf("%d. %s - %s (%.2f) %v\n", m.Rank, m.Title, m.Artist, m.Score, m.Reasons)
//	}
package types
