// Package phrase keeps an in-memory full-text index of song titles, artists
// and lyric phrases and turns a chat message into the keyword signal.
//
// Scores are BM25 relevance from bleve, rescaled by the best hit of the query
// so they land in [0,1]. A song whose title or one of its phrases appears
// verbatim (on word boundaries) in the message scores exactly 1.
package phrase
