// Package searcher answers "which song fits this message" by running the
// retrieval legs concurrently and reranking only their union.
//
// # Retrieval modes
//
//   - two_signal: metadata KNN and the keyword index. Semantic is the
//     metadata similarity.
//   - three_signal: adds emotion KNN over aboutness vectors, then scores
//     moments vectors for the union only and folds
//     aboutScore = wMeta*meta + wEmotion*emotion + wMoment*moment
//     into the semantic signal.
//   - lexical: the query could not be embedded; only the keyword index runs.
//
// A song found by a single leg stays eligible; missing similarities are 0.
//
// # Signals
//
// Mood words in the message are mapped to catalog tags and can lift the
// semantic signal up to 0.6. Naming the artist or title sets the entity
// signal, which lifts keyword to 1. Keyword hits also receive a clarity
// prior. Songs the room's content policy rejects are replaced by their radio
// edit when one exists, otherwise dropped.
//
// # Usage
//
//	s := searcher.New(store, embeddings, phrases, filter, ranker, searcher.ConfigFrom(cfg.ThreeSignal), logger)
//	resp, err := s.Match(ctx, searcher.MatchRequest{
//	    Message: "driving home in the rain",
//	    Room:    contentfilter.RoomPolicy{AllowExplicit: false},
//	})
//	primary := resp.Matches[0]
package searcher
