// Package embedder turns text into vectors for song retrieval.
//
// Three providers are available: a local model server (Ollama /api/embed,
// 384 dimensions, batches of 32), OpenAI (1536 dimensions, batches of 100) and
// Jina AI (1024 dimensions). Remote providers retry transient failures with
// exponential backoff and can be paced with a courtesy delay between batches.
//
// # Service
//
// Callers use Service rather than a provider directly. A Service holds a
// primary and an optional fallback provider, constructs them lazily on first
// use (concurrent first callers share a single initialization), and walks an
// explicit chain on each call:
//
//	primary -> fallback -> failed
//
// When every provider fails the error is a *ProviderError naming the last
// provider tried and matching ErrAllProvidersFailed. The service never returns
// zero vectors in place of an error.
//
//	svc := embedder.NewServiceFromConfig(cfg.Embedding, logger)
//	vec, err := svc.EmbedSingle(ctx, "driving at night with the windows down")
//	if errors.Is(err, embedder.ErrAllProvidersFailed) {
//	    // degrade to lexical matching
//	}
//
// Embed with an empty slice returns an empty result and does not initialize
// any provider.
//
// # Dimensions
//
// Vectors from different models cannot be compared. ActiveDimensions reports
// what the service is producing and AssertDimensions checks it against the
// dimension of stored vectors.
package embedder
