package embedder

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkCacheKey(b *testing.B) {
	text := "dancing in the rain on a summer night with nothing to lose"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = CacheKey(DefaultLocalModel, text)
	}
}

func BenchmarkCacheParallel(b *testing.B) {
	c := NewCache(1000)
	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("k%d", i), &Embedding{Vector: make([]float32, LocalDimension)})
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			c.Get(fmt.Sprintf("k%d", i%1000))
			i++
		}
	})
}

func BenchmarkServiceEmbed(b *testing.B) {
	svc := newTestService(&mockEmbedder{name: "local", dim: LocalDimension}, nil, nil)
	ctx := context.Background()
	texts := []string{"one", "two", "three", "four"}
	_, _ = svc.Embed(ctx, texts)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = svc.Embed(ctx, texts)
	}
}
