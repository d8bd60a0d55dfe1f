package embed

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Batcher embeds large text sets in fixed-size batches. The semaphore is
// shared by every caller, so concurrent document reindexes together never
// exceed the configured number of in-flight batches.
type Batcher struct {
	embedder  Embedder
	batchSize int
	sem       *semaphore.Weighted
}

// NewBatcher returns a Batcher with at most concurrency batches in flight.
func NewBatcher(e Embedder, batchSize, concurrency int) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	batchSize = min(batchSize, MaxBatchSize)
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Batcher{
		embedder:  e,
		batchSize: batchSize,
		sem:       semaphore.NewWeighted(int64(concurrency)),
	}
}

// Embedder returns the wrapped embedder.
func (b *Batcher) Embedder() Embedder { return b.embedder }

// EmbedAll returns vectors aligned with texts. The first failing batch
// cancels the rest.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		if err := b.sem.Acquire(gctx, 1); err != nil {
			break // gctx cancelled; g.Wait reports the cause
		}
		g.Go(func() error {
			defer b.sem.Release(1)
			vecs, err := b.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
