package ocr

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// BalanceExtractor is anything able to pull balances out of screenshot bytes.
type BalanceExtractor interface {
	Extract(ctx context.Context, data []byte) ([]Balance, error)
}

// Pool bounds how many extractions run at once. Tesseract is CPU bound, so
// the default is one slot per CPU.
type Pool struct {
	next BalanceExtractor
	sem  *semaphore.Weighted
}

// NewPool wraps next with a pool of the given size (NumCPU when <= 0).
func NewPool(next BalanceExtractor, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{next: next, sem: semaphore.NewWeighted(int64(workers))}
}

// Extract waits for a free slot, honouring ctx, then delegates.
func (p *Pool) Extract(ctx context.Context, data []byte) ([]Balance, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return p.next.Extract(ctx, data)
}
