package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/tradelens/internal/contracts"
	"github.com/wonny/tradelens/internal/normalize"
	"github.com/wonny/tradelens/internal/sizing"
	"github.com/wonny/tradelens/pkg/config"
	"github.com/wonny/tradelens/pkg/logger"
)

const defaultChunkSize = 25

// Request 워커 요청
type Request struct {
	ID    string
	Batch Batch
	ctx   context.Context
}

// Response 워커 응답 (ID로 요청과 매칭)
type Response struct {
	ID     string
	Trades []contracts.Trade
	Err    error
}

// AsyncExecutor 백그라운드 goroutine에서 정규화
// 요청/응답은 ULID로 매칭되고, ID당 응답은 최대 1회 전달된다.
type AsyncExecutor struct {
	normalizer  *normalize.Normalizer
	concurrency int
	chunkSize   int
	logger      *logger.Logger

	requests chan Request
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	pending map[string]chan Response
	closed  bool

	process func(ctx context.Context, batch Batch) ([]contracts.Trade, error)
}

// NewAsyncExecutor starts the background worker
func NewAsyncExecutor(n *normalize.Normalizer, cfg config.WorkerConfig, log *logger.Logger) (*AsyncExecutor, error) {
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("%w: concurrency must be > 0, got %d", ErrUnavailable, cfg.Concurrency)
	}
	if n == nil {
		n = normalize.New()
	}
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}

	a := &AsyncExecutor{
		normalizer:  n,
		concurrency: cfg.Concurrency,
		chunkSize:   chunk,
		logger:      logger.OrNop(log).WithComponent("worker"),
		requests:    make(chan Request),
		stopCh:      make(chan struct{}),
		pending:     make(map[string]chan Response),
	}
	a.process = a.normalizeChunks

	a.wg.Add(1)
	go a.loop()

	a.logger.WithFields(map[string]interface{}{
		"concurrency": a.concurrency,
		"chunk_size":  a.chunkSize,
	}).Debug("Background worker started")
	return a, nil
}

// Name implements Executor
func (a *AsyncExecutor) Name() string { return "async" }

// Normalize sends a request and waits for the correlated response
func (a *AsyncExecutor) Normalize(ctx context.Context, batch Batch) ([]contracts.Trade, error) {
	id := ulid.Make().String()
	ch := make(chan Response, 1)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, ErrClosed
	}
	a.pending[id] = ch
	a.mu.Unlock()

	select {
	case a.requests <- Request{ID: id, Batch: batch, ctx: ctx}:
	case <-ctx.Done():
		a.forget(id)
		return nil, ctx.Err()
	case <-a.stopCh:
		a.forget(id)
		return nil, ErrClosed
	}

	select {
	case resp := <-ch:
		if resp.ID != id {
			return nil, fmt.Errorf("worker response id mismatch: want %s, got %s", id, resp.ID)
		}
		return resp.Trades, resp.Err
	case <-ctx.Done():
		// 늦게 도착하는 응답은 버려진다
		a.forget(id)
		return nil, ctx.Err()
	}
}

// Close stops the worker; in-flight callers receive ErrClosed
func (a *AsyncExecutor) Close() {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()
		close(a.stopCh)
	})
	a.wg.Wait()
}

// Pending returns the number of requests awaiting a response
func (a *AsyncExecutor) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func (a *AsyncExecutor) loop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.stopCh:
			a.failPending(ErrClosed)
			a.logger.Debug("Background worker stopped")
			return
		case req := <-a.requests:
			trades, err := a.run(req)
			a.deliver(Response{ID: req.ID, Trades: trades, Err: err})
		}
	}
}

func (a *AsyncExecutor) run(req Request) (trades []contracts.Trade, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	ctx := req.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return a.process(ctx, req.Batch)
}

// normalizeChunks splits the batch and normalizes chunks concurrently; output order matches input
func (a *AsyncExecutor) normalizeChunks(ctx context.Context, batch Batch) ([]contracts.Trade, error) {
	capital := sizing.NewTableResolver(batch.Sizes, batch.DefaultCapital)
	out := make([]contracts.Trade, len(batch.Trades))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for start := 0; start < len(batch.Trades); start += a.chunkSize {
		end := start + a.chunkSize
		if end > len(batch.Trades) {
			end = len(batch.Trades)
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("normalize chunk [%d:%d]: %v", start, end, r)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				out[i] = a.normalizer.Normalize(batch.Trades[i], capital)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// deliver hands the response to its waiter at most once
func (a *AsyncExecutor) deliver(resp Response) {
	a.mu.Lock()
	ch, ok := a.pending[resp.ID]
	delete(a.pending, resp.ID)
	a.mu.Unlock()

	if !ok {
		a.logger.WithField("request_id", resp.ID).Debug("Dropped response for abandoned request")
		return
	}
	ch <- resp
}

func (a *AsyncExecutor) forget(id string) {
	a.mu.Lock()
	delete(a.pending, id)
	a.mu.Unlock()
}

func (a *AsyncExecutor) failPending(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, ch := range a.pending {
		ch <- Response{ID: id, Err: err}
		delete(a.pending, id)
	}
}
