package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/auction-sync/internal/model"
)

// StatusChecker asks the server for an auction's authoritative state.
type StatusChecker interface {
	CheckStatus(ctx context.Context, itemID string) (model.Snapshot, error)
}

// StatusCheckerFunc is a function adapter for StatusChecker.
type StatusCheckerFunc func(ctx context.Context, itemID string) (model.Snapshot, error)

func (f StatusCheckerFunc) CheckStatus(ctx context.Context, itemID string) (model.Snapshot, error) {
	return f(ctx, itemID)
}

// Result is the outcome of one deadline check.
type Result struct {
	ItemID    string
	Snapshot  model.Snapshot // Valid only when Err is nil
	Err       error
	CheckedAt time.Time
}

// ResultHandler receives the single result of a watch.
type ResultHandler interface {
	HandleResult(Result)
}

// ResultHandlerFunc is a function adapter for ResultHandler.
type ResultHandlerFunc func(Result)

func (f ResultHandlerFunc) HandleResult(r Result) {
	f(r)
}

// Config holds poller configuration.
type Config struct {
	TickInterval time.Duration // Countdown resolution (default: 1s)
	Timeout      time.Duration // Per-check timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval: time.Second,
		Timeout:      10 * time.Second,
	}
}

// Stats holds poller statistics.
type Stats struct {
	ActiveWatches int64 `json:"active_watches"`
	Fired         int64 `json:"fired"`
	Checks        int64 `json:"checks"`
	Failures      int64 `json:"failures"`
	Dropped       int64 `json:"dropped"`
}

// Poller schedules deadline checks for watched auctions.
type Poller struct {
	cfg     Config
	checker StatusChecker
	logger  *slog.Logger

	group singleflight.Group

	active   atomic.Int64
	fired    atomic.Int64
	checks   atomic.Int64
	failures atomic.Int64
	dropped  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, checker StatusChecker, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	p := &Poller{
		cfg:     cfg,
		checker: checker,
		logger:  logger,
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// Watch starts a countdown for itemID that fires one status check once
// endTime has passed. handler is called at most once, and never after the
// watch is stopped or ctx is cancelled.
func (p *Poller) Watch(ctx context.Context, itemID string, endTime time.Time, handler ResultHandler) *Watch {
	w := &Watch{
		poller:  p,
		itemID:  itemID,
		endTime: endTime,
		handler: handler,
		done:    make(chan struct{}),
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	stopWithPoller := context.AfterFunc(p.ctx, w.cancel)

	p.active.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.active.Add(-1)
		defer close(w.done)
		defer stopWithPoller()
		defer w.cancel()
		w.run()
	}()

	p.logger.Debug("watching auction deadline",
		"item_id", itemID,
		"end_time", endTime,
	)

	return w
}

// Stop cancels every watch and waits for in-flight checks to finish.
func (p *Poller) Stop(ctx context.Context) error {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("fallback poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (p *Poller) Stats() Stats {
	return Stats{
		ActiveWatches: p.active.Load(),
		Fired:         p.fired.Load(),
		Checks:        p.checks.Load(),
		Failures:      p.failures.Load(),
		Dropped:       p.dropped.Load(),
	}
}

// check performs one status check, shared with any concurrent check for the
// same item. The call is bounded by the poller's lifetime, not the watch's.
func (p *Poller) check(itemID string) Result {
	v, err, shared := p.group.Do(itemID, func() (any, error) {
		p.checks.Add(1)

		ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
		defer cancel()

		return p.checker.CheckStatus(ctx, itemID)
	})

	res := Result{ItemID: itemID, Err: err, CheckedAt: time.Now()}
	if err != nil {
		p.failures.Add(1)
		p.logger.Warn("status check failed",
			"item_id", itemID,
			"shared", shared,
			"error", err,
		)
		return res
	}

	snap, _ := v.(model.Snapshot)
	res.Snapshot = snap.Clone()
	return res
}

// Watch is one auction's deadline countdown.
type Watch struct {
	poller  *Poller
	itemID  string
	endTime time.Time
	handler ResultHandler

	fired atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// ItemID returns the watched item.
func (w *Watch) ItemID() string { return w.itemID }

// EndTime returns the deadline being counted down to.
func (w *Watch) EndTime() time.Time { return w.endTime }

// Stop cancels the watch. A check already in flight still completes, but its
// result is dropped. Stop does not wait.
func (w *Watch) Stop() {
	w.cancel()
}

// Done is closed once the watch goroutine has exited.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

// Fired reports whether the deadline check has been issued.
func (w *Watch) Fired() bool {
	return w.fired.Load()
}

// Remaining returns the time left until the deadline, floored at zero.
func (w *Watch) Remaining(now time.Time) time.Duration {
	left := w.endTime.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

func (w *Watch) run() {
	ticker := time.NewTicker(w.poller.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if !time.Now().Before(w.endTime) {
			w.fire()
			return
		}

		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// fire issues the one-shot check and delivers the result unless the watch
// was stopped in the meantime.
func (w *Watch) fire() {
	if !w.fired.CompareAndSwap(false, true) {
		return
	}
	if w.ctx.Err() != nil {
		return
	}
	w.poller.fired.Add(1)

	res := w.poller.check(w.itemID)

	if w.ctx.Err() != nil {
		w.poller.dropped.Add(1)
		w.poller.logger.Debug("dropping status check for stopped watch",
			"item_id", w.itemID,
			"failed", res.Err != nil,
		)
		return
	}

	if w.handler != nil {
		w.handler.HandleResult(res)
	}
}
