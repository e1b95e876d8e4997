package catalog

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/auction-sync/internal/api"
	"github.com/rickgao/auction-sync/internal/model"
)

// DefaultRefreshInterval is used when Config.RefreshInterval is zero.
const DefaultRefreshInterval = time.Minute

// changeBufferSize bounds Changes(). Changes beyond it are dropped.
const changeBufferSize = 1000

// Lister lists the available auctions. *api.Client satisfies it.
type Lister interface {
	ListAvailable(ctx context.Context) ([]api.AuctionItemResponse, error)
}

// Config holds Catalog configuration.
type Config struct {
	RefreshInterval time.Duration
}

// ChangeKind says whether an auction entered or left the available set.
type ChangeKind string

const (
	ChangeListed   ChangeKind = "listed"
	ChangeDelisted ChangeKind = "delisted"
)

// Change describes one auction entering or leaving the catalog.
type Change struct {
	ItemID   string
	Kind     ChangeKind
	Snapshot model.Snapshot // Last listing seen for the item
}

// Stats holds catalog statistics.
type Stats struct {
	Items          int       `json:"items"`
	Syncs          int64     `json:"syncs"`
	Failures       int64     `json:"failures"`
	DroppedChanges int64     `json:"dropped_changes"`
	LastSyncAt     time.Time `json:"last_sync_at"`
}

// Catalog keeps the set of available auctions in sync with the backend.
type Catalog struct {
	cfg    Config
	rest   Lister
	logger *slog.Logger

	mu      sync.RWMutex
	items   map[string]model.Snapshot
	stats   Stats
	changes chan Change

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Catalog.
func New(cfg Config, rest Lister, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}

	return &Catalog{
		cfg:     cfg,
		rest:    rest,
		logger:  logger,
		items:   make(map[string]model.Snapshot),
		changes: make(chan Change, changeBufferSize),
	}
}

// Start performs the initial listing and begins periodic refresh. It fails
// only if the initial listing fails.
func (c *Catalog) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	// Initial sync (blocking).
	if err := c.sync(c.ctx); err != nil {
		c.cancel()
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.refreshLoop(c.ctx)
	}()

	c.logger.Info("auction catalog started",
		"available", c.Len(),
		"refresh_interval", c.cfg.RefreshInterval,
	)

	return nil
}

// Stop gracefully shuts down.
func (c *Catalog) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("auction catalog stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Available returns every listed auction, sorted by item ID.
func (c *Catalog) Available() []model.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Snapshot, 0, len(c.items))
	for _, snap := range c.items {
		out = append(out, snap.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// Get returns the last listing seen for itemID.
func (c *Catalog) Get(itemID string) (model.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.items[itemID]
	if !ok {
		return model.Snapshot{}, false
	}
	return snap.Clone(), true
}

// Len returns the number of listed auctions.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Changes returns the feed of listing changes. The initial listing emits a
// ChangeListed for every auction.
func (c *Catalog) Changes() <-chan Change {
	return c.changes
}

// Stats returns current statistics.
func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Items = len(c.items)
	return s
}

// refreshLoop periodically re-lists the available auctions.
func (c *Catalog) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.sync(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("catalog refresh failed", "error", err)
			}
		}
	}
}

// sync lists the available auctions and diffs them against the current set.
func (c *Catalog) sync(ctx context.Context) error {
	start := time.Now()

	listed, err := c.rest.ListAvailable(ctx)
	if err != nil {
		c.mu.Lock()
		c.stats.Failures++
		c.mu.Unlock()
		return err
	}

	next := make(map[string]model.Snapshot, len(listed))
	for i := range listed {
		snap := listed[i].ToModel()
		if snap.ItemID == "" {
			continue
		}
		next[snap.ItemID] = snap
	}

	var added, removed []Change

	c.mu.Lock()
	for id, snap := range next {
		if _, ok := c.items[id]; !ok {
			added = append(added, Change{ItemID: id, Kind: ChangeListed, Snapshot: snap})
		}
	}
	for id, snap := range c.items {
		if _, ok := next[id]; !ok {
			removed = append(removed, Change{ItemID: id, Kind: ChangeDelisted, Snapshot: snap})
		}
	}
	c.items = next
	c.stats.Syncs++
	c.stats.LastSyncAt = time.Now()
	c.mu.Unlock()

	sortChanges(added)
	sortChanges(removed)
	for _, ch := range added {
		c.notify(ch)
	}
	for _, ch := range removed {
		c.notify(ch)
	}

	if len(added) > 0 || len(removed) > 0 {
		c.logger.Info("catalog changed",
			"listed", len(added),
			"delisted", len(removed),
			"available", len(next),
			"duration", time.Since(start),
		)
	} else {
		c.logger.Debug("catalog unchanged",
			"available", len(next),
			"duration", time.Since(start),
		)
	}

	return nil
}

// notify publishes a change without blocking.
func (c *Catalog) notify(ch Change) {
	select {
	case c.changes <- ch:
	default:
		c.mu.Lock()
		c.stats.DroppedChanges++
		c.mu.Unlock()
		c.logger.Warn("catalog change dropped", "item_id", ch.ItemID, "kind", ch.Kind)
	}
}

func sortChanges(changes []Change) {
	sort.Slice(changes, func(i, j int) bool { return changes[i].ItemID < changes[j].ItemID })
}
