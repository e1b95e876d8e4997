// auctionwatch keeps a set of auctions synchronized from the backend's
// update socket and logs every change.
// Usage: go run ./cmd/auctionwatch -config configs/auctionwatch.example.yaml -items 12,17
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/auction-sync/internal/api"
	"github.com/rickgao/auction-sync/internal/auction"
	"github.com/rickgao/auction-sync/internal/catalog"
	"github.com/rickgao/auction-sync/internal/config"
	"github.com/rickgao/auction-sync/internal/connection"
	"github.com/rickgao/auction-sync/internal/database"
	"github.com/rickgao/auction-sync/internal/journal"
	"github.com/rickgao/auction-sync/internal/model"
	"github.com/rickgao/auction-sync/internal/observe"
	"github.com/rickgao/auction-sync/internal/poller"
	"github.com/rickgao/auction-sync/internal/version"
)

// initialObserveLimit bounds concurrent initial REST fetches.
const initialObserveLimit = 8

func main() {
	configPath := flag.String("config", "configs/auctionwatch.example.yaml", "path to config file")
	itemsFlag := flag.String("items", "", "comma-separated item IDs to observe")
	all := flag.Bool("all", false, "observe every available auction")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting auctionwatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"rest_url", cfg.API.RestURL,
		"ws_url", cfg.API.WSURL,
	)

	tieBreak, err := auction.ParseTieBreak(cfg.Reconciler.TieBreak)
	if err != nil {
		logger.Error("invalid tie break", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Create API client
	apiClient := api.NewClient(
		cfg.API.RestURL,
		cfg.API.Token,
		api.WithLogger(logger.With("component", "api")),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	// Optional journal
	var (
		pool   *pgxpool.Pool
		writer *journal.Writer
	)
	hubOpts := []observe.HubOption{}

	if cfg.Journal.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)

		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}

		writer = journal.NewWriter(cfg.Journal, pool, logger.With("component", "journal"))
		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start journal", "error", err)
			os.Exit(1)
		}
		hubOpts = append(hubOpts, observe.WithRecorder(writer))
	}

	// Connection Manager
	connMgr := connection.NewManager(managerConfig(cfg), logger.With("component", "connection"))
	if err := connMgr.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}

	// Fallback Poller
	checker := poller.StatusCheckerFunc(func(ctx context.Context, itemID string) (model.Snapshot, error) {
		item, err := apiClient.CheckStatus(ctx, itemID)
		if err != nil {
			return model.Snapshot{}, err
		}
		return item.ToModel(), nil
	})
	deadlines := poller.New(poller.Config{
		TickInterval: cfg.Poller.TickInterval,
		Timeout:      cfg.Poller.Timeout,
	}, checker, logger.With("component", "poller"))
	hubOpts = append(hubOpts, observe.WithPoller(deadlines))

	store := auction.NewStore(tieBreak, logger.With("component", "store"))
	hub := observe.NewHub(connMgr, apiClient, store, logger.With("component", "observe"), hubOpts...)

	watched := newWatchSet()
	observeItem := func(ctx context.Context, id string) {
		if !watched.claim(id) {
			return
		}
		obs, err := hub.Observe(ctx, id)
		if err != nil {
			watched.release(id)
			logger.Warn("failed to observe auction", "item_id", id, "error", err)
			return
		}
		watched.add(obs)
		go logUpdates(obs, logger)
	}

	// Optional catalog of available auctions
	var cat *catalog.Catalog
	if *all {
		cat = catalog.New(catalog.Config{RefreshInterval: cfg.Catalog.RefreshInterval}, apiClient,
			logger.With("component", "catalog"))
		if err := cat.Start(ctx); err != nil {
			logger.Error("failed to list available auctions", "error", err)
			os.Exit(1)
		}
	}

	// Start health server early so we can monitor connection progress
	healthServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(healthDeps{
			conn:    connMgr,
			hub:     hub,
			poller:  deadlines,
			journal: writer,
			catalog: cat,
			pool:    pool,
			watched: watched,
		}, logger),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", "error", err)
		}
	}()

	itemIDs := parseItems(*itemsFlag)
	if cat != nil {
		for _, snap := range cat.Available() {
			itemIDs = append(itemIDs, snap.ItemID)
		}
	}
	if len(itemIDs) == 0 && cat == nil {
		logger.Warn("no items to observe; use -items or -all")
	}

	// Initial observes run concurrently; a failed fetch skips that item.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(initialObserveLimit)
	for _, id := range itemIDs {
		g.Go(func() error {
			observeItem(gctx, id)
			return nil
		})
	}
	g.Wait()

	if cat != nil {
		go followCatalog(ctx, cat, observeItem, logger)
	}

	logger.Info("auctionwatch running",
		"observed", watched.len(),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	healthServer.Shutdown(shutdownCtx)
	if cat != nil {
		cat.Stop(shutdownCtx)
	}
	watched.disposeAll()
	deadlines.Stop(shutdownCtx)
	connMgr.Stop(shutdownCtx)
	if writer != nil {
		writer.Stop(shutdownCtx)
	}

	logger.Info("auctionwatch stopped")
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// managerConfig maps the connection section onto a ManagerConfig.
func managerConfig(cfg *config.WatcherConfig) connection.ManagerConfig {
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	if cfg.API.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.API.Token)
	}

	return connection.ManagerConfig{
		Client: connection.ClientConfig{
			URL:              cfg.API.WSURL,
			Header:           header,
			HandshakeTimeout: cfg.Connection.ConnectTimeout,
			PingInterval:     cfg.Connection.PingInterval,
			PingTimeout:      cfg.Connection.PingTimeout,
			WriteTimeout:     cfg.Connection.WriteTimeout,
			BufferSize:       cfg.Connection.BufferSize,
		},
		ReconnectBaseDelay:   cfg.Connection.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Connection.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
		ConnectTimeout:       cfg.Connection.ConnectTimeout,
	}
}

// parseItems splits a comma-separated item list, dropping blanks and
// duplicates.
func parseItems(items string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range strings.Split(items, ",") {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// followCatalog observes auctions as they are listed. Delisted auctions stay
// observed so their final state is still logged.
func followCatalog(ctx context.Context, cat *catalog.Catalog, observeItem func(context.Context, string), logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ch := <-cat.Changes():
			switch ch.Kind {
			case catalog.ChangeListed:
				observeItem(ctx, ch.ItemID)
			case catalog.ChangeDelisted:
				logger.Info("auction delisted", "item_id", ch.ItemID, "last_status", ch.Snapshot.Status)
			}
		}
	}
}

// logUpdates logs each published snapshot until the observation is disposed.
func logUpdates(obs *observe.Observation, logger *slog.Logger) {
	log := logger.With("item_id", obs.ItemID(), "observation", obs.ID())

	for snap := range obs.Updates() {
		attrs := []any{
			"status", snap.Status,
			"price", snap.CurrentPrice.String(),
			"bids", len(snap.Bids),
			"revision", snap.Revision,
			"connection", obs.ConnectionStatus(),
			"subscribed", obs.IsSubscribed(),
		}
		if snap.HighestBidder != "" {
			attrs = append(attrs, "leader", snap.HighestBidder)
		}
		if left, ok := snap.TimeLeft(time.Now()); ok {
			attrs = append(attrs, "time_left", left.Round(time.Second))
		}
		if err := obs.Err(); err != nil {
			attrs = append(attrs, "error", err)
		}
		log.Info("auction update", attrs...)
	}
}

// watchSet tracks live observations for health reporting and shutdown.
// Each item is observed at most once.
type watchSet struct {
	mu      sync.Mutex
	claimed map[string]bool
	list    []*observe.Observation
}

func newWatchSet() *watchSet {
	return &watchSet{claimed: make(map[string]bool)}
}

// claim reserves itemID. It returns false if the item is already observed or
// being observed.
func (w *watchSet) claim(itemID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.claimed[itemID] {
		return false
	}
	w.claimed[itemID] = true
	return true
}

func (w *watchSet) release(itemID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.claimed, itemID)
}

func (w *watchSet) add(obs *observe.Observation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.list = append(w.list, obs)
}

func (w *watchSet) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.list)
}

func (w *watchSet) snapshot() []*observe.Observation {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*observe.Observation, len(w.list))
	copy(out, w.list)
	return out
}

func (w *watchSet) disposeAll() {
	for _, obs := range w.snapshot() {
		obs.Dispose()
	}
}
