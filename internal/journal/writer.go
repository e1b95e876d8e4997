package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/auction-sync/internal/config"
	"github.com/rickgao/auction-sync/internal/model"
)

// Batcher sends a batch of queued statements. *pgxpool.Pool satisfies it.
type Batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Stats holds writer counters.
type Stats struct {
	BidsQueued   int64 `json:"bids_queued"`
	StatesQueued int64 `json:"states_queued"`
	Dropped      int64 `json:"dropped"`
	Inserts      int64 `json:"inserts"`
	Conflicts    int64 `json:"conflicts"`
	Flushes      int64 `json:"flushes"`
	Errors       int64 `json:"errors"`
	Pending      int   `json:"pending"`
}

// record is one queued row. Exactly one of bid or state is set.
type record struct {
	bid   *bidRow
	state *stateRow
}

type bidRow struct {
	BidID    string
	ItemID   string
	UserID   string
	Username string
	Amount   string
	BidTs    time.Time
}

type stateRow struct {
	ItemID        string
	Revision      int64
	Status        string
	CurrentPrice  string
	HighestBidder *string
	BidCount      int
	ObservedAt    time.Time
}

// Writer journals bids and auction states to PostgreSQL.
type Writer struct {
	cfg    config.JournalConfig
	logger *slog.Logger
	db     Batcher

	input *Buffer[record]
	kick  chan struct{}

	flushMu sync.Mutex // serializes flushes
	statsMu sync.Mutex
	stats   Stats

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter creates a Writer. Zero config values fall back to defaults.
func NewWriter(cfg config.JournalConfig, db Batcher, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = config.DefaultFlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = config.DefaultBufferSize
	}
	initial := cfg.BatchSize
	if initial > cfg.BufferSize {
		initial = cfg.BufferSize
	}
	return &Writer{
		cfg:    cfg,
		logger: logger,
		db:     db,
		input:  NewBuffer[record](initial, cfg.BufferSize),
		kick:   make(chan struct{}, 1),
	}
}

// Start begins the flush loop.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"buffer_size", w.cfg.BufferSize,
	)
	return nil
}

// Stop closes the input, waits for the flush loop and writes what is left.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
		return ctx.Err()
	}

	// Final flush
	for w.input.Len() > 0 {
		if !w.flush(ctx) {
			break
		}
	}

	w.logger.Info("journal writer stopped")
	return nil
}

// RecordBid queues a bid. It never blocks; the bid is dropped when the
// buffer is full or the writer is stopped.
func (w *Writer) RecordBid(bid model.Bid) {
	w.enqueue(record{bid: &bidRow{
		BidID:    bid.BidID,
		ItemID:   bid.ItemID,
		UserID:   bid.UserID,
		Username: bid.Username,
		Amount:   bid.Amount.String(),
		BidTs:    bid.Timestamp.UTC(),
	}}, func(s *Stats) { s.BidsQueued++ })
}

// RecordState queues an auction state. It never blocks.
func (w *Writer) RecordState(snap model.Snapshot) {
	row := &stateRow{
		ItemID:       snap.ItemID,
		Revision:     int64(snap.Revision),
		Status:       string(snap.Status),
		CurrentPrice: snap.CurrentPrice.String(),
		BidCount:     len(snap.Bids),
		ObservedAt:   snap.UpdatedAt.UTC(),
	}
	if snap.HighestBidder != "" {
		bidder := snap.HighestBidder
		row.HighestBidder = &bidder
	}
	if row.ObservedAt.IsZero() {
		row.ObservedAt = time.Now().UTC()
	}
	w.enqueue(record{state: row}, func(s *Stats) { s.StatesQueued++ })
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	s := w.stats
	s.Pending = w.input.Len()
	return s
}

func (w *Writer) enqueue(r record, count func(*Stats)) {
	if !w.input.Send(r) {
		w.statsMu.Lock()
		w.stats.Dropped++
		w.statsMu.Unlock()
		return
	}

	w.statsMu.Lock()
	count(&w.stats)
	w.statsMu.Unlock()

	if w.input.Len() >= w.cfg.BatchSize {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
}

// flushLoop flushes on every tick and whenever a full batch is waiting.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		case <-w.kick:
			for w.input.Len() >= w.cfg.BatchSize {
				if !w.flush(w.ctx) {
					break
				}
			}
		}
	}
}

// flush writes up to one batch. It returns false if the insert failed; the
// failed rows are discarded.
func (w *Writer) flush(ctx context.Context) bool {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	rows := w.input.DrainTo(w.cfg.BatchSize)
	if len(rows) == 0 {
		return true
	}

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, rows)
	if err != nil {
		w.logger.Error("journal batch insert failed", "error", err, "count", len(rows))
		w.statsMu.Lock()
		w.stats.Errors++
		w.statsMu.Unlock()
		return false
	}

	w.statsMu.Lock()
	w.stats.Inserts += int64(len(rows) - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.statsMu.Unlock()

	w.logger.Debug("flushed journal",
		"count", len(rows),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return true
}

const (
	insertBidSQL = `
		INSERT INTO auction_bids (bid_id, item_id, user_id, username, bid_amount, bid_ts)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		ON CONFLICT (bid_id) DO NOTHING`

	insertStateSQL = `
		INSERT INTO auction_states (item_id, revision, status, current_price, highest_bidder, bid_count, observed_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT DO NOTHING`
)

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []record) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		switch {
		case r.bid != nil:
			b := r.bid
			batch.Queue(insertBidSQL, b.BidID, b.ItemID, b.UserID, b.Username, b.Amount, b.BidTs)
		case r.state != nil:
			s := r.state
			batch.Queue(insertStateSQL, s.ItemID, s.Revision, s.Status, s.CurrentPrice, s.HighestBidder, s.BidCount, s.ObservedAt)
		}
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
