package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/rickgao/auction-sync/internal/config"
	"github.com/rickgao/auction-sync/internal/model"
)

// fakeDB records batches and reports a conflict for any bid_id seen before.
type fakeDB struct {
	mu      sync.Mutex
	batches [][]*pgx.QueuedQuery
	seen    map[string]bool
	err     error
}

func newFakeDB() *fakeDB {
	return &fakeDB{seen: make(map[string]bool)}
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.batches = append(f.batches, b.QueuedQueries)
	res := &fakeResults{err: f.err}
	for _, q := range b.QueuedQueries {
		affected := true
		if q.SQL == insertBidSQL {
			id := q.Arguments[0].(string)
			affected = !f.seen[id]
			f.seen[id] = true
		}
		res.affected = append(res.affected, affected)
	}
	return res
}

func (f *fakeDB) queries() []*pgx.QueuedQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*pgx.QueuedQuery
	for _, b := range f.batches {
		all = append(all, b...)
	}
	return all
}

func (f *fakeDB) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type fakeResults struct {
	affected []bool
	next     int
	err      error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	ok := r.affected[r.next]
	r.next++
	if ok {
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 0"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (r *fakeResults) QueryRow() pgx.Row          { return nil }
func (r *fakeResults) Close() error               { return nil }

func testBid(id string) model.Bid {
	return model.Bid{
		BidID:     id,
		ItemID:    "item-1",
		UserID:    "u-1",
		Username:  "alice",
		Amount:    decimal.RequireFromString("12.50"),
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewWriter_Defaults(t *testing.T) {
	w := NewWriter(config.JournalConfig{}, newFakeDB(), nil)

	if w.cfg.BatchSize != config.DefaultBatchSize {
		t.Errorf("BatchSize = %d, want %d", w.cfg.BatchSize, config.DefaultBatchSize)
	}
	if w.cfg.FlushInterval != config.DefaultFlushInterval {
		t.Errorf("FlushInterval = %v, want %v", w.cfg.FlushInterval, config.DefaultFlushInterval)
	}
	if w.cfg.BufferSize != config.DefaultBufferSize {
		t.Errorf("BufferSize = %d, want %d", w.cfg.BufferSize, config.DefaultBufferSize)
	}
}

func TestWriter_FlushOnBatchSize(t *testing.T) {
	db := newFakeDB()
	w := NewWriter(config.JournalConfig{BatchSize: 3, FlushInterval: time.Hour, BufferSize: 100}, db, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop(context.Background())

	w.RecordBid(testBid("b1"))
	w.RecordBid(testBid("b2"))
	w.RecordBid(testBid("b3"))

	waitFor(t, "batch flush", func() bool { return w.Stats().Flushes == 1 })

	q := db.queries()
	if len(q) != 3 {
		t.Fatalf("queued = %d, want 3", len(q))
	}
	if q[0].SQL != insertBidSQL {
		t.Errorf("SQL = %q, want bid insert", q[0].SQL)
	}
	if q[0].Arguments[0] != "b1" {
		t.Errorf("first bid_id = %v, want b1", q[0].Arguments[0])
	}
	if q[0].Arguments[4] != "12.5" {
		t.Errorf("bid_amount = %v, want 12.5", q[0].Arguments[4])
	}
}

func TestWriter_FlushOnInterval(t *testing.T) {
	db := newFakeDB()
	w := NewWriter(config.JournalConfig{BatchSize: 100, FlushInterval: 10 * time.Millisecond, BufferSize: 100}, db, nil)
	w.Start(context.Background())
	defer w.Stop(context.Background())

	w.RecordBid(testBid("b1"))

	waitFor(t, "interval flush", func() bool { return w.Stats().Inserts == 1 })
}

func TestWriter_DuplicateBidIsConflict(t *testing.T) {
	db := newFakeDB()
	w := NewWriter(config.JournalConfig{BatchSize: 100, FlushInterval: time.Hour, BufferSize: 100}, db, nil)
	w.Start(context.Background())

	w.RecordBid(testBid("b1"))
	w.RecordBid(testBid("b1"))

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	stats := w.Stats()
	if stats.Inserts != 1 {
		t.Errorf("Inserts = %d, want 1", stats.Inserts)
	}
	if stats.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", stats.Conflicts)
	}
	if stats.BidsQueued != 2 {
		t.Errorf("BidsQueued = %d, want 2", stats.BidsQueued)
	}
}

func TestWriter_RecordState(t *testing.T) {
	db := newFakeDB()
	w := NewWriter(config.JournalConfig{BatchSize: 100, FlushInterval: time.Hour, BufferSize: 100}, db, nil)
	w.Start(context.Background())

	w.RecordState(model.Snapshot{
		ItemID:        "item-1",
		Status:        model.StatusSold,
		CurrentPrice:  decimal.RequireFromString("99.00"),
		HighestBidder: "bob",
		Bids:          []model.Bid{testBid("b1")},
		Revision:      7,
		UpdatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	w.RecordState(model.Snapshot{ItemID: "item-2", Status: model.StatusAvailable})
	w.Stop(context.Background())

	q := db.queries()
	if len(q) != 2 {
		t.Fatalf("queued = %d, want 2", len(q))
	}

	args := q[0].Arguments
	if q[0].SQL != insertStateSQL {
		t.Errorf("SQL = %q, want state insert", q[0].SQL)
	}
	if args[1] != int64(7) {
		t.Errorf("revision = %v, want 7", args[1])
	}
	if args[2] != "SOLD" {
		t.Errorf("status = %v, want SOLD", args[2])
	}
	if args[3] != "99" {
		t.Errorf("current_price = %v, want 99", args[3])
	}
	if bidder, ok := args[4].(*string); !ok || *bidder != "bob" {
		t.Errorf("highest_bidder = %v, want bob", args[4])
	}
	if args[5] != 1 {
		t.Errorf("bid_count = %v, want 1", args[5])
	}

	// No bidder is stored as NULL; a zero update time is replaced.
	second := q[1].Arguments
	if bidder := second[4].(*string); bidder != nil {
		t.Errorf("highest_bidder = %v, want nil", *bidder)
	}
	if second[6].(time.Time).IsZero() {
		t.Error("observed_at should not be zero")
	}
}

func TestWriter_DropsWhenBufferFull(t *testing.T) {
	db := newFakeDB()
	w := NewWriter(config.JournalConfig{BatchSize: 10, FlushInterval: time.Hour, BufferSize: 2}, db, nil)

	// Not started: nothing drains the buffer.
	w.RecordBid(testBid("b1"))
	w.RecordBid(testBid("b2"))
	w.RecordBid(testBid("b3"))

	stats := w.Stats()
	if stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}
	if stats.Pending != 2 {
		t.Errorf("Pending = %d, want 2", stats.Pending)
	}
}

func TestWriter_InsertError(t *testing.T) {
	db := newFakeDB()
	db.err = errors.New("connection reset")
	w := NewWriter(config.JournalConfig{BatchSize: 100, FlushInterval: time.Hour, BufferSize: 100}, db, nil)
	w.Start(context.Background())

	w.RecordBid(testBid("b1"))
	w.Stop(context.Background())

	stats := w.Stats()
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if stats.Inserts != 0 {
		t.Errorf("Inserts = %d, want 0", stats.Inserts)
	}
	if stats.Pending != 0 {
		t.Errorf("Pending = %d, want 0", stats.Pending)
	}
}

func TestWriter_StopFlushesInBatches(t *testing.T) {
	db := newFakeDB()
	w := NewWriter(config.JournalConfig{BatchSize: 2, FlushInterval: time.Hour, BufferSize: 100}, db, nil)

	// Queue before Start so the kick is the only pending signal.
	for _, id := range []string{"b1", "b2", "b3", "b4", "b5"} {
		w.RecordBid(testBid(id))
	}
	w.Start(context.Background())
	w.Stop(context.Background())

	if got := w.Stats().Inserts; got != 5 {
		t.Errorf("Inserts = %d, want 5", got)
	}
	if got := db.batchCount(); got != 3 {
		t.Errorf("batches = %d, want 3", got)
	}
}

func TestWriter_RecordAfterStopIsDropped(t *testing.T) {
	w := NewWriter(config.JournalConfig{BatchSize: 10, FlushInterval: time.Hour, BufferSize: 10}, newFakeDB(), nil)
	w.Start(context.Background())
	w.Stop(context.Background())

	w.RecordBid(testBid("late"))

	if got := w.Stats().Dropped; got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}
