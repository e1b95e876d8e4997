package observe

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/auction-sync/internal/api"
	"github.com/rickgao/auction-sync/internal/auction"
	"github.com/rickgao/auction-sync/internal/connection"
	"github.com/rickgao/auction-sync/internal/model"
	"github.com/rickgao/auction-sync/internal/poller"
)

// Transport is the part of the Connection Manager an Observation needs.
type Transport interface {
	RegisterInterest(itemID string, fn connection.FrameHandler) (dispose func())
	SubscribeStatus(fn connection.StatusHandler) (dispose func())
	State() connection.State
	Acked(itemID string) bool
}

// AuctionAPI loads the initial snapshot.
type AuctionAPI interface {
	GetAuction(ctx context.Context, itemID string) (*api.AuctionItemResponse, error)
}

// DeadlineWatcher schedules the end-of-auction fallback check.
type DeadlineWatcher interface {
	Watch(ctx context.Context, itemID string, endTime time.Time, handler poller.ResultHandler) *poller.Watch
}

// Recorder receives newly applied bids and state changes. Implementations
// must not block.
type Recorder interface {
	RecordBid(bid model.Bid)
	RecordState(snap model.Snapshot)
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithPoller enables the deadline fallback.
func WithPoller(w DeadlineWatcher) HubOption {
	return func(h *Hub) {
		h.deadlines = w
	}
}

// WithRecorder sets the journal that receives applied events.
func WithRecorder(r Recorder) HubOption {
	return func(h *Hub) {
		h.recorder = r
	}
}

// Stats holds hub statistics.
type Stats struct {
	Observations int64 `json:"observations"`
	Tracked      int   `json:"tracked"`
	Applied      int64 `json:"applied"`
	Rejected     int64 `json:"rejected"`
	PollFailures int64 `json:"poll_failures"`
}

// Hub creates Observations over a shared transport and snapshot store.
type Hub struct {
	transport Transport
	api       AuctionAPI
	store     *auction.Store
	deadlines DeadlineWatcher
	recorder  Recorder
	logger    *slog.Logger

	observations atomic.Int64
	applied      atomic.Int64
	rejected     atomic.Int64
	pollFailures atomic.Int64
}

// NewHub creates a new Hub.
func NewHub(transport Transport, client AuctionAPI, store *auction.Store, logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		transport: transport,
		api:       client,
		store:     store,
		logger:    logger,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Observe loads itemID over REST and keeps it current from the socket until
// the returned Observation is disposed.
func (h *Hub) Observe(ctx context.Context, itemID string) (*Observation, error) {
	item, err := h.api.GetAuction(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("observe %s: %w", itemID, err)
	}

	snap := item.ToModel()
	if snap.ItemID == "" {
		snap.ItemID = itemID
	}

	o := &Observation{
		id:      uuid.New(),
		itemID:  snap.ItemID,
		hub:     h,
		updates: make(chan model.Snapshot, 1),
	}

	o.release = h.store.Track(snap)
	current, _ := h.store.Snapshot(o.itemID)
	o.last = current
	o.lastRev = current.Revision
	o.state = h.transport.State()

	o.disposeStatus = h.transport.SubscribeStatus(o.handleStatus)
	o.disposeItem = h.transport.RegisterInterest(o.itemID, o.handleFrame)

	// Another observer may already hold the server's acknowledgement for
	// this item on the shared connection.
	if h.transport.Acked(o.itemID) {
		o.mu.Lock()
		if o.state == connection.StateOpen {
			o.subscribed = true
		}
		o.mu.Unlock()
	}

	if h.deadlines != nil && current.EndTime != nil && current.Status == model.StatusAvailable {
		o.setWatch(h.deadlines.Watch(context.Background(), o.itemID, *current.EndTime,
			poller.ResultHandlerFunc(o.handlePoll)))
	}

	h.observations.Add(1)
	o.pushLatest()

	h.logger.Debug("observing auction",
		"item_id", o.itemID,
		"observation_id", o.id.String(),
		"status", current.Status,
		"end_time", current.EndTime,
	)

	return o, nil
}

// Stats returns current statistics.
func (h *Hub) Stats() Stats {
	return Stats{
		Observations: h.observations.Load(),
		Tracked:      h.store.Len(),
		Applied:      h.applied.Load(),
		Rejected:     h.rejected.Load(),
		PollFailures: h.pollFailures.Load(),
	}
}

func (h *Hub) applyUpdate(u auction.Update) auction.Outcome {
	snap, outcome := h.store.ApplyUpdate(u)
	h.count(outcome)
	if outcome == auction.OutcomeApplied && h.recorder != nil {
		h.recorder.RecordState(snap)
	}
	return outcome
}

func (h *Hub) applyBid(e auction.BidEvent) auction.Outcome {
	snap, outcome := h.store.ApplyBid(e)
	h.count(outcome)
	if outcome == auction.OutcomeApplied && h.recorder != nil {
		h.recorder.RecordBid(e.Bid())
		h.recorder.RecordState(snap)
	}
	return outcome
}

func (h *Hub) count(outcome auction.Outcome) {
	switch outcome {
	case auction.OutcomeApplied:
		h.applied.Add(1)
	case auction.OutcomeRegressed, auction.OutcomeInvalid:
		h.rejected.Add(1)
	}
}
