package observe

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/auction-sync/internal/auction"
	"github.com/rickgao/auction-sync/internal/connection"
	"github.com/rickgao/auction-sync/internal/model"
	"github.com/rickgao/auction-sync/internal/poller"
)

// ErrServerError is wrapped by Err() after an ERROR frame without a message.
var ErrServerError = errors.New("server reported an error")

// Observation is one consumer's live view of an auction.
type Observation struct {
	id     uuid.UUID
	itemID string
	hub    *Hub

	release       func()
	disposeItem   func()
	disposeStatus func()

	mu         sync.Mutex
	watch      *poller.Watch
	state      connection.State
	subscribed bool
	err        error
	last       model.Snapshot
	lastRev    uint64
	disposed   bool
	updates    chan model.Snapshot

	disposeOnce sync.Once
}

// ID uniquely identifies this observation.
func (o *Observation) ID() string { return o.id.String() }

// ItemID returns the observed item.
func (o *Observation) ItemID() string { return o.itemID }

// Snapshot returns the latest merged snapshot.
func (o *Observation) Snapshot() model.Snapshot {
	if snap, ok := o.hub.store.Snapshot(o.itemID); ok {
		return snap
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last.Clone()
}

// ConnectionStatus returns the transport state last seen by this observation.
func (o *Observation) ConnectionStatus() connection.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// IsSubscribed reports whether the server acknowledged the subscription on
// the current connection.
func (o *Observation) IsSubscribed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.subscribed
}

// Err returns the most recent non-fatal error: a server ERROR frame or a
// failed status check.
func (o *Observation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Updates delivers the latest snapshot whenever it, the connection status, or
// the subscription flag changes. Only the newest value is kept. The channel is
// closed by Dispose.
func (o *Observation) Updates() <-chan model.Snapshot {
	return o.updates
}

// TimeLeft returns the time until the auction's end. The second return is
// false for auctions without a deadline.
func (o *Observation) TimeLeft(now time.Time) (time.Duration, bool) {
	snap := o.Snapshot()
	return snap.TimeLeft(now)
}

// Dispose releases the observation. It is safe to call more than once.
func (o *Observation) Dispose() {
	o.disposeOnce.Do(func() {
		o.mu.Lock()
		o.disposed = true
		watch := o.watch
		o.watch = nil
		close(o.updates)
		o.mu.Unlock()

		o.disposeItem()
		o.disposeStatus()
		if watch != nil {
			watch.Stop()
		}
		o.release()

		o.hub.observations.Add(-1)
		o.hub.logger.Debug("observation disposed",
			"item_id", o.itemID,
			"observation_id", o.id.String(),
		)
	})
}

func (o *Observation) setWatch(w *poller.Watch) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		w.Stop()
		return
	}
	o.watch = w
}

func (o *Observation) handleFrame(f connection.Frame) {
	if o.isDisposed() {
		return
	}

	switch f.Type {
	case connection.FrameAuctionUpdate:
		o.hub.applyUpdate(updateFromFrame(f))
		o.publishIfChanged()

	case connection.FrameBidPlaced:
		o.hub.applyBid(bidFromFrame(f))
		o.publishIfChanged()

	case connection.FrameSubscribed:
		o.mu.Lock()
		o.subscribed = true
		o.pushLocked()
		o.mu.Unlock()

	case connection.FrameError:
		o.setServerError(f.Message)
	}
}

func (o *Observation) handleStatus(ev connection.StatusEvent) {
	if ev.Frame != nil {
		if ev.Frame.Type == connection.FrameError && ev.Frame.ItemID == "" {
			o.setServerError(ev.Frame.Message)
		}
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		return
	}
	o.state = ev.State
	if ev.State != connection.StateOpen {
		o.subscribed = false
	}
	o.pushLocked()
}

func (o *Observation) handlePoll(r poller.Result) {
	if o.isDisposed() {
		return
	}

	if r.Err != nil {
		o.hub.pollFailures.Add(1)
		o.mu.Lock()
		o.err = fmt.Errorf("check status failed: %w", r.Err)
		o.pushLocked()
		o.mu.Unlock()
		return
	}

	u := updateFromPoll(r.Snapshot)
	u.ItemID = o.itemID
	if o.hub.applyUpdate(u) == auction.OutcomeOrphaned {
		return
	}
	o.publishIfChanged()
}

func (o *Observation) setServerError(msg string) {
	err := ErrServerError
	if msg != "" {
		err = fmt.Errorf("%w: %s", ErrServerError, msg)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		return
	}
	o.subscribed = false
	o.err = err
	o.pushLocked()
}

func (o *Observation) isDisposed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.disposed
}

// publishIfChanged pushes the store's snapshot when its revision moved past
// the last one this observation delivered. The deadline watch is stopped once
// the auction has settled.
func (o *Observation) publishIfChanged() {
	snap, ok := o.hub.store.Snapshot(o.itemID)
	if !ok {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed || snap.Revision == o.lastRev {
		return
	}
	o.lastRev = snap.Revision
	o.last = snap
	if snap.Status.Terminal() && o.watch != nil {
		o.watch.Stop()
		o.watch = nil
	}
	o.pushLocked()
}

func (o *Observation) pushLatest() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pushLocked()
}

// pushLocked replaces any unread value with the latest snapshot. o.mu must be
// held.
func (o *Observation) pushLocked() {
	if o.disposed {
		return
	}
	select {
	case <-o.updates:
	default:
	}
	select {
	case o.updates <- o.last.Clone():
	default:
	}
}
