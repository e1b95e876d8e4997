package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/auction-sync/internal/subscription"
)

// DialFunc opens one transport connection.
type DialFunc func(ctx context.Context) (Client, error)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDialer replaces the WebSocket dialer.
func WithDialer(dial DialFunc) ManagerOption {
	return func(m *Manager) {
		m.dial = dial
	}
}

// Manager multiplexes every observed auction over one connection.
type Manager struct {
	cfg     ManagerConfig
	backoff Backoff
	dial    DialFunc
	logger  *slog.Logger

	items  *subscription.Registry[Frame]
	status subscription.Listeners[StatusEvent]

	// wake nudges the run loop to reconcile registrations with the connection.
	wake               chan struct{}
	reconnectRequested atomic.Bool

	// Written only by the run loop; read by anyone.
	mu      sync.RWMutex
	state   State
	retries int
	lastErr error
	acked   map[string]struct{} // Items the server confirmed on the current connection

	connects        atomic.Int64
	framesReceived  atomic.Int64
	framesMalformed atomic.Int64
	framesUnrouted  atomic.Int64

	// Owned by the run loop.
	client     Client
	sent       map[string]struct{} // Items subscribed on the current connection
	retryTimer *time.Timer

	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a new Connection Manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg: cfg,
		backoff: Backoff{
			Base:        cfg.ReconnectBaseDelay,
			Max:         cfg.ReconnectMaxDelay,
			MaxAttempts: cfg.MaxReconnectAttempts,
		},
		logger: logger,
		items:  subscription.NewRegistry[Frame](),
		wake:   make(chan struct{}, 1),
	}
	m.dial = m.dialWebSocket

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start launches the scheduler loop. Registrations made before Start are
// picked up immediately.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("connection manager already started")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()
	m.kick()

	m.logger.Info("connection manager started",
		"url", m.cfg.Client.URL,
		"reconnect_base_delay", m.cfg.ReconnectBaseDelay,
		"max_reconnect_attempts", m.cfg.MaxReconnectAttempts,
	)

	return nil
}

// Stop closes the connection and waits for the scheduler loop to exit.
func (m *Manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("connection manager stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterInterest adds fn as a handler for frames about itemID. The first
// registration for an item causes a SUBSCRIBE once the socket is open. The
// returned dispose is idempotent and takes effect for the next frame.
func (m *Manager) RegisterInterest(itemID string, fn FrameHandler) (dispose func()) {
	_, unregister := m.items.Register(itemID, fn)
	m.kick()

	return func() {
		if unregister() {
			m.kick()
		}
	}
}

// SubscribeStatus adds fn as a status observer.
func (m *Manager) SubscribeStatus(fn StatusHandler) (dispose func()) {
	remove := m.status.Add(fn)
	return func() {
		remove()
		m.kick()
	}
}

// Reconnect resets the retry budget and dials again. It is the only way out
// of StateExhausted.
func (m *Manager) Reconnect() {
	m.reconnectRequested.Store(true)
	m.kick()
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Retries returns the reconnect attempts made since the last open.
func (m *Manager) Retries() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.retries
}

// Acked reports whether the server sent SUBSCRIBED for itemID on the current
// connection.
func (m *Manager) Acked(itemID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.acked[itemID]
	return ok
}

// Items returns the registered item IDs, sorted.
func (m *Manager) Items() []string {
	return m.items.ItemIDs()
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	stats := ManagerStats{
		State:   m.state,
		Retries: m.retries,
	}
	if m.lastErr != nil {
		stats.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	stats.Items = m.items.Len()
	stats.StatusObservers = m.status.Len()
	stats.Connects = m.connects.Load()
	stats.FramesReceived = m.framesReceived.Load()
	stats.FramesMalformed = m.framesMalformed.Load()
	stats.FramesUnrouted = m.framesUnrouted.Load()
	return stats
}

func (m *Manager) kick() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// run is the scheduler loop. It is the only goroutine that touches the client
// and the only one that invokes handlers.
func (m *Manager) run() {
	defer m.wg.Done()
	defer m.shutdown()

	for {
		var msgs <-chan TimestampedMessage
		var errs <-chan error
		if m.client != nil {
			msgs = m.client.Messages()
			errs = m.client.Errors()
		}

		var retry <-chan time.Time
		if m.retryTimer != nil {
			retry = m.retryTimer.C
		}

		select {
		case <-m.ctx.Done():
			return

		case <-m.wake:
			m.reconcile()

		case <-retry:
			m.retryTimer = nil
			m.connect()

		case err := <-errs:
			m.fail(err)

		case msg := <-msgs:
			m.handleMessage(msg)
		}
	}
}

// reconcile aligns the connection with current demand.
func (m *Manager) reconcile() {
	if m.reconnectRequested.Swap(false) {
		m.logger.Info("manual reconnect requested", "state", m.State())
		m.stopRetryTimer()
		m.detach()
		m.setRetries(0)
		m.connect()
		return
	}

	hasItems := m.items.Len() > 0
	if !hasItems && m.status.Len() == 0 {
		if m.State() != StateIdle {
			m.logger.Info("no observers left, closing connection")
			m.stopRetryTimer()
			m.detach()
			m.setRetries(0)
			m.transition(StatusEvent{State: StateIdle})
		}
		return
	}

	switch m.State() {
	case StateIdle:
		if hasItems {
			m.connect()
		}
	case StateOpen:
		m.syncSubscriptions()
	}
}

// connect dials once and, on success, subscribes every registered item.
func (m *Manager) connect() {
	if m.items.Len() == 0 {
		m.transition(StatusEvent{State: StateIdle})
		return
	}

	attempt := m.Retries()
	m.transition(StatusEvent{State: StateConnecting, Attempt: attempt})

	ctx, cancel := m.ctx, context.CancelFunc(func() {})
	if m.cfg.ConnectTimeout > 0 {
		ctx, cancel = context.WithTimeout(m.ctx, m.cfg.ConnectTimeout)
	}
	c, err := m.dial(ctx)
	cancel()

	if err != nil {
		m.fail(fmt.Errorf("connect: %w", err))
		return
	}
	if m.ctx.Err() != nil {
		c.Close()
		return
	}

	m.client = c
	m.sent = make(map[string]struct{})
	m.connects.Add(1)
	m.setRetries(0)

	m.logger.Info("connection open", "attempt", attempt, "items", m.items.Len())
	m.transition(StatusEvent{State: StateOpen})

	m.syncSubscriptions()
}

// syncSubscriptions sends SUBSCRIBE for registered items not yet subscribed on
// this connection and forgets items that no longer have handlers.
func (m *Manager) syncSubscriptions() {
	if m.client == nil {
		return
	}

	ids := m.items.ItemIDs()
	live := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		live[id] = struct{}{}
		if _, ok := m.sent[id]; ok {
			continue
		}
		if err := m.sendSubscribe(id); err != nil {
			m.fail(fmt.Errorf("subscribe %s: %w", id, err))
			return
		}
		m.sent[id] = struct{}{}
	}

	for id := range m.sent {
		if _, ok := live[id]; !ok {
			delete(m.sent, id)
			m.setAcked(id, false)
		}
	}
}

func (m *Manager) setAcked(itemID string, acked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !acked {
		delete(m.acked, itemID)
		return
	}
	if m.acked == nil {
		m.acked = make(map[string]struct{})
	}
	m.acked[itemID] = struct{}{}
}

func (m *Manager) sendSubscribe(itemID string) error {
	data, err := json.Marshal(SubscribeCommand{Type: FrameSubscribe, ItemID: itemID})
	if err != nil {
		return err
	}
	if err := m.client.Send(data); err != nil {
		return err
	}
	m.logger.Debug("sent subscribe", "item_id", itemID)
	return nil
}

// fail tears down the current client and schedules the next attempt.
func (m *Manager) fail(err error) {
	m.detach()
	if m.ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()

	if m.items.Len() == 0 {
		m.logger.Info("connection lost with no registered items", "error", err)
		m.setRetries(0)
		m.transition(StatusEvent{State: StateIdle, Err: err})
		return
	}

	made := m.Retries()
	if !m.backoff.Allows(made) {
		m.logger.Error("reconnect attempts exhausted",
			"attempts", made,
			"error", err,
		)
		m.transition(StatusEvent{State: StateExhausted, Attempt: made, Err: err})
		return
	}

	attempt := made + 1
	delay := m.backoff.Delay(attempt)
	m.setRetries(attempt)

	m.logger.Warn("connection lost, scheduling reconnect",
		"attempt", attempt,
		"delay", delay,
		"error", err,
	)

	m.stopRetryTimer()
	m.retryTimer = time.NewTimer(delay)
	m.transition(StatusEvent{State: StateClosed, Attempt: attempt, Delay: delay, Err: err})
}

// detach stops listening to the current client before closing it, so nothing
// from the old connection is delivered afterwards.
func (m *Manager) detach() {
	if m.client == nil {
		return
	}
	c := m.client
	m.client = nil
	m.sent = nil

	m.mu.Lock()
	m.acked = nil
	m.mu.Unlock()

	if err := c.Close(); err != nil {
		m.logger.Debug("error closing client", "error", err)
	}
}

func (m *Manager) handleMessage(msg TimestampedMessage) {
	m.framesReceived.Add(1)

	var f Frame
	err := json.Unmarshal(msg.Data, &f)
	if err != nil || f.Type == "" {
		m.framesMalformed.Add(1)
		m.logger.Warn("dropping malformed frame",
			"error", err,
			"size", len(msg.Data),
		)
		return
	}
	f.ReceivedAt = msg.ReceivedAt

	if f.ItemID != "" {
		switch f.Type {
		case FrameSubscribed:
			if _, ok := m.sent[f.ItemID]; ok {
				m.setAcked(f.ItemID, true)
			}
		case FrameError:
			m.setAcked(f.ItemID, false)
		}
	}

	if f.ItemID != "" && m.items.Dispatch(f.ItemID, f) > 0 {
		return
	}

	m.framesUnrouted.Add(1)
	switch f.Type {
	case FrameError:
		m.logger.Warn("server error frame", "message", f.Message, "item_id", f.ItemID)
	case FrameConnected:
		m.logger.Debug("server greeting", "session_id", f.SessionID)
	default:
		m.logger.Debug("unrouted frame", "type", f.Type, "item_id", f.ItemID)
	}

	m.status.Notify(StatusEvent{State: m.State(), Attempt: m.Retries(), Frame: &f})
}

func (m *Manager) transition(ev StatusEvent) {
	m.mu.Lock()
	prev := m.state
	m.state = ev.State
	m.mu.Unlock()

	if prev != ev.State {
		m.logger.Debug("connection state changed",
			"from", prev.String(),
			"to", ev.State.String(),
		)
	}
	m.status.Notify(ev)
}

func (m *Manager) setRetries(n int) {
	m.mu.Lock()
	m.retries = n
	m.mu.Unlock()
}

func (m *Manager) stopRetryTimer() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Manager) shutdown() {
	m.stopRetryTimer()
	m.detach()

	m.mu.Lock()
	m.state = StateIdle
	m.mu.Unlock()
}

func (m *Manager) dialWebSocket(ctx context.Context) (Client, error) {
	c := NewClient(m.cfg.Client, m.logger.With("component", "ws_client"))
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("dial %s: %w", m.cfg.Client.URL, err)
	}
	return c, nil
}
