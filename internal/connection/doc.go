// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Maintains at most one WebSocket connection shared by every observed auction
//   - Dials lazily when the first item is registered and closes when nothing is observed
//   - Reconnects with bounded exponential backoff, settling in EXHAUSTED when the budget is spent
//   - Re-sends SUBSCRIBE for every registered item each time the socket opens
//   - Demultiplexes inbound frames to per-item handlers by itemId
//   - Broadcasts state transitions and unrouted frames to status observers
//
// A single scheduler goroutine owns the state machine and invokes all handlers,
// so handlers observe frames in delivery order.
package connection
