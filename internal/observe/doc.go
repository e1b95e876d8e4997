// Package observe binds consumers to live auction state.
//
// An Observation is the handle a consumer holds for one auction:
//   - Snapshot loaded over REST, then kept current from socket frames
//   - Connection status and per-item subscription flag
//   - Deadline fallback through the poller for forward auctions
//   - A coalescing Updates channel that always carries the latest snapshot
//
// Every Observe must be paired with exactly one Dispose.
package observe
