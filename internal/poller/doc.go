// Package poller implements the Fallback Poller component.
//
// The Fallback Poller:
//   - Counts down each watched auction against its end time
//   - Issues exactly one authoritative status check when the deadline passes
//   - Shares concurrent checks for the same item through singleflight
//   - Never retries a failed check; the failure is handed to the caller
//   - Drops results that arrive after the watch was stopped
package poller
