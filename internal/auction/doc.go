// Package auction implements the Auction State Reconciler.
//
// The Reconciler:
//   - Folds AUCTION_UPDATE and BID_PLACED events into one Snapshot per item
//   - Is idempotent on bid ID, so at-least-once delivery never duplicates bids
//   - Keeps bids newest first
//   - Never lets auction status move backwards along its lifecycle
//   - Resolves highest-bidder ties through an explicit TieBreak policy
//   - Drops merges for items nobody observes anymore
package auction
