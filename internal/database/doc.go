// Package database provides the PostgreSQL connection pool and schema for the
// auction journal.
//
// Tables:
//   - auction_bids: every bid observed, keyed by bid_id
//   - auction_states: each applied snapshot change, keyed by item, time and revision
package database
