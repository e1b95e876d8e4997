// Package journal persists observed auction activity to PostgreSQL.
//
// The Writer:
//   - Accepts bids and state changes without blocking the caller
//   - Drops records when its buffer is full rather than applying back-pressure
//   - Flushes in pgx batches at batch_size or every flush_interval
//   - Inserts bids idempotently (ON CONFLICT (bid_id) DO NOTHING)
package journal
