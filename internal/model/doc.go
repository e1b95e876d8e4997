// Package model defines shared data types used across the auction sync client.
//
// Conventions:
//   - Prices: shopspring/decimal, never float64
//   - Timestamps: time.Time, decoded leniently from the server (see Timestamp)
//   - IDs: opaque strings as issued by the auction server
//   - Bids: ordered newest first, unique by BidID
package model
