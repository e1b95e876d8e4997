// Package catalog tracks which auctions the backend currently lists as
// available.
//
// The Catalog:
//   - Loads the available set from GET /auction/get-all on Start
//   - Re-lists on a fixed interval to catch auctions created or closed since
//   - Emits a Change for every auction that appears or disappears
package catalog
