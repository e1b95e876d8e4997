// Package subscription implements the Subscription Registry.
//
// The Registry:
//   - Tracks which item IDs have at least one interested handler
//   - Supports many handlers per item ID; the same func registered twice is two entries
//   - Hands out idempotent disposers that remove exactly one registration
//   - Reports first-registration and last-disposal so the transport can subscribe lazily
//
// Listeners is the item-less variant used for connection status observers.
package subscription
