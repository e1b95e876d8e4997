// Package api provides the REST client for the auction backend.
//
// Endpoints (relative to the configured base URL):
//   - GET   /auction/get-by-id?itemID=
//   - GET   /auction/get-all
//   - GET   /auction/search?keyword=
//   - POST  /auction/place-bid?itemID=&bidAmount=
//   - POST  /auction/check-status?itemID=
//   - PATCH /auction/dutch/decreasePrice?itemID=&decreaseBy=
//
// Responses are wrapped in a {success, message, data} envelope. Only GETs are
// retried; a bid or status check is sent exactly once.
package api
