// Package api implements the HTTP REST API and WebSocket event stream of an
// InfiGrid node.
//
// This package provides:
//   - REST endpoints for every ledger operation and query
//   - Bearer JWT authentication for mutations
//   - A WebSocket hub that relays committed events to subscribers
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for production deployments
//
// # Architecture
//
// Every mutating request becomes one node.Call submitted on behalf of the
// token's principal. The node serialises it against the ledger and journal;
// the handler only decodes input and maps the outcome to HTTP. Queries read
// the ledger under the node's read lock and need no token.
//
//	client -> chi router -> authMiddleware -> node.Submit -> ledger + journal
//	                                                   \-> events -> Hub -> WebSocket clients
//
// # Errors
//
// Ledger rejections are returned with their stable numeric code in the
// ledger_code field alongside an HTTP status. A transaction the journal did
// not accept is reported as 503 and had no effect.
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
