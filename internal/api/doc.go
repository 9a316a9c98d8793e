// Package api implements the JSON HTTP boundary of the chat backend.
//
// The surface is small: session listing, retrieval and deletion, the
// message append endpoint that feeds the session store, the retrieval
// proxy that answers chat queries, and the health probes. Handlers
// decode and validate payloads, delegate to the chat service, and map
// the service's sentinel errors to HTTP statuses. No business rules
// live here.
package api
