// Package server wires the HTTP and websocket surface: the /ws action
// endpoint with its envelope dispatch, the question REST API, health and
// metrics endpoints, and the connection limiters guarding the upgrade path.
package server
