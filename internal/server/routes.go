// Package server wires HTTP handlers into a ServeMux for the WebSocket
// gateway via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with the gateway routes:
// the health check on "/" and the IRC endpoint on "/irc".
func SetupRoutes(h *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/irc", WebSocketHandler(h))
	return mux
}
