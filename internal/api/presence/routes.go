package presence

import (
	"log"      // For logging messages
	"net/http" // For HTTP request and response handling

	"github.com/gorilla/mux"
)

// RegisterPresenceRoutes registers the presence REST and websocket routes with
// the provided router.
func RegisterPresenceRoutes(router *mux.Router, handler *Handler) {
	// Websocket entry point. Handshake parameters travel as query parameters
	// (clientId, clientName, channel).
	router.HandleFunc("/ws/presence", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[Presence] WebSocket %s", r.URL.String())
		handler.ServeWS(w, r)
	})

	router.HandleFunc("/api/v1/presence/channels/{channel}", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[Presence] %s %s", r.Method, r.URL.Path)
		handler.ChannelSnapshot(w, r)
	}).Methods(http.MethodGet)

	router.HandleFunc("/api/v1/presence/users", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[Presence] %s %s", r.Method, r.URL.Path)
		handler.ListUsers(w, r)
	}).Methods(http.MethodGet)

	// Admin trigger for the stale-scene sweep.
	router.HandleFunc("/api/v1/presence/reconcile", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[Presence] %s %s", r.Method, r.URL.Path)
		handler.Reconcile(w, r)
	}).Methods(http.MethodPost)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
}
