package presence

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/holoscene/presence-backend/internal/models"
	"github.com/holoscene/presence-backend/internal/presence"
	"github.com/holoscene/presence-backend/internal/storage"
	"github.com/holoscene/presence-backend/internal/ws"
)

// Handler holds the dependencies for the presence HTTP and websocket surface.
type Handler struct {
	Registry *presence.Registry
	Store    storage.UserStore
}

var upgrader = websocket.Upgrader{}

// ServeWS upgrades the connection and attaches the client to its channel.
// The handshake parameters arrive as query parameters: clientId, clientName
// and channel. A client connecting without a clientId is minted one; it learns
// the id from its first snapshot.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	clientName := r.URL.Query().Get("clientName")
	channel := r.URL.Query().Get("channel")

	if clientName == "" || channel == "" {
		http.Error(w, "clientName and channel are required query parameters", http.StatusBadRequest)
		log.Println("[Presence] Validation error: clientName or channel missing for WS")
		return
	}
	if clientID == "" {
		clientID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Presence] Failed to upgrade websocket for %s: %v", clientName, err)
		return
	}

	// The registry and pumps outlive this request; the connection's own close
	// is what ends them.
	ctx := context.Background()

	client := ws.NewClient(conn)
	sess, err := h.Registry.Connect(ctx, client, clientID, clientName, channel)
	if err != nil {
		log.Printf("[Presence] Failed to register client %s: %v", clientID, err)
		client.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump(ctx, h.Registry, sess)
}

// ChannelSnapshot returns the current presence snapshot for one channel, the
// same document the broadcaster pushes to its members.
func (h *Handler) ChannelSnapshot(w http.ResponseWriter, r *http.Request) {
	channel := mux.Vars(r)["channel"]

	entries := h.Registry.Snapshot(r.Context(), channel)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(entries)

	log.Printf("[Presence] Listed %d members of channel %s", len(entries), channel)
}

// ListUsers returns every persisted user record, online or not.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.All(r.Context())
	if err != nil {
		http.Error(w, "Failed to list users", http.StatusInternalServerError)
		log.Printf("[Presence] Failed to list users: %v", err)
		return
	}
	if records == nil {
		records = []models.UserRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(records)

	log.Printf("[Presence] Listed %d user records", len(records))
}

// Reconcile runs one stale-scene sweep immediately and reports how many
// records were cleared. Gives operators a deterministic trigger instead of
// waiting for the periodic sweep.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	cleared, err := h.Registry.ReconcileStaleScenes(r.Context())
	if err != nil {
		http.Error(w, "Reconciliation failed", http.StatusInternalServerError)
		log.Printf("[Presence] Reconciliation failed: %v", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]int{"cleared": cleared})

	log.Printf("[Presence] Reconciliation cleared %d stale scene records", cleared)
}
