package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/holoscene/presence-backend/internal/models"
	"github.com/holoscene/presence-backend/internal/storage"
)

// Registry is the presence and scene-arbitration engine. It tracks every live
// session, decides per channel who holds scene control, records advisory
// object locks, and pushes a full channel snapshot to all members after any
// state change.
//
// One mutex serializes every mutating operation end-to-end (connects,
// disconnects, message handling, both periodic sweeps, broadcasts). Store
// writes happen under that mutex, so each persisted mutation is a complete
// read-modify-write with no interleaving.
type Registry struct {
	mu       sync.Mutex
	store    storage.UserStore
	sessions []*Session // arrival order; snapshots list members in join order
}

// NewRegistry creates a Registry backed by the given user store.
func NewRegistry(store storage.UserStore) *Registry {
	return &Registry{store: store}
}

// Connect registers a new live session for the given client. A first-time
// client gets a fresh persisted record; a returning client is flipped back
// online and the session re-adopts its stored scene-control flag, so a
// reconnecting holder resumes control. The channel is notified either way.
func (r *Registry) Connect(ctx context.Context, conn Conn, clientID, clientName, channel string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := &Session{
		ID:      clientID,
		User:    clientName,
		Channel: channel,
		alive:   true,
		conn:    conn,
	}

	rec, err := r.store.Find(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", clientID, err)
	}
	if rec == nil {
		err = r.store.Insert(ctx, models.UserRecord{
			ID:       clientID,
			User:     clientName,
			IsOnline: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create user %s: %w", clientID, err)
		}
	} else {
		if err := r.store.Update(ctx, clientID, storage.UserUpdate{IsOnline: storage.Bool(true)}); err != nil {
			return nil, fmt.Errorf("failed to mark user %s online: %w", clientID, err)
		}
		sess.OnScene = rec.OnScene
	}

	r.sessions = append(r.sessions, sess)
	log.Printf("[Presence] Client %s > %s joined: %s", clientID, clientName, channel)

	r.broadcastLocked(ctx, channel)
	return sess, nil
}

// Disconnect removes the session from the live set and marks its persisted
// record offline. Scene control and the locked asset are deliberately left in
// place; the stale-scene reconciler clears control later if the client never
// returns. Disconnecting an already-removed session is a no-op.
func (r *Registry) Disconnect(ctx context.Context, sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(ctx, sess)
}

func (r *Registry) removeLocked(ctx context.Context, sess *Session) {
	found := false
	for i, s := range r.sessions {
		if s == sess {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return
	}

	if err := r.store.Update(ctx, sess.ID, storage.UserUpdate{IsOnline: storage.Bool(false)}); err != nil {
		log.Printf("[Presence] Failed to mark user %s offline: %v", sess.ID, err)
	}
	log.Printf("[Presence] Client %s left.", sess.User)

	r.broadcastLocked(ctx, sess.Channel)
}

// HandleMessage dispatches one inbound text frame of the form
// "<type>:<payload>". The type is the text before the first colon, the payload
// the text after the last one. Frames without a recognized type are ignored
// without a response.
func (r *Registry) HandleMessage(ctx context.Context, sess *Session, data string) {
	i := strings.Index(data, ":")
	if i < 0 {
		return
	}
	msgType := data[:i]
	payload := data[strings.LastIndex(data, ":")+1:]

	log.Printf("[Presence] %s sent %s", sess.User, data)

	switch msgType {
	case "request":
		if payload == "scene" {
			r.RequestScene(ctx, sess)
		}
	case "object":
		r.LockAsset(ctx, sess, payload)
	}
}

// RequestScene arbitrates scene control for sess's channel. If no other live
// session in the channel holds the scene, sess takes it and any pending
// request flag is cleared; requests are evaluated strictly in arrival order,
// so the first requester of a free scene wins. A holder re-requesting keeps
// the scene.
//
// While another session holds the scene, the requester's hasSceneRequest flag
// is flipped rather than set, and the holder is notified only on the
// transition to pending. Calling twice therefore raises and then withdraws the
// request; that toggle is the wire contract existing clients depend on.
func (r *Registry) RequestScene(ctx context.Context, sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var holder *Session
	for _, other := range r.sessions {
		if other.Channel == sess.Channel && other.OnScene && other.ID != sess.ID {
			holder = other
			break
		}
	}

	if holder == nil {
		sess.OnScene = true
		sess.HasSceneRequest = false
		err := r.store.Update(ctx, sess.ID, storage.UserUpdate{
			OnScene:         storage.Bool(true),
			HasSceneRequest: storage.Bool(false),
		})
		if err != nil {
			log.Printf("[Presence] Failed to persist scene control for %s: %v", sess.ID, err)
		}
		log.Printf("[Presence] Scene in %s taken by: %s", sess.Channel, sess.User)
	} else {
		// The toggle reads the persisted flag so a reconnecting requester
		// continues from its stored state.
		pending := false
		if rec, err := r.store.Find(ctx, sess.ID); err != nil {
			log.Printf("[Presence] Failed to load request state for %s: %v", sess.ID, err)
		} else if rec != nil {
			pending = rec.HasSceneRequest
		}

		sess.OnScene = false
		sess.HasSceneRequest = !pending
		err := r.store.Update(ctx, sess.ID, storage.UserUpdate{
			OnScene:         storage.Bool(false),
			HasSceneRequest: storage.Bool(sess.HasSceneRequest),
		})
		if err != nil {
			log.Printf("[Presence] Failed to persist scene request for %s: %v", sess.ID, err)
		}

		if sess.HasSceneRequest {
			r.notifyLocked(holder, sess.User)
		}
		log.Printf("[Presence] Scene in %s locked by: %s", sess.Channel, holder.User)
	}

	r.broadcastLocked(ctx, sess.Channel)
}

// LockAsset records assetID as the asset sess has checked out. Locks are
// advisory bookkeeping for the channel snapshot; there is no mutual exclusion
// on assets, and a later claim by anyone simply overwrites their own entry.
func (r *Registry) LockAsset(ctx context.Context, sess *Session, assetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess.LockedAsset = assetID
	if err := r.store.Update(ctx, sess.ID, storage.UserUpdate{LockedAsset: storage.String(assetID)}); err != nil {
		log.Printf("[Presence] Failed to persist asset lock for %s: %v", sess.ID, err)
	}

	r.broadcastLocked(ctx, sess.Channel)
}

// MarkAlive records a liveness-probe acknowledgment for sess. The transport's
// pong handler calls it.
func (r *Registry) MarkAlive(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess.alive = true
}

// Snapshot returns the presence rows for every live session in channel, in
// join order.
func (r *Registry) Snapshot(ctx context.Context, channel string) []models.PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(ctx, channel)
}

func (r *Registry) snapshotLocked(ctx context.Context, channel string) []models.PresenceEntry {
	entries := make([]models.PresenceEntry, 0)
	for _, sess := range r.sessions {
		if sess.Channel != channel {
			continue
		}
		entry := models.PresenceEntry{
			ID:       sess.ID,
			User:     sess.User,
			Channel:  sess.Channel,
			IsOnline: true,
		}
		// Lock, scene, and request fields come from the persisted record so
		// the snapshot stays consistent with concurrent reconciliation.
		if rec, err := r.store.Find(ctx, sess.ID); err != nil {
			log.Printf("[Presence] Failed to load user %s for snapshot: %v", sess.ID, err)
		} else if rec != nil {
			entry.LockedAsset = rec.LockedAsset
			entry.OnScene = rec.OnScene
			entry.HasSceneRequest = rec.HasSceneRequest
			entry.IsOnline = rec.IsOnline
		}
		entries = append(entries, entry)
	}
	return entries
}

// broadcastLocked sends the current channel snapshot to every live member of
// the channel. A single unreachable peer never aborts the broadcast.
func (r *Registry) broadcastLocked(ctx context.Context, channel string) {
	data, err := json.Marshal(r.snapshotLocked(ctx, channel))
	if err != nil {
		log.Printf("[Presence] Failed to encode snapshot for %s: %v", channel, err)
		return
	}

	for _, sess := range r.sessions {
		if sess.Channel != channel {
			continue
		}
		if err := sess.conn.Send(data); err != nil {
			log.Printf("[Presence] Skipping %s during broadcast: %v", sess.User, err)
		}
	}
}

func (r *Registry) notifyLocked(holder *Session, requester string) {
	data, err := json.Marshal(models.SceneRequestNotice{RequestUser: requester})
	if err != nil {
		return
	}
	if err := holder.conn.Send(data); err != nil {
		log.Printf("[Presence] Dropping scene request notice for %s: %v", holder.User, err)
	}
}

// CheckSessions runs one liveness sweep. A session that has not acknowledged
// the previous probe is closed and removed; everyone else has their flag
// cleared and is probed again. A dead connection is therefore detected within
// two sweep periods, and surviving one missed probe is by contract.
func (r *Registry) CheckSessions(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// removeLocked mutates r.sessions, so sweep over a copy.
	for _, sess := range append([]*Session(nil), r.sessions...) {
		if !sess.alive {
			log.Printf("[Presence] Evicting unresponsive client %s", sess.User)
			sess.conn.Close()
			r.removeLocked(ctx, sess)
			continue
		}
		sess.alive = false
		if err := sess.conn.Ping(); err != nil {
			log.Printf("[Presence] Failed to ping %s: %v", sess.User, err)
		}
	}
}

// ReconcileStaleScenes clears scene control from users that went offline while
// holding it, covering crashes and other disconnects that never reached
// Disconnect. It returns the number of records cleared. Running it again with
// no intervening change clears nothing. It does not broadcast: it operates on
// persisted records, not on any live channel.
func (r *Registry) ReconcileStaleScenes(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	cleared := 0
	for _, rec := range records {
		if rec.IsOnline || !rec.OnScene {
			continue
		}
		log.Printf("[Reconcile] Found inactive user on scene: %s", rec.ID)
		if err := r.store.Update(ctx, rec.ID, storage.UserUpdate{OnScene: storage.Bool(false)}); err != nil {
			log.Printf("[Reconcile] Failed to clear scene for %s: %v", rec.ID, err)
			continue
		}
		cleared++
	}
	return cleared, nil
}

// RunLivenessMonitor probes all sessions every period until ctx is cancelled.
func (r *Registry) RunLivenessMonitor(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CheckSessions(ctx)
		}
	}
}

// RunReconciler sweeps persisted records every period until ctx is cancelled.
func (r *Registry) RunReconciler(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReconcileStaleScenes(ctx); err != nil {
				log.Printf("[Reconcile] Sweep failed: %v", err)
			}
		}
	}
}
