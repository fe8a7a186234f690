package presence

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holoscene/presence-backend/internal/models"
	corepresence "github.com/holoscene/presence-backend/internal/presence"
	"github.com/holoscene/presence-backend/internal/storage/memory"
)

type testServer struct {
	*httptest.Server
	store    *memory.UserStore
	registry *corepresence.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.NewUserStore()
	registry := corepresence.NewRegistry(store)
	handler := &Handler{Registry: registry, Store: store}

	router := mux.NewRouter()
	RegisterPresenceRoutes(router, handler)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store, registry: registry}
}

func (s *testServer) dial(t *testing.T, clientID, clientName, channel string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") +
		"/ws/presence?clientId=" + clientID + "&clientName=" + clientName + "&channel=" + channel
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) []models.PresenceEntry {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var entries []models.PresenceEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	return entries
}

func TestConnectAndAcquireScene(t *testing.T) {
	srv := newTestServer(t)

	conn := srv.dial(t, "u1", "Ana", "room1")

	entries := readSnapshot(t, conn)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].ID)
	assert.Equal(t, "Ana", entries[0].User)
	assert.False(t, entries[0].OnScene)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("request:scene")))

	entries = readSnapshot(t, conn)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].OnScene)
	assert.False(t, entries[0].HasSceneRequest)
}

func TestSceneContentionNotifiesHolder(t *testing.T) {
	srv := newTestServer(t)

	holder := srv.dial(t, "u1", "Ana", "room1")
	readSnapshot(t, holder) // own join
	require.NoError(t, holder.WriteMessage(websocket.TextMessage, []byte("request:scene")))
	readSnapshot(t, holder) // own acquisition

	rival := srv.dial(t, "u2", "Ben", "room1")
	readSnapshot(t, rival)  // rival's join snapshot
	readSnapshot(t, holder) // holder sees rival join

	require.NoError(t, rival.WriteMessage(websocket.TextMessage, []byte("request:scene")))

	// The holder receives the request notice before the follow-up snapshot.
	require.NoError(t, holder.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := holder.ReadMessage()
	require.NoError(t, err)
	var notice models.SceneRequestNotice
	require.NoError(t, json.Unmarshal(data, &notice))
	assert.Equal(t, "Ben", notice.RequestUser)

	entries := readSnapshot(t, rival)
	require.Len(t, entries, 2)
	for _, e := range entries {
		switch e.ID {
		case "u1":
			assert.True(t, e.OnScene)
		case "u2":
			assert.False(t, e.OnScene)
			assert.True(t, e.HasSceneRequest)
		}
	}
}

func TestObjectLockAppearsInSnapshot(t *testing.T) {
	srv := newTestServer(t)

	conn := srv.dial(t, "u1", "Ana", "room1")
	readSnapshot(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("object:cube_03")))

	entries := readSnapshot(t, conn)
	require.Len(t, entries, 1)
	assert.Equal(t, "cube_03", entries[0].LockedAsset)
}

func TestDisconnectThenReconcileOverREST(t *testing.T) {
	srv := newTestServer(t)

	conn := srv.dial(t, "u1", "Ana", "room1")
	readSnapshot(t, conn)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("request:scene")))
	readSnapshot(t, conn)

	conn.Close()

	// The read pump notices the close and flips the record offline; scene
	// control is left for reconciliation.
	require.Eventually(t, func() bool {
		records := getUsers(t, srv)
		return len(records) == 1 && !records[0].IsOnline
	}, 2*time.Second, 10*time.Millisecond)

	records := getUsers(t, srv)
	require.Len(t, records, 1)
	assert.True(t, records[0].OnScene)

	resp, err := http.Post(srv.URL+"/api/v1/presence/reconcile", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 1, result["cleared"])

	records = getUsers(t, srv)
	require.Len(t, records, 1)
	assert.False(t, records[0].OnScene)
}

func TestChannelSnapshotEndpoint(t *testing.T) {
	srv := newTestServer(t)

	conn := srv.dial(t, "u1", "Ana", "room1")
	readSnapshot(t, conn)

	resp, err := http.Get(srv.URL + "/api/v1/presence/channels/room1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []models.PresenceEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].ID)
	assert.Equal(t, "room1", entries[0].Channel)

	// Empty channel returns an empty list, not an error.
	resp2, err := http.Get(srv.URL + "/api/v1/presence/channels/empty-room")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	entries = nil
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&entries))
	assert.Empty(t, entries)
}

func TestMissingHandshakeParametersRejected(t *testing.T) {
	srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/presence?clientName=Ana"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func getUsers(t *testing.T, srv *testServer) []models.UserRecord {
	t.Helper()

	resp, err := http.Get(srv.URL + "/api/v1/presence/users")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []models.UserRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	return records
}
