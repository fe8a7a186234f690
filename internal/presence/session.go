package presence

// Conn is the transport side of one live connection. The ws package implements
// it over gorilla/websocket; tests implement it in-process. Send and Ping must
// not block: a slow or closed peer returns an error and the registry skips it.
type Conn interface {
	Send(data []byte) error
	Ping() error
	Close() error
}

// Session is the live, in-memory state of one connected client. A session is
// created on connection open and destroyed on close; its scene and lock fields
// mirror the persisted UserRecord and are updated in lockstep with it.
//
// Sessions are owned by the Registry: every field mutation happens under the
// registry mutex.
type Session struct {
	ID      string // client identifier, stable across reconnects
	User    string // display name from the connection handshake
	Channel string

	LockedAsset     string
	OnScene         bool
	HasSceneRequest bool

	alive bool // probe acknowledgment flag, used only by the liveness sweep
	conn  Conn
}
