package models

// UserRecord is the durable, cross-restart state of one client, keyed by its
// stable client identifier. A record is created on the client's first-ever
// connection and is never deleted; reconnects re-adopt its scene state.
type UserRecord struct {
	ID              string `json:"id"`              // Stable client identifier, unique per client
	User            string `json:"user"`            // Display name shown to other channel members
	OnScene         bool   `json:"onScene"`         // True iff this client currently holds scene control
	IsOnline        bool   `json:"isOnline"`        // True while a live connection exists for this client
	LockedAsset     string `json:"lockedAsset"`     // Asset the client last checked out, empty = none
	HasSceneRequest bool   `json:"hasSceneRequest"` // Outstanding request to take over the scene
}

// PresenceEntry is one member row of a channel snapshot. The broadcaster sends
// the full snapshot (a JSON array of these) to every live member of the
// channel after any state change.
type PresenceEntry struct {
	ID              string `json:"id"`
	User            string `json:"user"`
	Channel         string `json:"channel"`
	LockedAsset     string `json:"lockedAsset"`
	OnScene         bool   `json:"onScene"`
	HasSceneRequest bool   `json:"hasSceneRequest"`
	IsOnline        bool   `json:"isOnline"`
}

// SceneRequestNotice is sent to the current scene holder when another member
// of the channel raises a request for scene control.
type SceneRequestNotice struct {
	RequestUser string `json:"requestUser"`
}
