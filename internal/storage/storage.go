package storage

import (
	"context"

	"github.com/holoscene/presence-backend/internal/models"
)

// UserStore is the persistence boundary for user presence state. Implementations
// must survive process restarts to be useful in production (see the valkey
// package); the memory package provides a volatile store for tests and
// ephemeral runs.
//
// Find returns (nil, nil) when no record exists for the given id.
type UserStore interface {
	All(ctx context.Context) ([]models.UserRecord, error)
	Find(ctx context.Context, id string) (*models.UserRecord, error)
	Insert(ctx context.Context, rec models.UserRecord) error
	Update(ctx context.Context, id string, upd UserUpdate) error
}

// UserUpdate is a partial update of a UserRecord. Nil fields are left
// untouched, so a caller persists exactly the fields it changed.
type UserUpdate struct {
	IsOnline        *bool
	OnScene         *bool
	LockedAsset     *string
	HasSceneRequest *bool
}

// Apply copies the set fields of the update onto rec.
func (u UserUpdate) Apply(rec *models.UserRecord) {
	if u.IsOnline != nil {
		rec.IsOnline = *u.IsOnline
	}
	if u.OnScene != nil {
		rec.OnScene = *u.OnScene
	}
	if u.LockedAsset != nil {
		rec.LockedAsset = *u.LockedAsset
	}
	if u.HasSceneRequest != nil {
		rec.HasSceneRequest = *u.HasSceneRequest
	}
}

// Bool returns a pointer to v, for building UserUpdate values inline.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v, for building UserUpdate values inline.
func String(v string) *string { return &v }
