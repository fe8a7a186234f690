package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/valkey-io/valkey-go"

	"github.com/holoscene/presence-backend/internal/models"
	"github.com/holoscene/presence-backend/internal/storage"
)

const (
	userKeyPrefix = "presence:user:"
	userIndexKey  = "presence:users"
)

// UserStore persists user records in Valkey so presence state survives process
// restarts. Each record is one JSON document under presence:user:<id>, with a
// set of known ids at presence:users. Mutations are full read-modify-writes;
// the presence registry serializes them, so no server-side transactions are
// needed.
type UserStore struct {
	client valkey.Client
}

// NewUserStore connects to the Valkey server at addr and verifies the
// connection with an initial ping.
func NewUserStore(addr string) (*UserStore, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	if err := client.Do(context.Background(), client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	log.Println("Successfully connected to Valkey for user records.")
	return &UserStore{client: client}, nil
}

// Close releases the underlying client connections.
func (s *UserStore) Close() {
	s.client.Close()
}

// All returns every stored user record. Ids present in the index but missing
// their document are skipped.
func (s *UserStore) All(ctx context.Context) ([]models.UserRecord, error) {
	ids, err := s.client.Do(ctx, s.client.B().Smembers().Key(userIndexKey).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}

	records := make([]models.UserRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Find(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

// Find returns the record for id, or (nil, nil) if none exists.
func (s *UserStore) Find(ctx context.Context, id string) (*models.UserRecord, error) {
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(userKeyPrefix+id).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}

	var rec models.UserRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", id, err)
	}
	return &rec, nil
}

// Insert stores rec and registers its id in the index.
func (s *UserStore) Insert(ctx context.Context, rec models.UserRecord) error {
	if err := s.write(ctx, rec); err != nil {
		return err
	}
	if err := s.client.Do(ctx, s.client.B().Sadd().Key(userIndexKey).Member(rec.ID).Build()).Error(); err != nil {
		return fmt.Errorf("failed to index user %s: %w", rec.ID, err)
	}
	return nil
}

// Update applies a partial update to the record for id. Updating an unknown
// id is a no-op.
func (s *UserStore) Update(ctx context.Context, id string, upd storage.UserUpdate) error {
	rec, err := s.Find(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	upd.Apply(rec)
	return s.write(ctx, *rec)
}

func (s *UserStore) write(ctx context.Context, rec models.UserRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode user %s: %w", rec.ID, err)
	}
	if err := s.client.Do(ctx, s.client.B().Set().Key(userKeyPrefix+rec.ID).Value(string(raw)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to store user %s: %w", rec.ID, err)
	}
	return nil
}
