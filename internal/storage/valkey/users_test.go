package valkey

import (
	"testing"

	"github.com/holoscene/presence-backend/internal/storage"
)

// Interface compliance (compile-time assertion)
var _ storage.UserStore = (*UserStore)(nil)

func TestUserStore_InterfaceOnly(t *testing.T) {
	// Behavior against a live Valkey is covered by the shared store contract
	// exercised through the registry tests; this file pins the interface.
}
