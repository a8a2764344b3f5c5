// Package statestore persists and restores an Agent's bounded local
// memory. Persistence is exposed as an injected interface tests can
// drive in isolation, the same shape directory.Lookup takes for key
// resolution.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quorumcoin/witness-network/internal/witness"
)

// Store persists per-agent PersistedState snapshots keyed by agent id.
type Store interface {
	Save(state witness.PersistedState) error
	Load(agentID int) (witness.PersistedState, bool, error)
}

// JSONFileStore writes one JSON file per agent under a data directory,
// refreshed by the periodic stats sweep and on shutdown.
type JSONFileStore struct {
	dir string
}

// NewJSONFileStore returns a store rooted at dir, creating it if needed.
func NewJSONFileStore(dir string) (*JSONFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("statestore: create data dir: %w", err)
	}
	return &JSONFileStore{dir: dir}, nil
}

func (s *JSONFileStore) path(agentID int) string {
	return filepath.Join(s.dir, fmt.Sprintf("agent-%d.json", agentID))
}

// Save writes state to its agent's file, overwriting any prior snapshot.
func (s *JSONFileStore) Save(state witness.PersistedState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal agent %d: %w", state.ID, err)
	}
	if err := os.WriteFile(s.path(state.ID), data, 0o644); err != nil {
		return fmt.Errorf("statestore: write agent %d: %w", state.ID, err)
	}
	return nil
}

// Load reads a previously saved snapshot for agentID. The second return
// value is false if no snapshot exists yet.
func (s *JSONFileStore) Load(agentID int) (witness.PersistedState, bool, error) {
	data, err := os.ReadFile(s.path(agentID))
	if err != nil {
		if os.IsNotExist(err) {
			return witness.PersistedState{}, false, nil
		}
		return witness.PersistedState{}, false, fmt.Errorf("statestore: read agent %d: %w", agentID, err)
	}
	var ps witness.PersistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return witness.PersistedState{}, false, fmt.Errorf("statestore: unmarshal agent %d: %w", agentID, err)
	}
	return ps, true, nil
}

// NullStore discards every Save and reports no snapshot on Load. Useful
// for simulations that don't need cross-run persistence.
type NullStore struct{}

func (NullStore) Save(witness.PersistedState) error { return nil }

func (NullStore) Load(int) (witness.PersistedState, bool, error) {
	return witness.PersistedState{}, false, nil
}
