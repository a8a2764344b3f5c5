package statestore

import (
	"testing"

	"github.com/quorumcoin/witness-network/internal/testutil"
	"github.com/quorumcoin/witness-network/internal/witness"
)

func TestJSONFileStoreRoundTrip(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	store, err := NewJSONFileStore(sb.Root)
	if err != nil {
		t.Fatalf("NewJSONFileStore failed: %v", err)
	}

	state := witness.PersistedState{
		ID:                 3,
		ValidatedValues:    map[string]int64{"coin-1": 5},
		BannedWallets:      []string{"wallet-x"},
		PublicKeyDirectory: map[string]string{"wallet-x": "pem-data"},
		Reputation:         witness.NewReputation(),
		Timestamp:          1234,
	}

	if err := store.Save(state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, ok, err := store.Load(3)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected saved state to be found")
	}
	if loaded.ValidatedValues["coin-1"] != 5 {
		t.Fatalf("unexpected validated values: %+v", loaded.ValidatedValues)
	}
	if len(loaded.BannedWallets) != 1 || loaded.BannedWallets[0] != "wallet-x" {
		t.Fatalf("unexpected banned wallets: %+v", loaded.BannedWallets)
	}
}

func TestJSONFileStoreLoadMissing(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	store, err := NewJSONFileStore(sb.Root)
	if err != nil {
		t.Fatalf("NewJSONFileStore failed: %v", err)
	}

	_, ok, err := store.Load(99)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ok {
		t.Fatalf("expected no snapshot for unknown agent id")
	}
}

func TestNullStore(t *testing.T) {
	var s NullStore
	if err := s.Save(witness.PersistedState{ID: 1}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	_, ok, err := s.Load(1)
	if err != nil || ok {
		t.Fatalf("expected no snapshot, got ok=%v err=%v", ok, err)
	}
}
