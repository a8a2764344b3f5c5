package statestore

import (
	"strings"
	"testing"

	"github.com/quorumcoin/witness-network/internal/testutil"
)

func TestStatsWriterWritesReadableSnapshot(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	w, err := NewStatsWriter(sb.Root)
	if err != nil {
		t.Fatalf("NewStatsWriter failed: %v", err)
	}

	snapshot := NetworkStatsSnapshot{
		NetworkID:           "main",
		Timestamp:           1234,
		PendingTransactions: 2,
		Agents: []AgentStatsSnapshot{
			{ID: 0, ReputationScore: 97.5, Successful: 12, DoubleSpendsPrevented: 1},
		},
	}
	if err := w.Write(snapshot); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := sb.ReadFile("network-stats.yaml")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	out := string(data)
	for _, want := range []string{"network_id: main", "pending_transactions: 2", "double_spends_prevented: 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("snapshot missing %q:\n%s", want, out)
		}
	}

	// A second write replaces the snapshot rather than appending.
	snapshot.PendingTransactions = 0
	if err := w.Write(snapshot); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}
	data, _ = sb.ReadFile("network-stats.yaml")
	if strings.Contains(string(data), "pending_transactions: 2") {
		t.Fatalf("expected snapshot to be replaced, got:\n%s", data)
	}
}
