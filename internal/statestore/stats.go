package statestore

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// AgentStatsSnapshot is one agent's line in the operator-facing stats
// sidecar.
type AgentStatsSnapshot struct {
	ID                    int     `yaml:"id"`
	ReputationScore       float64 `yaml:"reputation_score"`
	Successful            int     `yaml:"successful"`
	Failed                int     `yaml:"failed"`
	DoubleSpendsPrevented int     `yaml:"double_spends_prevented"`
	ZeroBalancePrevented  int     `yaml:"zero_balance_prevented"`
	InvalidSignatures     int     `yaml:"invalid_signatures"`
	BannedWallets         int     `yaml:"banned_wallets"`
}

// NetworkStatsSnapshot is the summary the stats sweep persists alongside
// the per-agent JSON state. It is YAML rather than JSON so an operator
// can read it directly.
type NetworkStatsSnapshot struct {
	NetworkID           string               `yaml:"network_id"`
	Timestamp           int64                `yaml:"timestamp"`
	PendingTransactions int                  `yaml:"pending_transactions"`
	Agents              []AgentStatsSnapshot `yaml:"agents"`
}

// StatsWriter persists NetworkStatsSnapshots to a fixed file under the
// data directory, overwriting the previous snapshot each sweep.
type StatsWriter struct {
	path string
}

// NewStatsWriter returns a writer rooted at dir, creating it if needed.
func NewStatsWriter(dir string) (*StatsWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("statestore: create data dir: %w", err)
	}
	return &StatsWriter{path: filepath.Join(dir, "network-stats.yaml")}, nil
}

// Write replaces the stats sidecar with the given snapshot.
func (w *StatsWriter) Write(snapshot NetworkStatsSnapshot) error {
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("statestore: marshal stats snapshot: %w", err)
	}
	if err := os.WriteFile(w.path, data, 0o644); err != nil {
		return fmt.Errorf("statestore: write stats snapshot: %w", err)
	}
	return nil
}

// Path returns the location of the stats sidecar.
func (w *StatsWriter) Path() string { return w.path }
