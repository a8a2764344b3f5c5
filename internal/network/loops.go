package network

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/quorumcoin/witness-network/internal/events"
	"github.com/quorumcoin/witness-network/internal/statestore"
	"github.com/quorumcoin/witness-network/internal/witness"
)

const (
	stalePeerSweepInterval = 60 * time.Second
	retrySweepInterval     = 15 * time.Second
)

// Start launches the three background sweeps: stale-peer eviction,
// pending-transaction retry, and a periodic stats snapshot. Shutdown
// stops them.
func (n *Network) Start() {
	n.wg.Add(3)
	go n.runLoop(stalePeerSweepInterval, n.sweepStalePeers)
	go n.runLoop(retrySweepInterval, n.sweepRetries)
	go n.runLoop(n.opts.StatsInterval, n.sweepStats)
}

func (n *Network) runLoop(interval time.Duration, fn func()) {
	defer n.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			fn()
		}
	}
}

// sweepStalePeers drops peers whose last_seen has exceeded the
// configured peer timeout.
func (n *Network) sweepStalePeers() {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := witness.NowMillis()
	timeoutMs := n.opts.PeerTimeout.Milliseconds()
	for id, p := range n.peers {
		if now-p.LastSeen > timeoutMs {
			delete(n.peers, id)
			n.sink.Emit(events.Event{Kind: events.PeerDisconnect, PeerID: id})
		}
	}
}

// sweepRetries re-drives every pending transaction that has not
// exhausted its retry budget, and terminates (with rollback) the ones
// that have. A transaction is only pending here because its committee
// never produced a sender-fault verdict: either quorum wasn't
// reachable or a witness hit a transient condition (a directory miss,
// say), so each retry solicits only fresh witnesses, never
// re-consulting ones already in the tried set. A sender-fault verdict
// during a retry still terminates the transaction immediately, in
// which case the coin is rolled back here since no synchronous caller
// is around to do it.
func (n *Network) sweepRetries() {
	n.mu.Lock()
	var expired []string
	for txID, pt := range n.pending {
		if pt.Retries >= n.opts.MaxRetries {
			expired = append(expired, txID)
			continue
		}
		pt.Retries++
	}
	retryable := make([]*PendingTransaction, 0, len(n.pending))
	for txID, pt := range n.pending {
		skip := false
		for _, e := range expired {
			if e == txID {
				skip = true
				break
			}
		}
		if !skip {
			retryable = append(retryable, pt)
		}
	}
	n.mu.Unlock()

	for _, pt := range retryable {
		result := n.processTransaction(pt.Intent, pt.FromIdx, pt.ToIdx)
		if result.Status == TxFailed {
			sender := n.agents[pt.FromIdx]
			if addErr := sender.Wallet.AddCoin(pt.Intent.Coin); addErr != nil {
				log.Errorf("network: retry rollback failed for coin %s: %v", pt.Intent.Coin.ID, addErr)
			}
		}
	}

	if len(expired) == 0 {
		return
	}
	n.mu.Lock()
	for _, txID := range expired {
		pt, ok := n.pending[txID]
		if !ok {
			continue
		}
		delete(n.pending, txID)
		sender := n.agents[pt.FromIdx]
		if addErr := sender.Wallet.AddCoin(pt.Intent.Coin); addErr != nil {
			log.Errorf("network: retry-exhaustion rollback failed for coin %s: %v", pt.Intent.Coin.ID, addErr)
		}
		n.sink.Emit(events.Event{Kind: events.TransactionFailed, TxID: txID, Reason: "max retries exceeded"})
	}
	n.mu.Unlock()
}

// sweepStats emits a network:stats event, persists every agent's
// bounded local state, and refreshes the operator-facing stats sidecar.
func (n *Network) sweepStats() {
	n.mu.Lock()
	agents := append([]*witness.Agent(nil), n.agents...)
	pendingCount := len(n.pending)
	n.mu.Unlock()

	now := witness.NowMillis()
	summary := statestore.NetworkStatsSnapshot{
		NetworkID:           n.opts.NetworkID,
		Timestamp:           now,
		PendingTransactions: pendingCount,
	}
	for _, a := range agents {
		state, err := a.ExportState(now)
		if err != nil {
			log.Errorf("network: export state for agent %d: %v", a.ID, err)
			continue
		}
		if err := n.store.Save(state); err != nil {
			log.Errorf("network: persist state for agent %d: %v", a.ID, err)
		}
		summary.Agents = append(summary.Agents, statestore.AgentStatsSnapshot{
			ID:                    a.ID,
			ReputationScore:       state.Reputation.Score,
			Successful:            state.Reputation.Successful,
			Failed:                state.Reputation.Failed,
			DoubleSpendsPrevented: state.Stats.DoubleSpendsPrevented,
			ZeroBalancePrevented:  state.Stats.ZeroBalancePrevented,
			InvalidSignatures:     state.Stats.InvalidSignatures,
			BannedWallets:         state.Stats.BannedWalletsCount,
		})
	}

	if n.statsWriter != nil {
		if err := n.statsWriter.Write(summary); err != nil {
			log.Errorf("network: write stats snapshot: %v", err)
		}
	}

	n.sink.Emit(events.Event{Kind: events.NetworkStats, Data: map[string]any{
		"pending_transactions": pendingCount,
		"num_agents":           len(agents),
	}})
}

// Shutdown stops all background loops, persists final agent state, and
// emits network:shutdown.
func (n *Network) Shutdown() {
	close(n.stopCh)
	n.wg.Wait()
	n.sweepStats()
	n.sink.Emit(events.Event{Kind: events.NetworkShutdown})
	log.Infof("network %s: shutdown complete", n.opts.NetworkID)
}
