// Package network orchestrates the witness quorum: it holds the agent
// roster, selects committees by reputation-weighted lottery, drives a
// transfer through validation, and retries transactions that have not
// yet reached quorum. It is the only component that mutates a coin's
// ownership; witnesses only observe.
package network

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/quorumcoin/witness-network/internal/coin"
	"github.com/quorumcoin/witness-network/internal/directory"
	"github.com/quorumcoin/witness-network/internal/events"
	"github.com/quorumcoin/witness-network/internal/statestore"
	"github.com/quorumcoin/witness-network/internal/wallet"
	"github.com/quorumcoin/witness-network/internal/witness"
)

// Options configures a Network.
type Options struct {
	NumAgents         int
	RequiredWitnesses int
	PeerTimeout       time.Duration
	MaxRetries        int
	NetworkID         string
	DataDir           string
	StatsInterval     time.Duration
	AgentConfig       witness.Config
	// Seed pins the witness-lottery RNG for deterministic tests. Zero
	// means seed from wall-clock time.
	Seed int64
}

// Sender-side reputation weights applied by the orchestrator: a
// confirmed transfer credits the sending agent like any routine
// success, while a fraud rejection costs it more than an honest
// transfer earns, the drift that pushes a persistently malicious
// agent's score down while honest peers stay high.
const (
	senderRewardImportance  = 1.0
	senderPenaltyImportance = 1.5
)

// DefaultOptions returns the standard roster and quorum sizing.
func DefaultOptions() Options {
	return Options{
		NumAgents:         5,
		RequiredWitnesses: 3,
		PeerTimeout:       30 * time.Second,
		MaxRetries:        3,
		NetworkID:         "main",
		StatsInterval:     5 * time.Minute,
		AgentConfig:       witness.DefaultConfig(),
	}
}

// PeerStatus tracks synthetic liveness for an agent acting as a peer.
// There is no real transport here; this models the liveness bookkeeping
// a gossip or RPC layer would drive.
type PeerStatus string

const (
	PeerStatusConnected PeerStatus = "connected"
)

// PeerInfo is one entry of the Network's liveness table.
type PeerInfo struct {
	Address     string
	LastSeen    int64
	Status      PeerStatus
	ConnectedAt int64
}

// TxStatus is the terminal or in-flight disposition of a pending
// transaction.
type TxStatus string

const (
	TxPending   TxStatus = ""
	TxFailed    TxStatus = "failed"
	TxConfirmed TxStatus = "confirmed"
)

// PendingTransaction tracks one in-flight transfer across retries.
type PendingTransaction struct {
	Intent         *wallet.TransferIntent
	FromIdx        int
	ToIdx          int
	WitnessesTried map[int]struct{}
	Validations    []witness.Verdict
	Timestamp      int64
	Retries        int
}

// TransactionResult is returned from the synchronous half of a transfer
// attempt (TransferCoin / the retry sweep).
type TransactionResult struct {
	Success bool
	TxID    string
	Status  TxStatus
	Reason  string
}

// Network drives transfers through witness committees.
type Network struct {
	mu sync.Mutex

	opts        Options
	agents      []*witness.Agent
	directory   directory.Lookup
	sink        events.Sink
	store       statestore.Store
	statsWriter *statestore.StatsWriter
	rng         *rand.Rand

	peers   map[string]*PeerInfo
	pending map[string]*PendingTransaction

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Network with a fresh agent roster: one wallet and
// one witness.Agent per slot, all sharing a single upstream public-key
// directory, each agent seeing it through its own bounded LRU cache.
func New(opts Options, sink events.Sink, store statestore.Store) (*Network, error) {
	if opts.NumAgents <= 0 {
		opts.NumAgents = 5
	}
	if opts.RequiredWitnesses <= 0 {
		opts.RequiredWitnesses = 3
	}
	if opts.PeerTimeout <= 0 {
		opts.PeerTimeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.NetworkID == "" {
		opts.NetworkID = "main"
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = 5 * time.Minute
	}
	if sink == nil {
		sink = events.NewRecorder()
	}
	if store == nil {
		store = statestore.NullStore{}
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	upstream := directory.NewMapLookup()
	n := &Network{
		opts:      opts,
		directory: upstream,
		sink:      sink,
		store:     store,
		rng:       rand.New(rand.NewSource(seed)),
		peers:     make(map[string]*PeerInfo),
		pending:   make(map[string]*PendingTransaction),
		stopCh:    make(chan struct{}),
	}

	if opts.DataDir != "" {
		sw, err := statestore.NewStatsWriter(opts.DataDir)
		if err != nil {
			return nil, fmt.Errorf("network: create stats writer: %w", err)
		}
		n.statsWriter = sw
	}

	cfg := opts.AgentConfig
	if cfg == (witness.Config{}) {
		cfg = witness.DefaultConfig()
	}

	for i := 0; i < opts.NumAgents; i++ {
		w, err := wallet.New()
		if err != nil {
			return nil, fmt.Errorf("network: create wallet %d: %w", i, err)
		}
		cached, err := directory.NewCachingLookup(upstream, 1024)
		if err != nil {
			return nil, fmt.Errorf("network: create directory cache %d: %w", i, err)
		}
		upstream.RegisterPublicKey(w.ID(), w.PublicKeyPEM())
		n.agents = append(n.agents, witness.NewAgent(i, w, cached, cfg))
	}

	return n, nil
}

// NumAgents returns the roster size.
func (n *Network) NumAgents() int { return len(n.agents) }

// Agent returns the witness at idx.
func (n *Network) Agent(idx int) *witness.Agent { return n.agents[idx] }

// Initialize seeds each agent's reputation and wallet: agent 0 starts
// at the default score of 100 (NewAgent's behavior already matches
// this); agents 1..n-1 get a plausible synthetic history around a
// uniformly random score in [60, 100]. Every agent is then seeded with
// coinsPerAgent coins of random value in [1, 10], and registered as a
// live peer.
func (n *Network) Initialize(coinsPerAgent int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := witness.NowMillis()
	for i, a := range n.agents {
		if i > 0 {
			score := 60 + n.rng.Float64()*40
			successful := int(50 * (score / 100))
			failed := int(50 * (1 - score/100))
			a.Reputation.Seed(score, successful, failed, now)
		}

		for c := 0; c < coinsPerAgent; c++ {
			value := int64(1 + n.rng.Intn(10))
			minted, err := coin.New(a.Wallet.ID(), value, "", nil)
			if err != nil {
				return fmt.Errorf("network: mint coin for agent %d: %w", i, err)
			}
			if err := a.Wallet.AddCoin(minted); err != nil {
				return fmt.Errorf("network: seed coin for agent %d: %w", i, err)
			}
		}

		peerID := fmt.Sprintf("agent-%d", i)
		n.peers[peerID] = &PeerInfo{
			Address: fmt.Sprintf("agent://%d", i), LastSeen: now,
			Status: PeerStatusConnected, ConnectedAt: now,
		}
		n.sink.Emit(events.Event{Kind: events.PeerConnected, PeerID: peerID})
	}

	// Warm every agent's local directory cache with every peer's public
	// key, matching "every agent's public key is registered with every
	// other agent's directory".
	for _, a := range n.agents {
		for _, peer := range n.agents {
			a.Directory().GetPublicKey(peer.Wallet.ID())
		}
	}

	n.sink.Emit(events.Event{Kind: events.NetworkInitialized, Data: map[string]any{
		"num_agents": len(n.agents), "coins_per_agent": coinsPerAgent,
	}})
	log.Infof("network %s: initialized %d agents with %d coins each", n.opts.NetworkID, len(n.agents), coinsPerAgent)
	return nil
}

func computeTxID(intent *wallet.TransferIntent) string {
	raw := fmt.Sprintf("%s-%s-%s-%d", intent.Coin.ID, intent.Sender, intent.Recipient, intent.Timestamp)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// TransferCoin builds a transfer intent from fromIdx's coin at coinIdx
// to toIdx and drives it through the quorum. If the attempt fails with
// a sender-fault witness verdict, the coin is returned to the sender's
// wallet (rollback); if it is merely pending (quorum not yet reached,
// or a transient witness condition), the coin stays in flight for the
// retry sweep to resolve.
func (n *Network) TransferCoin(fromIdx, toIdx, coinIdx int) (TransactionResult, error) {
	if fromIdx < 0 || fromIdx >= len(n.agents) || toIdx < 0 || toIdx >= len(n.agents) {
		return TransactionResult{}, fmt.Errorf("network: invalid agent IDs")
	}
	sender := n.agents[fromIdx]
	recipient := n.agents[toIdx]

	intent, err := sender.Wallet.TransferCoin(coinIdx, recipient.Wallet.ID())
	if err != nil {
		return TransactionResult{Success: false, Reason: err.Error()}, nil
	}

	result := n.processTransaction(intent, fromIdx, toIdx)
	if result.Status == TxFailed {
		if addErr := sender.Wallet.AddCoin(intent.Coin); addErr != nil {
			log.Errorf("network: rollback failed for coin %s: %v", intent.Coin.ID, addErr)
		}
	}
	return result, nil
}

// processTransaction drives one transaction toward quorum: it selects
// fresh witnesses, polls them in order, and finalizes or fails the
// transfer based on their verdicts.
func (n *Network) processTransaction(intent *wallet.TransferIntent, fromIdx, toIdx int) TransactionResult {
	n.mu.Lock()
	defer n.mu.Unlock()

	txID := computeTxID(intent)
	pt, exists := n.pending[txID]
	if !exists {
		pt = &PendingTransaction{
			Intent: intent, FromIdx: fromIdx, ToIdx: toIdx,
			WitnessesTried: make(map[int]struct{}),
			Timestamp:      witness.NowMillis(),
		}
		n.pending[txID] = pt
		n.sink.Emit(events.Event{Kind: events.TransactionNew, TxID: txID})
	}

	validCount := 0
	for _, v := range pt.Validations {
		if v.Valid {
			validCount++
		}
	}
	if validCount >= n.opts.RequiredWitnesses {
		return TransactionResult{Success: true, TxID: txID, Status: TxConfirmed}
	}

	exclude := make(map[int]struct{}, len(pt.WitnessesTried)+2)
	for w := range pt.WitnessesTried {
		exclude[w] = struct{}{}
	}
	exclude[fromIdx] = struct{}{}
	exclude[toIdx] = struct{}{}

	needed := n.opts.RequiredWitnesses - validCount
	selected := n.getRandomWitnesses(needed, exclude)

	for _, widx := range selected {
		pt.WitnessesTried[widx] = struct{}{}
		verdict := n.agents[widx].Validate(intent)
		pt.Validations = append(pt.Validations, verdict)

		if !verdict.Valid {
			// A sender-fault rejection (fraud or ban) is terminal: the
			// committee is not polled further and the transaction fails
			// outright, with the sending agent's reputation penalized.
			// Anything else (missing directory key, malformed intent,
			// expiry) leaves the transaction pending so the retry sweep
			// can solicit a fresh committee before the retry ceiling.
			if verdict.SenderFault {
				if fromIdx >= 0 && fromIdx < len(n.agents) {
					n.agents[fromIdx].Reputation.RecordFailure(senderPenaltyImportance, witness.NowMillis())
				}
				delete(n.pending, txID)
				n.sink.Emit(events.Event{Kind: events.TransactionInvalid, TxID: txID, Reason: verdict.Reason})
				return TransactionResult{Success: false, TxID: txID, Status: TxFailed, Reason: verdict.Reason}
			}
			return TransactionResult{Success: false, TxID: txID, Status: TxPending, Reason: verdict.Reason}
		}
		validCount++
		if validCount >= n.opts.RequiredWitnesses {
			break
		}
	}

	if validCount < n.opts.RequiredWitnesses {
		return TransactionResult{Success: false, TxID: txID, Status: TxPending, Reason: "quorum not yet reached"}
	}

	witnessIDs := make([]int, 0, validCount)
	for w := range pt.WitnessesTried {
		witnessIDs = append(witnessIDs, w)
	}
	if err := intent.Coin.Transfer(intent.Recipient, intent.Signature, witnessIDs, witness.NowMillis()); err != nil {
		delete(n.pending, txID)
		n.sink.Emit(events.Event{Kind: events.TransactionInvalid, TxID: txID, Reason: err.Error()})
		return TransactionResult{Success: false, TxID: txID, Status: TxFailed, Reason: err.Error()}
	}

	if recipientAgent := n.agents[toIdx]; recipientAgent != nil {
		if err := recipientAgent.Wallet.AddCoin(intent.Coin); err != nil {
			log.Errorf("network: recipient add coin failed: %v", err)
		}
	}
	if fromIdx >= 0 && fromIdx < len(n.agents) {
		n.agents[fromIdx].Reputation.RecordSuccess(senderRewardImportance, witness.NowMillis())
	}
	delete(n.pending, txID)
	n.sink.Emit(events.Event{Kind: events.TransactionConfirmed, TxID: txID, Witnesses: witnessIDs})
	return TransactionResult{Success: true, TxID: txID, Status: TxConfirmed}
}

// getRandomWitnesses runs the 70/30 reputation-weighted lottery: if the
// eligible pool is no larger than count, it is returned whole;
// otherwise ceil(0.7*count) witnesses are drawn by score-weighted
// sampling without replacement, and the rest uniformly at random from
// what's left. The random share guards against centralization on a few
// high-reputation agents.
func (n *Network) getRandomWitnesses(count int, exclude map[int]struct{}) []int {
	pool := make([]int, 0, len(n.agents))
	for i := range n.agents {
		if _, skip := exclude[i]; !skip {
			pool = append(pool, i)
		}
	}
	if count <= 0 {
		return nil
	}
	if len(pool) <= count {
		return pool
	}

	repBased := (7*count + 9) / 10 // ceil(0.7 * count)
	if repBased > count {
		repBased = count
	}
	randomCount := count - repBased

	result := make([]int, 0, count)
	remaining := append([]int(nil), pool...)

	for i := 0; i < repBased && len(remaining) > 0; i++ {
		total := 0.0
		for _, idx := range remaining {
			total += n.agents[idx].Reputation.Score
		}
		var pick int
		if total <= 0 {
			pick = n.rng.Intn(len(remaining))
		} else {
			r := n.rng.Float64() * total
			cumulative := 0.0
			pick = len(remaining) - 1
			for j, idx := range remaining {
				cumulative += n.agents[idx].Reputation.Score
				if r < cumulative {
					pick = j
					break
				}
			}
		}
		result = append(result, remaining[pick])
		remaining = append(remaining[:pick], remaining[pick+1:]...)
	}

	n.rng.Shuffle(len(remaining), func(i, j int) { remaining[i], remaining[j] = remaining[j], remaining[i] })
	if randomCount > len(remaining) {
		randomCount = len(remaining)
	}
	result = append(result, remaining[:randomCount]...)
	return result
}

// SimulateDoubleSpend completes one real transfer from fromIdx to
// toIdx, then forges a second coin sharing the original's id and
// value, attempts to transfer it from fromIdx to altIdx, and removes
// the forged copy from the sender's wallet regardless of outcome.
func (n *Network) SimulateDoubleSpend(fromIdx, toIdx, altIdx, coinIdx int) (TransactionResult, TransactionResult, error) {
	sender := n.agents[fromIdx]
	if coinIdx < 0 || coinIdx >= len(sender.Wallet.Coins) {
		return TransactionResult{}, TransactionResult{}, fmt.Errorf("network: coin not found")
	}
	original := sender.Wallet.Coins[coinIdx]
	forgedID := original.ID
	forgedValue := original.Value

	first, err := n.TransferCoin(fromIdx, toIdx, coinIdx)
	if err != nil {
		return first, TransactionResult{}, err
	}

	forged, err := coin.New(sender.Wallet.ID(), forgedValue, forgedID, nil)
	if err != nil {
		return first, TransactionResult{}, fmt.Errorf("network: forge coin: %w", err)
	}
	if err := sender.Wallet.AddCoin(forged); err != nil {
		return first, TransactionResult{}, fmt.Errorf("network: add forged coin: %w", err)
	}
	forgedIdx := len(sender.Wallet.Coins) - 1

	second, err := n.TransferCoin(fromIdx, altIdx, forgedIdx)
	sender.Wallet.RemoveCoinByID(forgedID)
	return first, second, err
}

// RegisterPeer adds or refreshes a peer's liveness entry.
func (n *Network) RegisterPeer(peerID, address string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := witness.NowMillis()
	if p, ok := n.peers[peerID]; ok {
		p.LastSeen = now
		n.sink.Emit(events.Event{Kind: events.PeerUpdated, PeerID: peerID})
		return
	}
	n.peers[peerID] = &PeerInfo{Address: address, LastSeen: now, Status: PeerStatusConnected, ConnectedAt: now}
	n.sink.Emit(events.Event{Kind: events.PeerConnected, PeerID: peerID})
}
