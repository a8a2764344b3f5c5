// Package witness implements the Agent: a validator peer that holds its
// own keypair, runs the ordered transfer validation pipeline against
// incoming intents, and retains only bounded local memory of what it
// has seen: a Bloom-filter seen-set, an exact recency cache, last
// validated values, failure counters, a ban set, and its reputation.
package witness

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/quorumcoin/witness-network/internal/coin"
	"github.com/quorumcoin/witness-network/internal/directory"
	"github.com/quorumcoin/witness-network/internal/wallet"
)

// Config tunes an Agent's bounded local memory.
type Config struct {
	MaxFailuresBeforeBan int
	RecencyCacheCap      int
	BloomExpectedItems   uint
	BloomFalsePositive   float64
}

// DefaultConfig returns the standard sizing: ban after 5 consecutive
// failures, a 100k-entry recency cache, and a seen-set dimensioned for
// ten million coin ids.
func DefaultConfig() Config {
	return Config{
		MaxFailuresBeforeBan: 5,
		RecencyCacheCap:      100_000,
		BloomExpectedItems:   DefaultBloomItems,
		BloomFalsePositive:   DefaultBloomFalsePositive,
	}
}

// Stats are observability-only counters.
type Stats struct {
	ZeroBalancePrevented  int
	DoubleSpendsPrevented int
	InvalidSignatures     int
	BannedWalletsCount    int
}

// Verdict is an Agent's response to a validation request. SenderFault
// marks rejections attributable to the sender (the counter-bumping
// fraud stages plus the ban check) as opposed to transient or
// process-level conditions a retry with a fresh committee might clear
// (missing directory key, malformed intent, expiry).
type Verdict struct {
	Valid             bool
	Reason            string
	SenderFault       bool
	WitnessID         int
	Timestamp         int64
	ReputationScore   float64
	PreviousTimestamp int64
}

// Agent is a stateless witness: every piece of state below is the
// agent's own bounded local memory, never a shared ledger. mu serializes
// Validate calls so each agent is its own critical section.
type Agent struct {
	ID     int
	Wallet *wallet.Wallet

	mu sync.Mutex

	seenCoins          *SeenSet
	recentTransactions *RecencyCache
	validatedValues    map[string]int64
	validationFailures map[string]int
	bannedWallets      map[string]struct{}
	directory          directory.Lookup

	Reputation *Reputation
	Stats      Stats

	maxFailuresBeforeBan int
}

// NewAgent constructs a witness bound to its own wallet and a shared
// public-key directory.
func NewAgent(id int, w *wallet.Wallet, dir directory.Lookup, cfg Config) *Agent {
	if cfg.MaxFailuresBeforeBan <= 0 {
		cfg.MaxFailuresBeforeBan = 5
	}
	return &Agent{
		ID:                   id,
		Wallet:               w,
		seenCoins:            NewSeenSet(cfg.BloomExpectedItems, cfg.BloomFalsePositive, DefaultBloomHashes),
		recentTransactions:   NewRecencyCache(cfg.RecencyCacheCap),
		validatedValues:      make(map[string]int64),
		validationFailures:   make(map[string]int),
		bannedWallets:        make(map[string]struct{}),
		directory:            dir,
		Reputation:           NewReputation(),
		maxFailuresBeforeBan: cfg.MaxFailuresBeforeBan,
	}
}

// Directory exposes the agent's public-key lookup so a network
// orchestrator can warm per-agent caches during initialization and
// capture them for persistence.
func (a *Agent) Directory() directory.Lookup { return a.directory }

// PersistedState is the per-agent snapshot written by the periodic
// stats sweep and on shutdown.
type PersistedState struct {
	ID                 int               `json:"id"`
	Filter             []byte            `json:"filter"`
	RecentTransactions []CacheRecord     `json:"recent_transactions"`
	ValidatedValues    map[string]int64  `json:"validated_values"`
	BannedWallets      []string          `json:"banned_wallets"`
	PublicKeyDirectory map[string]string `json:"public_key_directory"`
	Reputation         *Reputation       `json:"reputation"`
	Stats              Stats             `json:"stats"`
	Timestamp          int64             `json:"timestamp"`
}

// ExportState captures the agent's full bounded local memory for
// persistence.
func (a *Agent) ExportState(now int64) (PersistedState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	filterBytes, err := a.seenCoins.MarshalBinary()
	if err != nil {
		return PersistedState{}, fmt.Errorf("witness: marshal seen-set: %w", err)
	}
	banned := make([]string, 0, len(a.bannedWallets))
	for w := range a.bannedWallets {
		banned = append(banned, w)
	}
	values := make(map[string]int64, len(a.validatedValues))
	for k, v := range a.validatedValues {
		values[k] = v
	}
	var dirSnapshot map[string]string
	if cl, ok := a.directory.(*directory.CachingLookup); ok {
		dirSnapshot = cl.Snapshot()
	}

	return PersistedState{
		ID: a.ID, Filter: filterBytes,
		RecentTransactions: a.recentTransactions.Snapshot(),
		ValidatedValues:    values,
		BannedWallets:      banned,
		PublicKeyDirectory: dirSnapshot,
		Reputation:         a.Reputation,
		Stats:              a.Stats,
		Timestamp:          now,
	}, nil
}

// ImportState restores bounded local memory previously captured by
// ExportState. The agent must already be constructed with the same
// bloom sizing (NewAgent's cfg) so the filter byte layout matches.
func (a *Agent) ImportState(ps PersistedState) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(ps.Filter) > 0 {
		if err := a.seenCoins.UnmarshalBinary(ps.Filter); err != nil {
			return fmt.Errorf("witness: unmarshal seen-set: %w", err)
		}
	}
	a.recentTransactions = NewRecencyCacheFromSnapshot(a.recentTransactions.cap, ps.RecentTransactions)
	if ps.ValidatedValues != nil {
		a.validatedValues = ps.ValidatedValues
	}
	a.bannedWallets = make(map[string]struct{}, len(ps.BannedWallets))
	for _, w := range ps.BannedWallets {
		a.bannedWallets[w] = struct{}{}
	}
	if cl, ok := a.directory.(*directory.CachingLookup); ok {
		cl.SeedCache(ps.PublicKeyDirectory)
	}
	if ps.Reputation != nil {
		a.Reputation = ps.Reputation
	}
	a.Stats = ps.Stats
	return nil
}

// IsBanned reports whether walletID is currently banned.
func (a *Agent) IsBanned(walletID string) bool {
	_, ok := a.bannedWallets[walletID]
	return ok
}

// Unban clears walletID's ban and resets its failure counter.
func (a *Agent) Unban(walletID string) {
	delete(a.bannedWallets, walletID)
	delete(a.validationFailures, walletID)
}

func txHash(coinID, sender, recipient, signature string, timestamp, value int64) string {
	raw := fmt.Sprintf("%s-%s-%s-%s-%d-%d", coinID, sender, recipient, signature, timestamp, value)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// bumpFailure increments sender's consecutive counter-bumping failure
// count and bans the wallet once it reaches the threshold.
func (a *Agent) bumpFailure(sender string) {
	a.validationFailures[sender]++
	if a.validationFailures[sender] >= a.maxFailuresBeforeBan {
		if _, already := a.bannedWallets[sender]; !already {
			a.bannedWallets[sender] = struct{}{}
			a.Stats.BannedWalletsCount++
			log.Warnf("witness %d: banned wallet %s after %d failures", a.ID, sender, a.validationFailures[sender])
		}
	}
}

func (a *Agent) resetFailures(sender string) {
	delete(a.validationFailures, sender)
}

func (a *Agent) reject(reason string, senderFault bool) Verdict {
	return Verdict{Valid: false, Reason: reason, SenderFault: senderFault, WitnessID: a.ID, Timestamp: NowMillis(), ReputationScore: a.Reputation.Score}
}

// Validate runs the ordered 11-stage pipeline against a transfer intent.
// The first failing stage short-circuits with its specific reason.
func (a *Agent) Validate(intent *wallet.TransferIntent) (verdict Verdict) {
	a.mu.Lock()
	defer a.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			now := NowMillis()
			a.Reputation.RecordFailure(0.5, now)
			log.Errorf("witness %d: validation panic: %v", a.ID, r)
			verdict = Verdict{
				Valid: false, Reason: fmt.Sprintf("validation error: %v", r),
				WitnessID: a.ID, Timestamp: now, ReputationScore: a.Reputation.Score,
			}
		}
	}()

	// Stage 1: shape check.
	if intent == nil || intent.Coin == nil || intent.Signature == "" || intent.Sender == "" || intent.Recipient == "" {
		return a.reject("missing required transfer data", false)
	}

	// Stage 2: ban check.
	if a.IsBanned(intent.Sender) {
		return a.reject("sender wallet is banned due to suspicious activity", true)
	}

	c := intent.Coin
	now := NowMillis()

	// Stage 3: integrity.
	if !c.VerifyIntegrity() {
		a.bumpFailure(intent.Sender)
		return a.reject("coin integrity check failed", true)
	}

	// Stage 4: status.
	if c.Status != coin.StatusActive {
		a.bumpFailure(intent.Sender)
		return a.reject(fmt.Sprintf("coin status is %s, not active", c.Status), true)
	}

	// Stage 5: zero/negative value.
	if c.Value <= 0 {
		a.bumpFailure(intent.Sender)
		a.Stats.ZeroBalancePrevented++
		return a.reject("zero or negative value coin detected", true)
	}

	// Stage 6: inflation.
	if last, ok := a.validatedValues[c.ID]; ok && c.Value > last {
		a.bumpFailure(intent.Sender)
		return a.reject(fmt.Sprintf("coin value has been inflated from %d to %d", last, c.Value), true)
	}

	// Stage 7: probabilistic double-spend.
	if a.seenCoins.Contains(c.ID) {
		a.bumpFailure(intent.Sender)
		a.Stats.DoubleSpendsPrevented++
		if entry, ok := a.recentTransactions.Get(c.ID); ok {
			a.Reputation.RecordSuccess(2.0, now)
			ts := time.UnixMilli(entry.Timestamp).UTC().Format(time.RFC3339)
			v := a.reject(fmt.Sprintf("confirmed double-spend detected (previous transfer: %s)", ts), true)
			v.PreviousTimestamp = entry.Timestamp
			return v
		}
		a.Reputation.RecordSuccess(1.5, now)
		return a.reject("possible double-spend detected", true)
	}

	// Stage 8: expiry.
	if c.IsExpired(now) {
		return a.reject("coin has expired", false)
	}

	// Stage 9: replay.
	hash := txHash(c.ID, intent.Sender, intent.Recipient, intent.Signature, intent.Timestamp, c.Value)
	if a.recentTransactions.Has(hash) {
		a.bumpFailure(intent.Sender)
		return a.reject("transaction replay detected", true)
	}

	// Stage 10: signature.
	pub, ok := a.directory.GetPublicKey(intent.Sender)
	if !ok {
		return a.reject("unable to retrieve sender public key", false)
	}
	payload := c.SignatureData(intent.Recipient, intent.Timestamp)
	if err := wallet.VerifySignature(payload, intent.Signature, pub); err != nil {
		a.bumpFailure(intent.Sender)
		if err == wallet.ErrSignatureMismatch {
			a.Stats.InvalidSignatures++
			return a.reject("invalid signature", true)
		}
		return a.reject(fmt.Sprintf("signature verification error: %s", err), true)
	}

	// Stage 11: accept.
	a.seenCoins.Add(c.ID)
	a.recentTransactions.Put(c.ID, CacheEntry{
		Timestamp: now, Hash: hash, Sender: intent.Sender, Recipient: intent.Recipient, Value: c.Value, CoinID: c.ID,
	})
	a.recentTransactions.Put(hash, CacheEntry{Timestamp: now, CoinID: c.ID})
	a.validatedValues[c.ID] = c.Value
	a.resetFailures(intent.Sender)
	a.Reputation.RecordSuccess(1.0, now)

	return Verdict{
		Valid: true, WitnessID: a.ID, Timestamp: now, ReputationScore: a.Reputation.Score,
	}
}
