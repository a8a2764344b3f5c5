// Package coin implements the self-contained value packet at the heart
// of the witness protocol: a coin carries its own identity, owner,
// denomination, hash-chained history, and state machine. There is no
// ledger behind it; every mutation recomputes the coin's own hash, so
// any out-of-band edit is caught by the next integrity check.
package coin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Status is the coin's state-machine position.
type Status string

const (
	StatusActive  Status = "active"
	StatusSpent   Status = "spent"
	StatusMerged  Status = "merged"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
	StatusFrozen  Status = "frozen"
)

// EventKind distinguishes history entries.
type EventKind string

const (
	EventTransfer EventKind = "transfer"
	EventSplit    EventKind = "split"
	EventMerge    EventKind = "merge"
)

// HistoryEvent is one entry in a coin's hash-chained history.
type HistoryEvent struct {
	Kind      EventKind `json:"kind"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Timestamp int64     `json:"timestamp"`
	Signature string    `json:"signature,omitempty"`
	Witnesses []int     `json:"witnesses,omitempty"`
	PrevHash  string    `json:"prev_hash"`
	Value     int64     `json:"value"`
	// PeerCoinID links a split/merge event to the sibling coin it was
	// produced with or consumed into.
	PeerCoinID string `json:"peer_coin_id,omitempty"`
}

// Coin is an immutable-identity, mutable-owner value packet.
type Coin struct {
	mu sync.Mutex

	ID              string         `json:"id"`
	OwnerID         string         `json:"owner_id"`
	Value           int64          `json:"value"`
	Status          Status         `json:"status"`
	History         []HistoryEvent `json:"history"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Created         int64          `json:"created"`
	LastTransferred int64          `json:"last_transferred"`
	ExpiryDate      int64          `json:"expiry_date,omitempty"`
	Hash            string         `json:"hash"`
	Version         int            `json:"version"`
}

// Sentinel validation and operation errors.
var (
	ErrInvalidValue     = fmt.Errorf("coin value must be positive")
	ErrInvalidRecipient = fmt.Errorf("invalid recipient")
	ErrMissingSignature = fmt.Errorf("missing signature")
	ErrZeroValue        = fmt.Errorf("zero or negative value coin detected")
	ErrExpired          = fmt.Errorf("coin has expired")
	ErrBadSplitValue    = fmt.Errorf("split value must be between zero and the coin's current value")
	ErrOwnerMismatch    = fmt.Errorf("merge requires matching owners")
	ErrNotActive        = fmt.Errorf("merge requires an active coin")
)

// InactiveStatusError reports a transfer attempted against a non-active coin.
type InactiveStatusError struct {
	Status Status
}

func (e *InactiveStatusError) Error() string {
	return fmt.Sprintf("coin status is %s, not active", e.Status)
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// New constructs an active Coin owned by ownerID. value must be positive.
// If id is empty a fresh uuid is generated.
func New(ownerID string, value int64, id string, metadata map[string]string) (*Coin, error) {
	if value <= 0 {
		return nil, ErrInvalidValue
	}
	if id == "" {
		id = uuid.NewString()
	}
	ts := nowMillis()
	c := &Coin{
		ID:              id,
		OwnerID:         ownerID,
		Value:           value,
		Status:          StatusActive,
		History:         []HistoryEvent{},
		Metadata:        metadata,
		Created:         ts,
		LastTransferred: ts,
		Version:         1,
	}
	c.recomputeHash()
	log.Infof("coin: minted %s value=%d owner=%s", c.ID, c.Value, c.OwnerID)
	return c, nil
}

// canonicalFields builds the canonical payload hashed into Hash:
// id, owner, value, created, last_transferred, history length, status,
// and the last history entry's prev-hash link.
func (c *Coin) canonicalFields() string {
	lastHistoryHash := ""
	if n := len(c.History); n > 0 {
		lastHistoryHash = c.History[n-1].PrevHash
	}
	return fmt.Sprintf("%s|%s|%d|%d|%d|%d|%s|%s",
		c.ID, c.OwnerID, c.Value, c.Created, c.LastTransferred,
		len(c.History), c.Status, lastHistoryHash)
}

func (c *Coin) recomputeHash() {
	sum := sha256.Sum256([]byte(c.canonicalFields()))
	c.Hash = hex.EncodeToString(sum[:])
}

// VerifyIntegrity recomputes the hash over current fields and reports
// whether it still matches the stored hash.
func (c *Coin) VerifyIntegrity() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sum := sha256.Sum256([]byte(c.canonicalFields()))
	return hex.EncodeToString(sum[:]) == c.Hash
}

// RecomputeHash rehashes the coin from its current fields. Exported for
// callers that legitimately mutate a coin outside the sanctioned
// operations (e.g. restoring a persisted snapshot after patching a
// field) and must keep Hash consistent before the next integrity check.
func (c *Coin) RecomputeHash() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recomputeHash()
}

// SignatureData returns the canonical string a sender signs for a
// transfer to recipientID at timestamp, and a witness recomputes when
// verifying that signature.
func (c *Coin) SignatureData(recipientID string, timestamp int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("%s-%s-%s-%d-%d-%s-%s",
		c.ID, c.OwnerID, recipientID, timestamp, c.Value, c.Hash, c.Status)
}

// IsExpired reports whether the coin's expiry_date has elapsed.
func (c *Coin) IsExpired(now int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ExpiryDate > 0 && now >= c.ExpiryDate
}

// Transfer appends a transfer event and rewrites ownership. witnesses is
// the list of witness agent ids that attested the transfer.
func (c *Coin) Transfer(newOwnerID, signature string, witnesses []int, now int64) error {
	if newOwnerID == "" {
		return ErrInvalidRecipient
	}
	if signature == "" {
		return ErrMissingSignature
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Status != StatusActive {
		return &InactiveStatusError{Status: c.Status}
	}
	if c.Value <= 0 {
		return ErrZeroValue
	}
	if c.ExpiryDate > 0 && now >= c.ExpiryDate {
		c.Status = StatusExpired
		c.recomputeHash()
		return ErrExpired
	}

	ev := HistoryEvent{
		Kind:      EventTransfer,
		From:      c.OwnerID,
		To:        newOwnerID,
		Timestamp: now,
		Signature: signature,
		Witnesses: append([]int(nil), witnesses...),
		PrevHash:  c.Hash,
		Value:     c.Value,
	}
	c.History = append(c.History, ev)
	c.OwnerID = newOwnerID
	c.LastTransferred = now
	c.recomputeHash()
	log.Infof("coin: transferred %s to %s value=%d", c.ID, newOwnerID, c.Value)
	return nil
}

// Split produces a new coin of newValue owned by the same wallet, reducing
// self's value by newValue. Both coins append a shared split event.
func (c *Coin) Split(newValue int64, now int64) (*Coin, error) {
	c.mu.Lock()
	if newValue <= 0 || newValue >= c.Value {
		c.mu.Unlock()
		return nil, ErrBadSplitValue
	}
	owner := c.OwnerID
	remaining := c.Value - newValue
	c.mu.Unlock()

	sibling := &Coin{
		ID:              uuid.NewString(),
		OwnerID:         owner,
		Value:           newValue,
		Status:          StatusActive,
		History:         []HistoryEvent{},
		Created:         now,
		LastTransferred: now,
		Version:         1,
	}
	sibling.recomputeHash()

	c.mu.Lock()
	selfEv := HistoryEvent{
		Kind: EventSplit, Timestamp: now, PrevHash: c.Hash,
		Value: remaining, PeerCoinID: sibling.ID,
	}
	c.Value = remaining
	c.History = append(c.History, selfEv)
	c.recomputeHash()
	c.mu.Unlock()

	sibling.mu.Lock()
	sibling.History = append(sibling.History, HistoryEvent{
		Kind: EventSplit, Timestamp: now, PrevHash: sibling.Hash,
		Value: newValue, PeerCoinID: c.ID,
	})
	sibling.recomputeHash()
	sibling.mu.Unlock()

	log.Infof("coin: split %s -> %s (new=%d, remaining=%d)", c.ID, sibling.ID, newValue, remaining)
	return sibling, nil
}

// Merge absorbs other into self: self.Value += other.Value, other becomes
// merged. Both append a shared merge event.
func (c *Coin) Merge(other *Coin, now int64) error {
	c.mu.Lock()
	other.mu.Lock()
	defer other.mu.Unlock()
	defer c.mu.Unlock()

	if c.OwnerID != other.OwnerID {
		return ErrOwnerMismatch
	}
	if c.Status != StatusActive || other.Status != StatusActive {
		return ErrNotActive
	}

	addedValue := other.Value
	c.Value += addedValue
	c.History = append(c.History, HistoryEvent{
		Kind: EventMerge, Timestamp: now, PrevHash: c.Hash,
		Value: c.Value, PeerCoinID: other.ID,
	})
	c.recomputeHash()

	other.Status = StatusMerged
	other.History = append(other.History, HistoryEvent{
		Kind: EventMerge, Timestamp: now, PrevHash: other.Hash,
		Value: 0, PeerCoinID: c.ID,
	})
	other.recomputeHash()

	log.Infof("coin: merged %s into %s, new value=%d", other.ID, c.ID, c.Value)
	return nil
}

// Snapshot is the canonical JSON form used by Serialize/Deserialize.
type Snapshot struct {
	ID              string            `json:"id"`
	OwnerID         string            `json:"owner_id"`
	Value           int64             `json:"value"`
	Created         int64             `json:"created"`
	LastTransferred int64             `json:"last_transferred"`
	Hash            string            `json:"hash"`
	History         []HistoryEvent    `json:"history"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Version         int               `json:"version"`
	Status          Status            `json:"status"`
	ExpiryDate      int64             `json:"expiry_date,omitempty"`
}

// Serialize returns the canonical JSON representation of the coin.
func (c *Coin) Serialize() ([]byte, error) {
	c.mu.Lock()
	snap := Snapshot{
		ID: c.ID, OwnerID: c.OwnerID, Value: c.Value, Created: c.Created,
		LastTransferred: c.LastTransferred, Hash: c.Hash, History: c.History,
		Metadata: c.Metadata, Version: c.Version, Status: c.Status,
		ExpiryDate: c.ExpiryDate,
	}
	c.mu.Unlock()
	return json.Marshal(snap)
}

// Deserialize rebuilds a Coin from its canonical JSON form. It recomputes
// the hash and logs a warning if the stored hash no longer matches.
func Deserialize(data []byte) (*Coin, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("coin: deserialize: %w", err)
	}
	c := &Coin{
		ID: snap.ID, OwnerID: snap.OwnerID, Value: snap.Value, Created: snap.Created,
		LastTransferred: snap.LastTransferred, History: snap.History,
		Metadata: snap.Metadata, Version: snap.Version, Status: snap.Status,
		ExpiryDate: snap.ExpiryDate, Hash: snap.Hash,
	}
	storedHash := c.Hash
	c.recomputeHash()
	if c.Hash != storedHash {
		log.Warnf("coin: %s hash mismatch on deserialize (stored=%s recomputed=%s)", c.ID, storedHash, c.Hash)
	}
	return c, nil
}
