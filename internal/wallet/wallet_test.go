package wallet

import (
	"testing"

	"github.com/quorumcoin/witness-network/internal/coin"
)

func TestNewDerivesStableID(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if len(w.ID()) != 16 {
		t.Fatalf("expected 16-char id, got %q", w.ID())
	}
	if DeriveID(w.PublicKeyPEM()) != w.ID() {
		t.Fatalf("DeriveID mismatch")
	}
}

func TestAddCoinRejectsWrongOwner(t *testing.T) {
	w, _ := New()
	c, _ := coin.New("someone-else", 5, "", nil)
	if err := w.AddCoin(c); err == nil {
		t.Fatalf("expected error adding coin owned by another wallet")
	}
}

func TestTransferCoinSignsAndRemovesHolding(t *testing.T) {
	w, _ := New()
	c, _ := coin.New(w.ID(), 5, "", nil)
	if err := w.AddCoin(c); err != nil {
		t.Fatalf("AddCoin failed: %v", err)
	}

	intent, err := w.TransferCoin(0, "recipient-id")
	if err != nil {
		t.Fatalf("TransferCoin failed: %v", err)
	}
	if len(w.Coins) != 0 {
		t.Fatalf("expected coin removed from holdings")
	}
	if intent.Sender != w.ID() || intent.Recipient != "recipient-id" {
		t.Fatalf("unexpected intent fields: %+v", intent)
	}

	payload := intent.Coin.SignatureData(intent.Recipient, intent.Timestamp)
	if err := VerifySignature(payload, intent.Signature, w.PublicKeyPEM()); err != nil {
		t.Fatalf("signature failed to verify: %v", err)
	}
}

func TestTransferCoinOutOfRange(t *testing.T) {
	w, _ := New()
	if _, err := w.TransferCoin(0, "recipient"); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestBalanceSumsHeldCoins(t *testing.T) {
	w, _ := New()
	c1, _ := coin.New(w.ID(), 3, "", nil)
	c2, _ := coin.New(w.ID(), 4, "", nil)
	_ = w.AddCoin(c1)
	_ = w.AddCoin(c2)
	if got := w.Balance(); got != 7 {
		t.Fatalf("expected balance 7, got %d", got)
	}
}

func TestLoadFromPrivateKeyPEM(t *testing.T) {
	w, _ := New()
	pemStr, err := w.PrivateKeyPEM()
	if err != nil {
		t.Fatalf("PrivateKeyPEM failed: %v", err)
	}
	loaded, err := Load([]byte(pemStr))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ID() != w.ID() {
		t.Fatalf("loaded wallet id mismatch: %s vs %s", loaded.ID(), w.ID())
	}
}
