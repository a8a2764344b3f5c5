// Package wallet holds an RSA-2048 keypair and the multiset of coins it
// owns. It signs transfer intents and verifies signatures on behalf of
// witnesses that need to check a sender's claim.
//
// Import hygiene: wallet depends only on coin + crypto/log utilities. It
// does not import witness or network, keeping it at the lowest tier.
package wallet

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/quorumcoin/witness-network/internal/coin"
)

// SetLogger overrides the package-level logger.
func SetLogger(l *log.Logger) { logger = l }

var logger = log.New()

const rsaKeyBits = 2048

// TransferIntent is the wire form of a proposed transfer: the coin, the
// sender's signature over its canonical payload, and the endpoints.
type TransferIntent struct {
	Coin      *coin.Coin
	Signature string // base64
	Sender    string
	Recipient string
	Timestamp int64
	Value     int64
}

// Wallet owns an RSA-2048 keypair and a multiset of coins.
type Wallet struct {
	priv *rsa.PrivateKey
	pub  *rsa.PublicKey

	publicKeyPEM string
	id           string

	Coins        []*coin.Coin
	Transactions []TransactionRecord
}

// TransactionRecord is the wallet's local append-only send/receive log.
type TransactionRecord struct {
	Direction string `json:"direction"` // "send" or "receive"
	CoinID    string `json:"coin_id"`
	Peer      string `json:"peer"`
	Value     int64  `json:"value"`
	Timestamp int64  `json:"timestamp"`
}

// New generates a fresh RSA-2048 keypair and derives the wallet id.
func New() (*Wallet, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("wallet: generate key: %w", err)
	}
	return fromPrivateKey(priv)
}

// Load reconstructs a Wallet from a PEM-encoded PKCS8 private key read
// from storage.
func Load(pemData []byte) (*Wallet, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("wallet: invalid PEM block")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("wallet: parse PKCS8 key: %w", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("wallet: key is not RSA")
	}
	return fromPrivateKey(priv)
}

func fromPrivateKey(priv *rsa.PrivateKey) (*Wallet, error) {
	pubBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: marshal public key: %w", err)
	}
	pemBlock := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	w := &Wallet{
		priv:         priv,
		pub:          &priv.PublicKey,
		publicKeyPEM: string(pemBlock),
	}
	w.id = DeriveID(w.publicKeyPEM)
	logger.Infof("wallet: created %s", w.id)
	return w, nil
}

// DeriveID computes SHA-256(public_key_pem) truncated to 16 hex chars.
func DeriveID(publicKeyPEM string) string {
	sum := sha256.Sum256([]byte(publicKeyPEM))
	return hex.EncodeToString(sum[:])[:16]
}

// ID returns the wallet's derived identifier.
func (w *Wallet) ID() string { return w.id }

// PublicKeyPEM returns the SPKI PEM encoding of the wallet's public key.
func (w *Wallet) PublicKeyPEM() string { return w.publicKeyPEM }

// PrivateKeyPEM returns the PKCS8 PEM encoding of the wallet's private
// key. Callers are responsible for secure storage.
func (w *Wallet) PrivateKeyPEM() (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(w.priv)
	if err != nil {
		return "", fmt.Errorf("wallet: marshal private key: %w", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return string(block), nil
}

// AddCoin appends a coin the wallet now holds, rejecting any coin whose
// owner_id doesn't match this wallet's id.
func (w *Wallet) AddCoin(c *coin.Coin) error {
	if c.OwnerID != w.id {
		return fmt.Errorf("wallet: coin owner %s does not match wallet %s", c.OwnerID, w.id)
	}
	w.Coins = append(w.Coins, c)
	w.Transactions = append(w.Transactions, TransactionRecord{
		Direction: "receive", CoinID: c.ID, Value: c.Value, Timestamp: time.Now().UnixMilli(),
	})
	logger.Infof("wallet %s: received coin %s value=%d", w.id, c.ID, c.Value)
	return nil
}

// TransferCoin removes the coin at index from local holdings, signs the
// transfer payload, and returns the resulting TransferIntent. It returns
// an error if index is out of range.
//
// The signed payload is coin.SignatureData(recipientID, timestamp), the
// same canonical string a witness recomputes at the signature stage of
// validation.
func (w *Wallet) TransferCoin(index int, recipientID string) (*TransferIntent, error) {
	if index < 0 || index >= len(w.Coins) {
		return nil, fmt.Errorf("wallet: coin index %d out of range", index)
	}
	c := w.Coins[index]
	now := time.Now().UnixMilli()

	payload := c.SignatureData(recipientID, now)
	sigBytes, err := w.sign(payload)
	if err != nil {
		return nil, fmt.Errorf("wallet: sign transfer: %w", err)
	}
	sig := base64.StdEncoding.EncodeToString(sigBytes)

	w.Coins = append(w.Coins[:index], w.Coins[index+1:]...)
	w.Transactions = append(w.Transactions, TransactionRecord{
		Direction: "send", CoinID: c.ID, Peer: recipientID, Value: c.Value, Timestamp: now,
	})
	logger.Infof("wallet %s: signed transfer of coin %s to %s", w.id, c.ID, recipientID)

	return &TransferIntent{
		Coin: c, Signature: sig, Sender: w.id, Recipient: recipientID,
		Timestamp: now, Value: c.Value,
	}, nil
}

// RemoveCoinByID removes the first held coin with the given id,
// regardless of its position, and reports whether one was found. Used
// to tear down a forged coin after a double-spend simulation attempt.
func (w *Wallet) RemoveCoinByID(id string) bool {
	for i, c := range w.Coins {
		if c.ID == id {
			w.Coins = append(w.Coins[:i], w.Coins[i+1:]...)
			return true
		}
	}
	return false
}

func (w *Wallet) sign(data string) ([]byte, error) {
	h := sha256.Sum256([]byte(data))
	return rsa.SignPKCS1v15(rand.Reader, w.priv, crypto.SHA256, h[:])
}

// ErrSignatureMismatch is returned when a signature was well-formed but
// does not validate against the payload. Fraud, not a system error.
var ErrSignatureMismatch = fmt.Errorf("signature mismatch")

// VerifySignature checks an RSA-SHA256 signature over data using the
// given SPKI PEM public key. Errors decoding the key or signature are
// distinguished from ErrSignatureMismatch so callers can tell sender
// fraud apart from a malformed directory entry.
func VerifySignature(data, signatureB64, publicKeyPEM string) error {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return fmt.Errorf("wallet: invalid public key PEM")
	}
	pubAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("wallet: parse public key: %w", err)
	}
	pub, ok := pubAny.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("wallet: public key is not RSA")
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("wallet: decode signature: %w", err)
	}
	h := sha256.Sum256([]byte(data))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], sig); err != nil {
		return ErrSignatureMismatch
	}
	return nil
}

// Balance sums the value of every coin currently held.
func (w *Wallet) Balance() int64 {
	var total int64
	for _, c := range w.Coins {
		total += c.Value
	}
	return total
}
