// Package consent keeps an append-only ledger of wallet-signed trial consents.
// Each (user, trial) pair can be consented once.
package consent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"time"
)

// Chain identifies the wallet family that produced a signature.
type Chain string

const (
	ChainSolana Chain = "solana"
	ChainEVM    Chain = "evm"
)

// PDASeedPrefix is the first seed of the on-chain consent account; the second is the
// patient's wallet address.
const PDASeedPrefix = "consent"

// Record is one signed consent.
type Record struct {
	ID            int64     `json:"id,omitempty"`
	UserID        string    `json:"user_id"`
	TrialID       string    `json:"trial_id"`
	WalletAddress string    `json:"wallet_address"`
	AgreementHash string    `json:"agreement_hash"` // hex SHA-256 of the agreement text
	Signature     string    `json:"signature"`
	TxSignature   string    `json:"tx_signature,omitempty"`
	Chain         Chain     `json:"chain"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store defines the interface for consent ledger operations.
type Store interface {
	// Save appends a record. A second record for the same user and trial returns
	// domain.ErrDuplicate.
	Save(ctx context.Context, record *Record) error

	// Get returns the record for a user and trial, or domain.ErrNotFound.
	Get(ctx context.Context, userID, trialID string) (*Record, error)

	// ListByUser returns a user's consents, oldest first.
	ListByUser(ctx context.Context, userID string) ([]*Record, error)

	// Count returns the total number of consents.
	Count(ctx context.Context) (int64, error)

	// ExportJSON writes the whole ledger as JSON for audit.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// Close closes the store and releases resources.
	Close() error
}

// LedgerExport represents the JSON export format.
type LedgerExport struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Consents   []*Record `json:"consents"`
}

// HashAgreement returns the hex SHA-256 of the agreement text after trimming surrounding
// whitespace. Wallets sign this value.
func HashAgreement(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// PDASeeds returns the seeds of the consent account for a wallet.
func PDASeeds(wallet string) []string {
	return []string{PDASeedPrefix, wallet}
}
