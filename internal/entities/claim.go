package entities

import (
	"math/big"
	"time"
)

// ClaimStatus is the lifecycle state of an escrowed claim link.
type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimClaimed  ClaimStatus = "claimed"
	ClaimRefunded ClaimStatus = "refunded"
)

// ClaimLink is a single-use, time-boxed reference letting an unresolved
// recipient redeem an escrowed transfer. Only the SHA-256 hash of the claim
// token is ever stored; the plaintext is returned once at creation.
type ClaimLink struct {
	ID                  string      `db:"id" json:"id"`
	TokenHash           string      `db:"token_hash" json:"-"`
	SenderIdentifier    string      `db:"sender_identifier" json:"sender_identifier"`
	SenderAddress       string      `db:"sender_address" json:"sender_address"`
	RecipientIdentifier string      `db:"recipient_identifier" json:"recipient_identifier"`
	DisplayName         string      `db:"display_name" json:"display_name"`
	Amount              string      `db:"amount" json:"amount"`
	Status              ClaimStatus `db:"status" json:"status"`
	PayoutTxHash        string      `db:"payout_tx_hash" json:"payout_tx_hash,omitempty"`
	CreatedAt           time.Time   `db:"created_at" json:"created_at"`
	ExpiresAt           time.Time   `db:"expires_at" json:"expires_at"`
	ClaimedAt           *time.Time  `db:"claimed_at" json:"claimed_at,omitempty"`
	RefundedAt          *time.Time  `db:"refunded_at" json:"refunded_at,omitempty"`
}

// AmountWei parses the held amount into wei.
func (c *ClaimLink) AmountWei() *big.Int {
	amount, ok := new(big.Int).SetString(c.Amount, 10)
	if !ok {
		return big.NewInt(0)
	}
	return amount
}

// IsTerminal reports whether the claim has reached a final state and must
// never be mutated again.
func (c *ClaimLink) IsTerminal() bool {
	return c.Status == ClaimClaimed || c.Status == ClaimRefunded
}

// Expired reports whether the claim window has closed at the given instant.
func (c *ClaimLink) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
