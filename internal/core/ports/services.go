package ports

import (
	"context"
	"math/big"
	"time"

	"github.com/sand/chat-wallet-app/backend/internal/entities"
)

// WalletResolver maps user identifiers to accounts and signing capability.
type WalletResolver interface {
	// Resolve returns the account for an identifier, or
	// entities.ErrAccountNotFound when the identifier is unknown.
	Resolve(ctx context.Context, identifier string) (*entities.Account, error)
	// Register provisions a wallet for a new identifier; registering an
	// existing one returns the stored account unchanged.
	Register(ctx context.Context, identifier string) (*entities.Account, error)
	// Signer derives the signing handle for a known account.
	Signer(ctx context.Context, identifier string) (*entities.SigningHandle, error)
}

// ChainOracle is the blocking balance/gas/submission surface of the chain.
// GetBalance and EstimateCost are safe to retry; the submit methods are not.
type ChainOracle interface {
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	EstimateCost(ctx context.Context, from, to string, amount *big.Int) (*big.Int, error)
	SubmitTransfer(ctx context.Context, signer *entities.SigningHandle, to string, amount *big.Int) (string, error)
	CallContract(ctx context.Context, signer *entities.SigningHandle, contract string, data []byte, amount *big.Int) (string, error)
}

// Messenger delivers outbound chat notifications, best effort. A failed send
// must never roll back a completed financial operation, so Send reports
// nothing.
type Messenger interface {
	Send(ctx context.Context, identifier, text string)
}

// EscrowService is the claim-link escrow surface consumed by the dispatcher,
// the sweep worker and the HTTP layer.
type EscrowService interface {
	CreateClaimLink(ctx context.Context, sender *entities.Account, senderSigner *entities.SigningHandle, recipientIdentifier, displayName string, amount *big.Int) (*CreatedClaim, error)
	Claim(ctx context.Context, tokenPlain, claimerAddress string) (*ClaimReceipt, error)
	SweepExpired(ctx context.Context) (int, error)
}

// CreatedClaim pairs the persisted link with the one-time plaintext token.
type CreatedClaim struct {
	Link  *entities.ClaimLink
	Token string
}

// ClaimReceipt reports a successful redemption.
type ClaimReceipt struct {
	NetAmount *big.Int
	GasCost   *big.Int
	TxHash    string
	ClaimedAt time.Time
}
