package usecases

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.openly.dev/pointy"

	"github.com/sand/chat-wallet-app/backend/internal/core/ports"
	"github.com/sand/chat-wallet-app/backend/internal/entities"
	"github.com/sand/chat-wallet-app/backend/internal/shared"
)

const claimTokenBytes = 16

// ClaimsRepository persists claim links keyed by token hash.
type ClaimsRepository interface {
	Insert(ctx context.Context, link *entities.ClaimLink) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*entities.ClaimLink, error)
	ListBySender(ctx context.Context, senderIdentifier string) ([]entities.ClaimLink, error)
	ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]entities.ClaimLink, error)

	// MarkClaimed and MarkRefunded transition a link out of pending with a
	// conditional update and report whether this call made the transition.
	MarkClaimed(ctx context.Context, id, payoutTxHash string, at time.Time) (bool, error)
	MarkRefunded(ctx context.Context, id, refundTxHash string, at time.Time) (bool, error)
}

// ClaimEscrowService creates and redeems time-boxed claim links. Escrowed
// funds are parked on the treasury account until claimed or refunded.
type ClaimEscrowService struct {
	logger   *slog.Logger
	claims   ClaimsRepository
	history  TransactionsRepository
	oracle   ports.ChainOracle
	accounts AccountsRepository

	treasury *entities.SigningHandle
	ttl      time.Duration
	now      func() time.Time

	// Per-token locks so a claim and a concurrent sweep (or second claim)
	// cannot both move the same funds.
	locks sync.Map
}

func NewClaimEscrowService(
	logger *slog.Logger,
	claims ClaimsRepository,
	history TransactionsRepository,
	oracle ports.ChainOracle,
	accounts AccountsRepository,
	treasury *entities.SigningHandle,
	ttl time.Duration,
) *ClaimEscrowService {
	if ttl <= 0 {
		ttl = ports.ClaimTTL
	}
	return &ClaimEscrowService{
		logger:   logger,
		claims:   claims,
		history:  history,
		oracle:   oracle,
		accounts: accounts,
		treasury: treasury,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *ClaimEscrowService) tokenLock(tokenHash string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(tokenHash, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// dropTokenLock evicts the per-token mutex once the link is terminal, so the
// map does not grow with every token ever redeemed or swept. Safe because a
// late waiter on the old mutex only ever observes the terminal status.
func (s *ClaimEscrowService) dropTokenLock(tokenHash string) {
	s.locks.Delete(tokenHash)
}

// HashToken derives the stored lookup key from a plaintext claim token.
// Only the hash is persisted, so a leaked table never yields spendable links.
func HashToken(tokenPlain string) string {
	sum := sha256.Sum256([]byte(tokenPlain))
	return hex.EncodeToString(sum[:])
}

func mintToken() (string, error) {
	buf := make([]byte, claimTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to mint claim token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateClaimLink moves the amount from the sender into escrow and persists
// a pending claim. The plaintext token is returned exactly once.
func (s *ClaimEscrowService) CreateClaimLink(
	ctx context.Context,
	sender *entities.Account,
	senderSigner *entities.SigningHandle,
	recipientIdentifier, displayName string,
	amount *big.Int,
) (*ports.CreatedClaim, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, &entities.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	balance, err := s.freshBalance(ctx, sender.Address)
	if err != nil {
		return nil, err
	}

	// The sender pays gas on the funding transfer too, so affordability is
	// checked against amount plus its estimated cost.
	var fundingGas *big.Int
	err = shared.Retry(ctx, func(ctx context.Context) error {
		var estErr error
		fundingGas, estErr = s.oracle.EstimateCost(ctx, sender.Address, s.treasury.Address, amount)
		return estErr
	})
	if err != nil {
		return nil, &entities.NetworkError{Op: "funding gas estimation", Err: err}
	}

	required := new(big.Int).Add(amount, fundingGas)
	if required.Cmp(balance) > 0 {
		return nil, &entities.InsufficientBalanceError{Balance: balance, Required: required}
	}

	token, err := mintToken()
	if err != nil {
		return nil, err
	}

	// Fund the escrow first: if the chain rejects the transfer no link may
	// exist.
	fundingHash, err := s.oracle.SubmitTransfer(ctx, senderSigner, s.treasury.Address, amount)
	if err != nil {
		return nil, &entities.ExecutionError{Op: "escrow funding", Err: err}
	}

	createdAt := s.now()
	link := &entities.ClaimLink{
		ID:                  uuid.NewString(),
		TokenHash:           HashToken(token),
		SenderIdentifier:    sender.Identifier,
		SenderAddress:       sender.Address,
		RecipientIdentifier: recipientIdentifier,
		DisplayName:         displayName,
		Amount:              amount.String(),
		Status:              entities.ClaimPending,
		CreatedAt:           createdAt,
		ExpiresAt:           createdAt.Add(s.ttl),
	}

	if err = s.claims.Insert(ctx, link); err != nil {
		// Funds are already on the treasury; surface loudly rather than
		// invent a compensating transfer that could double-move money.
		s.logger.Error("Escrow funded but claim insert failed",
			"sender", sender.Identifier, "funding_tx", fundingHash, "error", err)
		return nil, fmt.Errorf("failed to persist claim link: %w", err)
	}

	s.appendHistory(ctx, &entities.TransactionRecord{
		ID:             uuid.NewString(),
		FromIdentifier: sender.Identifier,
		ToIdentifier:   recipientIdentifier,
		FromAddress:    sender.Address,
		ToAddress:      s.treasury.Address,
		Amount:         amount.String(),
		Kind:           entities.KindEscrowCreate,
		Reference:      link.ID,
		CreatedAt:      createdAt,
	})

	s.logger.Info("Claim link created",
		"claim_id", link.ID,
		"sender", sender.Identifier,
		"recipient", recipientIdentifier,
		"amount", amount.String(),
		"expires_at", link.ExpiresAt)

	return &ports.CreatedClaim{Link: link, Token: token}, nil
}

// Claim redeems a pending link: the payout is the held amount minus the gas
// cost of the payout transfer, floored at zero. A token redeems at most once
// even under concurrent attempts.
func (s *ClaimEscrowService) Claim(ctx context.Context, tokenPlain, claimerAddress string) (*ports.ClaimReceipt, error) {
	if claimerAddress == "" {
		return nil, &entities.ValidationError{Field: "address", Reason: "claimer address is required"}
	}

	tokenHash := HashToken(tokenPlain)

	mu := s.tokenLock(tokenHash)
	mu.Lock()
	defer mu.Unlock()

	link, err := s.claims.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up claim: %w", err)
	}
	if link == nil {
		return nil, entities.ErrClaimNotFound
	}
	// A refunded link means the money went back to the sender, so the claimer
	// gets the expiry remedy, not the already-redeemed one.
	if link.Status == entities.ClaimRefunded {
		s.dropTokenLock(tokenHash)
		return nil, entities.ErrClaimExpired
	}
	if link.Status == entities.ClaimClaimed {
		s.dropTokenLock(tokenHash)
		return nil, entities.ErrClaimAlreadyClaimed
	}
	if link.Expired(s.now()) {
		return nil, entities.ErrClaimExpired
	}

	amount := link.AmountWei()

	var gas *big.Int
	err = shared.Retry(ctx, func(ctx context.Context) error {
		var estErr error
		gas, estErr = s.oracle.EstimateCost(ctx, s.treasury.Address, claimerAddress, amount)
		return estErr
	})
	if err != nil {
		return nil, &entities.NetworkError{Op: "payout gas estimation", Err: err}
	}

	net := new(big.Int).Sub(amount, gas)
	if net.Sign() < 0 {
		net = big.NewInt(0)
	}

	var payoutHash string
	if net.Sign() > 0 {
		payoutHash, err = s.oracle.SubmitTransfer(ctx, s.treasury, claimerAddress, net)
		if err != nil {
			return nil, &entities.ExecutionError{Op: "claim payout", Err: err}
		}
	}

	claimedAt := s.now()
	transitioned, err := s.claims.MarkClaimed(ctx, link.ID, payoutHash, claimedAt)
	if err != nil {
		s.logger.Error("Payout sent but claim not marked", "claim_id", link.ID, "tx_hash", payoutHash, "error", err)
		return nil, fmt.Errorf("failed to mark claim: %w", err)
	}
	if !transitioned {
		return nil, entities.ErrClaimAlreadyClaimed
	}
	s.dropTokenLock(tokenHash)
	link.Status = entities.ClaimClaimed
	link.ClaimedAt = pointy.Pointer(claimedAt)
	link.PayoutTxHash = payoutHash

	s.appendHistory(ctx, &entities.TransactionRecord{
		ID:             uuid.NewString(),
		FromIdentifier: link.SenderIdentifier,
		ToIdentifier:   link.RecipientIdentifier,
		FromAddress:    s.treasury.Address,
		ToAddress:      claimerAddress,
		Amount:         net.String(),
		Kind:           entities.KindDirectTransfer,
		Reference:      payoutHash,
		CreatedAt:      claimedAt,
	})

	s.logger.Info("Claim redeemed",
		"claim_id", link.ID,
		"claimer", claimerAddress,
		"net", net.String(),
		"gas", gas.String())

	return &ports.ClaimReceipt{
		NetAmount: net,
		GasCost:   gas,
		TxHash:    payoutHash,
		ClaimedAt: claimedAt,
	}, nil
}

// SweepExpired refunds every pending claim past its expiry back to the
// sender. Runs on an active timer because nothing else would ever read an
// abandoned link. Idempotent: refunded links no longer match the scan.
func (s *ClaimEscrowService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.claims.ListExpiredPending(ctx, s.now(), 100)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired claims: %w", err)
	}

	refunded := 0
	for i := range expired {
		link := &expired[i]
		if err := s.refund(ctx, link); err != nil {
			s.logger.Error("Failed to refund expired claim", "claim_id", link.ID, "error", err)
			continue
		}
		refunded++
	}

	return refunded, nil
}

func (s *ClaimEscrowService) refund(ctx context.Context, link *entities.ClaimLink) error {
	mu := s.tokenLock(link.TokenHash)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock: a claim may have won the race.
	current, err := s.claims.FindByTokenHash(ctx, link.TokenHash)
	if err != nil {
		return err
	}
	if current == nil || current.IsTerminal() {
		s.dropTokenLock(link.TokenHash)
		return nil
	}

	amount := current.AmountWei()
	refundHash, err := s.oracle.SubmitTransfer(ctx, s.treasury, current.SenderAddress, amount)
	if err != nil {
		return &entities.ExecutionError{Op: "escrow refund", Err: err}
	}

	refundedAt := s.now()
	transitioned, err := s.claims.MarkRefunded(ctx, current.ID, refundHash, refundedAt)
	if err != nil {
		return err
	}
	s.dropTokenLock(link.TokenHash)
	if !transitioned {
		return nil
	}

	s.appendHistory(ctx, &entities.TransactionRecord{
		ID:             uuid.NewString(),
		FromIdentifier: current.RecipientIdentifier,
		ToIdentifier:   current.SenderIdentifier,
		FromAddress:    s.treasury.Address,
		ToAddress:      current.SenderAddress,
		Amount:         amount.String(),
		Kind:           entities.KindDirectTransfer,
		Reference:      refundHash,
		CreatedAt:      refundedAt,
	})

	s.logger.Info("Expired claim refunded",
		"claim_id", current.ID,
		"sender", current.SenderIdentifier,
		"amount", amount.String())

	return nil
}

// ListBySender exposes a sender's claim links for the HTTP surface.
func (s *ClaimEscrowService) ListBySender(ctx context.Context, senderIdentifier string) ([]entities.ClaimLink, error) {
	return s.claims.ListBySender(ctx, shared.NormalizeIdentifier(senderIdentifier))
}

func (s *ClaimEscrowService) freshBalance(ctx context.Context, address string) (*big.Int, error) {
	var balance *big.Int
	err := shared.Retry(ctx, func(ctx context.Context) error {
		var readErr error
		balance, readErr = s.oracle.GetBalance(ctx, address)
		return readErr
	})
	if err != nil {
		return nil, &entities.NetworkError{Op: "balance read", Err: err}
	}
	return balance, nil
}

func (s *ClaimEscrowService) appendHistory(ctx context.Context, record *entities.TransactionRecord) {
	if err := s.history.Append(ctx, record); err != nil {
		// History is append-only bookkeeping; the transfer itself already
		// happened.
		s.logger.Error("Failed to append transaction record", "reference", record.Reference, "error", err)
	}
}
