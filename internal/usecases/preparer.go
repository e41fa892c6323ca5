package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sand/chat-wallet-app/backend/internal/core/ports"
	"github.com/sand/chat-wallet-app/backend/internal/entities"
	"github.com/sand/chat-wallet-app/backend/internal/shared"
)

// AccountsRepository is the slice of persistence the engine needs from the
// user directory: lookups plus the cached balance column.
type AccountsRepository interface {
	FindByIdentifier(ctx context.Context, identifier string) (*entities.Account, error)
	FindByAddress(ctx context.Context, address string) (*entities.Account, error)
	UpdateCachedBalance(ctx context.Context, address string, balance *big.Int) error
}

// TransferRequest is a recognized money-moving intent handed in by the chat
// layer. Amount is the raw decimal string the user typed.
type TransferRequest struct {
	Amount    string
	Recipient string

	// Optional contract call routing. When Kind names a contract kind the
	// recipient resolution step is skipped and Contract/CallData are used.
	Kind     entities.TxKind
	Contract string
	CallData []byte
}

// Confirmation is the human-decidable summary shown before execution.
// All amounts are decimal ether strings.
type Confirmation struct {
	Kind             entities.TxKind `json:"kind"`
	RecipientDisplay string          `json:"recipient"`
	Amount           string          `json:"amount"`
	Fee              string          `json:"fee"`
	Total            string          `json:"total"`

	// EscrowNotice is set when the recipient has no account yet and the
	// transfer will create a claim link instead of paying out directly.
	EscrowNotice bool `json:"escrow_notice"`
}

// TransactionPreparer validates a requested transfer, resolves the recipient,
// prices it and parks the result in the confirmation registry.
type TransactionPreparer struct {
	logger   *slog.Logger
	resolver ports.WalletResolver
	oracle   ports.ChainOracle
	accounts AccountsRepository
	registry *ConfirmationRegistry
}

func NewTransactionPreparer(
	logger *slog.Logger,
	resolver ports.WalletResolver,
	oracle ports.ChainOracle,
	accounts AccountsRepository,
	registry *ConfirmationRegistry,
) *TransactionPreparer {
	return &TransactionPreparer{
		logger:   logger,
		resolver: resolver,
		oracle:   oracle,
		accounts: accounts,
		registry: registry,
	}
}

// Prepare runs the full validation pipeline. On any error nothing is stored;
// on success the pending transaction replaces whatever was pending before
// (last prepare wins) and the confirmation summary is returned.
func (p *TransactionPreparer) Prepare(ctx context.Context, user string, req TransferRequest) (*Confirmation, error) {
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	sender, err := p.resolver.Resolve(ctx, user)
	if err != nil {
		return nil, err
	}

	tx := &entities.PendingTransaction{
		Kind:             req.Kind,
		SenderIdentifier: sender.Identifier,
		SenderAddress:    sender.Address,
		Amount:           amount,
		CreatedAt:        time.Now(),
	}

	switch req.Kind {
	case entities.KindContractDeposit, entities.KindContractSwap:
		if !common.IsHexAddress(req.Contract) {
			return nil, &entities.ValidationError{Field: "contract", Reason: "not a valid address"}
		}
		tx.ContractAddress = req.Contract
		tx.RecipientAddress = req.Contract
		tx.RecipientDisplay = req.Contract
		tx.CallData = req.CallData
	default:
		if err = p.resolveRecipient(ctx, tx, req.Recipient); err != nil {
			return nil, err
		}
	}

	gas, err := p.estimateCost(ctx, tx)
	if err != nil {
		return nil, err
	}
	tx.EstimatedGas = gas

	balance := sender.CachedBalanceWei()
	total := tx.TotalCost()
	if total.Cmp(balance) > 0 {
		return nil, &entities.InsufficientBalanceError{Balance: balance, Required: total}
	}

	p.registry.Put(user, tx)

	p.logger.Info("Transfer prepared",
		"user", user,
		"kind", tx.Kind,
		"recipient", tx.RecipientDisplay,
		"amount", amount.String(),
		"gas", gas.String())

	return &Confirmation{
		Kind:             tx.Kind,
		RecipientDisplay: tx.RecipientDisplay,
		Amount:           FormatWei(amount),
		Fee:              FormatWei(gas),
		Total:            FormatWei(total),
		EscrowNotice:     tx.Kind == entities.KindEscrowCreate,
	}, nil
}

// resolveRecipient decides between a direct transfer and escrow creation.
// A raw hex address or a resolvable identifier yields DirectTransfer; an
// unresolved identifier is kept for a later claim link.
func (p *TransactionPreparer) resolveRecipient(ctx context.Context, tx *entities.PendingTransaction, recipient string) error {
	if recipient == "" {
		return &entities.ValidationError{Field: "recipient", Reason: "recipient is required"}
	}

	if common.IsHexAddress(recipient) {
		tx.Kind = entities.KindDirectTransfer
		tx.RecipientAddress = recipient
		tx.RecipientDisplay = recipient
		return nil
	}

	identifier := shared.NormalizeIdentifier(recipient)
	account, err := p.resolver.Resolve(ctx, identifier)
	if errors.Is(err, entities.ErrAccountNotFound) {
		tx.Kind = entities.KindEscrowCreate
		tx.RecipientIdentifier = identifier
		tx.RecipientDisplay = identifier
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve recipient: %w", err)
	}

	tx.Kind = entities.KindDirectTransfer
	tx.RecipientIdentifier = account.Identifier
	tx.RecipientAddress = account.Address
	tx.RecipientDisplay = account.Identifier
	return nil
}

// estimateCost queries the oracle with the bounded retry reserved for
// transient reads.
func (p *TransactionPreparer) estimateCost(ctx context.Context, tx *entities.PendingTransaction) (*big.Int, error) {
	var gas *big.Int

	err := shared.Retry(ctx, func(ctx context.Context) error {
		var estErr error
		gas, estErr = p.oracle.EstimateCost(ctx, tx.SenderAddress, tx.RecipientAddress, tx.Amount)
		return estErr
	})
	if err != nil {
		p.logger.Error("Gas estimation failed after retries", "user", tx.SenderIdentifier, "error", err)
		return nil, &entities.NetworkError{Op: "gas estimation", Err: err}
	}

	return gas, nil
}
