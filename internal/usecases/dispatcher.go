package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/sand/chat-wallet-app/backend/internal/core/ports"
	"github.com/sand/chat-wallet-app/backend/internal/entities"
)

// TransactionsRepository is the append-only transfer history.
type TransactionsRepository interface {
	Append(ctx context.Context, record *entities.TransactionRecord) error
	ListByIdentifier(ctx context.Context, identifier string, limit int) ([]entities.TransactionRecord, error)
}

// ExecutionDispatcher routes a confirmed pending transaction to the right
// execution path. Submissions are never retried: a timeout may still have
// landed on chain, and a second attempt could double-spend.
type ExecutionDispatcher struct {
	logger    *slog.Logger
	resolver  ports.WalletResolver
	oracle    ports.ChainOracle
	escrow    ports.EscrowService
	accounts  AccountsRepository
	history   TransactionsRepository
	messenger ports.Messenger
}

func NewExecutionDispatcher(
	logger *slog.Logger,
	resolver ports.WalletResolver,
	oracle ports.ChainOracle,
	escrow ports.EscrowService,
	accounts AccountsRepository,
	history TransactionsRepository,
	messenger ports.Messenger,
) *ExecutionDispatcher {
	return &ExecutionDispatcher{
		logger:    logger,
		resolver:  resolver,
		oracle:    oracle,
		escrow:    escrow,
		accounts:  accounts,
		history:   history,
		messenger: messenger,
	}
}

// Execute performs the confirmed transaction. The sender's cached balance is
// refreshed afterwards whether the execution succeeded or not, since a failed
// submission may still have consumed gas.
func (d *ExecutionDispatcher) Execute(ctx context.Context, tx *entities.PendingTransaction) (*ExecutionReceipt, error) {
	defer d.refreshBalance(ctx, tx.SenderAddress)

	signer, err := d.resolver.Signer(ctx, tx.SenderIdentifier)
	if err != nil {
		return nil, fmt.Errorf("failed to load signer for %s: %w", tx.SenderIdentifier, err)
	}

	switch tx.Kind {
	case entities.KindDirectTransfer:
		return d.executeDirect(ctx, tx, signer)
	case entities.KindEscrowCreate:
		return d.executeEscrow(ctx, tx, signer)
	case entities.KindContractDeposit, entities.KindContractSwap:
		return d.executeContract(ctx, tx, signer)
	default:
		return nil, fmt.Errorf("unknown transaction kind: %s", tx.Kind)
	}
}

func (d *ExecutionDispatcher) executeDirect(ctx context.Context, tx *entities.PendingTransaction, signer *entities.SigningHandle) (*ExecutionReceipt, error) {
	hash, err := d.oracle.SubmitTransfer(ctx, signer, tx.RecipientAddress, tx.Amount)
	if err != nil {
		return nil, &entities.ExecutionError{Op: "direct transfer", Err: err}
	}

	d.record(ctx, tx, hash)
	d.notify(ctx, tx.RecipientIdentifier,
		fmt.Sprintf("You received %s from %s", FormatWei(tx.Amount), tx.SenderIdentifier))

	d.logger.Info("Direct transfer submitted",
		"sender", tx.SenderIdentifier,
		"recipient", tx.RecipientDisplay,
		"amount", tx.Amount.String(),
		"tx_hash", hash)

	return &ExecutionReceipt{
		Kind:   tx.Kind,
		TxHash: hash,
		Amount: tx.Amount,
		Fee:    tx.EstimatedGas,
	}, nil
}

func (d *ExecutionDispatcher) executeEscrow(ctx context.Context, tx *entities.PendingTransaction, signer *entities.SigningHandle) (*ExecutionReceipt, error) {
	sender, err := d.resolver.Resolve(ctx, tx.SenderIdentifier)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sender %s: %w", tx.SenderIdentifier, err)
	}

	created, err := d.escrow.CreateClaimLink(ctx, sender, signer, tx.RecipientIdentifier, tx.RecipientDisplay, tx.Amount)
	if err != nil {
		return nil, err
	}

	d.logger.Info("Escrow created",
		"sender", tx.SenderIdentifier,
		"recipient", tx.RecipientIdentifier,
		"claim_id", created.Link.ID)

	return &ExecutionReceipt{
		Kind:           tx.Kind,
		Amount:         tx.Amount,
		Fee:            tx.EstimatedGas,
		ClaimToken:     created.Token,
		ClaimID:        created.Link.ID,
		ClaimExpiresAt: created.Link.ExpiresAt,
	}, nil
}

func (d *ExecutionDispatcher) executeContract(ctx context.Context, tx *entities.PendingTransaction, signer *entities.SigningHandle) (*ExecutionReceipt, error) {
	var value *big.Int
	if tx.Kind == entities.KindContractDeposit {
		value = tx.Amount
	} else {
		value = big.NewInt(0)
	}

	hash, err := d.oracle.CallContract(ctx, signer, tx.ContractAddress, tx.CallData, value)
	if err != nil {
		return nil, &entities.ExecutionError{Op: string(tx.Kind), Err: err}
	}

	d.record(ctx, tx, hash)

	d.logger.Info("Contract call submitted",
		"sender", tx.SenderIdentifier,
		"contract", tx.ContractAddress,
		"kind", tx.Kind,
		"tx_hash", hash)

	return &ExecutionReceipt{
		Kind:   tx.Kind,
		TxHash: hash,
		Amount: tx.Amount,
		Fee:    tx.EstimatedGas,
	}, nil
}

func (d *ExecutionDispatcher) record(ctx context.Context, tx *entities.PendingTransaction, hash string) {
	err := d.history.Append(ctx, &entities.TransactionRecord{
		ID:             uuid.NewString(),
		FromIdentifier: tx.SenderIdentifier,
		ToIdentifier:   tx.RecipientIdentifier,
		FromAddress:    tx.SenderAddress,
		ToAddress:      tx.RecipientAddress,
		Amount:         tx.Amount.String(),
		Kind:           tx.Kind,
		Reference:      hash,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		d.logger.Error("Failed to append transaction record", "tx_hash", hash, "error", err)
	}
}

func (d *ExecutionDispatcher) notify(ctx context.Context, identifier, text string) {
	if identifier == "" || d.messenger == nil {
		return
	}
	d.messenger.Send(ctx, identifier, text)
}

// refreshBalance re-reads the on-chain balance into the accounts cache so the
// next preparation sees post-execution reality.
func (d *ExecutionDispatcher) refreshBalance(ctx context.Context, address string) {
	balance, err := d.oracle.GetBalance(ctx, address)
	if err != nil {
		d.logger.Warn("Failed to refresh balance after execution", "address", address, "error", err)
		return
	}
	if err = d.accounts.UpdateCachedBalance(ctx, address, balance); err != nil {
		d.logger.Warn("Failed to store refreshed balance", "address", address, "error", err)
	}
}

// History returns the most recent transfers involving the identifier.
func (d *ExecutionDispatcher) History(ctx context.Context, identifier string, limit int) ([]entities.TransactionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.history.ListByIdentifier(ctx, identifier, limit)
}
