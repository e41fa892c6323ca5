package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/sand/chat-wallet-app/backend/internal/entities"
	"github.com/sand/chat-wallet-app/backend/pkg/database"
)

// AccountsRepository handles the user wallet directory.
type AccountsRepository struct {
	logger *slog.Logger

	db         tx.DBGetter
	transactor *tx.Transactor
}

func NewAccountsRepository(logger *slog.Logger, pg *database.Postgres) *AccountsRepository {
	return &AccountsRepository{logger: logger, db: pg.DBGetter, transactor: pg.Transactor}
}

func (r *AccountsRepository) FindByIdentifier(ctx context.Context, identifier string) (*entities.Account, error) {
	query := `SELECT id, identifier, address, wallet_index, derivation_path, cached_balance, balance_refreshed_at, created_at
              FROM accounts
              WHERE identifier = $1`

	var account entities.Account
	err := r.db(ctx).QueryRow(ctx, query, identifier).Scan(
		&account.ID,
		&account.Identifier,
		&account.Address,
		&account.WalletIndex,
		&account.DerivationPath,
		&account.CachedBalance,
		&account.BalanceRefreshedAt,
		&account.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account by identifier: %w", err)
	}

	return &account, nil
}

func (r *AccountsRepository) FindByAddress(ctx context.Context, address string) (*entities.Account, error) {
	query := `SELECT id, identifier, address, wallet_index, derivation_path, cached_balance, balance_refreshed_at, created_at
              FROM accounts
              WHERE address = $1`

	var account entities.Account
	err := r.db(ctx).QueryRow(ctx, query, address).Scan(
		&account.ID,
		&account.Identifier,
		&account.Address,
		&account.WalletIndex,
		&account.DerivationPath,
		&account.CachedBalance,
		&account.BalanceRefreshedAt,
		&account.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account by address: %w", err)
	}

	return &account, nil
}

func (r *AccountsRepository) Insert(ctx context.Context, account *entities.Account) error {
	query := `INSERT INTO accounts (identifier, address, wallet_index, derivation_path, cached_balance)
              VALUES ($1, $2, $3, $4, $5)
              RETURNING id, balance_refreshed_at, created_at`

	err := r.db(ctx).QueryRow(ctx, query,
		account.Identifier,
		account.Address,
		account.WalletIndex,
		account.DerivationPath,
		account.CachedBalance,
	).Scan(&account.ID, &account.BalanceRefreshedAt, &account.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}

	return nil
}

// NextWalletIndex allocates the next free derivation index. Index 0 is
// reserved for the treasury.
func (r *AccountsRepository) NextWalletIndex(ctx context.Context) (uint32, error) {
	var next uint32
	err := r.db(ctx).QueryRow(ctx, "SELECT COALESCE(MAX(wallet_index), 0) + 1 FROM accounts").Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate wallet index: %w", err)
	}
	return next, nil
}

func (r *AccountsRepository) UpdateCachedBalance(ctx context.Context, address string, balance *big.Int) error {
	_, err := r.db(ctx).Exec(ctx,
		"UPDATE accounts SET cached_balance = $1, balance_refreshed_at = NOW() WHERE address = $2",
		balance.String(), address)
	if err != nil {
		return fmt.Errorf("failed to update cached balance: %w", err)
	}
	return nil
}
