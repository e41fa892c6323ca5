package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/sand/chat-wallet-app/backend/internal/entities"
	"github.com/sand/chat-wallet-app/backend/pkg/database"
)

// TransactionsRepository is the append-only transfer history table.
type TransactionsRepository struct {
	logger *slog.Logger

	db         tx.DBGetter
	transactor *tx.Transactor
}

func NewTransactionsRepository(logger *slog.Logger, pg *database.Postgres) *TransactionsRepository {
	return &TransactionsRepository{logger: logger, db: pg.DBGetter, transactor: pg.Transactor}
}

func (r *TransactionsRepository) Append(ctx context.Context, record *entities.TransactionRecord) error {
	query := `INSERT INTO transactions
              (id, from_identifier, to_identifier, from_address, to_address, amount, kind, reference, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db(ctx).Exec(ctx, query,
		record.ID,
		record.FromIdentifier,
		record.ToIdentifier,
		record.FromAddress,
		record.ToAddress,
		record.Amount,
		record.Kind,
		record.Reference,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction record: %w", err)
	}

	return nil
}

// ListByIdentifier returns the most recent transfers the identifier took part
// in, either side.
func (r *TransactionsRepository) ListByIdentifier(ctx context.Context, identifier string, limit int) ([]entities.TransactionRecord, error) {
	query := `SELECT id, from_identifier, to_identifier, from_address, to_address, amount, kind, reference, created_at
              FROM transactions
              WHERE from_identifier = $1 OR to_identifier = $1
              ORDER BY created_at DESC
              LIMIT $2`

	rows, err := r.db(ctx).Query(ctx, query, identifier, limit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.TransactionRecord])
	if err != nil {
		r.logger.Error("failed to collect transaction rows", "error", err)
		return nil, err
	}

	return records, nil
}
