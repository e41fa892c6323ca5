package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5"

	"github.com/sand/chat-wallet-app/backend/internal/entities"
	"github.com/sand/chat-wallet-app/backend/pkg/database"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const claimColumns = `id, token_hash, sender_identifier, sender_address, recipient_identifier,
display_name, amount, status, payout_tx_hash, created_at, expires_at, claimed_at, refunded_at`

// ClaimsRepository persists claim links. Status transitions out of pending
// are conditional updates so concurrent claim and sweep cannot both win.
type ClaimsRepository struct {
	logger *slog.Logger

	db         tx.DBGetter
	transactor *tx.Transactor
}

func NewClaimsRepository(logger *slog.Logger, pg *database.Postgres) *ClaimsRepository {
	return &ClaimsRepository{logger: logger, db: pg.DBGetter, transactor: pg.Transactor}
}

func (r *ClaimsRepository) Insert(ctx context.Context, link *entities.ClaimLink) error {
	query := `INSERT INTO claim_links
              (id, token_hash, sender_identifier, sender_address, recipient_identifier, display_name, amount, status, created_at, expires_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db(ctx).Exec(ctx, query,
		link.ID,
		link.TokenHash,
		link.SenderIdentifier,
		link.SenderAddress,
		link.RecipientIdentifier,
		link.DisplayName,
		link.Amount,
		link.Status,
		link.CreatedAt,
		link.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert claim link: %w", err)
	}

	return nil
}

func (r *ClaimsRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*entities.ClaimLink, error) {
	query := fmt.Sprintf("SELECT %s FROM claim_links WHERE token_hash = $1", claimColumns)

	rows, err := r.db(ctx).Query(ctx, query, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("failed to query claim link: %w", err)
	}

	link, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[entities.ClaimLink])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to collect claim link row: %w", err)
	}

	return &link, nil
}

func (r *ClaimsRepository) ListBySender(ctx context.Context, senderIdentifier string) ([]entities.ClaimLink, error) {
	query := fmt.Sprintf(`SELECT %s FROM claim_links WHERE sender_identifier = $1 ORDER BY created_at DESC`, claimColumns)

	rows, err := r.db(ctx).Query(ctx, query, senderIdentifier)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query claim links by sender: %w", err)
	}

	links, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.ClaimLink])
	if err != nil {
		r.logger.Error("failed to collect claim link rows", "error", err)
		return nil, err
	}

	return links, nil
}

// ListExpiredPending returns pending links whose expiry has passed, oldest
// first, for the sweep worker.
func (r *ClaimsRepository) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]entities.ClaimLink, error) {
	query, args, err := psql.
		Select(claimColumns).
		From("claim_links").
		Where(sq.Eq{"status": entities.ClaimPending}).
		Where(sq.Lt{"expires_at": before}).
		OrderBy("expires_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build expired claims query: %w", err)
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query expired claim links: %w", err)
	}

	links, err := pgx.CollectRows(rows, pgx.RowToStructByName[entities.ClaimLink])
	if err != nil {
		r.logger.Error("failed to collect expired claim link rows", "error", err)
		return nil, err
	}

	return links, nil
}

// MarkClaimed flips a pending link to claimed. Returns false when the link
// already left pending, so the caller knows it lost the race.
func (r *ClaimsRepository) MarkClaimed(ctx context.Context, id, payoutTxHash string, at time.Time) (bool, error) {
	var won bool
	err := r.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		tag, err := r.db(ctx).Exec(ctx,
			`UPDATE claim_links SET status = $1, payout_tx_hash = $2, claimed_at = $3
             WHERE id = $4 AND status = $5`,
			entities.ClaimClaimed, payoutTxHash, at, id, entities.ClaimPending)
		if err != nil {
			return fmt.Errorf("failed to mark claim link claimed: %w", err)
		}
		won = tag.RowsAffected() == 1
		return nil
	})
	return won, err
}

// MarkRefunded flips a pending link to refunded, same contract as MarkClaimed.
func (r *ClaimsRepository) MarkRefunded(ctx context.Context, id, refundTxHash string, at time.Time) (bool, error) {
	var won bool
	err := r.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		tag, err := r.db(ctx).Exec(ctx,
			`UPDATE claim_links SET status = $1, payout_tx_hash = $2, refunded_at = $3
             WHERE id = $4 AND status = $5`,
			entities.ClaimRefunded, refundTxHash, at, id, entities.ClaimPending)
		if err != nil {
			return fmt.Errorf("failed to mark claim link refunded: %w", err)
		}
		won = tag.RowsAffected() == 1
		return nil
	})
	return won, err
}
