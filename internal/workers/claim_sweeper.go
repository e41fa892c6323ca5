package workers

import (
	"context"
	"log/slog"
	"time"
)

// EscrowSweeper is the slice of the escrow service the worker needs.
type EscrowSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// ClaimSweeper worker refunds claim links that expired unclaimed. Expiry
// needs an active timer here: an abandoned link is never read again, so
// lazy expiry would strand the escrowed funds.
type ClaimSweeper struct {
	logger *slog.Logger
	escrow EscrowSweeper

	// How often to scan for expired links
	sweepInterval time.Duration
}

// NewClaimSweeper creates a new claim sweeper worker.
func NewClaimSweeper(logger *slog.Logger, escrow EscrowSweeper, sweepInterval time.Duration) *ClaimSweeper {
	return &ClaimSweeper{
		logger:        logger,
		escrow:        escrow,
		sweepInterval: sweepInterval,
	}
}

// Start begins the periodic refund of expired claim links.
func (cs *ClaimSweeper) Start(ctx context.Context) {
	cs.logger.Info("Starting claim sweeper worker", "sweep_interval", cs.sweepInterval.String())

	// Run an initial sweep immediately
	cs.sweep(ctx)

	ticker := time.NewTicker(cs.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cs.logger.Info("Claim sweeper worker stopped")
			return
		case <-ticker.C:
			cs.sweep(ctx)
		}
	}
}

func (cs *ClaimSweeper) sweep(ctx context.Context) {
	count, err := cs.escrow.SweepExpired(ctx)
	if err != nil {
		cs.logger.Error("Claim sweep failed", "error", err)
		return
	}

	if count > 0 {
		cs.logger.Info("Refunded expired claim links", "count", count)
	} else {
		cs.logger.Debug("No expired claim links to refund")
	}
}
