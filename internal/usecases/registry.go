package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/sand/chat-wallet-app/backend/internal/core/ports"
	"github.com/sand/chat-wallet-app/backend/internal/entities"
	"github.com/sand/chat-wallet-app/backend/internal/shared"
)

// Dispatcher executes a confirmed pending transaction.
type Dispatcher interface {
	Execute(ctx context.Context, tx *entities.PendingTransaction) (*ExecutionReceipt, error)
}

// ExecutionReceipt reports what a dispatched transaction actually did.
type ExecutionReceipt struct {
	Kind   entities.TxKind
	TxHash string
	Amount *big.Int
	Fee    *big.Int

	// Escrow creation only.
	ClaimToken     string
	ClaimID        string
	ClaimExpiresAt time.Time
}

// ConfirmOutcome is the discriminated result of a confirmation reply.
type ConfirmOutcome struct {
	Cancelled bool
	Receipt   *ExecutionReceipt
}

// Reply is the interpretation of a confirmation message.
type Reply int

const (
	ReplyUnknown Reply = iota
	ReplyAffirmative
	ReplyNegative
)

var (
	affirmativeTokens = map[string]struct{}{
		"yes": {}, "y": {}, "yeah": {}, "yep": {}, "ok": {}, "okay": {},
		"sure": {}, "confirm": {}, "send": {}, "send it": {}, "do it": {},
	}
	negativeTokens = map[string]struct{}{
		"no": {}, "n": {}, "nope": {}, "cancel": {}, "stop": {}, "abort": {},
	}
)

// ParseReply classifies a free-text confirmation message.
func ParseReply(text string) Reply {
	token := strings.ToLower(strings.TrimSpace(text))
	token = strings.TrimRight(token, ".!")

	if _, ok := affirmativeTokens[token]; ok {
		return ReplyAffirmative
	}
	if _, ok := negativeTokens[token]; ok {
		return ReplyNegative
	}
	return ReplyUnknown
}

type pendingRecord struct {
	tx        *entities.PendingTransaction
	executing bool
}

// ConfirmationRegistry holds at most one pending transaction per user and
// owns the Pending -> Executing transition. Expiry is lazy, same window as
// conversation state.
type ConfirmationRegistry struct {
	logger     *slog.Logger
	oracle     ports.ChainOracle
	dispatcher Dispatcher

	mu      sync.Mutex
	records map[string]*pendingRecord
	window  time.Duration
	now     func() time.Time
}

func NewConfirmationRegistry(logger *slog.Logger, oracle ports.ChainOracle, window time.Duration) *ConfirmationRegistry {
	if window <= 0 {
		window = ports.StalenessWindow
	}
	return &ConfirmationRegistry{
		logger:  logger,
		oracle:  oracle,
		records: make(map[string]*pendingRecord),
		window:  window,
		now:     time.Now,
	}
}

// SetDispatcher breaks the construction cycle between registry and
// dispatcher; must be called before the first Confirm.
func (r *ConfirmationRegistry) SetDispatcher(d Dispatcher) {
	r.dispatcher = d
}

// Put stores a freshly prepared transaction, replacing any previous pending
// record for the user. Last prepare wins.
func (r *ConfirmationRegistry) Put(user string, tx *entities.PendingTransaction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.records[user]; ok && !prev.executing {
		r.logger.Debug("Replacing pending transaction", "user", user, "previous_kind", prev.tx.Kind)
	}
	r.records[user] = &pendingRecord{tx: tx}
}

// Pending returns the user's live pending transaction, dropping it first if
// it has outlived the staleness window.
func (r *ConfirmationRegistry) Pending(user string) *entities.PendingTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.live(user)
	if rec == nil {
		return nil
	}
	return rec.tx
}

// live must be called with the mutex held.
func (r *ConfirmationRegistry) live(user string) *pendingRecord {
	rec, ok := r.records[user]
	if !ok {
		return nil
	}
	if r.now().Sub(rec.tx.CreatedAt) > r.window && !rec.executing {
		delete(r.records, user)
		r.logger.Debug("Pending transaction expired", "user", user, "kind", rec.tx.Kind)
		return nil
	}
	return rec
}

// Cancel drops the user's pending record if it is still pending. It reports
// whether anything was cancelled; an executing record cannot be cancelled.
func (r *ConfirmationRegistry) Cancel(user string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.live(user)
	if rec == nil {
		return false, nil
	}
	if rec.executing {
		return false, entities.ErrAlreadyProcessing
	}

	delete(r.records, user)
	return true, nil
}

// Confirm interprets the user's reply against their pending transaction.
//
// No pending record (or a stale one) yields ErrNothingPending. An
// unrecognized reply yields ErrUnrecognizedReply without touching state. A
// negative reply cancels. An affirmative reply transitions the record to
// Executing exactly once, re-validates affordability against a fresh balance
// read, dispatches, and drops the record whatever the outcome.
func (r *ConfirmationRegistry) Confirm(ctx context.Context, user, replyText string) (*ConfirmOutcome, error) {
	r.mu.Lock()

	rec := r.live(user)
	if rec == nil {
		r.mu.Unlock()
		return nil, entities.ErrNothingPending
	}

	switch ParseReply(replyText) {
	case ReplyUnknown:
		r.mu.Unlock()
		return nil, entities.ErrUnrecognizedReply

	case ReplyNegative:
		if rec.executing {
			r.mu.Unlock()
			return nil, entities.ErrAlreadyProcessing
		}
		delete(r.records, user)
		r.mu.Unlock()
		r.logger.Info("Transfer cancelled", "user", user, "kind", rec.tx.Kind)
		return &ConfirmOutcome{Cancelled: true}, nil
	}

	// Affirmative. The executing flag serializes the Pending -> Executing
	// transition; a second confirm while the first is in flight is rejected.
	if rec.executing {
		r.mu.Unlock()
		return nil, entities.ErrAlreadyProcessing
	}
	rec.executing = true
	tx := rec.tx
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if cur, ok := r.records[user]; ok && cur == rec {
			delete(r.records, user)
		}
		r.mu.Unlock()
	}()

	if err := r.revalidate(ctx, tx); err != nil {
		return nil, err
	}

	receipt, err := r.dispatcher.Execute(ctx, tx)
	if err != nil {
		return nil, err
	}

	return &ConfirmOutcome{Receipt: receipt}, nil
}

// revalidate re-checks affordability against a fresh balance read, since the
// balance may have drifted between preparation and confirmation.
func (r *ConfirmationRegistry) revalidate(ctx context.Context, tx *entities.PendingTransaction) error {
	var balance *big.Int

	err := shared.Retry(ctx, func(ctx context.Context) error {
		var readErr error
		balance, readErr = r.oracle.GetBalance(ctx, tx.SenderAddress)
		return readErr
	})
	if err != nil {
		return &entities.NetworkError{Op: "balance check", Err: fmt.Errorf("pre-execution read: %w", err)}
	}

	total := tx.TotalCost()
	if total.Cmp(balance) > 0 {
		return &entities.InsufficientBalanceError{Balance: balance, Required: total}
	}
	return nil
}
