package usecases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/sand/chat-wallet-app/backend/internal/entities"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ether(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type submission struct {
	from   string
	to     string
	amount *big.Int
}

// fakeOracle is an in-memory chain double with scriptable failures.
type fakeOracle struct {
	mu sync.Mutex

	balances map[string]*big.Int
	fee      *big.Int

	estimateFailures int
	estimateCalls    int
	submitErr        error
	submissions      []submission
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		balances: make(map[string]*big.Int),
		fee:      big.NewInt(1000),
	}
}

func (o *fakeOracle) setBalance(address string, balance *big.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.balances[address] = new(big.Int).Set(balance)
}

func (o *fakeOracle) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if b, ok := o.balances[address]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (o *fakeOracle) EstimateCost(ctx context.Context, from, to string, amount *big.Int) (*big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.estimateCalls++
	if o.estimateFailures > 0 {
		o.estimateFailures--
		return nil, errors.New("rpc unavailable")
	}
	return new(big.Int).Set(o.fee), nil
}

func (o *fakeOracle) SubmitTransfer(ctx context.Context, signer *entities.SigningHandle, to string, amount *big.Int) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.submitErr != nil {
		return "", o.submitErr
	}
	o.submissions = append(o.submissions, submission{from: signer.Address, to: to, amount: new(big.Int).Set(amount)})
	return fmt.Sprintf("0xhash%d", len(o.submissions)), nil
}

func (o *fakeOracle) CallContract(ctx context.Context, signer *entities.SigningHandle, contract string, data []byte, amount *big.Int) (string, error) {
	return o.SubmitTransfer(ctx, signer, contract, amount)
}

func (o *fakeOracle) submitted() []submission {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]submission(nil), o.submissions...)
}

// fakeResolver serves a fixed directory of accounts.
type fakeResolver struct {
	mu       sync.Mutex
	accounts map[string]*entities.Account
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{accounts: make(map[string]*entities.Account)}
}

func (r *fakeResolver) add(identifier, address, balance string) *entities.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	account := &entities.Account{
		Identifier:    identifier,
		Address:       address,
		CachedBalance: balance,
	}
	r.accounts[identifier] = account
	return account
}

func (r *fakeResolver) Resolve(ctx context.Context, identifier string) (*entities.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.accounts[identifier]; ok {
		return account, nil
	}
	return nil, entities.ErrAccountNotFound
}

func (r *fakeResolver) Register(ctx context.Context, identifier string) (*entities.Account, error) {
	r.mu.Lock()
	if account, ok := r.accounts[identifier]; ok {
		r.mu.Unlock()
		return account, nil
	}
	r.mu.Unlock()
	return r.add(identifier, "0xauto"+identifier, "0"), nil
}

func (r *fakeResolver) Signer(ctx context.Context, identifier string) (*entities.SigningHandle, error) {
	account, err := r.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return &entities.SigningHandle{
		Identifier: account.Identifier,
		Address:    account.Address,
		Key:        []byte("test-key"),
	}, nil
}

// fakeAccounts implements the persistence slice of the directory.
type fakeAccounts struct {
	mu       sync.Mutex
	byIdent  map[string]*entities.Account
	balances map[string]string
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		byIdent:  make(map[string]*entities.Account),
		balances: make(map[string]string),
	}
}

func (a *fakeAccounts) FindByIdentifier(ctx context.Context, identifier string) (*entities.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.byIdent[identifier], nil
}

func (a *fakeAccounts) FindByAddress(ctx context.Context, address string) (*entities.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, account := range a.byIdent {
		if account.Address == address {
			return account, nil
		}
	}
	return nil, nil
}

func (a *fakeAccounts) UpdateCachedBalance(ctx context.Context, address string, balance *big.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[address] = balance.String()
	return nil
}

// fakeClaims is an in-memory ClaimsRepository with conditional transitions.
type fakeClaims struct {
	mu    sync.Mutex
	links map[string]*entities.ClaimLink // by token hash
}

func newFakeClaims() *fakeClaims {
	return &fakeClaims{links: make(map[string]*entities.ClaimLink)}
}

func (c *fakeClaims) Insert(ctx context.Context, link *entities.ClaimLink) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *link
	c.links[link.TokenHash] = &clone
	return nil
}

func (c *fakeClaims) FindByTokenHash(ctx context.Context, tokenHash string) (*entities.ClaimLink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if link, ok := c.links[tokenHash]; ok {
		clone := *link
		return &clone, nil
	}
	return nil, nil
}

func (c *fakeClaims) ListBySender(ctx context.Context, senderIdentifier string) ([]entities.ClaimLink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []entities.ClaimLink
	for _, link := range c.links {
		if link.SenderIdentifier == senderIdentifier {
			out = append(out, *link)
		}
	}
	return out, nil
}

func (c *fakeClaims) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]entities.ClaimLink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []entities.ClaimLink
	for _, link := range c.links {
		if link.Status == entities.ClaimPending && before.After(link.ExpiresAt) {
			out = append(out, *link)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (c *fakeClaims) MarkClaimed(ctx context.Context, id, payoutTxHash string, at time.Time) (bool, error) {
	return c.transition(id, entities.ClaimClaimed, payoutTxHash, at)
}

func (c *fakeClaims) MarkRefunded(ctx context.Context, id, refundTxHash string, at time.Time) (bool, error) {
	return c.transition(id, entities.ClaimRefunded, refundTxHash, at)
}

func (c *fakeClaims) transition(id string, status entities.ClaimStatus, txHash string, at time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, link := range c.links {
		if link.ID != id {
			continue
		}
		if link.Status != entities.ClaimPending {
			return false, nil
		}
		link.Status = status
		link.PayoutTxHash = txHash
		if status == entities.ClaimClaimed {
			link.ClaimedAt = &at
		} else {
			link.RefundedAt = &at
		}
		return true, nil
	}
	return false, nil
}

// fakeHistory records appended transaction records.
type fakeHistory struct {
	mu      sync.Mutex
	records []entities.TransactionRecord
}

func (h *fakeHistory) Append(ctx context.Context, record *entities.TransactionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, *record)
	return nil
}

func (h *fakeHistory) ListByIdentifier(ctx context.Context, identifier string, limit int) ([]entities.TransactionRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []entities.TransactionRecord
	for _, record := range h.records {
		if record.FromIdentifier == identifier || record.ToIdentifier == identifier {
			out = append(out, record)
		}
	}
	return out, nil
}

func (h *fakeHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}
