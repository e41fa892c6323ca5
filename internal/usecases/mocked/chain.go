package mocked

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/sand/chat-wallet-app/backend/internal/entities"
)

// Chain is an in-memory ledger standing in for a real network in debug mode.
// Every address starts with FaucetBalance so transfer flows can be exercised
// without funding anything.
type Chain struct {
	logger *slog.Logger

	mu       sync.Mutex
	balances map[string]*big.Int
	fee      *big.Int
	nonce    uint64
}

// FaucetBalance is 10 units at the 1e18 internal scale.
var FaucetBalance = new(big.Int).Mul(big.NewInt(10), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

func NewChain(logger *slog.Logger) *Chain {
	return &Chain{
		logger:   logger,
		balances: make(map[string]*big.Int),
		fee:      big.NewInt(21000_000_000_000), // 21000 gas at 1 gwei
	}
}

// SetFee overrides the flat fee charged per submission.
func (c *Chain) SetFee(fee *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fee = new(big.Int).Set(fee)
}

// balanceOf must be called with the mutex held.
func (c *Chain) balanceOf(address string) *big.Int {
	if b, ok := c.balances[address]; ok {
		return b
	}
	b := new(big.Int).Set(FaucetBalance)
	c.balances[address] = b
	return b
}

func (c *Chain) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.balanceOf(address)), nil
}

func (c *Chain) EstimateCost(ctx context.Context, from, to string, amount *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.fee), nil
}

func (c *Chain) SubmitTransfer(ctx context.Context, signer *entities.SigningHandle, to string, amount *big.Int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.balanceOf(signer.Address)
	total := new(big.Int).Add(amount, c.fee)
	if from.Cmp(total) < 0 {
		return "", fmt.Errorf("insufficient funds: have %s, need %s", from, total)
	}

	from.Sub(from, total)
	c.balanceOf(to).Add(c.balanceOf(to), amount)

	hash := c.mintHash()
	c.logger.Debug("Mock transfer applied",
		"from", signer.Address, "to", to, "amount", amount.String(), "tx_hash", hash)
	return hash, nil
}

func (c *Chain) CallContract(ctx context.Context, signer *entities.SigningHandle, contract string, data []byte, amount *big.Int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.balanceOf(signer.Address)
	total := new(big.Int).Add(amount, c.fee)
	if from.Cmp(total) < 0 {
		return "", fmt.Errorf("insufficient funds: have %s, need %s", from, total)
	}

	from.Sub(from, total)
	c.balanceOf(contract).Add(c.balanceOf(contract), amount)

	hash := c.mintHash()
	c.logger.Debug("Mock contract call applied",
		"from", signer.Address, "contract", contract, "value", amount.String(), "tx_hash", hash)
	return hash, nil
}

// mintHash must be called with the mutex held.
func (c *Chain) mintHash() string {
	c.nonce++
	buf := make([]byte, 28)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("0x%064x", c.nonce)
	}
	return "0x" + fmt.Sprintf("%08x", c.nonce) + hex.EncodeToString(buf)
}
