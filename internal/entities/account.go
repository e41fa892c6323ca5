package entities

import (
	"math/big"
	"time"
)

// Account represents a chat user's wallet as tracked by our system.
// The engine only ever touches the cached balance columns; identity and
// key custody belong to the wallet resolver.
type Account struct {
	ID                 int       `db:"id" json:"id"`
	Identifier         string    `db:"identifier" json:"identifier"`
	Address            string    `db:"address" json:"address"`
	WalletIndex        uint32    `db:"wallet_index" json:"wallet_index"`
	DerivationPath     string    `db:"derivation_path" json:"derivation_path"`
	CachedBalance      string    `db:"cached_balance" json:"cached_balance"`
	BalanceRefreshedAt time.Time `db:"balance_refreshed_at" json:"balance_refreshed_at"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// CachedBalanceWei parses the cached balance column into wei.
// A missing or malformed value reads as zero.
func (a *Account) CachedBalanceWei() *big.Int {
	balance, ok := new(big.Int).SetString(a.CachedBalance, 10)
	if !ok {
		return big.NewInt(0)
	}
	return balance
}
