package entities

import "time"

// TransactionRecord is an append-only history entry written after a
// successful execution. Reference holds the on-chain hash for transfers and
// contract calls, or the claim link id for escrow movements.
type TransactionRecord struct {
	ID             string    `db:"id" json:"id"`
	FromIdentifier string    `db:"from_identifier" json:"from_identifier"`
	ToIdentifier   string    `db:"to_identifier" json:"to_identifier"`
	FromAddress    string    `db:"from_address" json:"from_address"`
	ToAddress      string    `db:"to_address" json:"to_address"`
	Amount         string    `db:"amount" json:"amount"`
	Kind           TxKind    `db:"kind" json:"kind"`
	Reference      string    `db:"reference" json:"reference"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
