package entities

import (
	"math/big"
	"time"
)

// TxKind discriminates what a confirmed transaction will actually do.
type TxKind string

const (
	KindDirectTransfer  TxKind = "direct_transfer"
	KindEscrowCreate    TxKind = "escrow_create"
	KindContractDeposit TxKind = "contract_deposit"
	KindContractSwap    TxKind = "contract_swap"
)

// PendingTransaction is a prepared, unexecuted transfer awaiting the user's
// confirmation. At most one exists per user at any time.
type PendingTransaction struct {
	Kind             TxKind
	SenderIdentifier string
	SenderAddress    string

	// RecipientAddress is set for direct transfers and contract calls.
	// RecipientIdentifier is kept for escrow creation, where the recipient
	// could not be resolved to an on-chain address.
	RecipientIdentifier string
	RecipientAddress    string
	RecipientDisplay    string

	Amount       *big.Int
	EstimatedGas *big.Int

	// Contract call payload, only for deposit/swap kinds.
	ContractAddress string
	CallData        []byte

	CreatedAt time.Time
}

// TotalCost is the amount the sender's balance must cover: amount plus the
// gas estimate taken at preparation time.
func (p *PendingTransaction) TotalCost() *big.Int {
	return new(big.Int).Add(p.Amount, p.EstimatedGas)
}
