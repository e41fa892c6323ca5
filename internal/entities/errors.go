package entities

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrAccountNotFound = errors.New("account not found")

	// Confirmation registry sentinels.
	ErrNothingPending    = errors.New("nothing to confirm")
	ErrUnrecognizedReply = errors.New("reply not recognized as confirm or cancel")
	ErrAlreadyProcessing = errors.New("transfer is already being processed")

	// Claim redemption sentinels, one per remedy the chat layer surfaces.
	ErrClaimNotFound       = errors.New("claim link not found")
	ErrClaimExpired        = errors.New("claim link expired")
	ErrClaimAlreadyClaimed = errors.New("claim link already redeemed")
)

// ValidationError reports a locally malformed input. Never retried, surfaced
// verbatim, and nothing is written when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientBalanceError carries both the current balance and the required
// total so the message can show the shortfall.
type InsufficientBalanceError struct {
	Balance  *big.Int
	Required *big.Int
}

func (e *InsufficientBalanceError) Shortfall() *big.Int {
	return new(big.Int).Sub(e.Required, e.Balance)
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: need %s wei, have %s wei (short %s wei)",
		e.Required.String(), e.Balance.String(), e.Shortfall().String())
}

// NetworkError wraps a transient oracle or RPC failure that survived the
// bounded retries.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ExecutionError wraps a failed on-chain submission. Terminal: the pending
// record is dropped and the operation is never retried automatically.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed during %s: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
