package conversation

import "math/big"

// State is the closed set of multi-step flow states a user can be in.
// Each variant carries only the data that step needs to resume, so invalid
// state/payload combinations cannot be represented.
type State interface {
	isState()
}

// Idle means no flow is in progress.
type Idle struct{}

// AwaitingContact means the user named an amount but not yet a recipient.
type AwaitingContact struct {
	Amount *big.Int
}

// AwaitingAmount means the user named a recipient but not yet an amount.
type AwaitingAmount struct {
	Recipient string
}

// AwaitingSelection means the user was shown a numbered menu and the next
// reply picks an option.
type AwaitingSelection struct {
	Options []string
}

// Importing means the user is in the middle of importing an external wallet.
type Importing struct{}

func (Idle) isState()              {}
func (AwaitingContact) isState()   {}
func (AwaitingAmount) isState()    {}
func (AwaitingSelection) isState() {}
func (Importing) isState()         {}
