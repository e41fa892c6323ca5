package ports

import "time"

const (
	// StalenessWindow bounds how long a conversation state or a pending
	// confirmation stays valid without a follow-up message.
	StalenessWindow = 5 * time.Minute

	// ClaimTTL is how long an unclaimed escrow link stays redeemable before
	// the sweep refunds the sender.
	ClaimTTL = 72 * time.Hour
)
