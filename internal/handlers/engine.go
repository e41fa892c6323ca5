package handlers

import (
	"context"

	"github.com/sand/chat-wallet-app/backend/internal/core/ports"
	"github.com/sand/chat-wallet-app/backend/internal/entities"
	"github.com/sand/chat-wallet-app/backend/internal/usecases"
)

// ChatService drives the conversational transfer flow.
type ChatService interface {
	HandleMessage(ctx context.Context, user string, msg usecases.IncomingMessage) (*usecases.ChatReply, error)
}

// TransferService is the prepare/confirm/cancel surface of the engine.
type TransferService interface {
	Prepare(ctx context.Context, user string, req usecases.TransferRequest) (*usecases.Confirmation, error)
}

// ConfirmationService resolves replies against the pending transaction.
type ConfirmationService interface {
	Confirm(ctx context.Context, user, replyText string) (*usecases.ConfirmOutcome, error)
	Cancel(user string) (bool, error)
	Pending(user string) *entities.PendingTransaction
}

// ClaimService is the escrow surface exposed over HTTP.
type ClaimService interface {
	Claim(ctx context.Context, tokenPlain, claimerAddress string) (*ports.ClaimReceipt, error)
	ListBySender(ctx context.Context, senderIdentifier string) ([]entities.ClaimLink, error)
}

// HistoryService lists past transfers for an identifier.
type HistoryService interface {
	History(ctx context.Context, identifier string, limit int) ([]entities.TransactionRecord, error)
}
