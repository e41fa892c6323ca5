package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sand/chat-wallet-app/backend/internal/conversation"
	"github.com/sand/chat-wallet-app/backend/internal/core/ports"
	"github.com/sand/chat-wallet-app/backend/internal/entities"
	"github.com/sand/chat-wallet-app/backend/internal/shared"
)

// Intent names what the user is trying to do, as classified upstream.
type Intent string

const (
	IntentSend    Intent = "send"
	IntentCancel  Intent = "cancel"
	IntentBalance Intent = "balance"
	IntentText    Intent = "text"
)

// IncomingMessage is one user turn. Amount and Recipient are optional slots
// extracted upstream; Text is the raw message.
type IncomingMessage struct {
	Intent    Intent `json:"intent"`
	Text      string `json:"text"`
	Amount    string `json:"amount,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

// ChatReply is the engine's answer to one turn.
type ChatReply struct {
	Text         string            `json:"text"`
	Confirmation *Confirmation     `json:"confirmation,omitempty"`
	Receipt      *ExecutionReceipt `json:"receipt,omitempty"`
}

// ChatEngine drives the multi-step transfer conversation. It owns the flow
// state store; the confirmation registry owns pending transactions.
type ChatEngine struct {
	logger   *slog.Logger
	flows    *conversation.Store
	preparer *TransactionPreparer
	registry *ConfirmationRegistry
	resolver ports.WalletResolver
	oracle   ports.ChainOracle
	accounts AccountsRepository
}

func NewChatEngine(
	logger *slog.Logger,
	flows *conversation.Store,
	preparer *TransactionPreparer,
	registry *ConfirmationRegistry,
	resolver ports.WalletResolver,
	oracle ports.ChainOracle,
	accounts AccountsRepository,
) *ChatEngine {
	return &ChatEngine{
		logger:   logger,
		flows:    flows,
		preparer: preparer,
		registry: registry,
		resolver: resolver,
		oracle:   oracle,
		accounts: accounts,
	}
}

// HandleMessage processes one user turn and returns what to say back.
//
// A pending confirmation takes priority over everything except an explicit
// cancel: while one exists, free text is interpreted as the yes/no reply.
func (e *ChatEngine) HandleMessage(ctx context.Context, user string, msg IncomingMessage) (*ChatReply, error) {
	user = shared.NormalizeIdentifier(user)

	switch msg.Intent {
	case IntentCancel:
		return e.handleCancel(user)
	case IntentBalance:
		return e.handleBalance(ctx, user)
	case IntentSend:
		return e.handleSend(ctx, user, msg)
	default:
		return e.handleText(ctx, user, msg.Text)
	}
}

func (e *ChatEngine) handleCancel(user string) (*ChatReply, error) {
	e.flows.Clear(user)

	cancelled, err := e.registry.Cancel(user)
	if errors.Is(err, entities.ErrAlreadyProcessing) {
		return &ChatReply{Text: "Your transfer is already being executed and can no longer be cancelled."}, nil
	}
	if err != nil {
		return nil, err
	}
	if cancelled {
		return &ChatReply{Text: "Transfer cancelled."}, nil
	}
	return &ChatReply{Text: "Nothing to cancel."}, nil
}

func (e *ChatEngine) handleBalance(ctx context.Context, user string) (*ChatReply, error) {
	account, err := e.resolver.Resolve(ctx, user)
	if err != nil {
		return nil, err
	}

	balance, err := e.oracle.GetBalance(ctx, account.Address)
	if err != nil {
		return nil, &entities.NetworkError{Op: "balance read", Err: err}
	}
	if err = e.accounts.UpdateCachedBalance(ctx, account.Address, balance); err != nil {
		e.logger.Warn("Failed to cache balance", "user", user, "error", err)
	}

	return &ChatReply{Text: fmt.Sprintf("Your balance is %s.", FormatWei(balance))}, nil
}

// handleSend starts or completes a transfer flow. A message missing one of
// the two slots parks the other in flow state and asks for the rest.
func (e *ChatEngine) handleSend(ctx context.Context, user string, msg IncomingMessage) (*ChatReply, error) {
	switch {
	case msg.Amount != "" && msg.Recipient != "":
		e.flows.Clear(user)
		return e.prepare(ctx, user, TransferRequest{Amount: msg.Amount, Recipient: msg.Recipient})

	case msg.Amount != "":
		amount, err := ParseAmount(msg.Amount)
		if err != nil {
			return nil, err
		}
		e.flows.Set(user, conversation.AwaitingContact{Amount: amount})
		return &ChatReply{Text: "Who should receive it?"}, nil

	case msg.Recipient != "":
		e.flows.Set(user, conversation.AwaitingAmount{Recipient: msg.Recipient})
		return &ChatReply{Text: "How much would you like to send?"}, nil

	default:
		return &ChatReply{Text: "Tell me an amount and a recipient, e.g. \"send 0.5 to alice\"."}, nil
	}
}

// handleText resolves free text against the pending confirmation first, then
// against the current flow state.
func (e *ChatEngine) handleText(ctx context.Context, user, text string) (*ChatReply, error) {
	if e.registry.Pending(user) != nil {
		return e.handleConfirmationReply(ctx, user, text)
	}

	switch state := e.flows.Get(user).(type) {
	case conversation.AwaitingContact:
		e.flows.Clear(user)
		return e.prepare(ctx, user, TransferRequest{
			Amount:    FormatWei(state.Amount),
			Recipient: strings.TrimSpace(text),
		})

	case conversation.AwaitingAmount:
		e.flows.Clear(user)
		return e.prepare(ctx, user, TransferRequest{
			Amount:    strings.TrimSpace(text),
			Recipient: state.Recipient,
		})

	case conversation.AwaitingSelection:
		return e.handleSelection(ctx, user, state, text)

	case conversation.Importing:
		// Key import happens out of band; the flow state only parks the
		// conversation until it completes.
		return &ChatReply{Text: "Finish the wallet import first, or say cancel to abort it."}, nil

	default:
		return &ChatReply{Text: "I can send money, check your balance or cancel a pending transfer."}, nil
	}
}

func (e *ChatEngine) handleConfirmationReply(ctx context.Context, user, text string) (*ChatReply, error) {
	outcome, err := e.registry.Confirm(ctx, user, text)

	switch {
	case errors.Is(err, entities.ErrUnrecognizedReply):
		return &ChatReply{Text: "Please reply yes to send or no to cancel."}, nil
	case errors.Is(err, entities.ErrAlreadyProcessing):
		return &ChatReply{Text: "Your transfer is already being executed."}, nil
	case err != nil:
		return nil, err
	}

	if outcome.Cancelled {
		return &ChatReply{Text: "Transfer cancelled."}, nil
	}
	return &ChatReply{Text: e.receiptText(outcome.Receipt), Receipt: outcome.Receipt}, nil
}

// handleSelection resolves a numbered-menu reply into a recipient choice.
func (e *ChatEngine) handleSelection(ctx context.Context, user string, state conversation.AwaitingSelection, text string) (*ChatReply, error) {
	choice := strings.TrimSpace(text)
	idx := -1
	for i := range state.Options {
		if choice == fmt.Sprintf("%d", i+1) || strings.EqualFold(choice, state.Options[i]) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &ChatReply{Text: fmt.Sprintf("Please pick a number between 1 and %d.", len(state.Options))}, nil
	}

	e.flows.Set(user, conversation.AwaitingAmount{Recipient: state.Options[idx]})
	return &ChatReply{Text: "How much would you like to send?"}, nil
}

func (e *ChatEngine) prepare(ctx context.Context, user string, req TransferRequest) (*ChatReply, error) {
	confirmation, err := e.preparer.Prepare(ctx, user, req)
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Send %s to %s? Fee %s, total %s. Reply yes or no.",
		confirmation.Amount, confirmation.RecipientDisplay, confirmation.Fee, confirmation.Total)
	if confirmation.EscrowNotice {
		text = fmt.Sprintf("%s doesn't have a wallet yet. %s They'll get a claim link valid for 3 days.",
			confirmation.RecipientDisplay, text)
	}

	return &ChatReply{Text: text, Confirmation: confirmation}, nil
}

func (e *ChatEngine) receiptText(receipt *ExecutionReceipt) string {
	switch receipt.Kind {
	case entities.KindEscrowCreate:
		return fmt.Sprintf("Done. Share this claim link token with the recipient: %s (valid until %s).",
			receipt.ClaimToken, receipt.ClaimExpiresAt.Format("Jan 2 15:04 MST"))
	default:
		return fmt.Sprintf("Sent %s. Transaction: %s", FormatWei(receipt.Amount), receipt.TxHash)
	}
}
