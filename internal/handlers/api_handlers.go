package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/sand/chat-wallet-app/backend/internal/core/ports"
	"github.com/sand/chat-wallet-app/backend/internal/entities"
	"github.com/sand/chat-wallet-app/backend/internal/usecases"
)

var _ ChatService = (*usecases.ChatEngine)(nil)
var _ TransferService = (*usecases.TransactionPreparer)(nil)
var _ ConfirmationService = (*usecases.ConfirmationRegistry)(nil)
var _ ClaimService = (*usecases.ClaimEscrowService)(nil)
var _ HistoryService = (*usecases.ExecutionDispatcher)(nil)

type HTTPHandler struct {
	logger        *slog.Logger
	chat          ChatService
	transfers     TransferService
	confirmations ConfirmationService
	claims        ClaimService
	history       HistoryService
	resolver      ports.WalletResolver
	oracle        ports.ChainOracle
}

func NewHTTPHandler(
	logger *slog.Logger,
	chat ChatService,
	transfers TransferService,
	confirmations ConfirmationService,
	claims ClaimService,
	history HistoryService,
	resolver ports.WalletResolver,
	oracle ports.ChainOracle,
) *HTTPHandler {
	return &HTTPHandler{
		logger:        logger,
		chat:          chat,
		transfers:     transfers,
		confirmations: confirmations,
		claims:        claims,
		history:       history,
		resolver:      resolver,
		oracle:        oracle,
	}
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	// Chat
	router.HandleFunc("/chat/message", h.ChatMessage).Methods("POST")

	// Transfers
	router.HandleFunc("/transfer/prepare", h.PrepareTransfer).Methods("POST")
	router.HandleFunc("/transfer/confirm", h.ConfirmTransfer).Methods("POST")
	router.HandleFunc("/transfer/pending", h.PendingTransfer).Methods("GET")

	// Claims
	router.HandleFunc("/claims/{token}/redeem", h.RedeemClaim).Methods("POST")
	router.HandleFunc("/claims/user", h.GetUserClaims).Methods("GET")

	// Transactions, wallet
	router.HandleFunc("/transactions/user", h.GetUserTransactions).Methods("GET")
	router.HandleFunc("/wallet/balance", h.CheckWalletBalance).Methods("GET")

	router.HandleFunc("/health", h.Health).Methods("GET")
}

type chatMessageRequest struct {
	User    string                    `json:"user"`
	Message usecases.IncomingMessage `json:"message"`
}

func (h *HTTPHandler) ChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.User == "" {
		http.Error(w, "Missing required field: user", http.StatusBadRequest)
		return
	}

	// New senders get a wallet on first contact.
	if _, err := h.resolver.Register(r.Context(), req.User); err != nil {
		h.logger.Error("[Chat] Failed to register user", "user", req.User, "error", err)
		http.Error(w, "Failed to provision wallet", http.StatusInternalServerError)
		return
	}

	reply, err := h.chat.HandleMessage(r.Context(), req.User, req.Message)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

type prepareRequest struct {
	User      string `json:"user"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
	Kind      string `json:"kind,omitempty"`
	Contract  string `json:"contract,omitempty"`
	CallData  []byte `json:"call_data,omitempty"`
}

func (h *HTTPHandler) PrepareTransfer(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.User == "" {
		http.Error(w, "Missing required field: user", http.StatusBadRequest)
		return
	}

	confirmation, err := h.transfers.Prepare(r.Context(), req.User, usecases.TransferRequest{
		Amount:    req.Amount,
		Recipient: req.Recipient,
		Kind:      entities.TxKind(req.Kind),
		Contract:  req.Contract,
		CallData:  req.CallData,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, confirmation)
}

type confirmRequest struct {
	User  string `json:"user"`
	Reply string `json:"reply"`
}

func (h *HTTPHandler) ConfirmTransfer(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.User == "" {
		http.Error(w, "Missing required field: user", http.StatusBadRequest)
		return
	}

	outcome, err := h.confirmations.Confirm(r.Context(), req.User, req.Reply)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	if outcome.Cancelled {
		writeJSON(w, http.StatusOK, map[string]any{"status": "cancelled"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "executed",
		"receipt": receiptView(outcome.Receipt),
	})
}

func (h *HTTPHandler) PendingTransfer(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "Missing required parameter: user", http.StatusBadRequest)
		return
	}

	pending := h.confirmations.Pending(user)
	if pending == nil {
		writeJSON(w, http.StatusOK, map[string]any{"pending": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pending":   true,
		"kind":      pending.Kind,
		"recipient": pending.RecipientDisplay,
		"amount":    usecases.FormatWei(pending.Amount),
		"total":     usecases.FormatWei(pending.TotalCost()),
	})
}

type redeemRequest struct {
	Address string `json:"address"`
}

func (h *HTTPHandler) RedeemClaim(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	receipt, err := h.claims.Claim(r.Context(), token, req.Address)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "claimed",
		"net_amount": usecases.FormatWei(receipt.NetAmount),
		"gas_cost":   usecases.FormatWei(receipt.GasCost),
		"tx_hash":    receipt.TxHash,
		"claimed_at": receipt.ClaimedAt,
	})
}

func (h *HTTPHandler) GetUserClaims(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "Missing required parameter: user", http.StatusBadRequest)
		return
	}

	links, err := h.claims.ListBySender(r.Context(), user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, links)
}

func (h *HTTPHandler) GetUserTransactions(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "Missing required parameter: user", http.StatusBadRequest)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.history.History(r.Context(), user, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func (h *HTTPHandler) CheckWalletBalance(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		http.Error(w, "Missing required parameter: user", http.StatusBadRequest)
		return
	}

	account, err := h.resolver.Resolve(r.Context(), user)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	balance, err := h.oracle.GetBalance(r.Context(), account.Address)
	if err != nil {
		h.writeEngineError(w, &entities.NetworkError{Op: "balance read", Err: err})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address": account.Address,
		"balance": usecases.FormatWei(balance),
		"wei":     balance.String(),
	})
}

func (h *HTTPHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func receiptView(receipt *usecases.ExecutionReceipt) map[string]any {
	view := map[string]any{
		"kind":   receipt.Kind,
		"amount": usecases.FormatWei(receipt.Amount),
		"fee":    usecases.FormatWei(receipt.Fee),
	}
	if receipt.TxHash != "" {
		view["tx_hash"] = receipt.TxHash
	}
	if receipt.ClaimToken != "" {
		view["claim_token"] = receipt.ClaimToken
		view["claim_id"] = receipt.ClaimID
		view["claim_expires_at"] = receipt.ClaimExpiresAt
	}
	return view
}

// writeEngineError maps engine errors onto HTTP statuses.
func (h *HTTPHandler) writeEngineError(w http.ResponseWriter, err error) {
	var validationErr *entities.ValidationError
	var balanceErr *entities.InsufficientBalanceError
	var networkErr *entities.NetworkError

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validationErr.Error()})
	case errors.As(err, &balanceErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":     balanceErr.Error(),
			"shortfall": balanceErr.Shortfall().String(),
		})
	case errors.Is(err, entities.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "account not found"})
	case errors.Is(err, entities.ErrNothingPending):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "nothing pending to confirm"})
	case errors.Is(err, entities.ErrUnrecognizedReply):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reply yes or no"})
	case errors.Is(err, entities.ErrAlreadyProcessing):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "transfer already executing"})
	case errors.Is(err, entities.ErrClaimNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "claim not found"})
	case errors.Is(err, entities.ErrClaimExpired):
		writeJSON(w, http.StatusGone, map[string]string{"error": "claim expired"})
	case errors.Is(err, entities.ErrClaimAlreadyClaimed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "claim already redeemed"})
	case errors.As(err, &networkErr):
		h.logger.Error("Network failure", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": networkErr.Error()})
	default:
		h.logger.Error("Unhandled engine error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
