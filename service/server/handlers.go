package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/mintdash/service/history"
	"github.com/brojonat/mintdash/service/lifecycle"
	"github.com/brojonat/mintdash/service/notify"
	mintsolana "github.com/brojonat/mintdash/service/solana"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - request bodies are a handful of fields
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// sessionResponse is the JSON response format for the wallet session.
type sessionResponse struct {
	Address       string    `json:"address,omitempty"`
	NativeBalance string    `json:"native_balance"`
	Connected     bool      `json:"connected"`
	LastRefresh   time.Time `json:"last_refresh,omitzero"`
}

// handleConnect returns a handler that attaches the wallet.
// POST /api/v1/session
func handleConnect(sessions SessionStore, notifications Notifications, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessions.Connect(r.Context())
		if err != nil {
			code := lifecycle.CodeOf(err)
			message := connectFailureMessage(code)
			logger.WarnContext(r.Context(), "wallet connect failed", "code", code, "error", err)
			notifications.Notify(r.Context(), notify.KindError, "session", message)
			writeCodedError(w, message, code)
			return
		}

		logger.InfoContext(r.Context(), "wallet connected", "address", sess.Address.String())
		writeJSON(w, toSessionResponse(sess.Connected, sess.Address.String(), sess.NativeBalance.String(), sess.LastRefresh), http.StatusOK)
	})
}

// handleDisconnect returns a handler that detaches the wallet.
// DELETE /api/v1/session
func handleDisconnect(sessions SessionStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessions.Disconnect(r.Context())
		logger.InfoContext(r.Context(), "wallet disconnected")
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleGetSession returns a handler that reports the current session.
// GET /api/v1/session
func handleGetSession(sessions SessionStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sessions.Snapshot()
		writeJSON(w, toSessionResponse(sess.Connected, sess.Address.String(), sess.NativeBalance.String(), sess.LastRefresh), http.StatusOK)
	})
}

func toSessionResponse(connected bool, address, balance string, lastRefresh time.Time) sessionResponse {
	if !connected {
		return sessionResponse{NativeBalance: "0"}
	}
	return sessionResponse{
		Address:       address,
		NativeBalance: balance,
		Connected:     true,
		LastRefresh:   lastRefresh,
	}
}

// operationResponse is the JSON response format for a completed operation.
type operationResponse struct {
	Operation string `json:"operation"`
	Signature string `json:"signature"`
	Mint      string `json:"mint"`
	Amount    string `json:"amount,omitempty"`
	BaseUnits uint64 `json:"base_units,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

func resultToResponse(res lifecycle.Result) operationResponse {
	resp := operationResponse{
		Operation: string(res.Operation),
		Signature: res.Signature.String(),
		Mint:      res.Mint.String(),
		BaseUnits: res.BaseUnits,
		Status:    res.Status,
		Message:   res.Message,
	}
	if res.Operation != lifecycle.OpCreate {
		resp.Amount = res.Amount.String()
	}
	return resp
}

// handleCreateMint returns a handler that creates a new token mint.
// POST /api/v1/mints
func handleCreateMint(ops Operations, notifications Notifications, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name     string     `json:"name"`
			Symbol   string     `json:"symbol"`
			Decimals numberText `json:"decimals"`
		}
		if !decodeBody(w, r, &req, lifecycle.OpCreate, notifications, logger) {
			return
		}

		res, err := ops.Create(r.Context(), lifecycle.CreateRequest{
			Name:     req.Name,
			Symbol:   req.Symbol,
			Decimals: string(req.Decimals),
		})
		if err != nil {
			writeOperationError(w, err)
			return
		}
		writeJSON(w, resultToResponse(res), http.StatusCreated)
	})
}

// handleMintSupply returns a handler that mints supply into the session's account.
// POST /api/v1/mints/{mint}/supply
// The mint address is validated by the operation so a bad path fails like
// any other invalid input.
func handleMintSupply(ops Operations, notifications Notifications, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount numberText `json:"amount"`
		}
		if !decodeBody(w, r, &req, lifecycle.OpMint, notifications, logger) {
			return
		}

		res, err := ops.Mint(r.Context(), lifecycle.MintRequest{Mint: r.PathValue("mint"), Amount: string(req.Amount)})
		if err != nil {
			writeOperationError(w, err)
			return
		}
		writeJSON(w, resultToResponse(res), http.StatusOK)
	})
}

// handleSend returns a handler that transfers tokens to a recipient.
// POST /api/v1/transfers
func handleSend(ops Operations, notifications Notifications, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Mint      string     `json:"mint"`
			Recipient string     `json:"recipient"`
			Amount    numberText `json:"amount"`
		}
		if !decodeBody(w, r, &req, lifecycle.OpSend, notifications, logger) {
			return
		}

		res, err := ops.Send(r.Context(), lifecycle.SendRequest{
			Mint:      req.Mint,
			Recipient: req.Recipient,
			Amount:    string(req.Amount),
		})
		if err != nil {
			writeOperationError(w, err)
			return
		}
		writeJSON(w, resultToResponse(res), http.StatusOK)
	})
}

// mintResponse is the JSON response format for mint metadata.
type mintResponse struct {
	Address         string  `json:"address"`
	Decimals        uint8   `json:"decimals"`
	Supply          string  `json:"supply"`
	SupplyBaseUnits uint64  `json:"supply_base_units"`
	MintAuthority   *string `json:"mint_authority,omitempty"`
	FreezeAuthority *string `json:"freeze_authority,omitempty"`
}

// handleGetMint returns a handler that reads mint metadata.
// GET /api/v1/mints/{mint}
func handleGetMint(ops Operations, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mint := r.PathValue("mint")
		if err := validateAddress(mint); err != nil {
			logger.Debug("invalid mint", "mint", mint, "error", err)
			writeCodedError(w, err.Error(), lifecycle.CodeInvalidInput)
			return
		}

		info, err := ops.MintInfo(r.Context(), mint)
		switch {
		case errors.Is(err, lifecycle.ErrInvalidInput):
			writeCodedError(w, "invalid mint address", lifecycle.CodeInvalidInput)
			return
		case errors.Is(err, mintsolana.ErrAccountNotFound):
			writeError(w, "mint not found", http.StatusNotFound)
			return
		case errors.Is(err, mintsolana.ErrInvalidAccountData):
			writeError(w, "account is not a token mint", http.StatusUnprocessableEntity)
			return
		case err != nil:
			logger.ErrorContext(r.Context(), "failed to read mint", "mint", mint, "error", err)
			writeError(w, "failed to read mint", http.StatusBadGateway)
			return
		}

		resp := mintResponse{
			Address:         info.Address.String(),
			Decimals:        info.Decimals,
			Supply:          mintsolana.BaseUnitsToDecimal(info.Supply, info.Decimals).String(),
			SupplyBaseUnits: info.Supply,
		}
		if info.MintAuthority != nil {
			s := info.MintAuthority.String()
			resp.MintAuthority = &s
		}
		if info.FreezeAuthority != nil {
			s := info.FreezeAuthority.String()
			resp.FreezeAuthority = &s
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleListTokenAccounts returns a handler that lists the session's token balances.
// GET /api/v1/token-accounts
func handleListTokenAccounts(ops Operations, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries, err := ops.ListTokenBalances(r.Context())
		if errors.Is(err, lifecycle.ErrNotConnected) {
			writeCodedError(w, "Connect a wallet first", lifecycle.CodeNotConnected)
			return
		}
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list token accounts", "error", err)
			writeError(w, "failed to list token accounts", http.StatusBadGateway)
			return
		}

		logger.Debug("token accounts listed", "count", len(entries))
		writeJSON(w, map[string]interface{}{
			"token_accounts": entries,
			"count":          len(entries),
		}, http.StatusOK)
	})
}

// handleListTransactions returns a handler that lists the session's recent transactions.
// GET /api/v1/transactions
func handleListTransactions(sessions SessionStore, reader HistoryReader, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address, err := sessions.Address()
		if err != nil {
			writeCodedError(w, "Connect a wallet first", lifecycle.CodeNotConnected)
			return
		}

		records := reader.List(r.Context(), address)
		if records == nil {
			records = []history.TransactionRecord{}
		}

		logger.Debug("transactions listed", "address", address.String(), "count", len(records))
		writeJSON(w, map[string]interface{}{
			"address":      address.String(),
			"transactions": records,
			"count":        len(records),
		}, http.StatusOK)
	})
}

// handleListRecentMints returns a handler that lists recently used mints.
// GET /api/v1/recent-mints
func handleListRecentMints(recent RecentMints, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mints, err := recent.Entries(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to read recent mints", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if mints == nil {
			mints = []string{}
		}
		writeJSON(w, map[string]interface{}{"mints": mints}, http.StatusOK)
	})
}

// handleGetNotification returns a handler that reports the live notification.
// GET /api/v1/notification
func handleGetNotification(notifications Notifications) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, ok := notifications.Current()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, n, http.StatusOK)
	})
}

// handleDismissNotification returns a handler that clears the live notification.
// DELETE /api/v1/notification
func handleDismissNotification(notifications Notifications) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		notifications.Dismiss()
		w.WriteHeader(http.StatusNoContent)
	})
}

// numberText accepts a JSON number or string and keeps its text so the
// operation decides whether it is a valid amount.
type numberText string

func (n *numberText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = numberText(s)
		return nil
	}
	*n = numberText(data)
	return nil
}

// decodeBody decodes a size-limited JSON body into v. On failure it writes
// a 400 and raises op's error notification.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, op lifecycle.Operation, notifications Notifications, logger *slog.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	logger.Debug("failed to decode request", "operation", op, "error", err)

	message := "Invalid input: request body must be valid JSON"
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		message = "Invalid input: request body too large, maximum size is 1MB"
	}
	notifications.Notify(r.Context(), notify.KindError, string(op), message)
	writeCodedError(w, message, lifecycle.CodeInvalidInput)
	return false
}

// statusForCode maps a failure code to an HTTP status.
func statusForCode(code lifecycle.Code) int {
	switch code {
	case lifecycle.CodeInvalidInput:
		return http.StatusBadRequest
	case lifecycle.CodeNotConnected, lifecycle.CodeOperationInFlight:
		return http.StatusConflict
	case lifecycle.CodeWalletUnavailable:
		return http.StatusServiceUnavailable
	case lifecycle.CodeConnectionRejected, lifecycle.CodeSigningRejected:
		return http.StatusForbidden
	case lifecycle.CodeSubmissionFailed:
		return http.StatusBadGateway
	case lifecycle.CodeConfirmationTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func connectFailureMessage(code lifecycle.Code) string {
	switch code {
	case lifecycle.CodeWalletUnavailable:
		return "No wallet available. Import or generate a wallet key first"
	case lifecycle.CodeConnectionRejected:
		return "Wallet connection was rejected"
	}
	return "Failed to connect wallet"
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// writeCodedError writes a JSON error response carrying the failure code.
func writeCodedError(w http.ResponseWriter, message string, code lifecycle.Code) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForCode(code))
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  string(code),
	})
}

// writeOperationError writes the static user-facing message of a failed
// operation. Collaborator detail stays in the logs.
func writeOperationError(w http.ResponseWriter, err error) {
	var opErr *lifecycle.OperationError
	if errors.As(err, &opErr) {
		writeCodedError(w, opErr.Message(), opErr.Code)
		return
	}
	writeCodedError(w, "Operation failed", lifecycle.CodeOf(err))
}

// validateAddress validates an address path parameter for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if strings.TrimSpace(address) != address || !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

// errorf creates a validation error with a formatted message.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
