package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"lifedash/internal/domain/entity"
)

// TransactionCreator creates transactions with auto rules applied.
type TransactionCreator interface {
	Create(ctx context.Context, params entity.CreateTransactionParams) (*entity.Transaction, error)
}

type TransactionHandler struct {
	transactions TransactionCreator
}

func NewTransactionHandler(transactions TransactionCreator) *TransactionHandler {
	return &TransactionHandler{transactions: transactions}
}

// CreateTransactionRequest is the body of a direct transaction creation.
// Amount accepts a JSON number or a decimal string.
type CreateTransactionRequest struct {
	Description string           `json:"description"`
	Merchant    string           `json:"merchant,omitempty"`
	Account     string           `json:"account,omitempty"`
	Amount      *decimal.Decimal `json:"amount"`
	Currency    string           `json:"currency,omitempty"`
	Date        string           `json:"date"`
	Category    string           `json:"category,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
}

// HandleCreateTransaction creates a transaction after running the user's
// auto rules on it.
func (h *TransactionHandler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("Error decoding create transaction request: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var date time.Time
	if req.Date != "" {
		var err error
		if date, err = parseDate(req.Date); err != nil {
			http.Error(w, "Invalid date format (use YYYY-MM-DD or RFC 3339)", http.StatusBadRequest)
			return
		}
	}

	tx, err := h.transactions.Create(r.Context(), entity.CreateTransactionParams{
		UserID:      userID,
		Description: req.Description,
		Merchant:    req.Merchant,
		Account:     req.Account,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Date:        date,
		Category:    req.Category,
		Tags:        req.Tags,
	})
	var vErr *entity.ValidationError
	switch {
	case errors.As(err, &vErr):
		http.Error(w, vErr.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Printf("User %s: failed to create transaction: %v", userID, err)
		http.Error(w, "Failed to create transaction", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
