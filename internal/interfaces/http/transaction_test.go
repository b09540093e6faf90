package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lifedash/internal/domain/autorule"
	"lifedash/internal/domain/entity"
	"lifedash/internal/infrastructure/memory"
)

func TestHandleCreateTransaction(t *testing.T) {
	rules := autorule.NewService(memory.NewRuleRepository())
	if _, err := rules.Create(context.Background(), autorule.CreateRuleParams{
		UserID:     "u1",
		Name:       "Coffee",
		MatchType:  autorule.MatchAll,
		Conditions: []autorule.RawCondition{{Field: "merchant", Operator: "equals", Value: "Starbucks"}},
		Actions:    []autorule.RawAction{{Type: "categorize", Value: "Coffee"}},
	}); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	repo := memory.NewTransactionRepository()
	h := NewTransactionHandler(entity.NewTransactionService(repo, rules))

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		wantCategory   string
	}{
		{
			name:           "Rules Applied",
			body:           `{"description":"STARBUCKS 42","merchant":"Starbucks","amount":"5.40","date":"2024-05-01"}`,
			expectedStatus: http.StatusCreated,
			wantCategory:   "Coffee",
		},
		{
			name:           "Numeric Amount Without Match",
			body:           `{"description":"Groceries","merchant":"Market","amount":120.5,"date":"2024-05-01T10:00:00Z"}`,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Missing Description",
			body:           `{"amount":"5","date":"2024-05-01"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Missing Amount",
			body:           `{"description":"x","date":"2024-05-01"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Bad Date",
			body:           `{"description":"x","amount":"1","date":"01/05/2024"}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/transactions", bytes.NewBufferString(tt.body))
			rr := serve(t, "/api/transactions", h.HandleCreateTransaction, req, "u1")

			if rr.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.expectedStatus, rr.Body.String())
			}
			if tt.expectedStatus != http.StatusCreated {
				return
			}

			var tx entity.Transaction
			if err := json.NewDecoder(rr.Body).Decode(&tx); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if tx.Category != tt.wantCategory {
				t.Errorf("Category = %q, want %q", tx.Category, tt.wantCategory)
			}
			stored, err := repo.GetByID(context.Background(), "u1", tx.ID)
			if err != nil || stored.Category != tt.wantCategory {
				t.Errorf("stored = %+v (%v), want category %q", stored, err, tt.wantCategory)
			}
		})
	}
}

func TestHandleCreateTransaction_Unauthorized(t *testing.T) {
	h := NewTransactionHandler(entity.NewTransactionService(memory.NewTransactionRepository(), nil))

	req := httptest.NewRequest(http.MethodPost, "/api/transactions", bytes.NewBufferString(`{}`))
	rr := serve(t, "/api/transactions", h.HandleCreateTransaction, req, "")

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}
