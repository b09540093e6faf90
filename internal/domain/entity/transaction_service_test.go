package entity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"lifedash/internal/domain/autorule"
)

// MockTransactionRepo implements TransactionRepository for testing
type MockTransactionRepo struct {
	UpsertFunc  func(ctx context.Context, tx *Transaction) error
	GetByIDFunc func(ctx context.Context, userID, id string) (*Transaction, error)
}

func (m *MockTransactionRepo) Upsert(ctx context.Context, tx *Transaction) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, tx)
	}
	return nil
}

func (m *MockTransactionRepo) GetByID(ctx context.Context, userID, id string) (*Transaction, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, userID, id)
	}
	return nil, ErrNotFound
}

// MockRuleApplier implements RuleApplier for testing
type MockRuleApplier struct {
	ApplyFunc func(ctx context.Context, userID string, rec autorule.Record) (*autorule.Patch, error)
	calls     int
}

func (m *MockRuleApplier) Apply(ctx context.Context, userID string, rec autorule.Record) (*autorule.Patch, error) {
	m.calls++
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, userID, rec)
	}
	return nil, nil
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestTransactionService_Create_Validation(t *testing.T) {
	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		params    CreateTransactionParams
		wantField string
	}{
		{"missing description", CreateTransactionParams{UserID: "u1", Amount: amount("1"), Date: date}, "description"},
		{"blank description", CreateTransactionParams{UserID: "u1", Description: "  ", Amount: amount("1"), Date: date}, "description"},
		{"missing amount", CreateTransactionParams{UserID: "u1", Description: "x", Date: date}, "amount"},
		{"missing date", CreateTransactionParams{UserID: "u1", Description: "x", Amount: amount("1")}, "date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewTransactionService(&MockTransactionRepo{
				UpsertFunc: func(ctx context.Context, tx *Transaction) error {
					t.Error("Upsert should not be called")
					return nil
				},
			}, nil)

			_, err := svc.Create(context.Background(), tt.params)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Create() error = %v, want ValidationError", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", vErr.Field, tt.wantField)
			}
		})
	}
}

func TestTransactionService_Create_AppliesRules(t *testing.T) {
	var saved *Transaction
	category := "Coffee"
	review := true
	rules := &MockRuleApplier{
		ApplyFunc: func(ctx context.Context, userID string, rec autorule.Record) (*autorule.Patch, error) {
			if rec.Merchant != "Starbucks" {
				t.Errorf("record merchant = %q", rec.Merchant)
			}
			return &autorule.Patch{Category: &category, Tags: []string{"coffee"}, NeedsReview: &review}, nil
		},
	}
	svc := NewTransactionService(&MockTransactionRepo{
		UpsertFunc: func(ctx context.Context, tx *Transaction) error {
			saved = tx
			return nil
		},
	}, rules)

	tx, err := svc.Create(context.Background(), CreateTransactionParams{
		UserID:      "u1",
		Description: "STARBUCKS 42",
		Merchant:    "Starbucks",
		Amount:      amount("5.40"),
		Date:        time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if saved != tx {
		t.Fatal("Create() did not persist the returned transaction")
	}
	if tx.Category != "Coffee" || !tx.NeedsReview || len(tx.Tags) != 1 {
		t.Errorf("transaction = %+v, want patch merged", tx)
	}
	if tx.CreatedAt.IsZero() || tx.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}
}

func TestTransactionService_Ingest_UpdateSkipsRules(t *testing.T) {
	rules := &MockRuleApplier{}
	svc := NewTransactionService(&MockTransactionRepo{}, rules)

	err := svc.Ingest(context.Background(), &Transaction{ID: "T1", UserID: "u1", Description: "x"}, false)
	if err != nil {
		t.Fatalf("Ingest() failed: %v", err)
	}
	if rules.calls != 0 {
		t.Errorf("rules applied %d times on update, want 0", rules.calls)
	}
}

func TestTransactionService_Ingest_RuleErrorBlocksCommit(t *testing.T) {
	svc := NewTransactionService(&MockTransactionRepo{
		UpsertFunc: func(ctx context.Context, tx *Transaction) error {
			t.Error("Upsert should not be called")
			return nil
		},
	}, &MockRuleApplier{
		ApplyFunc: func(ctx context.Context, userID string, rec autorule.Record) (*autorule.Patch, error) {
			return nil, errors.New("rules unavailable")
		},
	})

	if err := svc.Ingest(context.Background(), &Transaction{ID: "T1", UserID: "u1"}, true); err == nil {
		t.Error("Ingest() expected error, got nil")
	}
}

func TestWellnessPatch_ApplyTo(t *testing.T) {
	snap := &WellnessSnapshot{Sleep: &Sleep{Hours: 7}, Stress: &Stress{Level: 3}}
	WellnessPatch{Stress: &Stress{Level: 6}, Activity: &Activity{Steps: 9000}}.ApplyTo(snap)

	if snap.Sleep == nil || snap.Sleep.Hours != 7 {
		t.Errorf("Sleep = %+v, want untouched", snap.Sleep)
	}
	if snap.Stress.Level != 6 || snap.Activity == nil || snap.Activity.Steps != 9000 {
		t.Errorf("snapshot = %+v, want stress 6 and steps 9000", snap)
	}
}
