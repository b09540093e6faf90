// Package entity defines the user-owned records the sync engine writes to,
// and the transaction ingestion path that runs auto rules before commit.
package entity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lifedash/internal/domain/autorule"
)

// ValidationError reports a missing or malformed field on direct creation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RuleApplier produces the auto rule patch for a record.
type RuleApplier interface {
	Apply(ctx context.Context, userID string, rec autorule.Record) (*autorule.Patch, error)
}

// CreateTransactionParams contains the parameters for creating a transaction
type CreateTransactionParams struct {
	UserID      string
	Description string
	Merchant    string
	Account     string
	Amount      *decimal.Decimal
	Currency    string
	Date        time.Time
	Category    string
	Tags        []string
}

// Validate validates the create parameters
func (p *CreateTransactionParams) Validate() error {
	if p.UserID == "" {
		return &ValidationError{Field: "userId", Reason: "is required"}
	}
	if strings.TrimSpace(p.Description) == "" {
		return &ValidationError{Field: "description", Reason: "is required"}
	}
	if p.Amount == nil {
		return &ValidationError{Field: "amount", Reason: "is required"}
	}
	if p.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	return nil
}

// TransactionService ingests transactions, running auto rules before commit.
type TransactionService struct {
	repo  TransactionRepository
	rules RuleApplier
	now   func() time.Time
}

// NewTransactionService creates a transaction service. rules may be nil.
func NewTransactionService(repo TransactionRepository, rules RuleApplier) *TransactionService {
	return &TransactionService{repo: repo, rules: rules, now: time.Now}
}

// Create validates params, applies auto rules and stores a new transaction.
func (s *TransactionService) Create(ctx context.Context, params CreateTransactionParams) (*Transaction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	tx := &Transaction{
		ID:          uuid.NewString(),
		UserID:      params.UserID,
		Description: strings.TrimSpace(params.Description),
		Merchant:    params.Merchant,
		Account:     params.Account,
		Amount:      *params.Amount,
		Currency:    params.Currency,
		Date:        params.Date,
		Category:    params.Category,
		Tags:        params.Tags,
		Source:      "manual",
	}

	if err := s.Ingest(ctx, tx, true); err != nil {
		return nil, err
	}
	return tx, nil
}

// Ingest persists tx under its ID. When isNew is set the user's auto rules
// run first and their patch is merged into tx. Updates of known records are
// stored as given so user edits to category or tags are not overridden.
func (s *TransactionService) Ingest(ctx context.Context, tx *Transaction, isNew bool) error {
	if tx.ID == "" || tx.UserID == "" {
		return fmt.Errorf("transaction id and user id are required")
	}

	now := s.now().UTC()
	if isNew {
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = now
		}
		if s.rules != nil {
			patch, err := s.rules.Apply(ctx, tx.UserID, autorule.Record{
				Description: tx.Description,
				Merchant:    tx.Merchant,
				Account:     tx.Account,
				Amount:      tx.Amount,
				Tags:        tx.Tags,
			})
			if err != nil {
				return fmt.Errorf("failed to apply auto rules: %w", err)
			}
			MergePatch(tx, patch)
		}
	}
	if tx.Tags == nil {
		tx.Tags = []string{}
	}
	tx.UpdatedAt = now

	if err := s.repo.Upsert(ctx, tx); err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

// MergePatch copies the fields set by an auto rule patch into tx.
func MergePatch(tx *Transaction, patch *autorule.Patch) {
	if patch == nil {
		return
	}
	if patch.Category != nil {
		tx.Category = *patch.Category
	}
	if patch.Tags != nil {
		tx.Tags = patch.Tags
	}
	if patch.NeedsReview != nil {
		tx.NeedsReview = *patch.NeedsReview
	}
	if patch.GoalID != nil {
		tx.GoalID = *patch.GoalID
	}
}
