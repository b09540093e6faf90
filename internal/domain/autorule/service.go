// Package autorule evaluates user-defined categorization rules against
// incoming transactions.
package autorule

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Service handles business logic for auto rules
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new auto rule service
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Apply evaluates the user's rules against rec and returns the patch to merge
// before the record is persisted, or nil when nothing matched. Matching rules
// get lastTriggeredAt stamped whether or not the caller persists the record.
func (s *Service) Apply(ctx context.Context, userID string, rec Record) (*Patch, error) {
	rules, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load auto rules: %w", err)
	}

	res := Evaluate(rec, rules)
	if len(res.Matched) == 0 {
		return nil, nil
	}

	if err := s.repo.MarkTriggered(ctx, userID, res.Matched, s.now().UTC()); err != nil {
		log.Printf("User %s: failed to stamp %d triggered rules: %v", userID, len(res.Matched), err)
	}

	return res.Patch, nil
}

// Create validates params and stores a new rule.
func (s *Service) Create(ctx context.Context, params CreateRuleParams) (*Rule, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	active := true
	if params.IsActive != nil {
		active = *params.IsActive
	}

	rule := &Rule{
		ID:         uuid.NewString(),
		UserID:     params.UserID,
		Name:       params.Name,
		IsActive:   active,
		MatchType:  params.MatchType,
		Conditions: CompileConditions(params.Conditions),
		Actions:    CompileActions(params.Actions),
		CreatedAt:  s.now().UTC(),
	}

	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create auto rule: %w", err)
	}
	return rule, nil
}

// List returns the user's rules in evaluation order.
func (s *Service) List(ctx context.Context, userID string) ([]*Rule, error) {
	rules, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list auto rules: %w", err)
	}
	return rules, nil
}

// SetActive toggles a rule.
func (s *Service) SetActive(ctx context.Context, userID, id string, active bool) (*Rule, error) {
	if _, err := s.repo.GetByID(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, userID, id, active); err != nil {
		return nil, fmt.Errorf("failed to update auto rule: %w", err)
	}
	return s.repo.GetByID(ctx, userID, id)
}

// Delete removes a rule.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.repo.GetByID(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("failed to delete auto rule: %w", err)
	}
	return nil
}
