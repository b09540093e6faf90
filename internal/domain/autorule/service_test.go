package autorule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// MockRuleRepo implements Repository for testing
type MockRuleRepo struct {
	ListByUserFunc    func(ctx context.Context, userID string) ([]*Rule, error)
	GetByIDFunc       func(ctx context.Context, userID, id string) (*Rule, error)
	CreateFunc        func(ctx context.Context, rule *Rule) error
	SetActiveFunc     func(ctx context.Context, userID, id string, active bool) error
	DeleteFunc        func(ctx context.Context, userID, id string) error
	MarkTriggeredFunc func(ctx context.Context, userID string, ids []string, at time.Time) error
}

func (m *MockRuleRepo) ListByUser(ctx context.Context, userID string) ([]*Rule, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockRuleRepo) GetByID(ctx context.Context, userID, id string) (*Rule, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, userID, id)
	}
	return nil, ErrRuleNotFound
}

func (m *MockRuleRepo) Create(ctx context.Context, rule *Rule) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, rule)
	}
	return nil
}

func (m *MockRuleRepo) SetActive(ctx context.Context, userID, id string, active bool) error {
	if m.SetActiveFunc != nil {
		return m.SetActiveFunc(ctx, userID, id, active)
	}
	return nil
}

func (m *MockRuleRepo) Delete(ctx context.Context, userID, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID, id)
	}
	return nil
}

func (m *MockRuleRepo) MarkTriggered(ctx context.Context, userID string, ids []string, at time.Time) error {
	if m.MarkTriggeredFunc != nil {
		return m.MarkTriggeredFunc(ctx, userID, ids, at)
	}
	return nil
}

func TestService_Apply_StampsMatchedRules(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var stamped []string
	var stampedAt time.Time

	repo := &MockRuleRepo{
		ListByUserFunc: func(ctx context.Context, userID string) ([]*Rule, error) {
			return []*Rule{
				rule("r1", MatchAll, []RawCondition{{Field: "merchant", Operator: "equals", Value: "starbucks"}},
					[]RawAction{{Type: "categorize", Value: "Coffee"}}),
				rule("r2", MatchAll, []RawCondition{{Field: "merchant", Operator: "equals", Value: "uber"}},
					[]RawAction{{Type: "categorize", Value: "Transport"}}),
			}, nil
		},
		MarkTriggeredFunc: func(ctx context.Context, userID string, ids []string, at time.Time) error {
			stamped = ids
			stampedAt = at
			return nil
		},
	}
	svc := NewService(repo)
	svc.now = func() time.Time { return now }

	patch, err := svc.Apply(context.Background(), "u1", coffeeRecord())
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if patch == nil || patch.Category == nil || *patch.Category != "Coffee" {
		t.Fatalf("Apply() patch = %+v, want Coffee category", patch)
	}
	if len(stamped) != 1 || stamped[0] != "r1" {
		t.Errorf("stamped = %v, want [r1]", stamped)
	}
	if !stampedAt.Equal(now) {
		t.Errorf("stampedAt = %v, want %v", stampedAt, now)
	}
}

func TestService_Apply_NoMatchSkipsStamp(t *testing.T) {
	repo := &MockRuleRepo{
		ListByUserFunc: func(ctx context.Context, userID string) ([]*Rule, error) {
			return []*Rule{rule("r1", MatchAll, []RawCondition{{Field: "amount", Operator: "greater_than", Value: 1000.0}},
				[]RawAction{{Type: "flag_review"}})}, nil
		},
		MarkTriggeredFunc: func(ctx context.Context, userID string, ids []string, at time.Time) error {
			t.Error("MarkTriggered should not be called")
			return nil
		},
	}

	patch, err := NewService(repo).Apply(context.Background(), "u1", Record{Amount: decimal.NewFromInt(3)})
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if patch != nil {
		t.Errorf("Apply() patch = %+v, want nil", patch)
	}
}

func TestService_Apply_StampFailureDoesNotBlock(t *testing.T) {
	repo := &MockRuleRepo{
		ListByUserFunc: func(ctx context.Context, userID string) ([]*Rule, error) {
			return []*Rule{rule("r1", MatchAll, nil, []RawAction{{Type: "flag_review"}})}, nil
		},
		MarkTriggeredFunc: func(ctx context.Context, userID string, ids []string, at time.Time) error {
			return errors.New("write failed")
		},
	}

	patch, err := NewService(repo).Apply(context.Background(), "u1", coffeeRecord())
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if patch == nil {
		t.Error("expected patch despite stamp failure")
	}
}

func TestService_Create(t *testing.T) {
	var stored *Rule
	repo := &MockRuleRepo{
		CreateFunc: func(ctx context.Context, rule *Rule) error {
			stored = rule
			return nil
		},
	}

	r, err := NewService(repo).Create(context.Background(), CreateRuleParams{
		UserID:     "u1",
		Name:       "Big purchases",
		MatchType:  MatchAll,
		Conditions: []RawCondition{{Field: "amount", Operator: "greater_than", Value: 500.0}},
		Actions:    []RawAction{{Type: "flag_review"}},
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if stored != r || r.ID == "" || !r.IsActive {
		t.Errorf("Create() stored %+v, want active rule with id", r)
	}
	if _, ok := r.Conditions[0].Op.(GreaterThan); !ok {
		t.Errorf("condition operator = %T, want GreaterThan", r.Conditions[0].Op)
	}
}

func TestService_Create_Invalid(t *testing.T) {
	_, err := NewService(&MockRuleRepo{}).Create(context.Background(), CreateRuleParams{UserID: "u1"})
	if !errors.Is(err, ErrInvalidRule) {
		t.Errorf("Create() error = %v, want %v", err, ErrInvalidRule)
	}
}

func TestService_Delete_NotFound(t *testing.T) {
	err := NewService(&MockRuleRepo{}).Delete(context.Background(), "u1", "missing")
	if !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Delete() error = %v, want %v", err, ErrRuleNotFound)
	}
}
