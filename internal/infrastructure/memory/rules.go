package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"lifedash/internal/domain/autorule"
)

type RuleRepository struct {
	mu    sync.Mutex
	rules []*autorule.Rule
}

func NewRuleRepository() *RuleRepository {
	return &RuleRepository{}
}

func (r *RuleRepository) ListByUser(ctx context.Context, userID string) ([]*autorule.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*autorule.Rule
	for _, rule := range r.rules {
		if rule.UserID == userID {
			cp := *rule
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *RuleRepository) find(userID, id string) (int, bool) {
	idx := slices.IndexFunc(r.rules, func(rule *autorule.Rule) bool {
		return rule.ID == id && rule.UserID == userID
	})
	return idx, idx >= 0
}

func (r *RuleRepository) GetByID(ctx context.Context, userID, id string) (*autorule.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.find(userID, id)
	if !ok {
		return nil, autorule.ErrRuleNotFound
	}
	cp := *r.rules[idx]
	return &cp, nil
}

func (r *RuleRepository) Create(ctx context.Context, rule *autorule.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *rule
	r.rules = append(r.rules, &cp)
	return nil
}

func (r *RuleRepository) SetActive(ctx context.Context, userID, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.find(userID, id)
	if !ok {
		return autorule.ErrRuleNotFound
	}
	r.rules[idx].IsActive = active
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.find(userID, id)
	if !ok {
		return autorule.ErrRuleNotFound
	}
	r.rules = slices.Delete(r.rules, idx, idx+1)
	return nil
}

func (r *RuleRepository) MarkTriggered(ctx context.Context, userID string, ids []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rule := range r.rules {
		if rule.UserID == userID && slices.Contains(ids, rule.ID) {
			t := at
			rule.LastTriggeredAt = &t
		}
	}
	return nil
}
