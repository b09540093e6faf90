package firebase

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"lifedash/internal/domain/autorule"
)

type conditionDoc struct {
	Field    string `firestore:"field"`
	Operator string `firestore:"operator"`
	Value    any    `firestore:"value"`
}

type actionDoc struct {
	Type  string `firestore:"type"`
	Value any    `firestore:"value,omitempty"`
}

type ruleDoc struct {
	Name            string         `firestore:"name"`
	IsActive        bool           `firestore:"isActive"`
	MatchType       string         `firestore:"matchType"`
	Conditions      []conditionDoc `firestore:"conditions"`
	Actions         []actionDoc    `firestore:"actions"`
	LastTriggeredAt *time.Time     `firestore:"lastTriggeredAt"`
	CreatedAt       time.Time      `firestore:"createdAt"`
}

func ruleFromSnapshot(userID string, snap *firestore.DocumentSnapshot) (*autorule.Rule, error) {
	var d ruleDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode auto rule: %w", err)
	}

	conditions := make([]autorule.RawCondition, 0, len(d.Conditions))
	for _, c := range d.Conditions {
		conditions = append(conditions, autorule.RawCondition{Field: c.Field, Operator: c.Operator, Value: c.Value})
	}
	actions := make([]autorule.RawAction, 0, len(d.Actions))
	for _, a := range d.Actions {
		actions = append(actions, autorule.RawAction{Type: a.Type, Value: a.Value})
	}

	return &autorule.Rule{
		ID:              snap.Ref.ID,
		UserID:          userID,
		Name:            d.Name,
		IsActive:        d.IsActive,
		MatchType:       autorule.MatchType(d.MatchType),
		Conditions:      autorule.CompileConditions(conditions),
		Actions:         autorule.CompileActions(actions),
		LastTriggeredAt: d.LastTriggeredAt,
		CreatedAt:       d.CreatedAt,
	}, nil
}

// RuleRepository stores rules at users/{uid}/autoRules/{id}.
type RuleRepository struct {
	c *Client
}

func NewRuleRepository(c *Client) *RuleRepository {
	return &RuleRepository{c: c}
}

func (r *RuleRepository) ListByUser(ctx context.Context, userID string) ([]*autorule.Rule, error) {
	snaps, err := r.c.userCollection(userID, colRules).OrderBy("createdAt", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}

	rules := make([]*autorule.Rule, 0, len(snaps))
	for _, snap := range snaps {
		rule, err := ruleFromSnapshot(userID, snap)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (r *RuleRepository) GetByID(ctx context.Context, userID, id string) (*autorule.Rule, error) {
	snap, err := r.c.userCollection(userID, colRules).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, autorule.ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return ruleFromSnapshot(userID, snap)
}

func (r *RuleRepository) Create(ctx context.Context, rule *autorule.Rule) error {
	doc := &ruleDoc{
		Name:            rule.Name,
		IsActive:        rule.IsActive,
		MatchType:       string(rule.MatchType),
		LastTriggeredAt: rule.LastTriggeredAt,
		CreatedAt:       rule.CreatedAt,
	}
	for _, c := range rule.RawConditions() {
		doc.Conditions = append(doc.Conditions, conditionDoc{Field: c.Field, Operator: c.Operator, Value: c.Value})
	}
	for _, a := range rule.RawActions() {
		doc.Actions = append(doc.Actions, actionDoc{Type: a.Type, Value: a.Value})
	}

	_, err := r.c.userCollection(rule.UserID, colRules).Doc(rule.ID).Create(ctx, doc)
	return err
}

func (r *RuleRepository) SetActive(ctx context.Context, userID, id string, active bool) error {
	_, err := r.c.userCollection(userID, colRules).Doc(id).Update(ctx, []firestore.Update{{Path: "isActive", Value: active}})
	if isNotFound(err) {
		return autorule.ErrRuleNotFound
	}
	return err
}

func (r *RuleRepository) Delete(ctx context.Context, userID, id string) error {
	_, err := r.c.userCollection(userID, colRules).Doc(id).Delete(ctx, firestore.Exists)
	if isNotFound(err) {
		return autorule.ErrRuleNotFound
	}
	return err
}

// MarkTriggered skips rules deleted since they matched.
func (r *RuleRepository) MarkTriggered(ctx context.Context, userID string, ids []string, at time.Time) error {
	for _, id := range ids {
		_, err := r.c.userCollection(userID, colRules).Doc(id).Update(ctx, []firestore.Update{{Path: "lastTriggeredAt", Value: at}})
		if err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}
