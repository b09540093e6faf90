package autorule

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrRuleNotFound = errors.New("auto rule not found")
	ErrInvalidRule  = errors.New("invalid auto rule")
)

// MatchType decides how condition results are combined.
type MatchType string

const (
	MatchAll MatchType = "all"
	MatchAny MatchType = "any"
)

// Field names a record attribute a condition can inspect.
type Field string

const (
	FieldDescription Field = "description"
	FieldAmount      Field = "amount"
	FieldMerchant    Field = "merchant"
	FieldAccount     Field = "account"
)

// Valid reports whether f is a known field.
func (f Field) Valid() bool {
	switch f {
	case FieldDescription, FieldAmount, FieldMerchant, FieldAccount:
		return true
	}
	return false
}

// ActionType names an action kind as stored.
type ActionType string

const (
	ActionCategorize ActionType = "categorize"
	ActionAddTag     ActionType = "add_tag"
	ActionFlagReview ActionType = "flag_review"
	ActionLinkGoal   ActionType = "link_goal"
)

// RawCondition is the stored shape of a condition.
type RawCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// RawAction is the stored shape of an action.
type RawAction struct {
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
}

// Condition is a compiled condition: a field and a typed operator.
type Condition struct {
	Field Field
	Op    Operator
}

// Raw converts the condition back to its stored shape.
func (c Condition) Raw() RawCondition {
	return RawCondition{Field: string(c.Field), Operator: c.Op.Name(), Value: c.Op.operand().raw()}
}

// Rule is a user-defined set of conditions and the actions to run on match.
type Rule struct {
	ID              string
	UserID          string
	Name            string
	IsActive        bool
	MatchType       MatchType
	Conditions      []Condition
	Actions         []Action
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
}

type ruleJSON struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	IsActive        bool           `json:"isActive"`
	MatchType       MatchType      `json:"matchType"`
	Conditions      []RawCondition `json:"conditions"`
	Actions         []RawAction    `json:"actions"`
	LastTriggeredAt *time.Time     `json:"lastTriggeredAt,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// MarshalJSON renders the rule in its stored shape.
func (r *Rule) MarshalJSON() ([]byte, error) {
	out := ruleJSON{
		ID:              r.ID,
		Name:            r.Name,
		IsActive:        r.IsActive,
		MatchType:       r.MatchType,
		Conditions:      r.RawConditions(),
		Actions:         r.RawActions(),
		LastTriggeredAt: r.LastTriggeredAt,
		CreatedAt:       r.CreatedAt,
	}
	return json.Marshal(out)
}

// RawConditions returns the stored shape of the rule's conditions.
func (r *Rule) RawConditions() []RawCondition {
	raw := make([]RawCondition, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		raw = append(raw, c.Raw())
	}
	return raw
}

// RawActions returns the stored shape of the rule's actions.
func (r *Rule) RawActions() []RawAction {
	raw := make([]RawAction, 0, len(r.Actions))
	for _, a := range r.Actions {
		raw = append(raw, a.Raw())
	}
	return raw
}

// Record is the view of a transaction the engine evaluates.
type Record struct {
	Description string
	Merchant    string
	Account     string
	Amount      decimal.Decimal
	Tags        []string
}

// Patch holds the field updates produced by matching rules.
type Patch struct {
	Category    *string  `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	NeedsReview *bool    `json:"needsReview,omitempty"`
	GoalID      *string  `json:"goalId,omitempty"`
}

// Result is the outcome of evaluating a record.
type Result struct {
	// Patch is nil when no rule matched.
	Patch *Patch
	// Matched lists the ids of matching rules in evaluation order.
	Matched []string
}

// CreateRuleParams contains the parameters for creating a rule
type CreateRuleParams struct {
	UserID     string
	Name       string
	IsActive   *bool
	MatchType  MatchType
	Conditions []RawCondition
	Actions    []RawAction
}

// Validate checks the params strictly. Stored rules are evaluated leniently,
// but new rules must only use known fields, operators and actions.
func (p *CreateRuleParams) Validate() error {
	if p.UserID == "" {
		return errors.Join(ErrInvalidRule, errors.New("user id is required"))
	}
	if p.Name == "" {
		return errors.Join(ErrInvalidRule, errors.New("name is required"))
	}
	if p.MatchType != MatchAll && p.MatchType != MatchAny {
		return errors.Join(ErrInvalidRule, errors.New("matchType must be all or any"))
	}
	if len(p.Actions) == 0 {
		return errors.Join(ErrInvalidRule, errors.New("at least one action is required"))
	}
	for _, c := range p.Conditions {
		if !Field(c.Field).Valid() {
			return errors.Join(ErrInvalidRule, errors.New("unknown field: "+c.Field))
		}
		if _, unknown := ParseCondition(c).Op.(Unknown); unknown {
			return errors.Join(ErrInvalidRule, errors.New("unknown operator: "+c.Operator))
		}
	}
	for _, a := range p.Actions {
		if _, ok := ParseAction(a); !ok {
			return errors.Join(ErrInvalidRule, errors.New("unknown or incomplete action: "+a.Type))
		}
	}
	return nil
}
