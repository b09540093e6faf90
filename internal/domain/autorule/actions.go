package autorule

import "slices"

// Action is the sealed set of rule actions.
type Action interface {
	Type() ActionType
	Raw() RawAction
	apply(p *Patch, rec Record)
}

// Categorize overwrites the category.
type Categorize struct{ Category string }

// AddTag appends a tag unless already present.
type AddTag struct{ Tag string }

// FlagReview marks the record for review.
type FlagReview struct{}

// LinkGoal links the record to a goal.
type LinkGoal struct{ GoalID string }

func (Categorize) Type() ActionType { return ActionCategorize }
func (AddTag) Type() ActionType     { return ActionAddTag }
func (FlagReview) Type() ActionType { return ActionFlagReview }
func (LinkGoal) Type() ActionType   { return ActionLinkGoal }

func (a Categorize) Raw() RawAction { return RawAction{Type: string(ActionCategorize), Value: a.Category} }
func (a AddTag) Raw() RawAction     { return RawAction{Type: string(ActionAddTag), Value: a.Tag} }
func (FlagReview) Raw() RawAction   { return RawAction{Type: string(ActionFlagReview), Value: true} }
func (a LinkGoal) Raw() RawAction   { return RawAction{Type: string(ActionLinkGoal), Value: a.GoalID} }

func (a Categorize) apply(p *Patch, _ Record) {
	category := a.Category
	p.Category = &category
}

func (a AddTag) apply(p *Patch, rec Record) {
	if p.Tags == nil {
		p.Tags = slices.Clone(rec.Tags)
		if p.Tags == nil {
			p.Tags = []string{}
		}
	}
	if !slices.Contains(p.Tags, a.Tag) {
		p.Tags = append(p.Tags, a.Tag)
	}
}

func (FlagReview) apply(p *Patch, _ Record) {
	flag := true
	p.NeedsReview = &flag
}

func (a LinkGoal) apply(p *Patch, _ Record) {
	goalID := a.GoalID
	p.GoalID = &goalID
}

// ParseAction compiles a stored action. It returns false for unknown types
// and for actions missing the string value they need.
func ParseAction(raw RawAction) (Action, bool) {
	str, _ := raw.Value.(string)

	switch ActionType(raw.Type) {
	case ActionCategorize:
		if str == "" {
			return nil, false
		}
		return Categorize{Category: str}, true
	case ActionAddTag:
		if str == "" {
			return nil, false
		}
		return AddTag{Tag: str}, true
	case ActionFlagReview:
		return FlagReview{}, true
	case ActionLinkGoal:
		if str == "" {
			return nil, false
		}
		return LinkGoal{GoalID: str}, true
	}
	return nil, false
}

// CompileActions parses every stored action, dropping the unusable ones.
func CompileActions(raw []RawAction) []Action {
	actions := make([]Action, 0, len(raw))
	for _, r := range raw {
		if a, ok := ParseAction(r); ok {
			actions = append(actions, a)
		}
	}
	return actions
}

// CompileConditions parses every stored condition.
func CompileConditions(raw []RawCondition) []Condition {
	conditions := make([]Condition, 0, len(raw))
	for _, r := range raw {
		conditions = append(conditions, ParseCondition(r))
	}
	return conditions
}
