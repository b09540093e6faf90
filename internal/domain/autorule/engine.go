package autorule

// Evaluate runs every active rule against rec and accumulates the actions of
// the matching ones into a single patch. Rules are visited in the given order
// and evaluation never stops early, so a later rule can overwrite the
// category set by an earlier one.
func Evaluate(rec Record, rules []*Rule) Result {
	active := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if r != nil && r.IsActive {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		return Result{}
	}

	var patch *Patch
	var matched []string
	for _, r := range active {
		if !ruleMatches(r, rec) {
			continue
		}
		if patch == nil {
			patch = &Patch{}
		}
		for _, a := range r.Actions {
			a.apply(patch, rec)
		}
		matched = append(matched, r.ID)
	}

	return Result{Patch: patch, Matched: matched}
}

func ruleMatches(r *Rule, rec Record) bool {
	if r.MatchType == MatchAny {
		for _, c := range r.Conditions {
			if conditionMatches(c, rec) {
				return true
			}
		}
		return false
	}

	// all: an empty condition list matches
	for _, c := range r.Conditions {
		if !conditionMatches(c, rec) {
			return false
		}
	}
	return true
}

func conditionMatches(c Condition, rec Record) bool {
	if c.Op == nil {
		return false
	}
	return c.Op.match(fieldValue(rec, c.Field))
}
