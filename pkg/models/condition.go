package models

// Condition is a traversal predicate evaluated against an execution's
// variable store: a small structured tree of variable-equality leaves
// composed with all/any, instead of free-form scripts. A nil Condition is
// always satisfied.
type Condition struct {
	Variable string       `json:"variable,omitempty"`
	Equals   any          `json:"equals,omitempty"`
	All      []*Condition `json:"all,omitempty"`
	Any      []*Condition `json:"any,omitempty"`
}

// Evaluate reports whether the condition holds for the given variables.
func (c *Condition) Evaluate(vars map[string]any) bool {
	if c == nil {
		return true
	}

	if len(c.All) > 0 {
		for _, sub := range c.All {
			if !sub.Evaluate(vars) {
				return false
			}
		}

		return true
	}

	if len(c.Any) > 0 {
		for _, sub := range c.Any {
			if sub.Evaluate(vars) {
				return true
			}
		}

		return false
	}

	if c.Variable == "" {
		return true
	}

	return equalValues(vars[c.Variable], c.Equals)
}

// Clone returns a deep copy of the condition tree.
func (c *Condition) Clone() *Condition {
	if c == nil {
		return nil
	}

	clone := &Condition{Variable: c.Variable, Equals: c.Equals}

	if len(c.All) > 0 {
		clone.All = make([]*Condition, len(c.All))
		for i, sub := range c.All {
			clone.All[i] = sub.Clone()
		}
	}

	if len(c.Any) > 0 {
		clone.Any = make([]*Condition, len(c.Any))
		for i, sub := range c.Any {
			clone.Any[i] = sub.Clone()
		}
	}

	return clone
}

// ResultAction is the effect of picking a decision option: set variables on
// the execution's store and optionally name the step to navigate to.
type ResultAction struct {
	Set          map[string]any `json:"set,omitempty"`
	TargetStepID string         `json:"target_step,omitempty"`
}

// Clone returns a deep copy of the action.
func (a *ResultAction) Clone() *ResultAction {
	if a == nil {
		return nil
	}

	return &ResultAction{Set: cloneMap(a.Set), TargetStepID: a.TargetStepID}
}

// equalValues compares loosely enough to survive a JSON round trip, where
// numbers surface as float64 regardless of how they were authored.
func equalValues(a, b any) bool {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}

		return false
	}

	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
