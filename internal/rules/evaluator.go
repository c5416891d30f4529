// Package rules selects a state icon's appearance from an entity state.
package rules

import (
	"strconv"
	"strings"

	"github.com/koios/snapshot-processor/pkg/models"
)

// Evaluate returns the first rule whose condition holds for state, or the
// rule flagged default when none does. A nil result means nothing should be
// drawn; it is not an error.
func Evaluate(state string, rules []models.StateRule) *models.StateRule {
	current := strings.ToLower(state)

	for i := range rules {
		if Matches(current, rules[i]) {
			return &rules[i]
		}
	}

	return Default(rules)
}

// Default returns the default rule, if any
func Default(rules []models.StateRule) *models.StateRule {
	for i := range rules {
		if rules[i].IsDefault() {
			return &rules[i]
		}
	}
	return nil
}

// Matches tests one rule against an already lower-cased state. Numeric
// conditions that cannot parse either side are skipped, never matched.
func Matches(state string, rule models.StateRule) bool {
	value := strings.ToLower(rule.Value)

	switch rule.Condition {
	case models.CondAnyState:
		return true
	case models.CondEquals:
		return state == value
	case models.CondNotEquals:
		return state != value
	case models.CondIn:
		return inList(state, value)
	case models.CondNotIn:
		return !inList(state, value)
	case models.CondContains:
		return strings.Contains(state, value)
	case models.CondNotContains:
		return !strings.Contains(state, value)
	case models.CondGT, models.CondGTE, models.CondLT, models.CondLTE:
		return compare(rule.Condition, state, value)
	default:
		// is_default and unknown kinds only apply through Default
		return false
	}
}

func inList(state, list string) bool {
	for _, v := range strings.Split(list, ",") {
		if strings.TrimSpace(v) == state {
			return true
		}
	}
	return false
}

func compare(cond models.Condition, state, value string) bool {
	current, err := strconv.ParseFloat(strings.TrimSpace(state), 64)
	if err != nil {
		return false
	}
	target, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return false
	}

	switch cond {
	case models.CondGT:
		return current > target
	case models.CondGTE:
		return current >= target
	case models.CondLT:
		return current < target
	default:
		return current <= target
	}
}
