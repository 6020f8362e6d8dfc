// Package conditions implements the boolean rule engine gating hook
// execution. Evaluation is a pure function of the condition set and the
// supplied context; there is no I/O and no side effects.
package conditions

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Logic combines rule results within a set.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Context carries the runtime facts rules evaluate against.
type Context struct {
	// RoleIDs the acting member holds.
	RoleIDs []string

	// MessageCount for the acting member.
	MessageCount int

	// UserCreatedAt is the member's account creation time. Zero means the
	// fact is absent, which fails any age rule.
	UserCreatedAt time.Time

	// Variables holds custom facts by name.
	Variables map[string]any

	// Now is the evaluation clock. Zero falls back to time.Now().
	Now time.Time
}

func (c *Context) now() time.Time {
	if c.Now.IsZero() {
		return time.Now()
	}
	return c.Now
}

// Rule is one predicate in a condition set. Evaluate returns the result and
// whether the rule produced one at all; unrecognized or broken rules return
// ok=false and contribute nothing to the set's outcome.
type Rule interface {
	Type() string
	Evaluate(ctx *Context) (result, ok bool)
}

// ConditionSet is a list of rules combined under AND or OR logic.
type ConditionSet struct {
	Logic Logic
	Rules []Rule
}

// Evaluate applies the set's logic over its rules.
//
// AND over an empty (or fully skipped) rule list is vacuously true; OR over
// an empty list is false. The asymmetry is deliberate: a hook with no
// conditions should run, a hook asking for "any of nothing" should not.
func Evaluate(set *ConditionSet, ctx *Context) bool {
	if set == nil {
		return true
	}

	switch set.Logic {
	case LogicOr:
		for _, rule := range set.Rules {
			if result, ok := rule.Evaluate(ctx); ok && result {
				return true
			}
		}
		return false
	default:
		// AND is the default logic.
		for _, rule := range set.Rules {
			if result, ok := rule.Evaluate(ctx); ok && !result {
				return false
			}
		}
		return true
	}
}

// TimeRangeRule is true when the wall-clock time of day falls within
// [Start, End], both "HH:MM" on the local clock.
type TimeRangeRule struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r *TimeRangeRule) Type() string { return "time_range" }

func (r *TimeRangeRule) Evaluate(ctx *Context) (bool, bool) {
	start, err := parseClock(r.Start)
	if err != nil {
		return false, false
	}
	end, err := parseClock(r.End)
	if err != nil {
		return false, false
	}

	now := ctx.now()
	minute := now.Hour()*60 + now.Minute()
	return minute >= start && minute <= end, true
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return h*60 + m, nil
}

// DayOfWeekRule is true when the current weekday's full English name is in
// Days.
type DayOfWeekRule struct {
	Days []string `json:"days"`
}

func (r *DayOfWeekRule) Type() string { return "day_of_week" }

func (r *DayOfWeekRule) Evaluate(ctx *Context) (bool, bool) {
	today := ctx.now().Weekday().String()
	for _, day := range r.Days {
		if day == today {
			return true, true
		}
	}
	return false, true
}

// RoleHierarchyRule compares the member's roles against a reference role.
//
// Comparison "has" checks membership. "above" and "below" compare role IDs
// numerically; this is a snowflake-ordering proxy for hierarchy, not a true
// position rank, and is kept as-is.
type RoleHierarchyRule struct {
	RoleID     string `json:"role_id"`
	Comparison string `json:"comparison"`
}

func (r *RoleHierarchyRule) Type() string { return "role_hierarchy" }

func (r *RoleHierarchyRule) Evaluate(ctx *Context) (bool, bool) {
	switch r.Comparison {
	case "has":
		for _, id := range ctx.RoleIDs {
			if id == r.RoleID {
				return true, true
			}
		}
		return false, true
	case "above", "below":
		ref, err := strconv.ParseInt(r.RoleID, 10, 64)
		if err != nil {
			return false, false
		}
		for _, id := range ctx.RoleIDs {
			n, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				continue
			}
			if r.Comparison == "above" && n > ref {
				return true, true
			}
			if r.Comparison == "below" && n < ref {
				return true, true
			}
		}
		return false, true
	default:
		return false, false
	}
}

// MessageCountRule compares the member's message count against Value.
type MessageCountRule struct {
	Operator string `json:"operator"`
	Value    int    `json:"value"`
}

func (r *MessageCountRule) Type() string { return "message_count" }

func (r *MessageCountRule) Evaluate(ctx *Context) (bool, bool) {
	switch r.Operator {
	case ">":
		return ctx.MessageCount > r.Value, true
	case "<":
		return ctx.MessageCount < r.Value, true
	case "==":
		return ctx.MessageCount == r.Value, true
	default:
		return false, false
	}
}

// UserAgeRule is true when the member's account is at least MinDays old.
// Absent creation time fails the rule.
type UserAgeRule struct {
	MinDays int `json:"min_days"`
}

func (r *UserAgeRule) Type() string { return "user_age" }

func (r *UserAgeRule) Evaluate(ctx *Context) (bool, bool) {
	if ctx.UserCreatedAt.IsZero() {
		return false, true
	}
	days := int(ctx.now().Sub(ctx.UserCreatedAt).Hours() / 24)
	return days >= r.MinDays, true
}

// CustomVariableRule compares a named context variable against Value.
//
// "==" compares string forms. "contains" checks that the string form of
// Value is a substring of the string form of the looked-up variable; the
// operand order is fixed.
type CustomVariableRule struct {
	Variable string `json:"variable"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

func (r *CustomVariableRule) Type() string { return "custom_variable" }

func (r *CustomVariableRule) Evaluate(ctx *Context) (bool, bool) {
	actual, present := ctx.Variables[r.Variable]
	if !present {
		return false, true
	}

	actualStr := fmt.Sprint(actual)
	valueStr := fmt.Sprint(r.Value)

	switch r.Operator {
	case "==":
		return actualStr == valueStr, true
	case "contains":
		return strings.Contains(actualStr, valueStr), true
	default:
		return false, false
	}
}

// UnknownRule preserves rules with unrecognized type discriminators. It
// never produces a result, so it cannot flip a set's outcome.
type UnknownRule struct {
	RawType string
	Raw     json.RawMessage
}

func (r *UnknownRule) Type() string { return r.RawType }

func (r *UnknownRule) Evaluate(ctx *Context) (bool, bool) {
	return false, false
}
