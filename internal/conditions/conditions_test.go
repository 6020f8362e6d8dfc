package conditions

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tuesday 14:30 local time.
var testNow = time.Date(2025, 6, 3, 14, 30, 0, 0, time.Local)

func TestEvaluate_VacuousLogic(t *testing.T) {
	ctx := &Context{Now: testNow}

	assert.True(t, Evaluate(&ConditionSet{Logic: LogicAnd}, ctx))
	assert.False(t, Evaluate(&ConditionSet{Logic: LogicOr}, ctx))
	assert.True(t, Evaluate(nil, ctx))
}

func TestEvaluate_UnknownRulesAreSkipped(t *testing.T) {
	ctx := &Context{Now: testNow}

	unknown := &UnknownRule{RawType: "lunar_phase"}

	// A set of only unknown rules falls back to the vacuous result.
	assert.True(t, Evaluate(&ConditionSet{Logic: LogicAnd, Rules: []Rule{unknown}}, ctx))
	assert.False(t, Evaluate(&ConditionSet{Logic: LogicOr, Rules: []Rule{unknown}}, ctx))

	// A skipped rule cannot veto an AND.
	set := &ConditionSet{Logic: LogicAnd, Rules: []Rule{
		unknown,
		&MessageCountRule{Operator: ">", Value: 5},
	}}
	assert.True(t, Evaluate(set, &Context{Now: testNow, MessageCount: 10}))
}

func TestEvaluate_AndOr(t *testing.T) {
	ctx := &Context{Now: testNow, MessageCount: 10}

	high := &MessageCountRule{Operator: ">", Value: 5}
	low := &MessageCountRule{Operator: "<", Value: 5}

	assert.False(t, Evaluate(&ConditionSet{Logic: LogicAnd, Rules: []Rule{high, low}}, ctx))
	assert.True(t, Evaluate(&ConditionSet{Logic: LogicOr, Rules: []Rule{high, low}}, ctx))
}

func TestTimeRangeRule(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		want       bool
		skipped    bool
	}{
		{name: "inside", start: "09:00", end: "17:00", want: true},
		{name: "outside", start: "15:00", end: "16:00", want: false},
		{name: "inclusive start", start: "14:30", end: "15:00", want: true},
		{name: "inclusive end", start: "14:00", end: "14:30", want: true},
		{name: "bad clock", start: "25:00", end: "26:00", skipped: true},
		{name: "not a clock", start: "morning", end: "evening", skipped: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &TimeRangeRule{Start: tt.start, End: tt.end}
			got, ok := rule.Evaluate(&Context{Now: testNow})
			assert.Equal(t, !tt.skipped, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDayOfWeekRule(t *testing.T) {
	ctx := &Context{Now: testNow} // Tuesday

	got, ok := (&DayOfWeekRule{Days: []string{"Monday", "Tuesday"}}).Evaluate(ctx)
	assert.True(t, ok)
	assert.True(t, got)

	got, ok = (&DayOfWeekRule{Days: []string{"Saturday", "Sunday"}}).Evaluate(ctx)
	assert.True(t, ok)
	assert.False(t, got)
}

func TestRoleHierarchyRule(t *testing.T) {
	ctx := &Context{Now: testNow, RoleIDs: []string{"100", "250"}}

	tests := []struct {
		name       string
		roleID     string
		comparison string
		want       bool
		skipped    bool
	}{
		{name: "has match", roleID: "250", comparison: "has", want: true},
		{name: "has miss", roleID: "300", comparison: "has", want: false},
		{name: "above", roleID: "200", comparison: "above", want: true},
		{name: "not above", roleID: "300", comparison: "above", want: false},
		{name: "below", roleID: "150", comparison: "below", want: true},
		{name: "not below", roleID: "50", comparison: "below", want: false},
		{name: "bad comparison", roleID: "100", comparison: "beside", skipped: true},
		{name: "non-numeric reference", roleID: "abc", comparison: "above", skipped: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &RoleHierarchyRule{RoleID: tt.roleID, Comparison: tt.comparison}
			got, ok := rule.Evaluate(ctx)
			assert.Equal(t, !tt.skipped, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestUserAgeRule(t *testing.T) {
	created := testNow.AddDate(0, 0, -30)

	got, ok := (&UserAgeRule{MinDays: 7}).Evaluate(&Context{Now: testNow, UserCreatedAt: created})
	assert.True(t, ok)
	assert.True(t, got)

	got, ok = (&UserAgeRule{MinDays: 90}).Evaluate(&Context{Now: testNow, UserCreatedAt: created})
	assert.True(t, ok)
	assert.False(t, got)

	// Absent creation time fails the rule rather than skipping it.
	got, ok = (&UserAgeRule{MinDays: 1}).Evaluate(&Context{Now: testNow})
	assert.True(t, ok)
	assert.False(t, got)
}

func TestCustomVariableRule(t *testing.T) {
	ctx := &Context{
		Now: testNow,
		Variables: map[string]any{
			"level":  7,
			"region": "eu-west",
		},
	}

	got, ok := (&CustomVariableRule{Variable: "level", Operator: "==", Value: "7"}).Evaluate(ctx)
	assert.True(t, ok)
	assert.True(t, got)

	// contains checks value-in-actual, not the reverse.
	got, ok = (&CustomVariableRule{Variable: "region", Operator: "contains", Value: "west"}).Evaluate(ctx)
	assert.True(t, ok)
	assert.True(t, got)

	got, ok = (&CustomVariableRule{Variable: "region", Operator: "contains", Value: "eu-west-1"}).Evaluate(ctx)
	assert.True(t, ok)
	assert.False(t, got)

	got, ok = (&CustomVariableRule{Variable: "missing", Operator: "==", Value: "x"}).Evaluate(ctx)
	assert.True(t, ok)
	assert.False(t, got)
}

func TestExpressionRule(t *testing.T) {
	ctx := &Context{
		Now:          testNow,
		MessageCount: 42,
		RoleIDs:      []string{"100"},
		Variables:    map[string]any{"vip": true},
	}

	got, ok := (&ExpressionRule{Expr: `message_count > 10 && "100" in role_ids`}).Evaluate(ctx)
	assert.True(t, ok)
	assert.True(t, got)

	// A broken expression is skipped, never an error.
	_, ok = (&ExpressionRule{Expr: `message_count >`}).Evaluate(ctx)
	assert.False(t, ok)

	// A non-boolean result is skipped too.
	_, ok = (&ExpressionRule{Expr: `message_count + 1`}).Evaluate(ctx)
	assert.False(t, ok)
}

func TestConditionSet_JSONRoundTrip(t *testing.T) {
	input := `{
		"logic": "AND",
		"rules": [
			{"type": "time_range", "start": "09:00", "end": "17:00"},
			{"type": "message_count", "operator": ">", "value": 3},
			{"type": "lunar_phase", "phase": "full"}
		]
	}`

	var set ConditionSet
	require.NoError(t, json.Unmarshal([]byte(input), &set))
	require.Len(t, set.Rules, 3)

	assert.IsType(t, &TimeRangeRule{}, set.Rules[0])
	assert.IsType(t, &MessageCountRule{}, set.Rules[1])
	assert.IsType(t, &UnknownRule{}, set.Rules[2])
	assert.Equal(t, "lunar_phase", set.Rules[2].Type())

	out, err := json.Marshal(set)
	require.NoError(t, err)

	var again ConditionSet
	require.NoError(t, json.Unmarshal(out, &again))
	require.Len(t, again.Rules, 3)
	assert.Equal(t, "lunar_phase", again.Rules[2].Type())
}
