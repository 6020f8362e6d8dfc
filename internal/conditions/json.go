package conditions

import (
	"encoding/json"
	"fmt"
)

type conditionSetEnvelope struct {
	Logic Logic             `json:"logic"`
	Rules []json.RawMessage `json:"rules"`
}

type ruleHead struct {
	Type string `json:"type"`
}

// UnmarshalJSON decodes rules by their type discriminator. Unrecognized
// types decode to UnknownRule and survive a round trip untouched.
func (s *ConditionSet) UnmarshalJSON(data []byte) error {
	var env conditionSetEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	s.Logic = env.Logic
	s.Rules = make([]Rule, 0, len(env.Rules))
	for _, raw := range env.Rules {
		rule, err := decodeRule(raw)
		if err != nil {
			return err
		}
		s.Rules = append(s.Rules, rule)
	}
	return nil
}

// MarshalJSON re-injects each rule's type discriminator.
func (s ConditionSet) MarshalJSON() ([]byte, error) {
	env := conditionSetEnvelope{
		Logic: s.Logic,
		Rules: make([]json.RawMessage, 0, len(s.Rules)),
	}
	for _, rule := range s.Rules {
		raw, err := encodeRule(rule)
		if err != nil {
			return nil, err
		}
		env.Rules = append(env.Rules, raw)
	}
	return json.Marshal(env)
}

func decodeRule(data []byte) (Rule, error) {
	var head ruleHead
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding rule head: %w", err)
	}

	var rule Rule
	switch head.Type {
	case "time_range":
		rule = &TimeRangeRule{}
	case "day_of_week":
		rule = &DayOfWeekRule{}
	case "role_hierarchy":
		rule = &RoleHierarchyRule{}
	case "message_count":
		rule = &MessageCountRule{}
	case "user_age":
		rule = &UserAgeRule{}
	case "custom_variable":
		rule = &CustomVariableRule{}
	case "expression":
		rule = &ExpressionRule{}
	default:
		return &UnknownRule{RawType: head.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}

	if err := json.Unmarshal(data, rule); err != nil {
		return nil, fmt.Errorf("decoding %s rule: %w", head.Type, err)
	}
	return rule, nil
}

func encodeRule(rule Rule) (json.RawMessage, error) {
	if unknown, ok := rule.(*UnknownRule); ok {
		return unknown.Raw, nil
	}

	body, err := json.Marshal(rule)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"] = rule.Type()

	return json.Marshal(fields)
}
