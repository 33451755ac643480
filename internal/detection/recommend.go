package detection

import "github.com/t77yq/outbreak-sentinel/internal/model"

// Recommendations maps rules to the ordered operator actions attached to
// their alerts. A per-rule entry takes precedence over the condition kind.
type Recommendations struct {
	ByCondition map[model.ConditionKind][]string `mapstructure:"by_condition" yaml:"by_condition"`
	ByRule      map[string][]string              `mapstructure:"by_rule" yaml:"by_rule"`
}

// For returns a copy of the actions recommended for a rule
func (r Recommendations) For(rule model.Rule) []string {
	if actions, ok := r.ByRule[rule.ID]; ok {
		return append([]string(nil), actions...)
	}
	if actions, ok := r.ByCondition[rule.Condition]; ok {
		return append([]string(nil), actions...)
	}
	return []string{}
}

// Merge returns r with the entries of override layered on top
func (r Recommendations) Merge(override Recommendations) Recommendations {
	merged := Recommendations{
		ByCondition: make(map[model.ConditionKind][]string, len(r.ByCondition)),
		ByRule:      make(map[string][]string, len(r.ByRule)),
	}
	for k, v := range r.ByCondition {
		merged.ByCondition[k] = v
	}
	for k, v := range override.ByCondition {
		merged.ByCondition[k] = v
	}
	for k, v := range r.ByRule {
		merged.ByRule[k] = v
	}
	for k, v := range override.ByRule {
		merged.ByRule[k] = v
	}
	return merged
}
