package detection

import "errors"

var (
	// ErrRuleNotFound is returned when a rule ID is not in the catalog
	ErrRuleNotFound = errors.New("rule not found")

	// ErrDuplicateRule is returned when a seed rule reuses an existing ID
	ErrDuplicateRule = errors.New("duplicate rule id")
)
