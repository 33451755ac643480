package detection

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/outbreak-sentinel/internal/model"
)

// Catalog is an ordered, concurrency-safe collection of detection rules.
// Runs read it through Snapshot so that catalog mutation never races an
// evaluation in flight.
type Catalog struct {
	logger *zap.Logger
	mu     sync.RWMutex
	rules  []*model.Rule
	index  map[string]int
	now    func() time.Time
}

// NewCatalog creates a catalog seeded with rules. Seed rules keep their IDs;
// rules without one are assigned a fresh ID.
func NewCatalog(logger *zap.Logger, seed ...model.Rule) (*Catalog, error) {
	c := &Catalog{
		logger: logger.Named("catalog"),
		index:  make(map[string]int),
		now:    time.Now,
	}

	for _, rule := range seed {
		rule = rule.Clone()
		if rule.ID == "" {
			rule.ID = uuid.New().String()
		}
		if _, ok := c.index[rule.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, rule.ID)
		}
		if rule.CreatedAt.IsZero() {
			rule.CreatedAt = c.now()
		}
		if rule.UpdatedAt.IsZero() {
			rule.UpdatedAt = rule.CreatedAt
		}
		c.index[rule.ID] = len(c.rules)
		c.rules = append(c.rules, &rule)
	}

	return c, nil
}

// List returns a copy of every rule in catalog order
func (c *Catalog) List() []model.Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rules := make([]model.Rule, 0, len(c.rules))
	for _, rule := range c.rules {
		rules = append(rules, rule.Clone())
	}
	return rules
}

// Get returns a rule by ID
func (c *Catalog) Get(id string) (model.Rule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[id]
	if !ok {
		return model.Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return c.rules[i].Clone(), nil
}

// Add appends a new rule under a freshly assigned ID and returns that ID.
// Any ID on the supplied rule is ignored.
func (c *Catalog) Add(rule model.Rule) string {
	rule = rule.Clone()
	rule.ID = uuid.New().String()
	rule.CreatedAt = c.now()
	rule.UpdatedAt = rule.CreatedAt

	c.mu.Lock()
	c.index[rule.ID] = len(c.rules)
	c.rules = append(c.rules, &rule)
	c.mu.Unlock()

	c.logger.Info("Rule added",
		zap.String("rule_id", rule.ID),
		zap.String("name", rule.Name),
		zap.String("condition", string(rule.Condition)))

	return rule.ID
}

// Update applies a partial update to the rule with the given ID
func (c *Catalog) Update(id string, update model.RuleUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	rule := c.rules[i].Clone()
	update.Apply(&rule)
	rule.UpdatedAt = c.now()
	c.rules[i] = &rule

	c.logger.Info("Rule updated", zap.String("rule_id", id))
	return nil
}

// Replace overwrites the rule with the same ID in place, timestamps included
func (c *Catalog) Replace(rule model.Rule) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[rule.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, rule.ID)
	}
	rule = rule.Clone()
	c.rules[i] = &rule
	return nil
}

// Delete removes a rule from the catalog
func (c *Catalog) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	c.rules = append(c.rules[:i], c.rules[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.rules); j++ {
		c.index[c.rules[j].ID] = j
	}

	c.logger.Info("Rule deleted", zap.String("rule_id", id))
	return nil
}

// Snapshot returns copies of the active rules in catalog order
func (c *Catalog) Snapshot() []model.Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rules := make([]model.Rule, 0, len(c.rules))
	for _, rule := range c.rules {
		if rule.Active {
			rules = append(rules, rule.Clone())
		}
	}
	return rules
}

// MaxWindow returns the widest time window among active rules
func (c *Catalog) MaxWindow() time.Duration {
	var widest time.Duration
	for _, rule := range c.Snapshot() {
		if w := rule.Window(); w > widest {
			widest = w
		}
	}
	return widest
}
