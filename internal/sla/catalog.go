package sla

import (
	"github.com/google/uuid"

	"github.com/MacJediWizard/slatrack/internal/models"
)

// Catalog is an immutable snapshot of an org's active rules, taken once
// per evaluation pass so every item in a batch sees the same rule set.
type Catalog struct {
	rules       []models.SLARule
	byID        map[uuid.UUID]*models.SLARule
	defaultRule *models.SLARule
}

// NewCatalog builds a catalog from the given rules. Inactive rules are
// dropped. When multiple defaults slip in the first active one wins;
// the store-level constraint makes that unreachable in practice.
func NewCatalog(rules []models.SLARule) *Catalog {
	c := &Catalog{
		byID: make(map[uuid.UUID]*models.SLARule, len(rules)),
	}
	for _, r := range rules {
		if !r.Active {
			continue
		}
		c.rules = append(c.rules, r)
	}
	for i := range c.rules {
		r := &c.rules[i]
		c.byID[r.ID] = r
		if r.IsDefault && c.defaultRule == nil {
			c.defaultRule = r
		}
	}
	return c
}

// Len returns the number of active rules in the snapshot.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// RuleByID returns the active rule with the given id, or nil.
func (c *Catalog) RuleByID(id uuid.UUID) *models.SLARule {
	return c.byID[id]
}

// DefaultRule returns the org's default rule, or nil if none is set.
func (c *Catalog) DefaultRule() *models.SLARule {
	return c.defaultRule
}

// ResolveRule picks the rule governing a work item. Channel-scoped
// matches beat type+priority matches, which beat the default. Returns
// ErrNoApplicableRule when nothing matches and no default exists.
func (c *Catalog) ResolveRule(infoType string, priority models.PriorityTier, channel models.Channel) (*models.SLARule, error) {
	var typePrio *models.SLARule
	for i := range c.rules {
		r := &c.rules[i]
		if r.IsDefault || !r.Matches(infoType, priority, channel) {
			continue
		}
		if r.Channel != nil {
			return r, nil
		}
		if typePrio == nil {
			typePrio = r
		}
	}
	if typePrio != nil {
		return typePrio, nil
	}
	if c.defaultRule != nil {
		return c.defaultRule, nil
	}
	return nil, ErrNoApplicableRule
}
