package dispatch

import (
	"sort"
	"strings"

	"github.com/calvinhq/calvin/pkg/provider"
)

// DefaultMaxInvocations caps dispatch fan-out per turn
const DefaultMaxInvocations = 4

// Planner turns a user message and a capability snapshot into a dispatch
// plan. Planning is pure and deterministic: same message and same snapshot
// always yield the same plan. It performs no I/O.
type Planner struct {
	rules          []CategoryRule
	maxInvocations int
	stoplist       map[string]struct{}
}

// NewPlanner creates a planner with the given rule table and fan-out cap
func NewPlanner(rules []CategoryRule, maxInvocations int) *Planner {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	if maxInvocations <= 0 {
		maxInvocations = DefaultMaxInvocations
	}
	return &Planner{
		rules:          rules,
		maxInvocations: maxInvocations,
		stoplist:       defaultStoplist,
	}
}

// Plan computes the dispatch plan for one user message against a capability
// snapshot. A message that triggers no category, or a category no connected
// provider serves, simply contributes nothing to the plan.
func (p *Planner) Plan(message string, snap provider.Snapshot) *Plan {
	plan := &Plan{Message: message}

	categories := p.matchCategories(message)
	if len(categories) == 0 {
		return plan
	}

	entities := p.extractEntities(message)
	if len(entities) == 0 {
		return plan
	}

	// Map iteration order is random; providers are considered in name order
	// so the same snapshot always routes to the same provider
	providers := make([]string, 0, len(snap))
	for name := range snap {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	for _, rule := range categories {
		serving := ""
		for _, name := range providers {
			if snap[name].HasTool(rule.Tool) {
				serving = name
				break
			}
		}
		if serving == "" {
			// Coverage gap, not a failure
			continue
		}

		for _, entity := range entities {
			if len(plan.Invocations) >= p.maxInvocations {
				return plan
			}
			plan.Invocations = append(plan.Invocations, Invocation{
				Provider: serving,
				Tool:     rule.Tool,
				Args:     map[string]interface{}{"symbol": entity},
				Category: rule.Category,
				Entity:   entity,
			})
		}
	}

	return plan
}

// matchCategories returns the rules triggered by the message, in rule table
// order
func (p *Planner) matchCategories(message string) []CategoryRule {
	words := make(map[string]struct{})
	for _, w := range tokenize(strings.ToLower(message)) {
		words[w] = struct{}{}
	}

	var matched []CategoryRule
	for _, rule := range p.rules {
		for _, kw := range rule.Keywords {
			if _, ok := words[kw]; ok {
				matched = append(matched, rule)
				break
			}
		}
	}
	return matched
}

// extractEntities returns candidate ticker-like tokens in first-appearance
// order: 1-5 character uppercase tokens not on the stoplist.
func (p *Planner) extractEntities(message string) []string {
	var entities []string
	seen := make(map[string]struct{})

	for _, token := range tokenize(message) {
		if !looksLikeSymbol(token) {
			continue
		}
		if _, stop := p.stoplist[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		entities = append(entities, token)
	}
	return entities
}

// tokenize splits a message into alphanumeric words
func tokenize(message string) []string {
	return strings.FieldsFunc(message, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		default:
			return true
		}
	})
}

// looksLikeSymbol reports whether a token has ticker shape: starts with an
// uppercase letter, all uppercase letters or digits, at most 5 characters
func looksLikeSymbol(token string) bool {
	if len(token) == 0 || len(token) > 5 {
		return false
	}
	if token[0] < 'A' || token[0] > 'Z' {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
