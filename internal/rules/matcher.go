// Package rules implements matching of inbound text against an agent's
// ordered rule set. Matching is pure: no I/O, no side effects.
package rules

import (
	"strings"

	"github.com/sendloop-systems/sendloop/internal/models"
)

// Normalize trims, lowercases and collapses internal whitespace so that rule
// patterns and inbound text compare on equal footing.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Match returns the first rule the text satisfies, or nil. Rules must be
// supplied in evaluation order (ascending priority); the matcher does not
// reorder them. Prefix rules match when the normalized text starts with the
// normalized prefix, keyword rules when it contains any normalized keyword.
func Match(text string, ruleSet []models.Rule) *models.Rule {
	candidate := Normalize(text)
	for i := range ruleSet {
		rule := &ruleSet[i]
		switch rule.Type {
		case models.RuleTypePrefix:
			if rule.Prefix != "" && strings.HasPrefix(candidate, Normalize(rule.Prefix)) {
				return rule
			}
		case models.RuleTypeKeyword:
			for _, keyword := range rule.Keywords {
				normalized := Normalize(keyword)
				if normalized != "" && strings.Contains(candidate, normalized) {
					return rule
				}
			}
		}
	}
	return nil
}
