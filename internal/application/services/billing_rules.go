package services

import (
	"strings"

	"github.com/caretrail/visit-pipeline/internal/domain/entities"
)

// BillingRule maps a set of spoken-language patterns to a billing category.
// Rules are evaluated in table order; order defines the tie-break for
// deterministic block sorting.
type BillingRule struct {
	Category    entities.BillingCategory
	Code        string
	Description string
	Patterns    []string
}

// DefaultRuleTable returns the ordered category rule table. The taxonomy is
// configuration, not control flow: adding a category means adding a row here.
func DefaultRuleTable() []BillingRule {
	return []BillingRule{
		{
			Category:    entities.CategoryMedReminder,
			Code:        "T1019",
			Description: "Medication reminder",
			Patterns: []string{
				"medication", "medicine", "pill", "pills", "prescription",
				"dose", "tablet", "insulin",
			},
		},
		{
			Category:    entities.CategoryMealPrep,
			Code:        "S5130",
			Description: "Meal preparation",
			Patterns: []string{
				"breakfast", "lunch", "dinner", "meal", "cook", "cooking",
				"food", "eat", "eating", "kitchen", "snack",
			},
		},
		{
			Category:    entities.CategoryADLHygiene,
			Code:        "T1020",
			Description: "Personal care and hygiene",
			Patterns: []string{
				"bath", "bathing", "shower", "toilet", "dressing", "dressed",
				"groom", "grooming", "teeth", "hair", "wash",
			},
		},
		{
			Category:    entities.CategoryVitals,
			Code:        "T1002",
			Description: "Vitals check",
			Patterns: []string{
				"blood pressure", "temperature", "pulse", "heart rate",
				"oxygen", "glucose", "sugar level", "weight",
			},
		},
	}
}

// companionshipRule is the implicit fallback coverage for spans with no
// detected task activity.
var companionshipRule = BillingRule{
	Category:    entities.CategoryCompanionship,
	Code:        "S5135",
	Description: "Companionship and supervision",
}

// Matches reports whether the rule matches the given segment text.
func (r *BillingRule) Matches(text string) bool {
	lowered := strings.ToLower(text)
	for _, pattern := range r.Patterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}
