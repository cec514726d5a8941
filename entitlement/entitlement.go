// Package entitlement decides whether a user may run document extractions
// and how usage is recorded against their plan. Everything here is pure:
// callers pass the latest known profile and persist the result themselves.
package entitlement

import (
	"fmt"

	"expense-backend/models"
)

// DefaultAllowance is used when a webhook carries an unknown tier id.
const DefaultAllowance = 100

// TrialAllowance and TrialDays define the free trial created on first login.
const (
	TrialAllowance = 10
	TrialDays      = 7
)

var tierAllowances = map[string]int{
	models.PlanBasic:    30,
	models.PlanPro:      100,
	models.PlanBusiness: 500,
}

// TierAllowance returns the monthly document allowance for a plan tier.
// Unknown tiers get DefaultAllowance rather than failing the caller.
func TierAllowance(tier string) int {
	if limit, ok := tierAllowances[tier]; ok {
		return limit
	}
	return DefaultAllowance
}

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CanUpload reports whether the user may extract requestedCount more
// documents this cycle. It is advisory and must be re-derived from the
// latest profile before every batch; a zero-count request always passes,
// even for a profile already over its limit.
func CanUpload(user models.User, requestedCount int) Decision {
	if requestedCount <= 0 {
		return Decision{Allowed: true}
	}

	if user.PlanID == models.PlanFree && !user.IsTrialActive {
		return Decision{Allowed: false, Reason: "Trial expired. Please upgrade to a paid plan."}
	}

	if user.DocsUsedThisMonth+requestedCount > user.MonthlyDocsLimit {
		remaining := user.MonthlyDocsLimit - user.DocsUsedThisMonth
		if remaining < 0 {
			remaining = 0
		}
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("Monthly limit reached (%d of %d used, %d remaining).", user.DocsUsedThisMonth, user.MonthlyDocsLimit, remaining),
		}
	}

	return Decision{Allowed: true}
}

// RecordUsage returns a copy of the profile with successCount added to the
// usage counter. The input is not mutated; callers keep the old value for
// optimistic-update rollback. Usage is not capped at the limit: a batch
// admitted against a stale count may push past it, which is accepted.
func RecordUsage(user models.User, successCount int) models.User {
	updated := user
	updated.DocsUsedThisMonth += successCount
	return updated
}

// PricingTier is static reference data shown on the upgrade screen.
type PricingTier struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Limit    int      `json:"limit"`
	Price    float64  `json:"price"` // MYR per month
	Features []string `json:"features"`
	Popular  bool     `json:"popular,omitempty"`
}

var PricingTiers = []PricingTier{
	{
		ID:       models.PlanBasic,
		Name:     "Basic",
		Limit:    30,
		Price:    9,
		Features: []string{"30 documents / month", "AI invoice extraction", "Excel export"},
	},
	{
		ID:       models.PlanPro,
		Name:     "Pro",
		Limit:    100,
		Price:    19,
		Features: []string{"100 documents / month", "AI invoice extraction", "Excel export", "Category budgets"},
		Popular:  true,
	},
	{
		ID:       models.PlanBusiness,
		Name:     "Business",
		Limit:    500,
		Price:    49,
		Features: []string{"500 documents / month", "AI invoice extraction", "Excel export", "Category budgets", "Priority support"},
	},
}

// FindTier returns the static tier for an id, or false for unknown ids.
func FindTier(id string) (PricingTier, bool) {
	for _, t := range PricingTiers {
		if t.ID == id {
			return t, true
		}
	}
	return PricingTier{}, false
}
