package models

import "time"

// Plan IDs. "free" is the default unpaid state.
const (
	PlanFree     = "free"
	PlanBasic    = "basic"
	PlanPro      = "pro"
	PlanBusiness = "business"
)

type User struct {
	ID        string `gorm:"primaryKey" json:"id"`
	Email     string `gorm:"uniqueIndex" json:"email"`
	Name      string `json:"name"`
	Password  string `json:"-"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      string `json:"role"`

	// Subscription state. Written locally on usage recording and
	// remotely by the Stripe webhook.
	PlanID             string     `json:"plan_id"`
	IsTrialActive      bool       `json:"is_trial_active"`
	TrialStartedAt     time.Time  `json:"trial_started_at"`
	MonthlyDocsLimit   int        `json:"monthly_docs_limit"`
	DocsUsedThisMonth  int        `json:"docs_used_this_month"`
	SubscriptionExpiry *time.Time `json:"subscription_expiry"` // nil while on free
	StripeCustomerID   string     `json:"stripe_customer_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
