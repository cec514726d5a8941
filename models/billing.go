package models

import "time"

// BillingEventLog records every webhook delivery we authenticated, matched
// or not. Rows with Matched=false are the manual-remediation queue.
type BillingEventLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   string    `gorm:"index" json:"event_id"`
	EventType string    `json:"event_type"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	PlanID    string    `json:"plan_id"`
	Matched   bool      `json:"matched"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}
