package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"expense-backend/database"
	"expense-backend/entitlement"
	"expense-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// lookupStrategy is one way of finding the profile a payment belongs to.
// Strategies run in order until one matches; email exists because the
// internal id is not always threaded through the checkout redirect.
type lookupStrategy struct {
	name   string
	column string
	value  string
}

// ApplyPlanUpgrade writes the absolute target state for a completed
// checkout. Repeated application of the same event is a no-op difference:
// every field is a fixed target value, including the usage reset to zero.
// Returns the strategy that matched, or "" when no profile was found.
func ApplyPlanUpgrade(userID, email, planID, customerID string, now time.Time) string {
	expiry := now.Add(32 * 24 * time.Hour)
	payload := map[string]interface{}{
		"plan_id":              planID,
		"is_trial_active":      false,
		"subscription_expiry":  expiry,
		"stripe_customer_id":   customerID,
		"monthly_docs_limit":   entitlement.TierAllowance(planID),
		"docs_used_this_month": 0,
	}

	strategies := []lookupStrategy{
		{name: "id", column: "id", value: userID},
		{name: "email", column: "email", value: email},
	}

	for _, s := range strategies {
		if s.value == "" {
			continue
		}
		res := database.DB.Model(&models.User{}).Where(s.column+" = ?", s.value).Updates(payload)
		if res.Error != nil {
			log.Printf("webhook: update by %s failed: %v", s.name, res.Error)
			continue
		}
		if res.RowsAffected > 0 {
			return s.name
		}
	}
	return ""
}

// applyDowngrade returns the profile to the free state when the
// subscription is cancelled. Free plan means no expiry and no allowance.
// An empty customer id never matches: it is the default value on every
// profile that has not checked out, so matching it would wipe them all.
func applyDowngrade(customerID string) bool {
	if customerID == "" {
		return false
	}
	res := database.DB.Model(&models.User{}).Where("stripe_customer_id = ?", customerID).Updates(map[string]interface{}{
		"plan_id":             models.PlanFree,
		"is_trial_active":     false,
		"subscription_expiry": nil,
		"monthly_docs_limit":  0,
	})
	return res.Error == nil && res.RowsAffected > 0
}

func logBillingEvent(entry models.BillingEventLog) {
	entry.CreatedAt = time.Now()
	database.DB.Create(&entry)
}

// StripeWebhook handles POST /stripe/webhook. The raw body bytes are
// verified against the signature header before any parsing; reserializing
// first would break verification. Once an event is authenticated it is
// always acknowledged with 200, even when no profile matched — a permanent
// mismatch must not turn into a redelivery storm.
func StripeWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	endpointSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if endpointSecret == "" {
		log.Printf("webhook: STRIPE_WEBHOOK_SECRET is not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook secret missing"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		c.GetHeader("Stripe-Signature"),
		endpointSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		log.Printf("webhook: signature verification failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature verification failed"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			// The event is authenticated; a 4xx here would only trigger
			// redelivery of the same malformed payload. Acknowledge and
			// leave it in the log for manual remediation.
			log.Printf("webhook: session unmarshal failed: %v", err)
			logBillingEvent(models.BillingEventLog{
				EventID:   event.ID,
				EventType: string(event.Type),
				Matched:   false,
				Note:      "malformed session payload",
			})
			break
		}

		userID := sess.Metadata["userId"]
		email := sess.Metadata["userEmail"]
		if email == "" && sess.CustomerDetails != nil {
			email = sess.CustomerDetails.Email
		}
		planID := sess.Metadata["planId"]
		if planID == "" {
			planID = models.PlanPro
		}
		customerID := ""
		if sess.Customer != nil {
			customerID = sess.Customer.ID
		}

		matched := ApplyPlanUpgrade(userID, email, planID, customerID, time.Now())
		entry := models.BillingEventLog{
			EventID:   event.ID,
			EventType: string(event.Type),
			UserID:    userID,
			Email:     email,
			PlanID:    planID,
			Matched:   matched != "",
		}
		if matched == "" {
			// Acknowledged anyway; flagged for manual remediation.
			entry.Note = "no matching profile for id or email"
			log.Printf("webhook: payment received but no profile matched (id=%s email=%s)", userID, email)
		} else {
			entry.Note = "matched by " + matched
		}
		logBillingEvent(entry)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Printf("webhook: subscription unmarshal failed: %v", err)
			logBillingEvent(models.BillingEventLog{
				EventID:   event.ID,
				EventType: string(event.Type),
				Matched:   false,
				Note:      "malformed subscription payload",
			})
			break
		}
		customerID := ""
		if sub.Customer != nil {
			customerID = sub.Customer.ID
		}

		matched := applyDowngrade(customerID)
		logBillingEvent(models.BillingEventLog{
			EventID:   event.ID,
			EventType: string(event.Type),
			PlanID:    models.PlanFree,
			Matched:   matched,
		})
		if !matched {
			log.Printf("webhook: subscription deleted but no profile matched (customer=%s)", customerID)
		}

	default:
		// Other event types are acknowledged and ignored.
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
