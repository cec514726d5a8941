package handlers

import (
	"net/http"
	"time"

	"expense-backend/database"
	"expense-backend/entitlement"
	"expense-backend/models"

	"github.com/gin-gonic/gin"
)

// Helper: admin check from the token role claim.
func isAdmin(c *gin.Context) bool {
	role, exists := c.Get("role")
	return exists && role == "admin"
}

// GET /api/admin/users
func GetAllUsers(c *gin.Context) {
	if !isAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	var users []models.User
	database.DB.Select("id, email, name, role, plan_id, is_trial_active, trial_started_at, monthly_docs_limit, docs_used_this_month, subscription_expiry, stripe_customer_id, created_at").Find(&users)

	c.JSON(http.StatusOK, gin.H{"data": users})
}

// GET /api/admin/users/:id/stats
func GetUserStats(c *gin.Context) {
	if !isAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	id := c.Param("id")
	var user models.User
	if err := database.DB.First(&user, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var expenseCount int64
	database.DB.Model(&models.Expense{}).Where("user_id = ?", id).Count(&expenseCount)

	var events []models.BillingEventLog
	database.DB.Where("user_id = ? OR email = ?", id, user.Email).Order("created_at desc").Limit(20).Find(&events)

	c.JSON(http.StatusOK, gin.H{
		"user":           user,
		"expense_count":  expenseCount,
		"billing_events": events,
	})
}

// PATCH /api/admin/users/:id/plan
// Manual remediation path for webhook lookup misses: sets the same absolute
// target state the webhook would have written.
func OverrideUserPlan(c *gin.Context) {
	if !isAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	id := c.Param("id")
	var user models.User
	if err := database.DB.First(&user, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var input struct {
		PlanID string `json:"plan_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plan_id required"})
		return
	}

	if input.PlanID == models.PlanFree {
		if !applyDowngrade(user.StripeCustomerID) {
			database.DB.Model(&models.User{}).Where("id = ?", id).Updates(map[string]interface{}{
				"plan_id":             models.PlanFree,
				"is_trial_active":     false,
				"subscription_expiry": nil,
				"monthly_docs_limit":  0,
			})
		}
	} else {
		if _, ok := entitlement.FindTier(input.PlanID); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown plan"})
			return
		}
		ApplyPlanUpgrade(id, "", input.PlanID, user.StripeCustomerID, time.Now())
	}

	database.DB.First(&user, "id = ?", id)
	c.JSON(http.StatusOK, gin.H{"message": "Plan updated", "user": user})
}

// GET /api/admin/billing-events?unmatched=true
func GetBillingEvents(c *gin.Context) {
	if !isAdmin(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	query := database.DB.Model(&models.BillingEventLog{}).Order("created_at desc").Limit(100)
	if c.Query("unmatched") == "true" {
		query = query.Where("matched = ?", false)
	}

	var events []models.BillingEventLog
	query.Find(&events)
	c.JSON(http.StatusOK, gin.H{"data": events})
}
