package handlers

import (
	"net/http"
	"time"

	"expense-backend/database"
	"expense-backend/entitlement"
	"expense-backend/models"

	"github.com/gin-gonic/gin"
)

// Helper: user id from the token context.
func getUserID(c *gin.Context) string {
	id, exists := c.Get("user_id")
	if !exists {
		return ""
	}
	return id.(string)
}

// NormalizeTrial flips an expired trial off and zeroes the allowance, then
// persists the change. A free profile with zero quota is exactly the state
// the billing sync loop keys on, so this must happen before profile reads.
func NormalizeTrial(user models.User) models.User {
	if user.PlanID != models.PlanFree || !user.IsTrialActive {
		return user
	}
	if time.Since(user.TrialStartedAt) < entitlement.TrialDays*24*time.Hour {
		return user
	}

	user.IsTrialActive = false
	user.MonthlyDocsLimit = 0
	database.DB.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"is_trial_active":    false,
		"monthly_docs_limit": 0,
	})
	return user
}

// GET /api/profile
func GetProfile(c *gin.Context) {
	userID := getUserID(c)

	var user models.User
	if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
		return
	}

	user = NormalizeTrial(user)
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// GET /api/pricing
func GetPricingTiers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": entitlement.PricingTiers})
}

// GET /api/budgets
func GetBudgets(c *gin.Context) {
	userID := getUserID(c)

	var budgets []models.Budget
	database.DB.Where("user_id = ?", userID).Find(&budgets)

	// Every category shows up, zero-filled when unset.
	byCategory := make(map[string]float64, len(models.Categories))
	for _, cat := range models.Categories {
		byCategory[cat] = 0
	}
	for _, b := range budgets {
		byCategory[b.Category] = b.Limit
	}

	c.JSON(http.StatusOK, gin.H{"budgets": byCategory})
}

// PUT /api/budgets
func SaveBudgets(c *gin.Context) {
	userID := getUserID(c)

	var input map[string]float64
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	for category, limit := range input {
		if !models.IsValidCategory(category) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown category: " + category})
			return
		}
		if limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Budget cannot be negative"})
			return
		}

		var budget models.Budget
		if err := database.DB.Where("user_id = ? AND category = ?", userID, category).First(&budget).Error; err != nil {
			budget = models.Budget{UserID: userID, Category: category, Limit: limit}
			database.DB.Create(&budget)
		} else {
			budget.Limit = limit
			database.DB.Save(&budget)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Budgets saved"})
}
