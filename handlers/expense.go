package handlers

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"expense-backend/database"
	"expense-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// formatDate normalizes whatever date string the AI or the client sent to
// YYYY-MM-DD. Unparseable values fall back to today.
func formatDate(raw string) string {
	if raw == "" {
		return time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", raw); err == nil {
		return raw
	}
	for _, layout := range []string{"02/01/2006", "02-01-2006", "2006/01/02", time.RFC3339} {
		if d, err := time.Parse(layout, raw); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return time.Now().Format("2006-01-02")
}

// checkBudgetWarning returns a warning message when this expense pushes the
// category total over the user's budget, or "" otherwise.
func checkBudgetWarning(userID, category string, amount float64) string {
	var budget models.Budget
	if err := database.DB.Where("user_id = ? AND category = ?", userID, category).First(&budget).Error; err != nil {
		return ""
	}
	if budget.Limit <= 0 {
		return ""
	}

	var total float64
	database.DB.Model(&models.Expense{}).
		Where("user_id = ? AND category = ?", userID, category).
		Select("COALESCE(SUM(amount), 0)").Row().Scan(&total)

	if total > budget.Limit {
		return "Warning: spending on " + category + " exceeds your budget."
	}
	return ""
}

// 1. GET /api/expenses (pagination + search + filter + sort)
func GetExpenses(c *gin.Context) {
	userID := getUserID(c)
	var expenses []models.Expense

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	offset := (page - 1) * limit

	query := database.DB.Model(&models.Expense{}).Where("user_id = ?", userID)

	if category := c.Query("category"); category != "" && category != "All" {
		query = query.Where("category = ?", category)
	}

	if search := c.Query("search"); search != "" {
		search = "%" + search + "%"
		query = query.Where("vendor_name LIKE ? OR summary LIKE ?", search, search)
	}

	sortField := c.DefaultQuery("sort", "date")
	switch sortField {
	case "date", "amount", "vendor_name":
	default:
		sortField = "date"
	}
	order := "desc"
	if c.Query("order") == "asc" {
		order = "asc"
	}

	var total int64
	query.Count(&total)

	query.Order(sortField + " " + order).Limit(limit).Offset(offset).Find(&expenses)

	c.JSON(http.StatusOK, gin.H{
		"data": expenses,
		"meta": gin.H{
			"current_page": page,
			"limit":        limit,
			"total_data":   total,
			"total_pages":  math.Ceil(float64(total) / float64(limit)),
		},
	})
}

type ExpenseInput struct {
	VendorName string  `json:"vendor_name" binding:"required"`
	Date       string  `json:"date"`
	Amount     float64 `json:"amount" binding:"required"`
	Currency   string  `json:"currency"`
	Category   string  `json:"category" binding:"required"`
	Summary    string  `json:"summary"`
}

// 2. POST /api/expenses (manual entry)
func CreateExpense(c *gin.Context) {
	userID := getUserID(c)

	var input ExpenseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !models.IsValidCategory(input.Category) {
		input.Category = models.CategoryOthers
	}
	if input.Currency == "" {
		input.Currency = "RM"
	}

	expense := models.Expense{
		ID:         uuid.NewString(),
		UserID:     userID,
		VendorName: input.VendorName,
		Date:       formatDate(input.Date),
		Amount:     input.Amount,
		Currency:   input.Currency,
		Category:   input.Category,
		Summary:    input.Summary,
		CreatedAt:  time.Now(),
	}

	if err := database.DB.Create(&expense).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save expense"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Saved!",
		"data":    expense,
		"alert":   checkBudgetWarning(userID, expense.Category, expense.Amount),
	})
}

// 3. PUT /api/expenses/:id
func UpdateExpense(c *gin.Context) {
	userID := getUserID(c)
	id := c.Param("id")

	var expense models.Expense
	if err := database.DB.Where("id = ? AND user_id = ?", id, userID).First(&expense).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found or not yours"})
		return
	}

	var input ExpenseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !models.IsValidCategory(input.Category) {
		input.Category = models.CategoryOthers
	}

	expense.VendorName = input.VendorName
	expense.Date = formatDate(input.Date)
	expense.Amount = input.Amount
	if input.Currency != "" {
		expense.Currency = input.Currency
	}
	expense.Category = input.Category
	expense.Summary = input.Summary

	if err := database.DB.Save(&expense).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update expense"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Updated!", "data": expense})
}

// 4. DELETE /api/expenses/:id
func DeleteExpense(c *gin.Context) {
	userID := getUserID(c)
	id := c.Param("id")

	result := database.DB.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Expense{})

	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found or not yours"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Expense deleted"})
}

// 5. DELETE /api/expenses (clear all)
func ClearExpenses(c *gin.Context) {
	userID := getUserID(c)
	database.DB.Where("user_id = ?", userID).Delete(&models.Expense{})
	c.JSON(http.StatusOK, gin.H{"message": "All expenses deleted"})
}

// 6. GET /api/expenses/stats
func GetExpenseStats(c *gin.Context) {
	userID := getUserID(c)
	var expenses []models.Expense
	database.DB.Where("user_id = ?", userID).Find(&expenses)

	type CatStats struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	}

	var totalAmount float64
	byCategory := make(map[string]float64)
	for _, e := range expenses {
		totalAmount += e.Amount
		byCategory[e.Category] += e.Amount
	}

	breakdown := make([]CatStats, 0, len(byCategory))
	for _, cat := range models.Categories {
		if v, ok := byCategory[cat]; ok {
			breakdown = append(breakdown, CatStats{Name: cat, Value: v})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_amount":       totalAmount,
		"count":              len(expenses),
		"category_breakdown": breakdown,
	})
}

// 7. GET /api/expenses/chart?month=11&year=2025
func GetMonthlyChart(c *gin.Context) {
	userID := getUserID(c)
	var expenses []models.Expense

	query := database.DB.Where("user_id = ?", userID)

	monthStr := c.Query("month")
	yearStr := c.Query("year")

	if monthStr != "" && yearStr != "" {
		month, _ := strconv.Atoi(monthStr)
		year, _ := strconv.Atoi(yearStr)

		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.Local)
		end := start.AddDate(0, 1, 0)
		query = query.Where("date >= ? AND date < ?", start.Format("2006-01-02"), end.Format("2006-01-02"))
	} else {
		// Fallback: last 30 days.
		last30 := time.Now().AddDate(0, 0, -30)
		query = query.Where("date >= ?", last30.Format("2006-01-02"))
	}

	query.Order("date asc").Find(&expenses)

	type DailyStats struct {
		Date   string  `json:"date"`
		Amount float64 `json:"amount"`
		Count  int     `json:"count"`
	}

	statsMap := make(map[string]*DailyStats)
	var order []string
	for _, e := range expenses {
		if _, exists := statsMap[e.Date]; !exists {
			statsMap[e.Date] = &DailyStats{Date: e.Date}
			order = append(order, e.Date)
		}
		statsMap[e.Date].Amount += e.Amount
		statsMap[e.Date].Count++
	}

	result := make([]DailyStats, 0, len(order))
	for _, d := range order {
		result = append(result, *statsMap[d])
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
