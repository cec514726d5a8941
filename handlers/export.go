package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"expense-backend/database"
	"expense-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// GET /api/export?month=11&year=2025
func ExportExcel(c *gin.Context) {
	userID := getUserID(c)

	monthStr := c.Query("month")
	yearStr := c.Query("year")

	var expenses []models.Expense
	query := database.DB.Where("user_id = ?", userID).Order("date desc")

	if monthStr != "" && yearStr != "" {
		month, _ := strconv.Atoi(monthStr)
		year, _ := strconv.Atoi(yearStr)

		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.Local)
		end := start.AddDate(0, 1, 0)
		query = query.Where("date >= ? AND date < ?", start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	query.Find(&expenses)

	f := excelize.NewFile()
	sheetName := "Expenses"
	f.SetSheetName("Sheet1", sheetName)

	headers := []string{"No", "Date", "Vendor", "Category", "Summary", "File", "Amount"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
	}

	styleHeader, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4F46E5"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	f.SetCellStyle(sheetName, "A1", "G1", styleHeader)

	row := 2
	for i, e := range expenses {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), i+1)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), e.Date)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), e.VendorName)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), e.Category)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), e.Summary)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), e.FileName)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), fmt.Sprintf("%s %.2f", e.Currency, e.Amount))
		row++
	}

	f.SetColWidth(sheetName, "A", "A", 5)
	f.SetColWidth(sheetName, "B", "B", 12)
	f.SetColWidth(sheetName, "C", "D", 18)
	f.SetColWidth(sheetName, "E", "E", 30)
	f.SetColWidth(sheetName, "F", "F", 20)
	f.SetColWidth(sheetName, "G", "G", 14)

	fileName := fmt.Sprintf("Expenses_%s.xlsx", time.Now().Format("20060102"))

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", fileName))
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate Excel file"})
	}
}
