package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"expense-backend/database"
	"expense-backend/entitlement"
	"expense-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// Shape the model is asked to return for each document.
type ExtractedInvoice struct {
	VendorName string  `json:"vendorName"`
	Date       string  `json:"date"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Category   string  `json:"category"`
	Summary    string  `json:"summary"`
}

var invoiceSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"vendorName": {Type: genai.TypeString, Description: "Name of the merchant or vendor"},
		"date":       {Type: genai.TypeString, Description: "Date of transaction in YYYY-MM-DD format"},
		"amount":     {Type: genai.TypeNumber, Description: "Total amount paid"},
		"currency":   {Type: genai.TypeString, Description: "Currency code (e.g., RM)"},
		"category":   {Type: genai.TypeString, Enum: models.Categories, Description: "Best fitting category"},
		"summary":    {Type: genai.TypeString, Description: "Brief description of purchase"},
	},
	Required: []string{"vendorName", "date", "amount", "category"},
}

// mimeForFile falls back to extension sniffing; browsers do not always send
// a content type for PDFs.
func mimeForFile(name, declared string) string {
	if declared != "" {
		return declared
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// ExtractInvoices handles POST /api/extract: a multipart batch of invoice
// images/PDFs. The quota gate runs against the freshly loaded profile, each
// file is extracted independently, and usage is recorded once with the
// number of successes.
func ExtractInvoices(c *gin.Context) {
	userID := getUserID(c)

	var user models.User
	if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}
	user = NormalizeTrial(user)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Files required"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Files required"})
		return
	}

	// Quota gate. Not an error: the client routes a blocked result to the
	// upgrade flow.
	decision := entitlement.CanUpload(user, len(files))
	if !decision.Allowed {
		c.JSON(http.StatusForbidden, gin.H{
			"error":           decision.Reason,
			"quota_exceeded":  true,
			"upgrade_needed":  true,
			"used":            user.DocsUsedThisMonth,
			"monthly_limit":   user.MonthlyDocsLimit,
			"requested_count": len(files),
		})
		return
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		// Configuration error: loud, never silently degraded.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "AI extraction is not configured (GEMINI_API_KEY missing)"})
		return
	}

	ctx := c.Request.Context()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reach AI service"})
		return
	}
	defer client.Close()

	model := client.GenerativeModel("gemini-1.5-flash")
	model.SetTemperature(0.1)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = invoiceSchema

	var created []models.Expense
	var failures []gin.H

	for _, header := range files {
		if header.Size > 5*1024*1024 {
			failures = append(failures, gin.H{"file": header.Filename, "error": "File exceeds 5MB limit"})
			continue
		}

		file, err := header.Open()
		if err != nil {
			failures = append(failures, gin.H{"file": header.Filename, "error": "Could not read file"})
			continue
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			failures = append(failures, gin.H{"file": header.Filename, "error": "Could not read file"})
			continue
		}

		extracted, err := extractOne(ctx, model, data, mimeForFile(header.Filename, header.Header.Get("Content-Type")))
		if err != nil {
			failures = append(failures, gin.H{"file": header.Filename, "error": err.Error()})
			continue
		}

		if extracted.VendorName == "" {
			extracted.VendorName = "Unknown Vendor"
		}
		if !models.IsValidCategory(extracted.Category) {
			extracted.Category = models.CategoryOthers
		}
		if extracted.Currency == "" {
			extracted.Currency = "RM"
		}

		expense := models.Expense{
			ID:         uuid.NewString(),
			UserID:     user.ID,
			VendorName: extracted.VendorName,
			Date:       formatDate(extracted.Date),
			Amount:     extracted.Amount,
			Currency:   extracted.Currency,
			Category:   extracted.Category,
			Summary:    extracted.Summary,
			FileName:   filepath.Base(header.Filename),
			CreatedAt:  time.Now(),
		}
		if err := database.DB.Create(&expense).Error; err != nil {
			failures = append(failures, gin.H{"file": header.Filename, "error": "Failed to save expense"})
			continue
		}
		created = append(created, expense)
	}

	// Record usage once for the whole batch, with the success count only.
	if len(created) > 0 {
		user = RecordUsage(user, len(created))
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  fmt.Sprintf("%d of %d documents processed", len(created), len(files)),
		"data":     created,
		"failures": failures,
		"user":     user,
	})
}

// RecordUsage applies the pure evaluator and persists the new counter keyed
// by profile id.
func RecordUsage(user models.User, successCount int) models.User {
	updated := entitlement.RecordUsage(user, successCount)
	database.DB.Model(&models.User{}).Where("id = ?", updated.ID).
		Update("docs_used_this_month", updated.DocsUsedThisMonth)
	return updated
}

func extractOne(ctx context.Context, model *genai.GenerativeModel, data []byte, mimeType string) (ExtractedInvoice, error) {
	var out ExtractedInvoice

	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text("Extract invoice details as JSON."),
	)
	if err != nil {
		return out, fmt.Errorf("AI extraction failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return out, fmt.Errorf("no data returned from model")
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return out, fmt.Errorf("unexpected response type from model")
	}

	if err := json.Unmarshal([]byte(strings.TrimSpace(string(text))), &out); err != nil {
		return out, fmt.Errorf("could not parse model output: %w", err)
	}
	return out, nil
}
