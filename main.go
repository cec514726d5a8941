package main

import (
	"log"

	"expense-backend/database"
	"expense-backend/handlers"
	"expense-backend/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, using environment")
	}

	database.ConnectDatabase()

	r := gin.Default()
	r.HandleMethodNotAllowed = true // webhook contract: 405 on non-POST

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Stripe-Signature"}
	r.Use(cors.New(config))

	// Public routes
	r.POST("/login", handlers.Login)
	r.POST("/register", handlers.Register)
	r.POST("/stripe/webhook", handlers.StripeWebhook)

	// Protected routes (token required)
	api := r.Group("/api")
	api.Use(middleware.JwtAuthMiddleware())
	{
		// Profile, pricing and billing stay reachable after trial expiry,
		// otherwise a lapsed user could never upgrade or reconcile.
		api.GET("/profile", handlers.GetProfile)
		api.GET("/pricing", handlers.GetPricingTiers)

		api.POST("/billing/checkout", handlers.CreateCheckoutSession)
		api.POST("/billing/portal", handlers.CreatePortalSession)
		api.POST("/billing/sync", handlers.StartBillingSync)
		api.GET("/billing/sync", handlers.GetBillingSync)
		api.POST("/billing/sync/check", handlers.CheckBillingSync)

		// Admin
		admin := api.Group("/admin")
		{
			admin.GET("/users", handlers.GetAllUsers)
			admin.GET("/users/:id/stats", handlers.GetUserStats)
			admin.PATCH("/users/:id/plan", handlers.OverrideUserPlan)
			admin.GET("/billing-events", handlers.GetBillingEvents)
		}

		// App features (blocked once a free trial lapses)
		app := api.Group("")
		app.Use(middleware.RequireActiveOrTrial())
		{
			app.GET("/expenses", handlers.GetExpenses)
			app.POST("/expenses", handlers.CreateExpense)
			app.PUT("/expenses/:id", handlers.UpdateExpense)
			app.DELETE("/expenses/:id", handlers.DeleteExpense)
			app.DELETE("/expenses", handlers.ClearExpenses)
			app.GET("/expenses/stats", handlers.GetExpenseStats)
			app.GET("/expenses/chart", handlers.GetMonthlyChart)

			app.POST("/extract", handlers.ExtractInvoices)
			app.GET("/export", handlers.ExportExcel)

			app.GET("/budgets", handlers.GetBudgets)
			app.PUT("/budgets", handlers.SaveBudgets)
		}
	}

	r.Run(":8080")
}
