package handlers

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"expense-backend/database"
	"expense-backend/entitlement"
	"expense-backend/models"
	"expense-backend/reconcile"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	portalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
)

// One reconcile session per user; started when the client comes back from
// checkout with payment=success.
var syncManager = reconcile.NewManager(reconcile.DefaultInterval, reconcile.DefaultTimeout)

func siteURL() string {
	raw := os.Getenv("SITE_URL")
	if raw == "" {
		raw = "http://localhost:5173"
	}
	return strings.TrimRight(raw, "/")
}

// priceIDForTier maps internal tier ids to Stripe price IDs from env vars.
func priceIDForTier(tierID string) (string, error) {
	var envKey string
	switch tierID {
	case models.PlanBasic:
		envKey = "STRIPE_PRICE_ID_BASIC"
	case models.PlanPro:
		envKey = "STRIPE_PRICE_ID_PRO"
	case models.PlanBusiness:
		envKey = "STRIPE_PRICE_ID_BUSINESS"
	default:
		return "", fmt.Errorf("unknown tier '%s'", tierID)
	}

	priceID := os.Getenv(envKey)
	if !strings.HasPrefix(priceID, "price_") {
		return "", fmt.Errorf("configuration error: %s is missing or invalid, it must start with 'price_'", envKey)
	}
	return priceID, nil
}

type CheckoutInput struct {
	TierID string `json:"tier_id" binding:"required"`
}

// POST /api/billing/checkout
// Returns a hosted-checkout URL. The user id, email and tier ride along as
// session metadata so the webhook can recover the identity later.
func CreateCheckoutSession(c *gin.Context) {
	userID := getUserID(c)

	var user models.User
	if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}

	var input CheckoutInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tier_id required"})
		return
	}

	if _, ok := entitlement.FindTier(input.TierID); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tier selected"})
		return
	}

	priceID, err := priceIDForTier(input.TierID)
	if err != nil {
		log.Printf("checkout config error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	secretKey := os.Getenv("STRIPE_SECRET_KEY")
	if secretKey == "" {
		log.Printf("checkout config error: STRIPE_SECRET_KEY missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Billing is not configured"})
		return
	}
	stripe.Key = secretKey

	base := siteURL()
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:          stripe.String(base + "/?session_id={CHECKOUT_SESSION_ID}&payment=success"),
		CancelURL:           stripe.String(base + "/?payment=cancelled"),
		CustomerEmail:       stripe.String(user.Email),
		AllowPromotionCodes: stripe.Bool(true),
	}
	params.AddMetadata("userId", user.ID)
	params.AddMetadata("userEmail", user.Email)
	params.AddMetadata("planId", input.TierID)

	sess, err := session.New(params)
	if err != nil {
		log.Printf("stripe checkout session failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}

// POST /api/billing/portal
// Fails with a client-visible 400 when the user never completed a checkout.
func CreatePortalSession(c *gin.Context) {
	userID := getUserID(c)

	var user models.User
	if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}

	if user.StripeCustomerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No billing account on file. You must have a paid subscription to access the portal."})
		return
	}

	secretKey := os.Getenv("STRIPE_SECRET_KEY")
	if secretKey == "" {
		log.Printf("portal config error: STRIPE_SECRET_KEY missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Billing is not configured"})
		return
	}
	stripe.Key = secretKey

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(user.StripeCustomerID),
		ReturnURL: stripe.String(siteURL()),
	}

	sess, err := portalsession.New(params)
	if err != nil {
		log.Printf("stripe portal session failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create portal session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}

func fetchProfile(userID string) reconcile.FetchFunc {
	return func() (models.User, error) {
		var user models.User
		if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
			return models.User{}, err
		}
		return user, nil
	}
}

// POST /api/billing/sync
// Starts (or restarts) the post-payment reconciliation loop for this user.
func StartBillingSync(c *gin.Context) {
	userID := getUserID(c)
	ctrl := syncManager.Start(userID, fetchProfile(userID))
	c.JSON(http.StatusOK, gin.H{"state": ctrl.State()})
}

// GET /api/billing/sync
func GetBillingSync(c *gin.Context) {
	userID := getUserID(c)
	ctrl := syncManager.Get(userID)
	if ctrl == nil {
		c.JSON(http.StatusOK, gin.H{"state": reconcile.StateIdle})
		return
	}

	resp := gin.H{"state": ctrl.State()}
	if user, ok := ctrl.Profile(); ok {
		resp["user"] = user
	}
	c.JSON(http.StatusOK, resp)
}

// POST /api/billing/sync/check
// Manual "check now": one extra fetch, timeout budget untouched.
func CheckBillingSync(c *gin.Context) {
	userID := getUserID(c)
	ctrl := syncManager.Get(userID)
	if ctrl == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No sync in progress"})
		return
	}

	user, err := ctrl.CheckNow()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Profile fetch failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": ctrl.State(), "user": user})
}
