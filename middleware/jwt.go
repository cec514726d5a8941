package middleware

import (
	"net/http"
	"strings"

	"expense-backend/database"
	"expense-backend/models"
	"expense-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JwtAuthMiddleware only checks that the token is valid and stashes the
// identity. Entitlement checks live in RequireActiveOrTrial.
func JwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
			c.Abort()
			return
		}

		tokenString := strings.Replace(authHeader, "Bearer ", "", 1)
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return utils.ApiSecret(), nil
		})

		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		userID, okID := claims["user_id"].(string)
		if !okID || userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token corrupt (user_id)"})
			c.Abort()
			return
		}

		// Same key everywhere: "user_id" (string), "role".
		c.Set("user_id", userID)
		if role, okRole := claims["role"].(string); okRole {
			c.Set("role", role)
		}
		c.Next()
	}
}

// RequireActiveOrTrial blocks users whose free trial has expired and who
// never upgraded. Paid-plan and active-trial users pass through.
func RequireActiveOrTrial() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		var user models.User
		if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			return
		}

		if user.PlanID == models.PlanFree && !user.IsTrialActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Trial expired. Please upgrade to continue."})
			return
		}

		c.Next()
	}
}
