package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"expense-backend/database"
	"expense-backend/models"
	"expense-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	prev := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = prev })
}

func protectedRouter() *gin.Engine {
	r := gin.New()
	r.GET("/api/ping", JwtAuthMiddleware(), RequireActiveOrTrial(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id")})
	})
	return r
}

func TestMissingTokenRejected(t *testing.T) {
	setupTestDB(t)
	w := httptest.NewRecorder()
	protectedRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGarbageTokenRejected(t *testing.T) {
	setupTestDB(t)
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")

	w := httptest.NewRecorder()
	protectedRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestActiveTrialPasses(t *testing.T) {
	setupTestDB(t)
	user := models.User{
		ID:               "u-trial",
		Email:            "trial@example.com",
		PlanID:           models.PlanFree,
		IsTrialActive:    true,
		TrialStartedAt:   time.Now(),
		MonthlyDocsLimit: 10,
	}
	require.NoError(t, database.DB.Create(&user).Error)

	token, err := utils.GenerateToken(user.ID, "user")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	protectedRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLapsedFreeUserBlocked(t *testing.T) {
	setupTestDB(t)
	user := models.User{
		ID:            "u-lapsed",
		Email:         "lapsed@example.com",
		PlanID:        models.PlanFree,
		IsTrialActive: false,
	}
	require.NoError(t, database.DB.Create(&user).Error)

	token, err := utils.GenerateToken(user.ID, "user")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	protectedRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPaidUserPasses(t *testing.T) {
	setupTestDB(t)
	user := models.User{
		ID:               "u-paid",
		Email:            "paid@example.com",
		PlanID:           models.PlanPro,
		IsTrialActive:    false,
		MonthlyDocsLimit: 100,
	}
	require.NoError(t, database.DB.Create(&user).Error)

	token, err := utils.GenerateToken(user.ID, "user")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	protectedRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
