package routes

import (
	"context"
	"net/http"
	"time"

	"patient-qa-platform/internal/auth"
	"patient-qa-platform/internal/config"
	"patient-qa-platform/middleware"
	"patient-qa-platform/models"
	"patient-qa-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func SetupAuthRoutes(router *gin.Engine, cfg *config.Config, mongoClient *mongo.Client, rdb *redis.Client) {
	authGroup := router.Group("/auth")

	db := mongoClient.Database(cfg.DBName)
	usersCollection := db.Collection("users")

	setTokenCookies := func(c *gin.Context, pair *auth.TokenPair) {
		secure := cfg.GinMode == "release"
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie("access_token", pair.AccessToken, int(time.Hour.Seconds()), "/", "", secure, true)
		c.SetCookie("refresh_token", pair.RefreshToken, int(7*24*time.Hour.Seconds()), "/", "", secure, true)
	}

	// Register endpoint. Self-registration always creates a patient
	// account, clinician and admin accounts are provisioned separately.
	authGroup.POST("/register", func(c *gin.Context) {
		var req models.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		var existingUser models.User
		if err := usersCollection.FindOne(context.Background(), bson.M{"username": req.Username}).Decode(&existingUser); err == nil {
			utils.RespondWithConflict(c, "Username already exists")
			return
		}

		hashedPassword, err := utils.HashPassword(req.Password, cfg.BcryptCost)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to process password", nil)
			return
		}

		user := models.User{
			Username:     req.Username,
			Name:         req.Name,
			Email:        req.Email,
			PasswordHash: hashedPassword,
			Role:         "patient",
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}

		result, err := usersCollection.InsertOne(context.Background(), user)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create user", nil)
			return
		}

		userID := result.InsertedID.(primitive.ObjectID).Hex()
		pair, err := auth.IssueTokenPair(userID, user.Role, rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}
		setTokenCookies(c, pair)

		c.JSON(http.StatusCreated, models.TokenPairResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			AccessExp:    pair.AccessExp,
			RefreshExp:   pair.RefreshExp,
			User: models.UserInfo{
				ID:       userID,
				Username: user.Username,
				Name:     user.Name,
				Email:    user.Email,
				Role:     user.Role,
			},
		})
	})

	// Login endpoint
	authGroup.POST("/login", func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		var user models.User
		if err := usersCollection.FindOne(context.Background(), bson.M{"username": req.Username}).Decode(&user); err != nil {
			utils.RespondWithUnauthorized(c, "Invalid username or password")
			return
		}

		if !utils.CheckPassword(req.Password, user.PasswordHash) {
			utils.RespondWithUnauthorized(c, "Invalid username or password")
			return
		}

		pair, err := auth.IssueTokenPair(user.ID.Hex(), user.Role, rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}
		setTokenCookies(c, pair)

		c.JSON(http.StatusOK, models.TokenPairResponse{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			AccessExp:    pair.AccessExp,
			RefreshExp:   pair.RefreshExp,
			User: models.UserInfo{
				ID:       user.ID.Hex(),
				Username: user.Username,
				Name:     user.Name,
				Email:    user.Email,
				Role:     user.Role,
			},
		})
	})

	// Refresh endpoint: rotates the refresh token
	authGroup.POST("/refresh", func(c *gin.Context) {
		refreshToken, err := c.Cookie("refresh_token")
		if err != nil || refreshToken == "" {
			var body struct {
				RefreshToken string `json:"refresh_token" binding:"required"`
			}
			if bindErr := c.ShouldBindJSON(&body); bindErr != nil {
				utils.RespondWithUnauthorized(c, "Refresh token required")
				return
			}
			refreshToken = body.RefreshToken
		}

		claims, err := auth.ValidateRefreshToken(refreshToken, rdb)
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid refresh token")
			return
		}

		if err := auth.RevokeToken(claims.ID, true, rdb); err != nil {
			utils.RespondWithInternalError(c, "Failed to rotate token", nil)
			return
		}

		pair, err := auth.IssueTokenPair(claims.UserID, claims.Role, rdb)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}
		setTokenCookies(c, pair)

		c.JSON(http.StatusOK, gin.H{
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"access_exp":    pair.AccessExp,
			"refresh_exp":   pair.RefreshExp,
		})
	})

	// Logout: revokes all tokens for the user
	authMW := middleware.NewAuthMiddleware(cfg, rdb)
	authGroup.POST("/logout", authMW.RequireAuth(), func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if err := auth.RevokeAllUserTokens(userID, rdb); err != nil {
			utils.RespondWithInternalError(c, "Failed to revoke tokens", nil)
			return
		}

		c.SetCookie("access_token", "", -1, "/", "", false, true)
		c.SetCookie("refresh_token", "", -1, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	})

	// Current user info
	authGroup.GET("/me", authMW.RequireAuth(), func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		oid, err := primitive.ObjectIDFromHex(userID)
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid session")
			return
		}

		var user models.User
		if err := usersCollection.FindOne(context.Background(), bson.M{"_id": oid}).Decode(&user); err != nil {
			utils.RespondWithNotFound(c, "User not found")
			return
		}

		c.JSON(http.StatusOK, models.UserInfo{
			ID:       user.ID.Hex(),
			Username: user.Username,
			Name:     user.Name,
			Email:    user.Email,
			Role:     user.Role,
		})
	})
}
