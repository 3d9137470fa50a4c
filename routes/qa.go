package routes

import (
	"errors"
	"net/http"

	"patient-qa-platform/internal/config"
	"patient-qa-platform/middleware"
	"patient-qa-platform/models"
	"patient-qa-platform/services"
	"patient-qa-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func SetupQARoutes(router *gin.Engine, cfg *config.Config, rdb *redis.Client, authMW *middleware.AuthMiddleware, roleMW *middleware.RoleMiddleware, qa *services.QAService) {
	group := router.Group("/qa")
	// QA endpoints spend model tokens, so they get the tighter role-aware
	// rate limit on top of the global one.
	group.Use(authMW.RequireAuth(), roleMW.PatientGuard(), middleware.RoleBasedRateLimit(rdb, cfg))

	// Ask a question against the indexed documents
	group.POST("/ask", func(c *gin.Context) {
		var req models.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		resp, err := qa.Ask(c.Request.Context(), middleware.GetUserID(c), &req)
		if err != nil {
			if errors.Is(err, services.ErrQuotaExceeded) {
				utils.RespondWithTooManyRequests(c, "Daily token quota exceeded")
				return
			}
			if errors.Is(err, services.ErrModelUnavailable) {
				utils.RespondWithServiceUnavailable(c,
					"The answering service is experiencing high demand. Please try again in a moment.")
				return
			}
			utils.RespondWithInternalError(c, "Failed to answer question", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	})

	// List the caller's conversations
	group.GET("/conversations", func(c *gin.Context) {
		ids, err := qa.Conversations(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list conversations", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversations": ids, "count": len(ids)})
	})

	// Fetch one conversation's history
	group.GET("/conversations/:id", func(c *gin.Context) {
		history, err := qa.History(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load conversation", nil)
			return
		}
		if len(history.Messages) == 0 {
			utils.RespondWithNotFound(c, "Conversation not found")
			return
		}
		c.JSON(http.StatusOK, history)
	})
}
