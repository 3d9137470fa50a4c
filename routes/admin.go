package routes

import (
	"net/http"

	"patient-qa-platform/internal/ai"
	"patient-qa-platform/internal/rag"
	"patient-qa-platform/middleware"
	"patient-qa-platform/services"
	"patient-qa-platform/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
)

// Admin routes cover index maintenance and quota management.
func SetupAdminRoutes(router *gin.Engine, db *mongo.Database, authMW *middleware.AuthMiddleware, roleMW *middleware.RoleMiddleware, system *rag.System, snapshots *services.SnapshotService, documents *services.DocumentService) {
	group := router.Group("/admin")
	group.Use(authMW.RequireAuth(), roleMW.AdminGuard())

	// Index status
	group.GET("/index", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"chunks": system.Len(),
			"model":  system.ModelInfo(),
		})
	})

	// Persist the index now
	group.POST("/index/snapshot", func(c *gin.Context) {
		if err := snapshots.Save(c.Request.Context()); err != nil {
			utils.RespondWithInternalError(c, "Snapshot failed", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Snapshot saved", "chunks": system.Len()})
	})

	// Restore the latest snapshot
	group.POST("/index/restore", func(c *gin.Context) {
		restored, err := snapshots.Restore(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Restore failed", gin.H{"error": err.Error()})
			return
		}
		if !restored {
			utils.RespondWithNotFound(c, "No snapshot available")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Snapshot restored", "chunks": system.Len()})
	})

	// Rebuild the index from stored documents and records
	group.POST("/index/rebuild", func(c *gin.Context) {
		if err := documents.Reindex(c.Request.Context()); err != nil {
			utils.RespondWithInternalError(c, "Rebuild failed", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Index rebuilt", "chunks": system.Len()})
	})

	// Quota inspection and adjustment
	group.GET("/quotas/:user_id", func(c *gin.Context) {
		quota, err := ai.GetUserQuotaStatus(c.Request.Context(), db, c.Param("user_id"))
		if err != nil {
			utils.RespondWithNotFound(c, "No quota record for user")
			return
		}
		c.JSON(http.StatusOK, quota)
	})

	group.PUT("/quotas/:user_id", func(c *gin.Context) {
		var req struct {
			DailyTokenLimit int `json:"daily_token_limit" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		if err := ai.SetUserQuotaLimit(c.Request.Context(), db, c.Param("user_id"), req.DailyTokenLimit); err != nil {
			utils.RespondWithInternalError(c, "Failed to update quota", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Quota updated", "daily_token_limit": req.DailyTokenLimit})
	})
}
