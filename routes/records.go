package routes

import (
	"net/http"

	"patient-qa-platform/middleware"
	"patient-qa-platform/services"
	"patient-qa-platform/utils"

	"github.com/gin-gonic/gin"
)

// Record routes are clinician-facing: browsing structured admission
// records and reloading them from an export file.
func SetupRecordRoutes(router *gin.Engine, authMW *middleware.AuthMiddleware, roleMW *middleware.RoleMiddleware, records *services.RecordService, documents *services.DocumentService) {
	group := router.Group("/records")
	group.Use(authMW.RequireAuth(), roleMW.ClinicianGuard())

	group.GET("", func(c *gin.Context) {
		ids, err := records.List(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list records", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": ids, "count": len(ids)})
	})

	group.GET("/:hadm_id", func(c *gin.Context) {
		rec, err := records.Get(c.Request.Context(), c.Param("hadm_id"))
		if err != nil {
			utils.RespondWithNotFound(c, "Record not found")
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	// Reload records from the configured export file and index them
	group.POST("/reload", roleMW.AdminGuard(), func(c *gin.Context) {
		var req struct {
			Path string `json:"path" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "A file path is required", gin.H{"error": err.Error()})
			return
		}

		count, _, err := records.LoadFromFile(c.Request.Context(), req.Path)
		if err != nil {
			utils.RespondWithInternalError(c, "Record load failed", gin.H{"error": err.Error()})
			return
		}

		if err := documents.Reindex(c.Request.Context()); err != nil {
			utils.RespondWithInternalError(c, "Reindex failed", gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"loaded": count})
	})
}
