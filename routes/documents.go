package routes

import (
	"net/http"
	"strings"

	"patient-qa-platform/internal/config"
	"patient-qa-platform/middleware"
	"patient-qa-platform/models"
	"patient-qa-platform/services"
	"patient-qa-platform/utils"

	"github.com/gin-gonic/gin"
)

func SetupDocumentRoutes(router *gin.Engine, cfg *config.Config, authMW *middleware.AuthMiddleware, documents *services.DocumentService, summaries *services.SummarizationService) {
	group := router.Group("/documents")
	group.Use(authMW.RequireAuth())

	// Upload a PDF or text file
	group.POST("", func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "A file is required", gin.H{"error": err.Error()})
			return
		}

		contentType := fileHeader.Header.Get("Content-Type")
		allowed := false
		for _, t := range cfg.AllowedTypes {
			if strings.TrimSpace(t) == contentType {
				allowed = true
				break
			}
		}
		if !allowed {
			utils.RespondWithBadRequest(c, "Unsupported file type", gin.H{"content_type": contentType})
			return
		}

		resp, err := documents.Upload(c.Request.Context(), middleware.GetUserID(c), fileHeader)
		if err != nil {
			utils.RespondWithInternalError(c, "Upload failed", gin.H{"error": err.Error()})
			return
		}

		status := http.StatusCreated
		if resp.TaskID != "" {
			status = http.StatusAccepted
		}
		c.JSON(status, resp)
	})

	// Ingest raw text
	group.POST("/text", func(c *gin.Context) {
		var req models.TextIngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		resp, err := documents.IngestText(c.Request.Context(), middleware.GetUserID(c), &req)
		if err != nil {
			utils.RespondWithInternalError(c, "Text ingestion failed", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, resp)
	})

	// List the caller's documents
	group.GET("", func(c *gin.Context) {
		docs, err := documents.List(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
	})

	// Fetch one document's status and metadata
	group.GET("/:id", func(c *gin.Context) {
		doc, err := documents.Get(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
		if err != nil {
			utils.RespondWithNotFound(c, "Document not found")
			return
		}
		c.JSON(http.StatusOK, doc)
	})

	// Summarize a document
	group.GET("/:id/summary", func(c *gin.Context) {
		// Ownership check before touching the shared summary cache
		if _, err := documents.Get(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
			utils.RespondWithNotFound(c, "Document not found")
			return
		}

		summary, err := summaries.SummarizeDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithInternalError(c, "Summarization failed", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "summary": summary})
	})

	// Delete a document and rebuild the index
	group.DELETE("/:id", func(c *gin.Context) {
		if err := documents.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
			utils.RespondWithNotFound(c, "Document not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
	})
}
