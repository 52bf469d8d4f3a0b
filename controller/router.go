package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the RAG endpoints, their legacy aliases and the health check onto a
// Gin engine. A positive timeout bounds every request's context.
func NewRouter(ragController *RAGController, timeout time.Duration) *gin.Engine {
	router := gin.Default()
	router.Use(corsMiddleware())
	if timeout > 0 {
		router.Use(timeoutMiddleware(timeout))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "voicenotes",
			"version": "1.0.0",
		})
	})

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/notes", ragController.IngestNote) // Endpoint to create a new note
		apiV1.GET("/notes", ragController.GetAllNotes) // Endpoint to get all notes
		apiV1.POST("/query", ragController.QueryRAG)   // Endpoint to ask a question
	}

	// Routes used by the existing mobile client.
	legacy := router.Group("/api")
	{
		legacy.POST("/pc", ragController.IngestNote)
		legacy.POST("/chat", ragController.QueryRAG)
		legacy.GET("/get-notes", ragController.GetAllNotesLegacy)
	}

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func timeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
