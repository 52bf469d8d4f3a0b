package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/itish2003/voicenotes/models"
	"github.com/itish2003/voicenotes/services"
)

// RAGController handles the HTTP requests for our RAG API. It depends on the
// RAGService to perform the actual business logic.
type RAGController struct {
	ragService services.RAGService
}

// NewRAGController is a constructor function that creates a new RAGController.
func NewRAGController(service services.RAGService) *RAGController {
	return &RAGController{
		ragService: service,
	}
}

// IngestNote is the Gin handler for POST /api/v1/notes (and /api/pc).
func (c *RAGController) IngestNote(ctx *gin.Context) {
	var req models.IngestDataRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	ack, err := c.ragService.IngestNote(ctx.Request.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// The service layer has already logged the cause.
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to ingest note"})
		return
	}

	ctx.JSON(http.StatusOK, ack)
}

// QueryRAG is the Gin handler for POST /api/v1/query (and /api/chat). Any failure past
// validation answers 500 with the fallback body so clients always get a response to show.
func (c *RAGController) QueryRAG(ctx *gin.Context) {
	var req models.QueryTextRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	response, err := c.ragService.QueryRAG(ctx.Request.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if response == nil {
			response = models.NewFallbackResponse()
		}
		ctx.JSON(http.StatusInternalServerError, response)
		return
	}

	ctx.JSON(http.StatusOK, response)
}

// GetAllNotes is the Gin handler for GET /api/v1/notes.
func (c *RAGController) GetAllNotes(ctx *gin.Context) {
	response, err := c.ragService.GetAllNotes(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to fetch notes"})
		return
	}

	ctx.JSON(http.StatusOK, response)
}

// GetAllNotesLegacy is the Gin handler for GET /api/get-notes. It lists the same notes as
// GetAllNotes with the text under metadata.content.
func (c *RAGController) GetAllNotesLegacy(ctx *gin.Context) {
	response, err := c.ragService.GetAllNotes(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to fetch notes"})
		return
	}

	ctx.JSON(http.StatusOK, models.NewLegacyNotesResponse(response))
}
