package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vaultrag/bridge/models"
	"github.com/vaultrag/bridge/services"
)

// RAGController handles the HTTP requests for the RAG API and the
// file-bridge ask flow.
type RAGController struct {
	ragService services.RAGService
	bridge     *services.Bridge
}

// NewRAGController creates a controller with its dependencies injected
// from main.
func NewRAGController(service services.RAGService, bridge *services.Bridge) *RAGController {
	return &RAGController{
		ragService: service,
		bridge:     bridge,
	}
}

// IngestNote is the Gin handler for POST /api/v1/notes.
func (c *RAGController) IngestNote(ctx *gin.Context) {
	var req models.IngestDataRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := c.ragService.IngestNote(ctx.Request.Context(), req); err != nil {
		// The service layer logs the actual error.
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to ingest note"})
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"message": "Note ingested successfully"})
}

// QueryRAG is the Gin handler for POST /api/v1/query, the synchronous
// chat-style pipeline.
func (c *RAGController) QueryRAG(ctx *gin.Context) {
	var req models.QueryTextRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	response, err := c.ragService.QueryRAG(ctx.Request.Context(), req)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate AI response"})
		return
	}

	ctx.JSON(http.StatusOK, response)
}

// Ask is the Gin handler for POST /api/v1/ask. It dispatches the question
// through the file bridge and returns immediately; the answer is rendered
// into the target document when it arrives.
func (c *RAGController) Ask(ctx *gin.Context) {
	var req models.AskRequest

	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	// The poll outlives this request, so it is not tied to the request
	// context.
	ticket, err := c.bridge.Ask(context.Background(), req.Question, req.Document)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit question: " + err.Error()})
		return
	}

	ctx.JSON(http.StatusAccepted, models.AskResponse{
		TicketID: ticket.ID,
		Document: req.Document,
		Message:  "Question submitted; the answer will appear in the document.",
	})
}

// GetAllNotes is the Gin handler for GET /api/v1/notes.
func (c *RAGController) GetAllNotes(ctx *gin.Context) {
	response, err := c.ragService.GetAllNotes(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve notes"})
		return
	}

	ctx.JSON(http.StatusOK, response)
}
