package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/itish2003/minirag/models"
	"github.com/itish2003/minirag/services"
)

// RAGController handles the HTTP requests for the RAG API. It depends on the
// RAGService to perform the actual business logic.
type RAGController struct {
	ragService services.RAGService
}

// NewRAGController creates a new RAGController.
func NewRAGController(service services.RAGService) *RAGController {
	return &RAGController{
		ragService: service,
	}
}

// UploadPDF is the Gin handler for POST /upload-pdf.
func (c *RAGController) UploadPDF(ctx *gin.Context) {
	header, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, models.DetailResponse{Detail: "A PDF file is required in form field 'file'"})
		return
	}
	// Reject before touching the upload body.
	if !services.IsPDF(header.Filename) {
		ctx.JSON(http.StatusBadRequest, models.DetailResponse{Detail: "Only PDF files are allowed"})
		return
	}

	file, err := header.Open()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, models.DetailResponse{Detail: err.Error()})
		return
	}
	defer file.Close()

	resp, err := c.ragService.UploadPDF(ctx.Request.Context(), header.Filename, file)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// Ask is the Gin handler for POST /ask. The message goes to the model as is.
func (c *RAGController) Ask(ctx *gin.Context) {
	var req models.AskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, models.DetailResponse{Detail: "Invalid request body: " + err.Error()})
		return
	}

	answer, err := c.ragService.Ask(ctx.Request.Context(), req)
	if err != nil {
		writeAskError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"response": answer})
}

// AskWithContext is the Gin handler for POST /ask-with-context.
func (c *RAGController) AskWithContext(ctx *gin.Context) {
	var req models.AskWithContextRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, models.DetailResponse{Detail: "Invalid request body: " + err.Error()})
		return
	}

	resp, err := c.ragService.AskWithContext(ctx.Request.Context(), req)
	if err != nil {
		writeAskError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// VectorDBStatus is the Gin handler for GET /vectordb-status.
func (c *RAGController) VectorDBStatus(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.ragService.Status())
}

// ClearVectorDB is the Gin handler for DELETE /clear-vectordb.
func (c *RAGController) ClearVectorDB(ctx *gin.Context) {
	if err := c.ragService.Clear(ctx.Request.Context()); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, models.MessageResponse{Message: "Vector database cleared successfully"})
}

// ListModels is the Gin handler for GET /models.
func (c *RAGController) ListModels(ctx *gin.Context) {
	names, err := c.ragService.ListModels(ctx.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("CONTROLLER: could not list models")
		ctx.JSON(http.StatusOK, models.ErrorPayload{Error: err.Error()})
		return
	}
	if names == nil {
		names = []string{}
	}
	ctx.JSON(http.StatusOK, models.ModelsResponse{Models: names})
}

// statusFor maps a service error kind to an HTTP status.
func statusFor(err error) int {
	switch services.KindOf(err) {
	case services.KindInputValidation, services.KindIndexUnavailable:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).Error("CONTROLLER: request failed")
	}
	ctx.JSON(status, models.DetailResponse{Detail: detailOf(err)})
}

// writeAskError reports upstream failures as a 200 payload; anything else
// goes through writeError.
func writeAskError(ctx *gin.Context, err error) {
	if services.KindOf(err) != services.KindUpstream {
		writeError(ctx, err)
		return
	}
	logrus.WithError(err).Error("CONTROLLER: could not generate response")
	ctx.JSON(http.StatusOK, models.ErrorPayload{
		Error:   detailOf(err),
		Message: "Failed to generate response",
	})
}

// detailOf returns the underlying message without the operation prefix.
func detailOf(err error) string {
	var se *services.Error
	if errors.As(err, &se) && se.Err != nil {
		return se.Err.Error()
	}
	return err.Error()
}
