package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/itish2003/minirag/logging"
)

// Version is reported by /health.
const Version = "1.0.0"

// NewRouter wires the RAG endpoints, CORS and request logging onto a gin engine.
func NewRouter(rc *RAGController) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(), corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "Mini RAG API",
			"version": Version,
		})
	})

	router.POST("/upload-pdf", rc.UploadPDF)
	router.POST("/ask", rc.Ask)
	router.POST("/ask-with-context", rc.AskWithContext)
	router.GET("/vectordb-status", rc.VectorDBStatus)
	router.DELETE("/clear-vectordb", rc.ClearVectorDB)
	router.GET("/models", rc.ListModels)

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+logging.RequestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
