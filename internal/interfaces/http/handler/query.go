package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	queryapp "github.com/mapflow/backend/internal/application/query"
	"github.com/mapflow/backend/internal/interfaces/http/dto"
)

// QueryHandler serves the natural-language query pathway and exports.
type QueryHandler struct {
	BaseHandler
	service  *queryapp.Service
	exporter *queryapp.Exporter
	logger   *zap.Logger
}

// NewQueryHandler creates a query handler
func NewQueryHandler(service *queryapp.Service, exporter *queryapp.Exporter,
	logger *zap.Logger) *QueryHandler {
	return &QueryHandler{service: service, exporter: exporter, logger: logger}
}

// RegisterRoutes registers query routes
func (h *QueryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/query-database", h.QueryDatabase)
	rg.POST("/api/v1/generate-sql", h.GenerateSQL)
	rg.POST("/api/export/query", h.ExportQuery)
}

// QueryDatabase answers a natural-language question: generate SQL,
// validate, execute, return rows.
func (h *QueryHandler) QueryDatabase(c *gin.Context) {
	var req dto.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	result, err := h.service.Ask(c.Request.Context(), req.Question)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// GenerateSQL returns validated SQL for a question without executing it.
func (h *QueryHandler) GenerateSQL(c *gin.Context) {
	var req dto.GenerateSQLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	sql, attempts, err := h.service.GenerateSQL(c.Request.Context(), req.Question)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"sql": sql, "attempts": attempts})
}

// ExportQuery runs a validated query and streams the rendered file.
func (h *QueryHandler) ExportQuery(c *gin.Context) {
	var req dto.ExportQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	format := req.Format
	if format == "" {
		format = "csv"
	}
	result, err := h.exporter.Export(c.Request.Context(), req.SQL, format)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	c.Header("X-Row-Count", fmt.Sprintf("%d", result.RowCount))
	if result.Truncated {
		c.Header("X-Truncated", "true")
	}
	c.Data(200, result.ContentType, result.Data)
}
