package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	ingestapp "github.com/mapflow/backend/internal/application/ingest"
	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/interfaces/http/dto"
)

// HistoryHandler exposes import lineage: listings, detail, and cascading
// undo.
type HistoryHandler struct {
	BaseHandler
	history *ingestapp.HistoryService
	logger  *zap.Logger
}

// NewHistoryHandler creates a history handler
func NewHistoryHandler(history *ingestapp.HistoryService, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, logger: logger}
}

// RegisterRoutes registers history routes
func (h *HistoryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/imports", h.List)
	rg.GET("/imports/:id", h.Get)
	rg.DELETE("/imports/:id", h.Undo)
}

// List returns a paginated history listing, filterable by table and status.
func (h *HistoryHandler) List(c *gin.Context) {
	var page dto.ListRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	page.Normalize()

	filter := ingest.ImportHistoryFilter{
		TableName: c.Query("table"),
		Status:    ingest.ImportStatus(c.Query("status")),
	}
	result, err := h.history.List(c.Request.Context(), filter, page.Page, page.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Items, result.TotalCount, result.Page, result.PageSize)
}

// Get returns one import with its mapping errors.
func (h *HistoryHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid import ID")
		return
	}
	history, mappingErrors, err := h.history.Get(c.Request.Context(), id, 0)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.HistoryDetailResponse{Import: history, MappingErrors: mappingErrors})
}

// Undo deletes the import record; the cascade removes exactly the rows
// that import produced.
func (h *HistoryHandler) Undo(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid import ID")
		return
	}
	result, err := h.history.Undo(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
