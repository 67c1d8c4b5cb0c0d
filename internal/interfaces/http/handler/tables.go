package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	ingestapp "github.com/mapflow/backend/internal/application/ingest"
)

// TablesHandler exposes read-only inspection of user-data tables.
// Protected system tables are never listed.
type TablesHandler struct {
	BaseHandler
	tables ingestapp.TableStore
	logger *zap.Logger
}

// NewTablesHandler creates a tables handler
func NewTablesHandler(tables ingestapp.TableStore, logger *zap.Logger) *TablesHandler {
	return &TablesHandler{tables: tables, logger: logger}
}

// RegisterRoutes registers table inspection routes
func (h *TablesHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/tables", h.List)
	rg.GET("/tables/:name", h.Get)
	rg.GET("/tables/:name/schema", h.Schema)
	rg.GET("/tables/:name/stats", h.Stats)
}

// List returns all user-data tables with row counts.
func (h *TablesHandler) List(c *gin.Context) {
	tables, err := h.tables.ListTables(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tables)
}

// find returns the listing entry for one user-data table. Going through
// the listing keeps protected tables invisible here too.
func (h *TablesHandler) find(c *gin.Context) (*ingestapp.TableInfo, bool) {
	name := c.Param("name")
	tables, err := h.tables.ListTables(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return nil, false
	}
	for i := range tables {
		if tables[i].Name == name {
			return &tables[i], true
		}
	}
	h.NotFound(c, "table not found")
	return nil, false
}

// Get returns one table with its schema and row count.
func (h *TablesHandler) Get(c *gin.Context) {
	info, ok := h.find(c)
	if !ok {
		return
	}
	h.Success(c, info)
}

// Schema returns the user columns of a table.
func (h *TablesHandler) Schema(c *gin.Context) {
	info, ok := h.find(c)
	if !ok {
		return
	}
	h.Success(c, gin.H{"name": info.Name, "columns": info.Columns})
}

// Stats returns the row count of a table.
func (h *TablesHandler) Stats(c *gin.Context) {
	info, ok := h.find(c)
	if !ok {
		return
	}
	h.Success(c, gin.H{"name": info.Name, "row_count": info.RowCount})
}
