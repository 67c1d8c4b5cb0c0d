package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	ingestapp "github.com/mapflow/backend/internal/application/ingest"
	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/interfaces/http/dto"
)

// stubTableStore serves a fixed listing.
type stubTableStore struct {
	tables        []ingestapp.TableInfo
	countByImport int64
}

func (s *stubTableStore) TableExists(context.Context, string) (bool, error) { return false, nil }
func (s *stubTableStore) CreateTable(context.Context, string, []ingest.ColumnDef) error {
	return nil
}
func (s *stubTableStore) ExtendTable(context.Context, string, []ingest.ColumnDef) error {
	return nil
}
func (s *stubTableStore) Columns(context.Context, string) ([]ingestapp.TableColumn, error) {
	return nil, nil
}
func (s *stubTableStore) ListTables(context.Context) ([]ingestapp.TableInfo, error) {
	return s.tables, nil
}
func (s *stubTableStore) InsertChunk(context.Context, string, uuid.UUID, []ingestapp.Record) error {
	return nil
}
func (s *stubTableStore) ExistingKeys(context.Context, string, []string) (map[string]struct{}, error) {
	return nil, nil
}
func (s *stubTableStore) CountByImport(context.Context, string, uuid.UUID) (int64, error) {
	return s.countByImport, nil
}

func tablesRouter() *gin.Engine {
	store := &stubTableStore{tables: []ingestapp.TableInfo{
		{
			Name: "clients",
			Columns: []ingestapp.TableColumn{
				{Name: "id", Type: "INTEGER"},
				{Name: "name", Type: "VARCHAR", Nullable: true},
			},
			RowCount: 42,
		},
		{Name: "orders", RowCount: 7},
	}}
	router := gin.New()
	NewTablesHandler(store, zap.NewNop()).RegisterRoutes(router.Group(""))
	return router
}

func TestTablesList(t *testing.T) {
	w := httptest.NewRecorder()
	tablesRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tables", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                   `json:"success"`
		Data    []ingestapp.TableInfo  `json:"data"`
		Error   *dto.ErrorInfo         `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "clients", resp.Data[0].Name)
	assert.Equal(t, int64(42), resp.Data[0].RowCount)
}

func TestTablesGet(t *testing.T) {
	w := httptest.NewRecorder()
	tablesRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tables/clients", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"row_count":42`)
}

func TestTablesGet_NotFound(t *testing.T) {
	w := httptest.NewRecorder()
	tablesRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tables/import_history", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTablesSchema(t *testing.T) {
	w := httptest.NewRecorder()
	tablesRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tables/clients/schema", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"id"`)
	// Lineage columns are not part of the reported schema.
	assert.NotContains(t, w.Body.String(), "_import_id")
}

func TestTablesStats(t *testing.T) {
	w := httptest.NewRecorder()
	tablesRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tables/orders/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"row_count":7`)
}
