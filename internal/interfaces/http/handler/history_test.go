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

func newTestHistory(t *testing.T, table string) *ingest.ImportHistory {
	t.Helper()
	cfg := validMapping()
	cfg.TableName = table
	history, err := ingest.NewImportHistory("fp-1", table, "clients.csv", 128, &cfg)
	require.NoError(t, err)
	return history
}

func historyRouter(histories *fakeHistoryRepo, errs *fakeMappingErrors,
	tables *stubTableStore) *gin.Engine {
	service := ingestapp.NewHistoryService(histories, errs, tables, zap.NewNop())
	router := gin.New()
	NewHistoryHandler(service, zap.NewNop()).RegisterRoutes(router.Group(""))
	return router
}

func TestHistoryList(t *testing.T) {
	histories := newFakeHistoryRepo()
	require.NoError(t, histories.Save(context.Background(), newTestHistory(t, "clients")))
	require.NoError(t, histories.Save(context.Background(), newTestHistory(t, "orders")))

	router := historyRouter(histories, &fakeMappingErrors{}, &stubTableStore{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/imports?table=clients", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                    `json:"success"`
		Data    []*ingest.ImportHistory `json:"data"`
		Meta    *dto.Meta               `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "clients", resp.Data[0].TableName)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(1), resp.Meta.Total)
}

func TestHistoryGet_WithMappingErrors(t *testing.T) {
	histories := newFakeHistoryRepo()
	history := newTestHistory(t, "clients")
	require.NoError(t, histories.Save(context.Background(), history))

	errs := &fakeMappingErrors{errs: []*ingest.MappingError{
		{ID: uuid.New(), ImportID: history.ID, SourceRowNumber: 7, Column: "age", Reason: "type_mismatch", Value: "abc"},
	}}

	router := historyRouter(histories, errs, &stubTableStore{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/imports/"+history.ID.String(), nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data dto.HistoryDetailResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Import)
	require.Len(t, resp.Data.MappingErrors, 1)
	assert.Equal(t, 7, resp.Data.MappingErrors[0].SourceRowNumber)
}

func TestHistoryUndo(t *testing.T) {
	histories := newFakeHistoryRepo()
	history := newTestHistory(t, "clients")
	require.NoError(t, histories.Save(context.Background(), history))

	router := historyRouter(histories, &fakeMappingErrors{}, &stubTableStore{countByImport: 5})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/imports/"+history.ID.String(), nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data ingestapp.UndoResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(5), resp.Data.RowsRemoved)
	assert.Equal(t, "clients", resp.Data.TableName)

	// A second undo finds nothing.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/imports/"+history.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
