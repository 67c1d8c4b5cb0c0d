package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	ingestapp "github.com/mapflow/backend/internal/application/ingest"
	queryapp "github.com/mapflow/backend/internal/application/query"
	"github.com/mapflow/backend/internal/infrastructure/llm"
	"github.com/mapflow/backend/internal/interfaces/http/dto"
)

// stubSQLExecutor returns a fixed result set.
type stubSQLExecutor struct {
	result *queryapp.ResultSet
	gotSQL string
}

func (s *stubSQLExecutor) Query(_ context.Context, sql string) (*queryapp.ResultSet, error) {
	s.gotSQL = sql
	return s.result, nil
}

func queryRouter(client llm.Client, exec queryapp.SQLExecutor) *gin.Engine {
	tables := &stubTableStore{tables: []ingestapp.TableInfo{
		{Name: "clients", Columns: []ingestapp.TableColumn{
			{Name: "id", Type: "INTEGER"},
			{Name: "name", Type: "VARCHAR"},
			{Name: "age", Type: "INTEGER"},
		}},
	}}
	service := queryapp.NewService(client, tables, exec, zap.NewNop())
	exporter := queryapp.NewExporter(service, 0, 0, zap.NewNop())
	router := gin.New()
	NewQueryHandler(service, exporter, zap.NewNop()).RegisterRoutes(router.Group(""))
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestQueryDatabase(t *testing.T) {
	client := llm.NewStubClient(&llm.Response{Text: `SELECT "name" FROM "clients"`})
	exec := &stubSQLExecutor{result: &queryapp.ResultSet{
		Columns: []string{"name"},
		Rows:    []map[string]any{{"name": "John"}},
	}}

	w := postJSON(t, queryRouter(client, exec), "/query-database",
		dto.QueryRequest{Question: "list the client names"})

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data queryapp.QueryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, `SELECT "name" FROM "clients"`, resp.Data.SQL)
	require.NotNil(t, resp.Data.Results)
	require.Len(t, resp.Data.Results.Rows, 1)
	assert.Equal(t, `SELECT "name" FROM "clients"`, exec.gotSQL)
}

func TestGenerateSQL_RetriesUntilValid(t *testing.T) {
	// First answer references an unknown column, second is valid.
	client := llm.NewStubClient(
		&llm.Response{Text: `SELECT "nmae" FROM "clients"`},
		&llm.Response{Text: `SELECT "name" FROM "clients"`},
	)

	w := postJSON(t, queryRouter(client, &stubSQLExecutor{}), "/api/v1/generate-sql",
		dto.GenerateSQLRequest{Question: "names"})

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			SQL      string `json:"sql"`
			Attempts int    `json:"attempts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, `SELECT "name" FROM "clients"`, resp.Data.SQL)
	assert.Equal(t, 2, resp.Data.Attempts)
}

func TestGenerateSQL_ExhaustedAttemptsIs422(t *testing.T) {
	client := llm.NewStubClient(&llm.Response{Text: `DROP TABLE "clients"`})

	w := postJSON(t, queryRouter(client, &stubSQLExecutor{}), "/api/v1/generate-sql",
		dto.GenerateSQLRequest{Question: "destroy everything"})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestExportQuery_CSV(t *testing.T) {
	client := llm.NewStubClient(&llm.Response{Text: ""})
	exec := &stubSQLExecutor{result: &queryapp.ResultSet{
		Columns: []string{"name", "age"},
		Rows: []map[string]any{
			{"name": "John", "age": 30},
			{"name": "Ada", "age": 36},
		},
	}}

	w := postJSON(t, queryRouter(client, exec), "/api/export/query",
		dto.ExportQueryRequest{SQL: `SELECT "name", "age" FROM "clients"`, Format: "csv"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "2", w.Header().Get("X-Row-Count"))
	assert.Contains(t, w.Body.String(), "name,age")
	assert.Contains(t, w.Body.String(), "John,30")
}
