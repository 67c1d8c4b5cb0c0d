package queryapp

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	ingestapp "github.com/mapflow/backend/internal/application/ingest"
	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/infrastructure/llm"
)

// MaxGenerationAttempts bounds the generate-validate-retry loop.
const MaxGenerationAttempts = 3

// ResultSet is an executed query's output with stable column order.
type ResultSet struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// SQLExecutor runs a validated read-only query.
type SQLExecutor interface {
	Query(ctx context.Context, sql string) (*ResultSet, error)
}

// QueryResult is the NL pathway's answer: the SQL that ran and its rows.
type QueryResult struct {
	SQL      string     `json:"sql"`
	Results  *ResultSet `json:"results,omitempty"`
	Attempts int        `json:"attempts"`
}

const sqlSystem = `You translate natural-language questions into a single PostgreSQL SELECT statement.

Rules:
- Reply with ONLY the SQL statement, no prose, no code fences.
- Use only the tables and columns listed in the schema.
- Never write INSERT, UPDATE, DELETE or DDL.
- Quote identifiers with double quotes.`

// Service drives the natural-language query pathway: schema summary to the
// model, generated SQL through the validator, execution, and validator
// feedback loops for self-correction.
type Service struct {
	client llm.Client
	tables ingestapp.TableStore
	db     SQLExecutor
	logger *zap.Logger
}

// NewService wires the query service.
func NewService(client llm.Client, tables ingestapp.TableStore, db SQLExecutor, logger *zap.Logger) *Service {
	return &Service{client: client, tables: tables, db: db, logger: logger}
}

// schemaSnapshot returns the user-data schema, protected tables omitted,
// both as the validator's map and as the prompt summary.
func (s *Service) schemaSnapshot(ctx context.Context) (map[string][]string, string, error) {
	tables, err := s.tables.ListTables(ctx)
	if err != nil {
		return nil, "", err
	}
	schema := make(map[string][]string, len(tables))
	var b strings.Builder
	for _, table := range tables {
		if ingest.IsProtectedTable(table.Name) {
			continue
		}
		cols := make([]string, 0, len(table.Columns))
		fmt.Fprintf(&b, "table %q (%d rows):\n", table.Name, table.RowCount)
		for _, col := range table.Columns {
			cols = append(cols, col.Name)
			fmt.Fprintf(&b, "  %s %s\n", col.Name, col.Type)
		}
		schema[strings.ToLower(table.Name)] = cols
	}
	return schema, b.String(), nil
}

// GenerateSQL produces a validated SELECT for the question without
// executing it. Validator rejections are fed back to the model up to
// MaxGenerationAttempts times.
func (s *Service) GenerateSQL(ctx context.Context, question string) (string, int, error) {
	schema, summary, err := s.schemaSnapshot(ctx)
	if err != nil {
		return "", 0, err
	}
	validator := NewValidator(schema)

	messages := []llm.Message{llm.TextMessage(llm.RoleUser,
		fmt.Sprintf("Database schema:\n%s\nQuestion: %s", summary, question))}

	var lastErr error
	for attempt := 1; attempt <= MaxGenerationAttempts; attempt++ {
		resp, err := s.client.Invoke(ctx, llm.Request{
			System:    sqlSystem,
			Messages:  messages,
			MaxTokens: 1000,
		})
		if err != nil {
			return "", attempt, err
		}
		sql := cleanSQL(resp.Text)

		if verr := validator.Validate(sql); verr != nil {
			s.logger.Debug("generated SQL rejected",
				zap.Int("attempt", attempt),
				zap.String("reason", verr.Error()))
			lastErr = verr
			messages = append(messages,
				llm.TextMessage(llm.RoleAssistant, resp.Text),
				llm.TextMessage(llm.RoleUser, verr.Error()))
			continue
		}
		return sql, attempt, nil
	}
	return "", MaxGenerationAttempts, lastErr
}

// Ask answers a natural-language question: generate, validate, execute.
func (s *Service) Ask(ctx context.Context, question string) (*QueryResult, error) {
	sql, attempts, err := s.GenerateSQL(ctx, question)
	if err != nil {
		return nil, err
	}
	results, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return &QueryResult{SQL: sql, Results: results, Attempts: attempts}, nil
}

// Execute validates and runs caller-supplied SQL (the query-database
// endpoint). The validator's protected-table and SELECT-only rules still
// apply.
func (s *Service) Execute(ctx context.Context, sql string) (*ResultSet, error) {
	schema, _, err := s.schemaSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if verr := NewValidator(schema).Validate(sql); verr != nil {
		return nil, verr
	}
	return s.db.Query(ctx, sql)
}

// cleanSQL strips code fences and trailing semicolons from model output.
func cleanSQL(text string) string {
	sql := strings.TrimSpace(text)
	sql = strings.TrimPrefix(sql, "```sql")
	sql = strings.TrimPrefix(sql, "```")
	sql = strings.TrimSuffix(sql, "```")
	sql = strings.TrimSpace(sql)
	return strings.TrimSuffix(sql, ";")
}
