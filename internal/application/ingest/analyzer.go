package ingestapp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/infrastructure/llm"
	"github.com/mapflow/backend/internal/infrastructure/tabular"
)

const (
	// DefaultMaxIterations bounds the analyzer tool loop.
	DefaultMaxIterations = 5
	// HardMaxIterations is the absolute cap a caller may request.
	HardMaxIterations = 10
	// DefaultConfidenceThreshold gates auto_high execution.
	DefaultConfidenceThreshold = 0.9

	// sampleRowsShown limits how many sample rows reach the model.
	sampleRowsShown = 5
)

const analyzerSystem = `You are a data-import analyst. You receive a summary of an uploaded file and decide how it should be imported into a relational database.

Use the tools to inspect the file and the existing tables. When you have enough information, reply with ONLY a JSON object (no prose, no code fences) of this shape:
{"strategy":"NEW_TABLE|MERGE_EXACT|EXTEND_TABLE|ADAPT_DATA","confidence":0.0,"target_table":"...","column_mapping":{"target_col":"source_col"},"db_schema":[{"name":"...","type":"INTEGER|DECIMAL|TIMESTAMP|VARCHAR(255)|TEXT","not_null":false}],"conflicts":[],"data_quality_issues":[],"reasoning":"...","question":""}

Set "question" only when you genuinely need the user's input to proceed.`

// Analyzer is the iteration-bounded LLM agent that recommends an import
// strategy for an uploaded file.
type Analyzer struct {
	client  llm.Client
	tables  TableStore
	cache   *tabular.ParseCache
	threads ingest.QueryThreadRepository
	logger  *zap.Logger
}

// NewAnalyzer wires the analyzer. threads may be nil when interactive mode
// is not used.
func NewAnalyzer(client llm.Client, tables TableStore, cache *tabular.ParseCache,
	threads ingest.QueryThreadRepository, logger *zap.Logger) *Analyzer {
	return &Analyzer{client: client, tables: tables, cache: cache, threads: threads, logger: logger}
}

// AnalyzeParams describes one analysis request.
type AnalyzeParams struct {
	Data           []byte
	Kind           tabular.Kind
	FileName       string
	Mode           ingest.AnalysisMode
	ConflictPolicy ingest.ConflictPolicy
	MaxIterations  int
	// ThreadID and UserMessage drive interactive mode: the conversation is
	// persisted under the thread and the user's reply is appended before
	// the loop resumes.
	ThreadID    string
	UserMessage string
}

// fileContext is what the tool handlers operate on.
type fileContext struct {
	fileName string
	headers  []string
	rowCount int
	sample   []tabular.Row
	inferred []ingest.ColumnDef
}

// Analyze runs the bounded tool loop and returns a recommendation. The
// loop always terminates: if the iteration budget is exhausted without a
// decision, a best-effort recommendation is returned with IterationsUsed
// equal to the budget.
func (a *Analyzer) Analyze(ctx context.Context, params AnalyzeParams) (*ingest.Recommendation, error) {
	maxIter := params.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	if maxIter > HardMaxIterations {
		maxIter = HardMaxIterations
	}
	policy := params.ConflictPolicy
	if !policy.IsValid() {
		policy = ingest.ConflictAskUser
	}

	parsed, fingerprint, err := tabular.ParseCached(a.cache, params.Data, params.Kind)
	if err != nil {
		return nil, err
	}
	sample := tabular.Sample(parsed.Rows, fingerprint)
	fc := &fileContext{
		fileName: params.FileName,
		headers:  parsed.Headers,
		rowCount: len(parsed.Rows),
		sample:   sample,
		inferred: tabular.InferSchema(sample, parsed.Headers),
	}

	// A resumed thread re-enters the loop with its persisted transcript;
	// only the turns produced after this point get appended to the thread.
	messages, err := a.loadThread(ctx, params.ThreadID)
	if err != nil {
		return nil, err
	}
	persisted := len(messages)
	if len(messages) == 0 {
		messages = []llm.Message{llm.TextMessage(llm.RoleUser, a.openingMessage(fc, policy))}
	}
	if params.UserMessage != "" {
		messages = append(messages, llm.TextMessage(llm.RoleUser, params.UserMessage))
	}

	var lastText string
	iterations := 0
	for iterations < maxIter {
		iterations++
		resp, err := a.client.Invoke(ctx, llm.Request{
			System:    analyzerSystem,
			Messages:  messages,
			Tools:     analyzerTools(),
			MaxTokens: 4000,
		})
		if err != nil {
			return nil, err
		}
		lastText = resp.Text

		if len(resp.ToolUses) == 0 {
			rec, ok := parseRecommendation(resp.Text)
			if !ok {
				break
			}
			rec.IterationsUsed = iterations
			a.finishRecommendation(rec, fc, params.Mode, policy)
			a.persistThread(ctx, params.ThreadID, messages[persisted:], resp.Text)
			return rec, nil
		}

		// Echo the assistant turn, then answer every tool call.
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: toolUseBlocks(resp)})
		for _, use := range resp.ToolUses {
			result, terr := a.runTool(ctx, fc, policy, use)
			messages = append(messages, llm.ToolResultMessage(use.ID, result, terr != nil))
		}
	}

	rec := a.fallbackRecommendation(fc, lastText)
	rec.IterationsUsed = maxIter
	a.finishRecommendation(rec, fc, params.Mode, policy)
	a.persistThread(ctx, params.ThreadID, messages[persisted:], lastText)
	return rec, nil
}

// openingMessage summarizes the file for the model's first turn.
func (a *Analyzer) openingMessage(fc *fileContext, policy ingest.ConflictPolicy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A file %q with %d data rows was uploaded. Headers: %s.\n",
		fc.fileName, fc.rowCount, strings.Join(fc.headers, ", "))
	fmt.Fprintf(&b, "Conflict policy: %s.\n", policy)
	b.WriteString("Inspect the file and existing tables, then recommend an import strategy.")
	return b.String()
}

func toolUseBlocks(resp *llm.Response) []llm.ContentBlock {
	blocks := make([]llm.ContentBlock, 0, len(resp.ToolUses)+1)
	if resp.Text != "" {
		blocks = append(blocks, llm.ContentBlock{Type: "text", Text: resp.Text})
	}
	for _, use := range resp.ToolUses {
		blocks = append(blocks, llm.ContentBlock{
			Type:  "tool_use",
			ID:    use.ID,
			Name:  use.Name,
			Input: use.Input,
		})
	}
	return blocks
}

func analyzerTools() []llm.ToolDef {
	obj := func(props string) json.RawMessage {
		return json.RawMessage(`{"type":"object","properties":{` + props + `}}`)
	}
	return []llm.ToolDef{
		{
			Name:        "analyze_file_structure",
			Description: "Returns the file's headers, inferred column types and a few sample rows.",
			InputSchema: obj(``),
		},
		{
			Name:        "get_database_schema",
			Description: "Lists the existing user-data tables with their columns and row counts.",
			InputSchema: obj(``),
		},
		{
			Name:        "compare_with_tables",
			Description: "Compares the file's columns with the named tables and reports overlaps and conflicts.",
			InputSchema: obj(`"table_names":{"type":"array","items":{"type":"string"}}`),
		},
		{
			Name:        "resolve_conflict",
			Description: "Resolves a schema conflict according to the configured conflict policy.",
			InputSchema: obj(`"conflict":{"type":"string"},"options":{"type":"array","items":{"type":"string"}}`),
		},
	}
}

// runTool executes one tool call and returns its JSON result.
func (a *Analyzer) runTool(ctx context.Context, fc *fileContext, policy ingest.ConflictPolicy, use llm.ToolUse) (string, error) {
	switch use.Name {
	case "analyze_file_structure":
		return a.toolFileStructure(fc)
	case "get_database_schema":
		return a.toolDatabaseSchema(ctx)
	case "compare_with_tables":
		return a.toolCompare(ctx, fc, use.Input)
	case "resolve_conflict":
		return a.toolResolveConflict(policy, use.Input)
	default:
		return fmt.Sprintf("unknown tool %q", use.Name), fmt.Errorf("unknown tool %q", use.Name)
	}
}

func (a *Analyzer) toolFileStructure(fc *fileContext) (string, error) {
	shown := fc.sample
	if len(shown) > sampleRowsShown {
		shown = shown[:sampleRowsShown]
	}
	rows := make([]map[string]string, len(shown))
	for i, r := range shown {
		rows[i] = r.Values
	}
	out, err := json.Marshal(map[string]any{
		"file_name":       fc.fileName,
		"headers":         fc.headers,
		"row_count":       fc.rowCount,
		"inferred_schema": fc.inferred,
		"sample_rows":     rows,
	})
	return string(out), err
}

func (a *Analyzer) toolDatabaseSchema(ctx context.Context) (string, error) {
	tables, err := a.tables.ListTables(ctx)
	if err != nil {
		return fmt.Sprintf("failed to read schema: %v", err), err
	}
	out, merr := json.Marshal(map[string]any{"tables": tables})
	return string(out), merr
}

func (a *Analyzer) toolCompare(ctx context.Context, fc *fileContext, input json.RawMessage) (string, error) {
	var req struct {
		TableNames []string `json:"table_names"`
	}
	if err := json.Unmarshal(input, &req); err != nil {
		return fmt.Sprintf("bad input: %v", err), err
	}

	fileCols := make(map[string]string, len(fc.inferred))
	for _, col := range fc.inferred {
		fileCols[col.Name] = col.Type
	}

	type comparison struct {
		Table     string                  `json:"table"`
		Matching  []string                `json:"matching_columns"`
		FileOnly  []string                `json:"file_only_columns"`
		TableOnly []string                `json:"table_only_columns"`
		Conflicts []ingest.SchemaConflict `json:"conflicts"`
	}
	var results []comparison
	for _, name := range req.TableNames {
		cols, err := a.tables.Columns(ctx, ingest.SanitizeIdentifier(name))
		if err != nil {
			results = append(results, comparison{Table: name, Conflicts: []ingest.SchemaConflict{{
				Description: fmt.Sprintf("table not readable: %v", err),
			}}})
			continue
		}
		cmp := comparison{Table: name}
		tableCols := make(map[string]string, len(cols))
		for _, c := range cols {
			tableCols[c.Name] = c.Type
		}
		for colName, fileType := range fileCols {
			tableType, ok := tableCols[colName]
			if !ok {
				cmp.FileOnly = append(cmp.FileOnly, colName)
				continue
			}
			if ingest.NormalizeColumnType(tableType) != ingest.NormalizeColumnType(fileType) {
				cmp.Conflicts = append(cmp.Conflicts, ingest.SchemaConflict{
					Column:      colName,
					FileType:    fileType,
					TableType:   tableType,
					Description: fmt.Sprintf("column %q is %s in the file but %s in the table", colName, fileType, tableType),
				})
				continue
			}
			cmp.Matching = append(cmp.Matching, colName)
		}
		for colName := range tableCols {
			if _, ok := fileCols[colName]; !ok {
				cmp.TableOnly = append(cmp.TableOnly, colName)
			}
		}
		results = append(results, cmp)
	}
	out, err := json.Marshal(map[string]any{"comparisons": results})
	return string(out), err
}

func (a *Analyzer) toolResolveConflict(policy ingest.ConflictPolicy, input json.RawMessage) (string, error) {
	var req struct {
		Conflict string   `json:"conflict"`
		Options  []string `json:"options"`
	}
	if err := json.Unmarshal(input, &req); err != nil {
		return fmt.Sprintf("bad input: %v", err), err
	}
	switch policy {
	case ingest.ConflictLLMDecide:
		return `{"resolution":"decide yourself using the file evidence; explain the choice in your reasoning"}`, nil
	case ingest.ConflictPreferFlexible:
		return `{"resolution":"choose the most flexible option: widen the column type or extend the table rather than rejecting data"}`, nil
	default:
		return `{"resolution":"this conflict needs the user's input: set the question field of your final recommendation and lower confidence"}`, nil
	}
}

// parseRecommendation extracts the JSON recommendation from the model's
// final text, tolerating surrounding prose or code fences.
func parseRecommendation(text string) (*ingest.Recommendation, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	var rec ingest.Recommendation
	if err := json.Unmarshal([]byte(text[start:end+1]), &rec); err != nil {
		return nil, false
	}
	if !rec.Strategy.IsValid() {
		return nil, false
	}
	return &rec, true
}

// fallbackRecommendation is the best-effort answer when the iteration
// budget runs out: import into a new table named after the file.
func (a *Analyzer) fallbackRecommendation(fc *fileContext, lastText string) *ingest.Recommendation {
	mapping := make(map[string]string, len(fc.inferred))
	for i, col := range fc.inferred {
		if i < len(fc.headers) {
			mapping[col.Name] = fc.headers[i]
		}
	}
	table := ingest.SafeTableName(strings.TrimSuffix(fc.fileName, fileExt(fc.fileName)))
	reasoning := "iteration budget exhausted; defaulting to a new table from the inferred schema"
	if lastText != "" {
		reasoning = lastText
	}
	return &ingest.Recommendation{
		Strategy:          ingest.StrategyNewTable,
		Confidence:        0.5,
		TargetTable:       table,
		ColumnMapping:     mapping,
		Schema:            fc.inferred,
		Reasoning:         reasoning,
		NeedsConfirmation: true,
	}
}

func fileExt(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}

// finishRecommendation applies mode/policy post-processing: fills gaps from
// the inferred schema and downgrades ask_user questions to a confirmation
// flag when the caller cannot answer interactively.
func (a *Analyzer) finishRecommendation(rec *ingest.Recommendation, fc *fileContext,
	mode ingest.AnalysisMode, policy ingest.ConflictPolicy) {
	if len(rec.Schema) == 0 {
		rec.Schema = fc.inferred
	}
	if rec.TargetTable == "" {
		rec.TargetTable = ingest.SafeTableName(strings.TrimSuffix(fc.fileName, fileExt(fc.fileName)))
	}
	if rec.Question != "" {
		rec.NeedsConfirmation = true
	}
	if policy == ingest.ConflictAskUser && len(rec.Conflicts) > 0 {
		rec.NeedsConfirmation = true
	}
	a.logger.Info("analysis finished",
		zap.String("strategy", string(rec.Strategy)),
		zap.Float64("confidence", rec.Confidence),
		zap.String("target_table", rec.TargetTable),
		zap.Int("iterations", rec.IterationsUsed),
		zap.String("mode", string(mode)))
}

// loadThread rebuilds a resumed conversation from its persisted transcript.
// A fresh or non-interactive request returns nil.
func (a *Analyzer) loadThread(ctx context.Context, threadID string) ([]llm.Message, error) {
	if a.threads == nil || threadID == "" {
		return nil, nil
	}
	stored, err := a.threads.Messages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	msgs := make([]llm.Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, llm.TextMessage(m.Role, m.Content))
	}
	return msgs, nil
}

// persistThread appends the exchange to the interactive thread, if any.
func (a *Analyzer) persistThread(ctx context.Context, threadID string, messages []llm.Message, finalText string) {
	if a.threads == nil || threadID == "" {
		return
	}
	appendMsg := func(role, content string) bool {
		err := a.threads.AppendMessage(ctx, &ingest.ThreadMessage{
			ID:        uuid.New(),
			ThreadID:  threadID,
			Role:      role,
			Content:   content,
			CreatedAt: time.Now(),
		})
		if err != nil {
			a.logger.Error("failed to persist thread message", zap.Error(err))
			return false
		}
		return true
	}
	for _, msg := range messages {
		for _, block := range msg.Content {
			if block.Type != "text" || block.Text == "" {
				continue
			}
			if !appendMsg(msg.Role, block.Text) {
				return
			}
		}
	}
	if finalText != "" {
		appendMsg(llm.RoleAssistant, finalText)
	}
}
