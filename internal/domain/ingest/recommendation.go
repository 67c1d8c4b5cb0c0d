package ingest

// Strategy is the analyzer's decision about how a file relates to the
// existing schema.
type Strategy string

const (
	StrategyNewTable    Strategy = "NEW_TABLE"
	StrategyMergeExact  Strategy = "MERGE_EXACT"
	StrategyExtendTable Strategy = "EXTEND_TABLE"
	StrategyAdaptData   Strategy = "ADAPT_DATA"
)

// IsValid checks if the strategy is valid
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyNewTable, StrategyMergeExact, StrategyExtendTable, StrategyAdaptData:
		return true
	}
	return false
}

// AnalysisMode controls whether a recommendation is executed automatically.
type AnalysisMode string

const (
	ModeManual     AnalysisMode = "manual"
	ModeAutoHigh   AnalysisMode = "auto_high"
	ModeAutoAlways AnalysisMode = "auto_always"
)

// IsValid checks if the analysis mode is valid
func (m AnalysisMode) IsValid() bool {
	switch m {
	case ModeManual, ModeAutoHigh, ModeAutoAlways:
		return true
	}
	return false
}

// ConflictPolicy controls how schema conflicts found during analysis are
// resolved.
type ConflictPolicy string

const (
	ConflictAskUser        ConflictPolicy = "ask_user"
	ConflictLLMDecide      ConflictPolicy = "llm_decide"
	ConflictPreferFlexible ConflictPolicy = "prefer_flexible"
)

// IsValid checks if the conflict policy is valid
func (p ConflictPolicy) IsValid() bool {
	switch p {
	case ConflictAskUser, ConflictLLMDecide, ConflictPreferFlexible:
		return true
	}
	return false
}

// SchemaConflict describes a mismatch between the file and a candidate
// target table.
type SchemaConflict struct {
	Column      string `json:"column"`
	FileType    string `json:"file_type,omitempty"`
	TableType   string `json:"table_type,omitempty"`
	Description string `json:"description"`
	Resolution  string `json:"resolution,omitempty"`
}

// DataQualityIssue flags a problem the analyzer noticed in the sampled data.
type DataQualityIssue struct {
	Column      string `json:"column,omitempty"`
	Description string `json:"description"`
	Severity    string `json:"severity,omitempty"` // low, medium, high
}

// Recommendation is the analyzer's terminal output: a strategy plus the
// mapping needed to execute it.
type Recommendation struct {
	Strategy          Strategy           `json:"strategy"`
	Confidence        float64            `json:"confidence"`
	TargetTable       string             `json:"target_table"`
	ColumnMapping     map[string]string  `json:"column_mapping,omitempty"` // target -> source
	Schema            []ColumnDef        `json:"db_schema,omitempty"`
	Conflicts         []SchemaConflict   `json:"conflicts,omitempty"`
	DataQualityIssues []DataQualityIssue `json:"data_quality_issues,omitempty"`
	Reasoning         string             `json:"reasoning,omitempty"`
	IterationsUsed    int                `json:"iterations_used"`
	NeedsConfirmation bool               `json:"needs_confirmation"`
	Question          string             `json:"question,omitempty"` // set when the agent asks the user
}

// ShouldAutoExecute reports whether the recommendation may be executed
// without user confirmation under the given mode and threshold.
func (r *Recommendation) ShouldAutoExecute(mode AnalysisMode, threshold float64) bool {
	if r.NeedsConfirmation || r.Question != "" {
		return false
	}
	switch mode {
	case ModeAutoAlways:
		return true
	case ModeAutoHigh:
		return r.Confidence >= threshold
	default:
		return false
	}
}
