package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	ingestapp "github.com/mapflow/backend/internal/application/ingest"
	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/infrastructure/tabular"
)

// AnalyzeResponse is an analysis outcome: the recommendation, and the
// import result when the mode allowed immediate execution.
type AnalyzeResponse struct {
	Recommendation *ingest.Recommendation   `json:"recommendation"`
	AutoExecuted   bool                     `json:"auto_executed"`
	ImportResult   *ingestapp.ExecuteResult `json:"import_result,omitempty"`
}

// AnalyzeHandler serves LLM-driven file analysis, one-shot and interactive.
type AnalyzeHandler struct {
	BaseHandler
	analyzer *ingestapp.Analyzer
	imports  *ingestapp.ImportService
	logger   *zap.Logger
}

// NewAnalyzeHandler creates an analyze handler
func NewAnalyzeHandler(analyzer *ingestapp.Analyzer, imports *ingestapp.ImportService,
	logger *zap.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{analyzer: analyzer, imports: imports, logger: logger}
}

// RegisterRoutes registers analysis routes
func (h *AnalyzeHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyze-file", h.AnalyzeFile)
	rg.POST("/analyze-file-interactive", h.AnalyzeInteractive)
}

// AnalyzeFile analyzes an uploaded file and recommends an import strategy.
// Under auto modes a sufficiently confident recommendation is executed in
// the same request.
func (h *AnalyzeHandler) AnalyzeFile(c *gin.Context) {
	h.analyze(c, false)
}

// AnalyzeInteractive continues a persisted analysis conversation; the
// thread ID and the user's reply travel as form fields next to the file.
func (h *AnalyzeHandler) AnalyzeInteractive(c *gin.Context) {
	h.analyze(c, true)
}

func (h *AnalyzeHandler) analyze(c *gin.Context, interactive bool) {
	data, fileName, err := readUpload(c)
	if err != nil {
		h.BadRequest(c, "multipart part \"file\" is required")
		return
	}
	kind, err := tabular.KindFromName(fileName)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	mode := ingest.AnalysisMode(c.DefaultPostForm("mode", string(ingest.ModeManual)))
	if !mode.IsValid() {
		h.BadRequest(c, "unknown analysis mode")
		return
	}
	policy := ingest.ConflictPolicy(c.DefaultPostForm("conflict_policy", string(ingest.ConflictAskUser)))
	if !policy.IsValid() {
		h.BadRequest(c, "unknown conflict policy")
		return
	}

	params := ingestapp.AnalyzeParams{
		Data:           data,
		Kind:           kind,
		FileName:       fileName,
		Mode:           mode,
		ConflictPolicy: policy,
	}
	if interactive {
		params.ThreadID = c.PostForm("thread_id")
		params.UserMessage = c.PostForm("message")
	}

	rec, err := h.analyzer.Analyze(c.Request.Context(), params)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := AnalyzeResponse{Recommendation: rec}
	if rec.ShouldAutoExecute(mode, ingestapp.DefaultConfidenceThreshold) {
		result, err := h.imports.ExecuteRecommendation(c.Request.Context(), data, fileName,
			rec, ingest.DuplicateCheck{Enabled: true, CheckFileLevel: true})
		if err != nil {
			h.HandleError(c, err)
			return
		}
		resp.AutoExecuted = true
		resp.ImportResult = result
	}
	h.Success(c, resp)
}
