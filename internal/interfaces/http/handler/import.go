package handler

import (
	"encoding/json"
	"io"
	"mime/multipart"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	ingestapp "github.com/mapflow/backend/internal/application/ingest"
	"github.com/mapflow/backend/internal/domain/ingest"
	"github.com/mapflow/backend/internal/interfaces/http/dto"
)

// ImportHandler serves the import endpoints: synchronous uploads,
// object-store imports, the async queue, and recommendation execution.
type ImportHandler struct {
	BaseHandler
	imports *ingestapp.ImportService
	tasks   *ingestapp.TaskService
	logger  *zap.Logger
}

// NewImportHandler creates an import handler
func NewImportHandler(imports *ingestapp.ImportService, tasks *ingestapp.TaskService,
	logger *zap.Logger) *ImportHandler {
	return &ImportHandler{imports: imports, tasks: tasks, logger: logger}
}

// RegisterRoutes registers import routes
func (h *ImportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/map-data", h.MapData)
	rg.POST("/map-b2-data", h.MapStorage)
	rg.POST("/map-b2-data-async", h.MapStorageAsync)
	rg.POST("/execute-recommended-import", h.ExecuteRecommendation)
	rg.GET("/tasks/:id", h.GetTask)
	rg.POST("/tasks/:id/cancel", h.CancelTask)
}

// readUpload reads the "file" part of a multipart request.
func readUpload(c *gin.Context) ([]byte, string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, "", err
	}
	data, err := readAll(fh)
	if err != nil {
		return nil, "", err
	}
	return data, fh.Filename, nil
}

func readAll(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// MapData imports an uploaded file synchronously. The mapping configuration
// travels as a JSON form field next to the file part.
func (h *ImportHandler) MapData(c *gin.Context) {
	data, fileName, err := readUpload(c)
	if err != nil {
		h.BadRequest(c, "multipart part \"file\" is required")
		return
	}

	var cfg ingest.MappingConfig
	if err := json.Unmarshal([]byte(c.PostForm("mapping")), &cfg); err != nil {
		h.BadRequest(c, "form field \"mapping\" must be valid mapping JSON")
		return
	}

	result, err := h.imports.ImportFile(c.Request.Context(), data, fileName, &cfg)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// MapStorage imports a previously uploaded object synchronously.
func (h *ImportHandler) MapStorage(c *gin.Context) {
	var req dto.MapStorageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.imports.ImportFromStorage(c.Request.Context(), req.StorageKey, req.FileName, &req.Mapping)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// MapStorageAsync queues an import job and returns its task ID.
func (h *ImportHandler) MapStorageAsync(c *gin.Context) {
	var req dto.MapStorageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = req.StorageKey
	}
	job, err := h.tasks.Submit(c.Request.Context(), ingestapp.AsyncImportRequest{
		StorageKey: req.StorageKey,
		FileName:   fileName,
		Config:     &req.Mapping,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, dto.AsyncImportResponse{TaskID: job.ID.String(), Status: string(job.Status)})
}

// ExecuteRecommendation runs an analyzer recommendation against the
// uploaded file. The recommendation travels as the "request" JSON form
// field.
func (h *ImportHandler) ExecuteRecommendation(c *gin.Context) {
	data, fileName, err := readUpload(c)
	if err != nil {
		h.BadRequest(c, "multipart part \"file\" is required")
		return
	}

	var req dto.ExecuteRecommendationRequest
	if err := json.Unmarshal([]byte(c.PostForm("request")), &req); err != nil {
		h.BadRequest(c, "form field \"request\" must be valid JSON")
		return
	}

	result, err := h.imports.ExecuteRecommendation(c.Request.Context(), data, fileName,
		&req.Recommendation, req.DuplicateCheck)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// GetTask returns the status of an async import job.
func (h *ImportHandler) GetTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid task ID")
		return
	}
	job, err := h.tasks.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.TaskResponseFromJob(job))
}

// CancelTask flags a running job for cancellation.
func (h *ImportHandler) CancelTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid task ID")
		return
	}
	job, err := h.tasks.Cancel(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.TaskResponseFromJob(job))
}
