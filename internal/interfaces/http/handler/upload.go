package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	ingestapp "github.com/mapflow/backend/internal/application/ingest"
	"github.com/mapflow/backend/internal/interfaces/http/dto"
)

// UploadHandler brokers client-side multipart uploads: sessions, presigned
// part URLs, completion and abort.
type UploadHandler struct {
	BaseHandler
	uploads *ingestapp.UploadService
	logger  *zap.Logger
}

// NewUploadHandler creates an upload handler
func NewUploadHandler(uploads *ingestapp.UploadService, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{uploads: uploads, logger: logger}
}

// RegisterRoutes registers upload routes
func (h *UploadHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/start-multipart-upload", h.Start)
	rg.POST("/complete-multipart-upload", h.Complete)
	rg.POST("/abort-multipart-upload", h.Abort)
}

// Start opens an upload session and returns presigned part URLs.
func (h *UploadHandler) Start(c *gin.Context) {
	var req dto.StartUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	result, err := h.uploads.Start(c.Request.Context(), req.FileName, contentType, req.Size)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Complete records part ETags and finalizes the object.
func (h *UploadHandler) Complete(c *gin.Context) {
	var req dto.CompleteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	session, err := h.uploads.Complete(c.Request.Context(), req.UploadID, req.Parts)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{
		"upload_id":   session.UploadID,
		"storage_key": session.StorageKey,
		"status":      string(session.Status),
	})
}

// Abort cancels an upload session.
func (h *UploadHandler) Abort(c *gin.Context) {
	var req dto.AbortUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if err := h.uploads.Abort(c.Request.Context(), req.UploadID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"upload_id": req.UploadID, "status": "aborted"})
}
