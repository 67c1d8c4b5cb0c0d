package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	queryapp "github.com/mapflow/backend/internal/application/query"
	"github.com/mapflow/backend/internal/domain/shared"
	"github.com/mapflow/backend/internal/infrastructure/tabular"
	"github.com/mapflow/backend/internal/interfaces/http/dto"
	"github.com/mapflow/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 accepted response for queued work
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response with an explicit status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleError converts application-layer errors to HTTP responses: domain
// errors map by code, SQL validation failures are 422, parse failures 400.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.Error(c, dto.GetHTTPStatus(domainErr.Code), domainErr.Code, domainErr.Message)
		return
	}

	var validationErr *queryapp.ValidationError
	if errors.As(err, &validationErr) {
		h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeValidation, validationErr.Message)
		return
	}

	if isParseError(err) {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeParse, err.Error())
		return
	}

	h.InternalError(c, "An unexpected error occurred")
}

func isParseError(err error) bool {
	for _, sentinel := range []error{
		tabular.ErrEmptyFile,
		tabular.ErrInvalidEncoding,
		tabular.ErrMissingHeader,
		tabular.ErrNoDataRows,
		tabular.ErrUnsupportedKind,
		tabular.ErrMalformed,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
