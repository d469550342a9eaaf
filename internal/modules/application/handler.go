package application

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"nobconsult/internal/domain"
	"nobconsult/internal/middleware"
	"nobconsult/internal/modules/access"
	"nobconsult/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes expects rg to be behind middleware.JWTAuth.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	apps := rg.Group("/applications")
	{
		apps.GET("", h.List)
		apps.POST("", h.Create)
		apps.GET("/:id", h.Get)
		apps.GET("/:id/history", h.Timeline)
		apps.PATCH("/:id/status", h.ChangeStatus)
		apps.PATCH("/:id/payment", h.UpdatePayment)
		apps.PUT("/:id/notes", h.UpdateNotes)
		apps.POST("/:id/assign", middleware.AdminOnly(), h.Assign)
		apps.POST("/:id/claim", middleware.StaffOnly(), h.Claim)
		apps.POST("/:id/archive", middleware.AdminOnly(), h.Archive)
		apps.POST("/:id/documents/:docId/upload", h.Upload)
		apps.POST("/:id/documents/:docId/attach", h.AttachUpload)
		apps.POST("/:id/documents/:docId/decision", h.Decide)
		apps.POST("/:id/messages", h.SendMessage)
		apps.POST("/:id/messages/read", h.MarkRead)
	}
}

func (h *Handler) List(c *gin.Context) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	var f ListFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid query parameters")
		return
	}
	apps, err := h.service.List(c.Request.Context(), actor, f)
	if err != nil {
		writeError(c, actor, err)
		return
	}
	items := make([]ApplicationSummary, 0, len(apps))
	for i := range apps {
		items = append(items, NewApplicationSummary(&apps[i]))
	}
	response.Success(c, http.StatusOK, gin.H{"applications": items})
}

func (h *Handler) Create(c *gin.Context) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	var req CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	app, err := h.service.CreateApplication(c.Request.Context(), actor, req)
	if err != nil {
		writeError(c, actor, err)
		return
	}
	response.Success(c, http.StatusCreated, NewApplicationResponse(app, actor.Role))
}

func (h *Handler) Get(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	app, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, actor, err)
		return
	}
	if app.Stale {
		c.Header("Warning", `110 - "Response is Stale"`)
	}
	response.Success(c, http.StatusOK, NewApplicationResponse(app, actor.Role))
}

func (h *Handler) Timeline(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	history, stale, err := h.service.Timeline(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, actor, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"history": history, "stale": stale})
}

func (h *Handler) ChangeStatus(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	var req ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	h.respond(c, actor)(h.service.ChangeStatus(c.Request.Context(), actor, id, req.Status))
}

func (h *Handler) UpdatePayment(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	var req UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	h.respond(c, actor)(h.service.UpdatePayment(c.Request.Context(), actor, id, req.Status))
}

func (h *Handler) UpdateNotes(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	var req UpdateNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	h.respond(c, actor)(h.service.UpdateNotes(c.Request.Context(), actor, id, req.InternalNotes))
}

func (h *Handler) Assign(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	h.respond(c, actor)(h.service.Assign(c.Request.Context(), actor, id, req.StaffID))
}

func (h *Handler) Claim(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	h.respond(c, actor)(h.service.Claim(c.Request.Context(), actor, id))
}

func (h *Handler) Archive(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	h.respond(c, actor)(h.service.Archive(c.Request.Context(), actor, id))
}

func (h *Handler) Upload(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "No file provided")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Could not read file")
		return
	}
	defer file.Close()

	h.respond(c, actor)(h.service.Upload(c.Request.Context(), actor, id, c.Param("docId"), UploadInput{
		FileName: fileHeader.Filename,
		Size:     fileHeader.Size,
		Body:     file,
	}))
}

func (h *Handler) AttachUpload(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	var req AttachUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	h.respond(c, actor)(h.service.AttachUpload(c.Request.Context(), actor, id, c.Param("docId"), req.BlobRef))
}

func (h *Handler) Decide(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	var req DecideDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Decision must be approved or rejected")
		return
	}
	h.respond(c, actor)(h.service.Decide(c.Request.Context(), actor, id, c.Param("docId"), req))
}

func (h *Handler) SendMessage(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	h.respond(c, actor)(h.service.SendMessage(c.Request.Context(), actor, id, req.Content))
}

func (h *Handler) MarkRead(c *gin.Context) {
	actor, id, ok := actorAndID(c)
	if !ok {
		return
	}
	h.respond(c, actor)(h.service.MarkRead(c.Request.Context(), actor, id))
}

func (h *Handler) respond(c *gin.Context, actor domain.Actor) func(*domain.Application, error) {
	return func(app *domain.Application, err error) {
		if err != nil {
			writeError(c, actor, err)
			return
		}
		response.Success(c, http.StatusOK, NewApplicationResponse(app.ViewFor(actor.Role), actor.Role))
	}
}

func actorAndID(c *gin.Context) (domain.Actor, int64, bool) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return actor, 0, false
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid application ID")
		return actor, 0, false
	}
	return actor, id, true
}

// writeError maps workflow errors onto the response envelope. Customers get
// a short message; staff and admins also get the underlying error text.
func writeError(c *gin.Context, actor domain.Actor, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	var partial *PartialUploadError
	if errors.As(err, &partial) {
		details := gin.H{"blob_ref": partial.BlobRef, "doc_id": partial.DocID}
		if actor.Role.IsStaff() {
			details["error"] = err.Error()
		}
		response.ErrorWithDetails(c, status, code, message, details)
		return
	}

	if actor.Role.IsStaff() {
		response.ErrorWithDetails(c, status, code, message, err.Error())
		return
	}
	response.Error(c, status, code, message)
}

func classify(err error) (int, string, string) {
	var partial *PartialUploadError
	switch {
	case errors.As(err, &partial):
		return http.StatusServiceUnavailable, "PARTIAL_UPLOAD", "Your file was saved but could not be attached yet. Please retry."
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "You are not allowed to do this."
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Application not found."
	case errors.Is(err, ErrInvalidService):
		return http.StatusBadRequest, "INVALID_SERVICE", "This service is not available right now."
	case errors.Is(err, ErrDocumentsIncomplete):
		return http.StatusBadRequest, "DOCUMENTS_INCOMPLETE", "Some documents are still awaiting approval."
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusBadRequest, "INVALID_TRANSITION", "This status change is not allowed."
	case errors.Is(err, ErrUnknownDocument):
		return http.StatusBadRequest, "UNKNOWN_DOCUMENT", "This document is not part of the application."
	case errors.Is(err, ErrFileNotAllowed):
		return http.StatusBadRequest, "FILE_NOT_ALLOWED", "This file type is not accepted for this document."
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "The file is too large."
	case errors.Is(err, ErrCommentRequired):
		return http.StatusBadRequest, "COMMENT_REQUIRED", "Please explain why the document is rejected."
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR", "Please check your input and try again."
	case errors.Is(err, ErrTerminalState):
		return http.StatusConflict, "APPLICATION_CLOSED", "This application is closed."
	case errors.Is(err, ErrArchived):
		return http.StatusConflict, "APPLICATION_ARCHIVED", "This application is archived."
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "CONFLICT", "The application was just updated. Please try again."
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "The service is temporarily unavailable. Please try again shortly."
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong."
}
