package catalog

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"nobconsult/internal/middleware"
	"nobconsult/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterPublicRoutes exposes the active catalog without authentication.
func (h *Handler) RegisterPublicRoutes(v1 *gin.RouterGroup) {
	v1.GET("/services", h.ListActiveServices)
	v1.GET("/services/:id", h.GetActiveService)
}

// RegisterProtectedRoutes expects protected to be behind middleware.JWTAuth.
func (h *Handler) RegisterProtectedRoutes(protected *gin.RouterGroup) {
	c := protected.Group("/catalog", middleware.StaffOnly())
	{
		c.GET("/services", h.ListAllServices)
		c.GET("/services/:id", h.GetAnyService)
		c.GET("/document-types", h.ListDocumentTypes)

		c.POST("/services", middleware.AdminOnly(), h.CreateService)
		c.PUT("/services/:id", middleware.AdminOnly(), h.UpdateService)
		c.POST("/document-types", middleware.AdminOnly(), h.CreateDocumentType)
		c.PUT("/document-types/:id", middleware.AdminOnly(), h.UpdateDocumentType)
	}
}

func (h *Handler) ListActiveServices(c *gin.Context) {
	h.listServices(c, false)
}

func (h *Handler) ListAllServices(c *gin.Context) {
	h.listServices(c, true)
}

func (h *Handler) listServices(c *gin.Context, includeInactive bool) {
	services, err := h.service.ListServices(c.Request.Context(), includeInactive)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"services": services})
}

func (h *Handler) GetActiveService(c *gin.Context) {
	h.getService(c, false)
}

func (h *Handler) GetAnyService(c *gin.Context) {
	h.getService(c, true)
}

func (h *Handler) getService(c *gin.Context, includeInactive bool) {
	svc, err := h.service.GetService(c.Request.Context(), c.Param("id"), includeInactive)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, svc)
}

func (h *Handler) CreateService(c *gin.Context) {
	var req ServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	svc, err := h.service.CreateService(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, svc)
}

func (h *Handler) UpdateService(c *gin.Context) {
	var req ServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	svc, err := h.service.UpdateService(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, svc)
}

func (h *Handler) ListDocumentTypes(c *gin.Context) {
	types, err := h.service.ListDocumentTypes(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"document_types": types})
}

func (h *Handler) CreateDocumentType(c *gin.Context) {
	var req DocumentTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	dt, err := h.service.CreateDocumentType(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, dt)
}

func (h *Handler) UpdateDocumentType(c *gin.Context) {
	var req DocumentTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	dt, err := h.service.UpdateDocumentType(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, dt)
}

func writeError(c *gin.Context, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid catalog entry", verr.Fields)
	case errors.Is(err, ErrUnknownDocumentType):
		response.ErrorWithDetails(c, http.StatusBadRequest, "UNKNOWN_DOCUMENT_TYPE", "Service references an unknown document type", err.Error())
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Catalog entry not found")
	case errors.Is(err, ErrAlreadyExists):
		response.Error(c, http.StatusConflict, "ALREADY_EXISTS", "Catalog entry already exists")
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong")
	}
}
