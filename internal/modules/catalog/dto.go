package catalog

import "nobconsult/internal/domain"

type DocumentTypeRequest struct {
	ID                string   `json:"id"`
	Name              string   `json:"name" binding:"required"`
	Description       string   `json:"description"`
	AllowedExtensions []string `json:"allowed_extensions"`
	MaxSizeBytes      int64    `json:"max_size_bytes"`
	DefaultRequired   bool     `json:"default_required"`
}

func (r DocumentTypeRequest) toDomain() *domain.DocumentType {
	return &domain.DocumentType{
		ID:                r.ID,
		Name:              r.Name,
		Description:       r.Description,
		AllowedExtensions: normalizeExtensions(r.AllowedExtensions),
		MaxSizeBytes:      r.MaxSizeBytes,
		DefaultRequired:   r.DefaultRequired,
	}
}

type ServiceRequest struct {
	ID                string                 `json:"id"`
	Name              domain.LocalizedText   `json:"name" binding:"required"`
	Description       domain.LocalizedText   `json:"description"`
	Category          domain.ServiceCategory `json:"category" binding:"required"`
	BaseFee           int64                  `json:"base_fee"`
	ProcessingTime    string                 `json:"processing_time"`
	Active            bool                   `json:"active"`
	DisplayOrder      int                    `json:"display_order"`
	RequiredDocuments []string               `json:"required_documents"`
	ProcessSteps      []string               `json:"process_steps"`
}

func (r ServiceRequest) toDomain() *domain.Service {
	return &domain.Service{
		ID:                r.ID,
		Name:              r.Name,
		Description:       r.Description,
		Category:          r.Category,
		BaseFee:           r.BaseFee,
		ProcessingTime:    r.ProcessingTime,
		Active:            r.Active,
		DisplayOrder:      r.DisplayOrder,
		RequiredDocuments: r.RequiredDocuments,
		ProcessSteps:      r.ProcessSteps,
	}
}

// ServiceDetail is a service with its checklist expanded for display.
type ServiceDetail struct {
	domain.Service
	Documents []domain.DocumentType `json:"documents"`
}
