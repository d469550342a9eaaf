package application

import (
	"io"
	"time"

	"github.com/shopspring/decimal"

	"nobconsult/internal/domain"
)

type CreateApplicationRequest struct {
	ServiceID string `json:"service_id" binding:"required"`
	// CustomerID is required when staff create on behalf of a customer.
	CustomerID int64 `json:"customer_id"`
}

type ChangeStatusRequest struct {
	Status domain.ApplicationStatus `json:"status" binding:"required"`
}

type DecideDocumentRequest struct {
	Decision domain.DocumentStatus `json:"decision" binding:"required,oneof=approved rejected"`
	Comment  string                `json:"comment"`
}

type UpdatePaymentRequest struct {
	Status domain.PaymentStatus `json:"status" binding:"required,oneof=unpaid pending paid"`
}

type UpdateNotesRequest struct {
	InternalNotes string `json:"internal_notes" binding:"max=20000"`
}

type AssignRequest struct {
	StaffID int64 `json:"staff_id" binding:"required"`
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required,max=4000"`
}

type AttachUploadRequest struct {
	BlobRef string `json:"blob_ref" binding:"required"`
}

// UploadInput is one file for a checklist row.
type UploadInput struct {
	FileName string
	Size     int64
	Body     io.Reader
}

// ListFilter narrows List. Scope is only meaningful for staff: "mine" for
// assigned applications, "queue" for the unassigned ones, empty for both.
type ListFilter struct {
	Scope           string                   `form:"scope"`
	Status          domain.ApplicationStatus `form:"status"`
	CustomerID      int64                    `form:"customer_id"`
	IncludeArchived bool                     `form:"include_archived"`
	Limit           int                      `form:"limit"`
	Offset          int                      `form:"offset"`
}

type PaymentView struct {
	domain.Payment
	// AmountDisplay renders the minor-unit total with two decimals.
	AmountDisplay string `json:"amount_display"`
}

type ApplicationResponse struct {
	*domain.Application
	Payment      PaymentView                `json:"payment"`
	Progress     int                        `json:"progress"`
	NextStatuses []domain.ApplicationStatus `json:"next_statuses,omitempty"`
}

func NewApplicationResponse(app *domain.Application, role domain.UserRole) ApplicationResponse {
	resp := ApplicationResponse{
		Application: app,
		Payment: PaymentView{
			Payment:       app.Payment,
			AmountDisplay: FormatAmount(app.Payment.TotalAmount),
		},
		Progress: app.Progress(),
	}
	if role.IsStaff() && app.ArchivedAt == nil {
		resp.NextStatuses = domain.NextStatuses(app.Status)
	}
	return resp
}

func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

type ApplicationSummary struct {
	ID                int64                    `json:"id"`
	ApplicationNumber string                   `json:"application_number"`
	CustomerID        int64                    `json:"customer_id"`
	ServiceID         string                   `json:"service_id"`
	ServiceName       string                   `json:"service_name"`
	AssignedStaffID   *int64                   `json:"assigned_staff_id,omitempty"`
	Status            domain.ApplicationStatus `json:"status"`
	PaymentStatus     domain.PaymentStatus     `json:"payment_status"`
	Progress          int                      `json:"progress"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

func NewApplicationSummary(app *domain.Application) ApplicationSummary {
	return ApplicationSummary{
		ID:                app.ID,
		ApplicationNumber: app.ApplicationNumber,
		CustomerID:        app.CustomerID,
		ServiceID:         app.ServiceID,
		ServiceName:       app.ServiceName,
		AssignedStaffID:   app.AssignedStaffID,
		Status:            app.Status,
		PaymentStatus:     app.Payment.Status,
		Progress:          app.Progress(),
		UpdatedAt:         app.UpdatedAt,
	}
}
