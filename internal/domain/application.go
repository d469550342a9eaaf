package domain

import (
	"fmt"
	"time"
)

type ApplicationStatus string

const (
	ApplicationPending             ApplicationStatus = "pending"
	ApplicationProcessing          ApplicationStatus = "processing"
	ApplicationDocumentsIncomplete ApplicationStatus = "documents_incomplete"
	ApplicationPaymentPending      ApplicationStatus = "payment_pending"
	ApplicationApproved            ApplicationStatus = "approved"
	ApplicationRejected            ApplicationStatus = "rejected"
	ApplicationCompleted           ApplicationStatus = "completed"
)

type DocumentStatus string

const (
	DocumentNotUploaded DocumentStatus = "not_uploaded"
	DocumentPending     DocumentStatus = "pending"
	DocumentApproved    DocumentStatus = "approved"
	DocumentRejected    DocumentStatus = "rejected"
)

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentUnpaid, PaymentPending, PaymentPaid:
		return true
	}
	return false
}

// DocumentRow is one checklist entry. Name, description and upload limits are
// copied from the DocumentType when the application is created.
type DocumentRow struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description,omitempty"`
	AllowedExtensions []string       `json:"allowed_extensions,omitempty"`
	MaxSizeBytes      int64          `json:"max_size_bytes,omitempty"`
	Status            DocumentStatus `json:"status"`
	FileURL           *string        `json:"file_url"`
	FileName          *string        `json:"file_name,omitempty"`
	BlobRef           string         `json:"-"`
	UploadedAt        *time.Time     `json:"uploaded_at,omitempty"`
	Comment           string         `json:"comment,omitempty"`
	ReviewedBy        *int64         `json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time     `json:"reviewed_at,omitempty"`
}

// HistoryEntry is one row of the append-only audit log.
type HistoryEntry struct {
	Seq      int               `json:"seq"`
	Status   ApplicationStatus `json:"status"`
	Label    string            `json:"label"`
	Date     time.Time         `json:"date"`
	By       string            `json:"by"`
	ByUserID int64             `json:"by_user_id"`
}

type Payment struct {
	Status      PaymentStatus `json:"status"`
	TotalAmount int64         `json:"total_amount"`
}

type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	SenderRole UserRole  `json:"sender_role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`
}

type Application struct {
	ID                int64             `json:"id"`
	ApplicationNumber string            `json:"application_number"`
	CustomerID        int64             `json:"customer_id"`
	ServiceID         string            `json:"service_id"`
	ServiceName       string            `json:"service_name"`
	AssignedStaffID   *int64            `json:"assigned_staff_id,omitempty"`
	RequiredDocuments []DocumentRow     `json:"required_documents"`
	Status            ApplicationStatus `json:"status"`
	Payment           Payment           `json:"payment"`
	StatusHistory     []HistoryEntry    `json:"status_history"`
	Messages          []Message         `json:"messages"`
	InternalNotes     string            `json:"internal_notes,omitempty"`
	Revision          int64             `json:"revision"`
	ArchivedAt        *time.Time        `json:"archived_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`

	// Stale is set when the record was served from the snapshot cache
	// because the store could not be reached.
	Stale bool `json:"stale,omitempty"`
}

// Document returns the checklist row with the given id.
func (a *Application) Document(docID string) (*DocumentRow, bool) {
	for i := range a.RequiredDocuments {
		if a.RequiredDocuments[i].ID == docID {
			return &a.RequiredDocuments[i], true
		}
	}
	return nil, false
}

// AllDocumentsApproved is true only when every checklist row is approved.
func (a *Application) AllDocumentsApproved() bool {
	for _, d := range a.RequiredDocuments {
		if d.Status != DocumentApproved {
			return false
		}
	}
	return true
}

// LastHistory returns the newest audit entry, if any.
func (a *Application) LastHistory() (HistoryEntry, bool) {
	if len(a.StatusHistory) == 0 {
		return HistoryEntry{}, false
	}
	return a.StatusHistory[len(a.StatusHistory)-1], true
}

func (a *Application) Progress() int {
	return Progress(a.Status, a.RequiredDocuments)
}

// ViewFor returns a copy of the application suitable for the given role.
// Customers never see internal notes.
func (a *Application) ViewFor(role UserRole) *Application {
	cp := *a
	cp.RequiredDocuments = append([]DocumentRow(nil), a.RequiredDocuments...)
	cp.StatusHistory = append([]HistoryEntry(nil), a.StatusHistory...)
	cp.Messages = append([]Message(nil), a.Messages...)
	if !role.IsStaff() {
		cp.InternalNotes = ""
	}
	return &cp
}

// FormatApplicationNumber renders NOB-<year>-<seq> with the sequence
// zero-padded to four digits.
func FormatApplicationNumber(year, seq int) string {
	return fmt.Sprintf("NOB-%d-%04d", year, seq)
}
