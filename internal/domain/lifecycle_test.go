package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []ApplicationStatus{
	ApplicationPending, ApplicationProcessing, ApplicationDocumentsIncomplete,
	ApplicationPaymentPending, ApplicationApproved, ApplicationRejected, ApplicationCompleted,
}

func TestCanTransition_Table(t *testing.T) {
	allowed := map[ApplicationStatus][]ApplicationStatus{
		ApplicationPending:             {ApplicationProcessing, ApplicationDocumentsIncomplete, ApplicationPaymentPending, ApplicationRejected},
		ApplicationProcessing:          {ApplicationDocumentsIncomplete, ApplicationPaymentPending, ApplicationApproved, ApplicationRejected},
		ApplicationDocumentsIncomplete: {ApplicationProcessing, ApplicationPaymentPending, ApplicationRejected},
		ApplicationPaymentPending:      {ApplicationProcessing, ApplicationDocumentsIncomplete, ApplicationApproved, ApplicationRejected},
		ApplicationApproved:            {ApplicationCompleted, ApplicationProcessing},
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, s := range allStatuses {
		if s.IsTerminal() {
			assert.Empty(t, NextStatuses(s), s)
		}
	}
	assert.True(t, ApplicationRejected.IsTerminal())
	assert.True(t, ApplicationCompleted.IsTerminal())
	assert.False(t, ApplicationApproved.IsTerminal())
}

func TestNextStatuses_ReturnsCopy(t *testing.T) {
	next := NextStatuses(ApplicationApproved)
	next[0] = ApplicationRejected
	assert.Equal(t, ApplicationCompleted, NextStatuses(ApplicationApproved)[0])
}

func TestProgress(t *testing.T) {
	rows := func(statuses ...DocumentStatus) []DocumentRow {
		out := make([]DocumentRow, len(statuses))
		for i, s := range statuses {
			out[i] = DocumentRow{ID: string(rune('a' + i)), Status: s}
		}
		return out
	}

	assert.Equal(t, 0, Progress(ApplicationPending, nil))
	assert.Equal(t, 100, Progress(ApplicationApproved, nil))
	assert.Equal(t, 100, Progress(ApplicationCompleted, rows(DocumentPending)))
	assert.Equal(t, 50, Progress(ApplicationProcessing, rows(DocumentApproved, DocumentRejected)))
	assert.Equal(t, 33, Progress(ApplicationProcessing, rows(DocumentApproved, DocumentPending, DocumentNotUploaded)))
	assert.Equal(t, 67, Progress(ApplicationProcessing, rows(DocumentApproved, DocumentApproved, DocumentNotUploaded)))
	assert.Equal(t, 100, Progress(ApplicationPaymentPending, rows(DocumentApproved)))
}

func TestDocumentStatus_CanUpload(t *testing.T) {
	assert.True(t, DocumentNotUploaded.CanUpload())
	assert.True(t, DocumentRejected.CanUpload())
	assert.True(t, DocumentPending.CanUpload())
	assert.False(t, DocumentApproved.CanUpload())
}

func TestFormatApplicationNumber(t *testing.T) {
	assert.Equal(t, "NOB-2026-0007", FormatApplicationNumber(2026, 7))
	assert.Equal(t, "NOB-2026-12345", FormatApplicationNumber(2026, 12345))
}

func TestViewFor_StripsNotesForCustomers(t *testing.T) {
	app := &Application{InternalNotes: "vip", RequiredDocuments: []DocumentRow{{ID: "passport"}}}

	cv := app.ViewFor(RoleCustomer)
	assert.Empty(t, cv.InternalNotes)
	cv.RequiredDocuments[0].Status = DocumentApproved
	assert.Empty(t, app.RequiredDocuments[0].Status, "views must not alias the source")

	assert.Equal(t, "vip", app.ViewFor(RoleStaff).InternalNotes)
	assert.Equal(t, "vip", app.ViewFor(RoleAdmin).InternalNotes)
}

func TestAllDocumentsApproved(t *testing.T) {
	app := &Application{}
	assert.True(t, app.AllDocumentsApproved())
	app.RequiredDocuments = []DocumentRow{{Status: DocumentApproved}, {Status: DocumentPending}}
	assert.False(t, app.AllDocumentsApproved())
}
