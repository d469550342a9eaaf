package domain

import "math"

var transitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationPending:             {ApplicationProcessing, ApplicationDocumentsIncomplete, ApplicationPaymentPending, ApplicationRejected},
	ApplicationProcessing:          {ApplicationDocumentsIncomplete, ApplicationPaymentPending, ApplicationApproved, ApplicationRejected},
	ApplicationDocumentsIncomplete: {ApplicationProcessing, ApplicationPaymentPending, ApplicationRejected},
	ApplicationPaymentPending:      {ApplicationProcessing, ApplicationDocumentsIncomplete, ApplicationApproved, ApplicationRejected},
	ApplicationApproved:            {ApplicationCompleted, ApplicationProcessing},
}

func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationPending, ApplicationProcessing, ApplicationDocumentsIncomplete,
		ApplicationPaymentPending, ApplicationApproved, ApplicationRejected, ApplicationCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether documents can no longer change.
func (s ApplicationStatus) IsTerminal() bool {
	return s == ApplicationRejected || s == ApplicationCompleted
}

// RequiresApprovedDocuments is true for statuses that may only be entered
// once the whole checklist is approved.
func (s ApplicationStatus) RequiresApprovedDocuments() bool {
	return s == ApplicationApproved || s == ApplicationCompleted
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to ApplicationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from s, in display order.
func NextStatuses(s ApplicationStatus) []ApplicationStatus {
	return append([]ApplicationStatus(nil), transitions[s]...)
}

// Progress derives the 0-100 display value from status and checklist.
func Progress(status ApplicationStatus, docs []DocumentRow) int {
	if status == ApplicationApproved || status == ApplicationCompleted {
		return 100
	}
	if len(docs) == 0 {
		return 0
	}
	approved := 0
	for _, d := range docs {
		if d.Status == DocumentApproved {
			approved++
		}
	}
	return int(math.Round(float64(approved) * 100 / float64(len(docs))))
}

// CanUpload reports whether a customer may (re)upload a row in this state.
// Pending rows may be replaced until a reviewer decides on them.
func (s DocumentStatus) CanUpload() bool {
	return s == DocumentNotUploaded || s == DocumentRejected || s == DocumentPending
}
