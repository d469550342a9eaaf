package application

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")

	ErrInvalidService        = fmt.Errorf("%w: service is missing or inactive", ErrValidation)
	ErrUnknownDocument       = fmt.Errorf("%w: unknown document", ErrValidation)
	ErrDocumentsIncomplete   = fmt.Errorf("%w: documents incomplete", ErrValidation)
	ErrInvalidTransition     = fmt.Errorf("%w: status transition not allowed", ErrValidation)
	ErrDocumentNotReviewable = fmt.Errorf("%w: document is not awaiting review", ErrValidation)
	ErrDocumentLocked        = fmt.Errorf("%w: document can no longer be replaced", ErrValidation)
	ErrCommentRequired       = fmt.Errorf("%w: rejection comment is required", ErrValidation)
	ErrFileNotAllowed        = fmt.Errorf("%w: file type not allowed for this document", ErrValidation)
	ErrFileTooLarge          = fmt.Errorf("%w: file is too large for this document", ErrValidation)

	ErrTerminalState    = errors.New("application is closed")
	ErrArchived         = errors.New("application is archived")
	ErrNotFound         = errors.New("application not found")
	ErrConflict         = errors.New("application was modified concurrently")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// PartialUploadError means the file was stored but the checklist row could
// not be updated. Retry with AttachUpload and BlobRef instead of uploading
// again.
type PartialUploadError struct {
	BlobRef string
	DocID   string
	Err     error
}

func (e *PartialUploadError) Error() string {
	return fmt.Sprintf("document %s stored as %s but not recorded: %v", e.DocID, e.BlobRef, e.Err)
}

func (e *PartialUploadError) Unwrap() error { return e.Err }
