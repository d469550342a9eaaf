package application

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"nobconsult/internal/domain"
	"nobconsult/internal/events"
	"nobconsult/internal/metrics"
	"nobconsult/internal/modules/access"
	"nobconsult/internal/repository"
	"nobconsult/internal/storage"
)

// Upload stores a file for one checklist row and marks the row pending.
// The blob is written first; the row only ever points at a stored blob. When
// the row update fails after the blob was written, a *PartialUploadError
// carries the blob reference for AttachUpload.
func (s *Service) Upload(ctx context.Context, actor domain.Actor, id int64, docID string, in UploadInput) (*domain.Application, error) {
	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		return nil, translateStoreError(err)
	}
	if err := checkUpload(actor, app, docID, in.FileName, in.Size); err != nil {
		metrics.DocumentUploads.WithLabelValues("rejected").Inc()
		return nil, err
	}
	row, _ := app.Document(docID)

	blob, err := s.blobs.Put(ctx, storage.PutInput{
		OwnerID: actor.UserID,
		Dir:     "applications/" + app.ApplicationNumber + "/" + docID,
		Name:    in.FileName,
		Body:    in.Body,
	})
	if err != nil {
		metrics.DocumentUploads.WithLabelValues("rejected").Inc()
		return nil, translateBlobError(err)
	}
	if row.MaxSizeBytes > 0 && blob.Size > row.MaxSizeBytes {
		s.discardBlob(blob.ID)
		metrics.DocumentUploads.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, blob.Size, row.MaxSizeBytes)
	}

	updated, err := s.attach(ctx, actor, id, docID, blob)
	if err != nil {
		if isRecordFailure(err) {
			metrics.DocumentUploads.WithLabelValues("partial").Inc()
			s.log.Error("document stored but not recorded",
				zap.Int64("application_id", id),
				zap.String("doc_id", docID),
				zap.String("blob_ref", blob.ID),
				zap.Error(err))
			return nil, &PartialUploadError{BlobRef: blob.ID, DocID: docID, Err: err}
		}
		s.discardBlob(blob.ID)
		metrics.DocumentUploads.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.DocumentUploads.WithLabelValues("stored").Inc()
	return updated.ViewFor(actor.Role), nil
}

// AttachUpload retries the record step of an upload with a blob that was
// already stored. Attaching the blob the row already points at is a no-op.
func (s *Service) AttachUpload(ctx context.Context, actor domain.Actor, id int64, docID, blobRef string) (*domain.Application, error) {
	blob, err := s.blobs.Stat(ctx, blobRef)
	if errors.Is(err, storage.ErrBlobNotFound) {
		return nil, fmt.Errorf("%w: upload %s not found", ErrValidation, blobRef)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if blob.OwnerID != actor.UserID {
		return nil, fmt.Errorf("%w: upload belongs to another user", access.ErrForbidden)
	}

	updated, err := s.attach(ctx, actor, id, docID, blob)
	if err != nil {
		return nil, err
	}
	metrics.DocumentUploads.WithLabelValues("attached").Inc()
	return updated.ViewFor(actor.Role), nil
}

func (s *Service) attach(ctx context.Context, actor domain.Actor, id int64, docID string, blob *storage.Blob) (*domain.Application, error) {
	var current *domain.Application
	updated, err := s.mutate(ctx, actor, id, func(app *domain.Application) (repository.Mutation, events.Type, error) {
		if row, ok := app.Document(docID); ok && row.BlobRef == blob.ID && row.Status == domain.DocumentPending {
			current = app
			return repository.Mutation{}, "", errAlreadyAttached
		}
		if err := checkUpload(actor, app, docID, blob.OriginalName, blob.Size); err != nil {
			return repository.Mutation{}, "", err
		}
		row, _ := app.Document(docID)
		now := time.Now().UTC()
		return repository.Mutation{
			Documents: []repository.DocumentPatch{{
				DocID: docID,
				Fields: map[string]any{
					"status":      string(domain.DocumentPending),
					"file_url":    blob.FileURL,
					"file_name":   blob.OriginalName,
					"blob_ref":    blob.ID,
					"uploaded_at": now,
					"comment":     "",
					"reviewed_by": nil,
					"reviewed_at": nil,
				},
			}},
			History: []domain.HistoryEntry{entry(actor, app.Status, "document updated: "+row.Name)},
		}, events.DocumentUploaded, nil
	})
	if errors.Is(err, errAlreadyAttached) {
		return current, nil
	}
	return updated, err
}

var errAlreadyAttached = errors.New("blob already attached")

// checkUpload holds every precondition of a customer upload. It runs once
// before the blob is written and again under the lock before the row update.
func checkUpload(actor domain.Actor, app *domain.Application, docID, fileName string, size int64) error {
	if err := access.Authorize(actor, access.ActionUploadDocument, access.ResourceOf(app)); err != nil {
		return err
	}
	if err := writable(app); err != nil {
		return err
	}
	if app.Status.IsTerminal() {
		return fmt.Errorf("%w: status is %s", ErrTerminalState, app.Status)
	}
	row, ok := app.Document(docID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, docID)
	}
	if !row.Status.CanUpload() {
		return fmt.Errorf("%w: %s is %s", ErrDocumentLocked, docID, row.Status)
	}
	if !extensionAllowed(row.AllowedExtensions, fileName) {
		return fmt.Errorf("%w: %s accepts %s", ErrFileNotAllowed, row.Name, strings.Join(row.AllowedExtensions, ", "))
	}
	if row.MaxSizeBytes > 0 && size > row.MaxSizeBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, size, row.MaxSizeBytes)
	}
	return nil
}

// extensionAllowed accepts entries written with or without the leading dot.
// An empty list allows any file.
func extensionAllowed(allowed []string, fileName string) bool {
	if len(allowed) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.TrimPrefix(strings.ToLower(strings.TrimSpace(a)), ".") == ext {
			return true
		}
	}
	return false
}

// isRecordFailure separates infrastructure failures, which leave a usable
// blob behind, from business rule rejections.
func isRecordFailure(err error) bool {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, access.ErrForbidden),
		errors.Is(err, ErrTerminalState), errors.Is(err, ErrArchived), errors.Is(err, ErrNotFound):
		return false
	}
	return true
}

func (s *Service) discardBlob(ref string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.blobs.Delete(ctx, ref); err != nil {
		s.log.Warn("discard unused blob", zap.String("blob_ref", ref), zap.Error(err))
	}
}

func translateBlobError(err error) error {
	switch {
	case errors.Is(err, storage.ErrEmptyFile):
		return fmt.Errorf("%w: file is empty", ErrValidation)
	case errors.Is(err, storage.ErrInvalidMimeType):
		return fmt.Errorf("%w: %v", ErrFileNotAllowed, err)
	case errors.Is(err, storage.ErrFileTooLarge):
		return fmt.Errorf("%w: %v", ErrFileTooLarge, err)
	}
	return fmt.Errorf("%w: blob store: %v", ErrStoreUnavailable, err)
}

// Decide records a reviewer's verdict on one pending checklist row. Sibling
// rows are not written.
func (s *Service) Decide(ctx context.Context, actor domain.Actor, id int64, docID string, req DecideDocumentRequest) (*domain.Application, error) {
	if req.Decision != domain.DocumentApproved && req.Decision != domain.DocumentRejected {
		return nil, fmt.Errorf("%w: decision must be approved or rejected", ErrValidation)
	}
	comment := strings.TrimSpace(req.Comment)
	if req.Decision == domain.DocumentRejected && comment == "" && s.cfg.RequireRejectionComment {
		return nil, ErrCommentRequired
	}

	updated, err := s.mutate(ctx, actor, id, func(app *domain.Application) (repository.Mutation, events.Type, error) {
		if err := access.Authorize(actor, access.ActionDecideDocument, access.ResourceOf(app)); err != nil {
			return repository.Mutation{}, "", err
		}
		if err := writable(app); err != nil {
			return repository.Mutation{}, "", err
		}
		if app.Status.IsTerminal() {
			return repository.Mutation{}, "", fmt.Errorf("%w: status is %s", ErrTerminalState, app.Status)
		}
		row, ok := app.Document(docID)
		if !ok {
			return repository.Mutation{}, "", fmt.Errorf("%w: %s", ErrUnknownDocument, docID)
		}
		if row.Status != domain.DocumentPending {
			return repository.Mutation{}, "", fmt.Errorf("%w: %s is %s", ErrDocumentNotReviewable, docID, row.Status)
		}

		return repository.Mutation{
			Documents: []repository.DocumentPatch{{
				DocID: docID,
				Fields: map[string]any{
					"status":      string(req.Decision),
					"comment":     comment,
					"reviewed_by": actor.UserID,
					"reviewed_at": time.Now().UTC(),
				},
			}},
			History: []domain.HistoryEntry{entry(actor, app.Status, fmt.Sprintf("document %s: %s", req.Decision, row.Name))},
		}, events.DocumentDecided, nil
	})
	if err != nil {
		return nil, err
	}
	metrics.DocumentDecisions.WithLabelValues(string(req.Decision)).Inc()
	return updated.ViewFor(actor.Role), nil
}
