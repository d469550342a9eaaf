package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxFileSize    = 25 * 1024 * 1024
	UploadsBaseDir = "./uploads"
	StaticURLBase  = "/static/uploads"
)

// AllowedMimeTypes are the sniffed content types accepted for documents.
// Office formats sniff as zip containers.
var AllowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
	"application/zip": true,
}

type PutInput struct {
	OwnerID int64
	// Dir is a slash separated path below the uploads root.
	Dir  string
	Name string
	Body io.Reader
}

// LocalStore writes blobs to disk and records them in the uploads table.
// Put writes the file first and removes it again if the record insert fails.
type LocalStore struct {
	repo       Repository
	baseDir    string
	staticBase string
	maxSize    int64
	now        func() time.Time
}

func NewLocalStore(repo Repository, baseDir, staticBase string) *LocalStore {
	if baseDir == "" {
		baseDir = UploadsBaseDir
	}
	if staticBase == "" {
		staticBase = StaticURLBase
	}
	return &LocalStore{
		repo:       repo,
		baseDir:    baseDir,
		staticBase: strings.TrimSuffix(staticBase, "/"),
		maxSize:    MaxFileSize,
		now:        time.Now,
	}
}

func (s *LocalStore) BaseDir() string { return s.baseDir }

func (s *LocalStore) Put(ctx context.Context, in PutInput) (*Blob, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(in.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if n == 0 {
		return nil, ErrEmptyFile
	}
	head = head[:n]

	mimeType := strings.Split(http.DetectContentType(head), ";")[0]
	if !AllowedMimeTypes[mimeType] {
		return nil, ErrInvalidMimeType
	}

	relDir := cleanDir(in.Dir)
	absDir := filepath.Join(s.baseDir, filepath.FromSlash(relDir))
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	id := uuid.New().String()
	filename := fmt.Sprintf("%s_%s%s", id, sanitizeName(in.Name), strings.ToLower(filepath.Ext(in.Name)))
	absPath := filepath.Join(absDir, filename)

	dst, err := os.Create(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	body := io.MultiReader(bytes.NewReader(head), in.Body)
	written, err := io.Copy(dst, io.LimitReader(body, s.maxSize+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(absPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if written > s.maxSize {
		_ = os.Remove(absPath)
		return nil, ErrFileTooLarge
	}

	relPath := path.Join(relDir, filename)
	blob := &Blob{
		ID:           id,
		OwnerID:      in.OwnerID,
		OriginalName: filepath.Base(in.Name),
		FilePath:     relPath,
		FileURL:      s.staticBase + "/" + relPath,
		MimeType:     mimeType,
		Size:         written,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.repo.Create(ctx, blob); err != nil {
		_ = os.Remove(absPath)
		return nil, fmt.Errorf("failed to save upload record: %w", err)
	}
	return blob, nil
}

// Stat returns the blob only if both its record and its file still exist.
func (s *LocalStore) Stat(ctx context.Context, id string) (*Blob, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.absPath(b)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return b, nil
}

// Delete removes the file and its record. A file that is already gone is not an error.
func (s *LocalStore) Delete(ctx context.Context, id string) error {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := os.Remove(s.absPath(b)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// ListOlderThan pages through blobs created before cutoff, oldest first.
func (s *LocalStore) ListOlderThan(ctx context.Context, cutoff time.Time, offset, limit int) ([]*Blob, error) {
	return s.repo.ListOlderThan(ctx, cutoff, offset, limit)
}

func (s *LocalStore) absPath(b *Blob) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(b.FilePath))
}

// cleanDir keeps the path inside the uploads root.
func cleanDir(dir string) string {
	parts := strings.Split(strings.ReplaceAll(dir, "\\", "/"), "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		out = append(out, sanitizeSegment(p))
	}
	if len(out) == 0 {
		return "misc"
	}
	return path.Join(out...)
}

func sanitizeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, s)
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = sanitizeSegment(name)
	if len(name) > 40 {
		name = name[:40]
	}
	if name == "" || name == "." {
		return "file"
	}
	return name
}
