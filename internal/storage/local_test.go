package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nobconsult/internal/database"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\ntrailer\n%%EOF\n")

func newTestStore(t *testing.T) (*LocalStore, Repository) {
	t.Helper()
	db, err := database.OpenInMemory("storage_"+strings.ReplaceAll(t.Name(), "/", "_"), Models()...)
	require.NoError(t, err)
	repo := NewRepository(db)
	return NewLocalStore(repo, t.TempDir(), "/static/uploads"), repo
}

type failingRepo struct {
	Repository
}

func (failingRepo) Create(context.Context, *Blob) error { return errors.New("insert failed") }

func TestLocalStore_PutAndStat(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	b, err := s.Put(ctx, PutInput{
		OwnerID: 7,
		Dir:     "applications/NOB-2026-0001/passport",
		Name:    "My Passport.PDF",
		Body:    bytes.NewReader(pdfBytes),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(7), b.OwnerID)
	assert.Equal(t, "application/pdf", b.MimeType)
	assert.Equal(t, int64(len(pdfBytes)), b.Size)
	assert.Equal(t, "My Passport.PDF", b.OriginalName)
	assert.True(t, strings.HasPrefix(b.FileURL, "/static/uploads/applications/NOB-2026-0001/passport/"+b.ID+"_My_Passport"))
	assert.True(t, strings.HasSuffix(b.FilePath, ".pdf"))

	got, err := s.Stat(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.FileURL, got.FileURL)

	data, err := os.ReadFile(filepath.Join(s.BaseDir(), filepath.FromSlash(b.FilePath)))
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, data)
}

func TestLocalStore_PutRejectsBadInput(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Put(ctx, PutInput{Dir: "x", Name: "empty.pdf", Body: bytes.NewReader(nil)})
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = s.Put(ctx, PutInput{Dir: "x", Name: "notes.txt", Body: strings.NewReader("plain text body")})
	assert.ErrorIs(t, err, ErrInvalidMimeType)

	s.maxSize = 16
	_, err = s.Put(ctx, PutInput{Dir: "x", Name: "big.pdf", Body: bytes.NewReader(pdfBytes)})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	entries, err := os.ReadDir(filepath.Join(s.BaseDir(), "x"))
	require.NoError(t, err)
	assert.Empty(t, entries, "oversized file must be removed")
}

func TestLocalStore_PutRemovesFileWhenRecordFails(t *testing.T) {
	s, repo := newTestStore(t)
	s.repo = failingRepo{Repository: repo}

	_, err := s.Put(context.Background(), PutInput{Dir: "a/b", Name: "p.pdf", Body: bytes.NewReader(pdfBytes)})
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(s.BaseDir(), "a", "b"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStore_DirCannotEscapeRoot(t *testing.T) {
	s, _ := newTestStore(t)

	b, err := s.Put(context.Background(), PutInput{Dir: "../../etc", Name: "../passwd.pdf", Body: bytes.NewReader(pdfBytes)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(b.FilePath, "etc/"))
	assert.NotContains(t, b.FilePath, "..")
}

func TestLocalStore_StatMissingFile(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	b, err := s.Put(ctx, PutInput{Dir: "d", Name: "p.pdf", Body: bytes.NewReader(pdfBytes)})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(s.BaseDir(), filepath.FromSlash(b.FilePath))))

	_, err = s.Stat(ctx, b.ID)
	assert.ErrorIs(t, err, ErrBlobNotFound)

	_, err = s.Stat(ctx, "missing")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestLocalStore_DeleteAndListOlderThan(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	old, err := s.Put(ctx, PutInput{Dir: "d", Name: "old.pdf", Body: bytes.NewReader(pdfBytes)})
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(48 * time.Hour) }
	_, err = s.Put(ctx, PutInput{Dir: "d", Name: "new.pdf", Body: bytes.NewReader(pdfBytes)})
	require.NoError(t, err)

	list, err := s.ListOlderThan(ctx, base.Add(time.Hour), 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, old.ID, list[0].ID)

	require.NoError(t, s.Delete(ctx, old.ID))
	_, err = s.Stat(ctx, old.ID)
	assert.ErrorIs(t, err, ErrBlobNotFound)
}
