package repository

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"nobconsult/internal/database"
	"nobconsult/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenInMemory("repo_"+strings.ReplaceAll(t.Name(), "/", "_"), Models()...)
	require.NoError(t, err)
	return db
}

func newApp(customerID int64, docIDs ...string) *domain.Application {
	rows := make([]domain.DocumentRow, len(docIDs))
	for i, id := range docIDs {
		rows[i] = domain.DocumentRow{ID: id, Name: strings.ToUpper(id), AllowedExtensions: []string{".pdf"}, Status: domain.DocumentNotUploaded}
	}
	return &domain.Application{
		CustomerID:        customerID,
		ServiceID:         "visa-consult",
		ServiceName:       "Visa consultation",
		Status:            domain.ApplicationPending,
		Payment:           domain.Payment{Status: domain.PaymentUnpaid, TotalAmount: 1500000},
		RequiredDocuments: rows,
		StatusHistory:     []domain.HistoryEntry{{Status: domain.ApplicationPending, Label: "created", By: "Dana", ByUserID: customerID}},
	}
}

func TestApplicationRepository_CreateAndReload(t *testing.T) {
	repo := NewApplicationRepository(newTestDB(t))
	ctx := context.Background()

	app := newApp(1, "passport", "photo", "bank-statement")
	require.NoError(t, repo.Create(ctx, app))
	assert.NotZero(t, app.ID)
	assert.Equal(t, int64(1), app.Revision)
	assert.Regexp(t, `^NOB-\d{4}-0001$`, app.ApplicationNumber)

	loaded, err := repo.GetByID(ctx, app.ID)
	require.NoError(t, err)
	ids := make([]string, len(loaded.RequiredDocuments))
	for i, d := range loaded.RequiredDocuments {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"passport", "photo", "bank-statement"}, ids)
	assert.Equal(t, []string{".pdf"}, loaded.RequiredDocuments[0].AllowedExtensions)
	require.Len(t, loaded.StatusHistory, 1)
	assert.Equal(t, 1, loaded.StatusHistory[0].Seq)
	assert.Equal(t, int64(1500000), loaded.Payment.TotalAmount)

	_, err = repo.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplicationRepository_NumbersSkipTakenValues(t *testing.T) {
	db := newTestDB(t)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := NewApplicationRepository(db).WithClock(func() time.Time { return fixed })
	ctx := context.Background()

	first := newApp(1)
	require.NoError(t, repo.Create(ctx, first))
	assert.Equal(t, "NOB-2026-0001", first.ApplicationNumber)

	// an imported record already holds the next number
	require.NoError(t, db.Create(&applicationModel{
		ApplicationNumber: "NOB-2026-0002", CustomerID: 1, ServiceID: "visa-consult",
		Status: "pending", PaymentStatus: "unpaid", Revision: 1, CreatedAt: fixed, UpdatedAt: fixed,
	}).Error)

	next := newApp(1)
	require.NoError(t, repo.Create(ctx, next))
	assert.Equal(t, "NOB-2026-0003", next.ApplicationNumber)
}

func TestApplicationRepository_ConcurrentCreatesGetUniqueNumbers(t *testing.T) {
	repo := NewApplicationRepository(newTestDB(t))
	ctx := context.Background()

	const n = 10
	numbers := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app := newApp(1, "passport")
			if assert.NoError(t, repo.Create(ctx, app)) {
				numbers <- app.ApplicationNumber
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for num := range numbers {
		assert.False(t, seen[num], "duplicate number %s", num)
		seen[num] = true
	}
	assert.Len(t, seen, n)
}

func TestApplicationRepository_ApplyRevisionCheck(t *testing.T) {
	repo := NewApplicationRepository(newTestDB(t))
	ctx := context.Background()
	app := newApp(1, "passport")
	require.NoError(t, repo.Create(ctx, app))

	updated, err := repo.Apply(ctx, app.ID, 1, Mutation{
		Fields:  map[string]any{"status": string(domain.ApplicationProcessing)},
		History: []domain.HistoryEntry{{Status: domain.ApplicationProcessing, Label: "status changed to processing", By: "Aigerim"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Revision)
	assert.Equal(t, domain.ApplicationProcessing, updated.Status)
	require.Len(t, updated.StatusHistory, 2)
	assert.Equal(t, 2, updated.StatusHistory[1].Seq)

	// stale writer loses and writes nothing
	_, err = repo.Apply(ctx, app.ID, 1, Mutation{
		Fields:  map[string]any{"status": string(domain.ApplicationRejected)},
		History: []domain.HistoryEntry{{Status: domain.ApplicationRejected, Label: "status changed to rejected"}},
	})
	assert.ErrorIs(t, err, ErrRevisionConflict)

	reloaded, err := repo.GetByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApplicationProcessing, reloaded.Status)
	assert.Len(t, reloaded.StatusHistory, 2)

	_, err = repo.Apply(ctx, 424242, 1, Mutation{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplicationRepository_DocumentPatchTouchesOneRow(t *testing.T) {
	repo := NewApplicationRepository(newTestDB(t))
	ctx := context.Background()
	app := newApp(1, "passport", "photo")
	require.NoError(t, repo.Create(ctx, app))

	updated, err := repo.Apply(ctx, app.ID, app.Revision, Mutation{
		Documents: []DocumentPatch{{DocID: "photo", Fields: map[string]any{"status": string(domain.DocumentPending), "file_name": "me.jpg"}}},
		History:   []domain.HistoryEntry{{Status: domain.ApplicationPending, Label: "document updated: PHOTO"}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentNotUploaded, updated.RequiredDocuments[0].Status)
	assert.Equal(t, domain.DocumentPending, updated.RequiredDocuments[1].Status)
	require.NotNil(t, updated.RequiredDocuments[1].FileName)
	assert.Equal(t, "me.jpg", *updated.RequiredDocuments[1].FileName)

	// unknown row rolls back the whole mutation
	_, err = repo.Apply(ctx, app.ID, updated.Revision, Mutation{
		Fields:    map[string]any{"internal_notes": "should not stick"},
		Documents: []DocumentPatch{{DocID: "diploma", Fields: map[string]any{"status": "approved"}}},
	})
	assert.ErrorIs(t, err, ErrNotFound)
	reloaded, err := repo.GetByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.InternalNotes)
	assert.Equal(t, updated.Revision, reloaded.Revision)
}

func TestApplicationRepository_HistoryDatesNeverGoBackwards(t *testing.T) {
	db := newTestDB(t)
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := NewApplicationRepository(db).WithClock(func() time.Time { return clock })
	ctx := context.Background()

	app := newApp(1)
	require.NoError(t, repo.Create(ctx, app))

	clock = clock.Add(-time.Hour)
	updated, err := repo.Apply(ctx, app.ID, app.Revision, Mutation{
		History: []domain.HistoryEntry{
			{Status: domain.ApplicationPending, Label: "payment pending"},
			{Status: domain.ApplicationPending, Label: "payment paid"},
		},
	})
	require.NoError(t, err)
	require.Len(t, updated.StatusHistory, 3)
	for i := 1; i < len(updated.StatusHistory); i++ {
		assert.False(t, updated.StatusHistory[i].Date.Before(updated.StatusHistory[i-1].Date))
		assert.Equal(t, i+1, updated.StatusHistory[i].Seq)
	}
}

func TestApplicationRepository_MessagesAndMarkRead(t *testing.T) {
	repo := NewApplicationRepository(newTestDB(t))
	ctx := context.Background()
	app := newApp(1)
	require.NoError(t, repo.Create(ctx, app))

	updated, err := repo.Apply(ctx, app.ID, app.Revision, Mutation{Messages: []domain.Message{
		{SenderID: 1, SenderRole: domain.RoleCustomer, Content: "hello"},
		{SenderID: 3, SenderRole: domain.RoleStaff, Content: "hi, please upload your passport"},
	}})
	require.NoError(t, err)
	require.Len(t, updated.Messages, 2)
	assert.False(t, updated.Messages[0].IsRead)

	updated, err = repo.Apply(ctx, app.ID, updated.Revision, Mutation{MarkReadBy: 1})
	require.NoError(t, err)
	assert.False(t, updated.Messages[0].IsRead, "own messages stay unread for the other side")
	assert.True(t, updated.Messages[1].IsRead)
}

func TestApplicationRepository_ListFilters(t *testing.T) {
	db := newTestDB(t)
	repo := NewApplicationRepository(db)
	ctx := context.Background()
	staffID := int64(3)

	mine := newApp(1, "passport")
	mine.AssignedStaffID = &staffID
	require.NoError(t, repo.Create(ctx, mine))
	queued := newApp(1)
	require.NoError(t, repo.Create(ctx, queued))
	foreign := newApp(2)
	require.NoError(t, repo.Create(ctx, foreign))
	archived := newApp(2)
	require.NoError(t, repo.Create(ctx, archived))
	require.NoError(t, db.Model(&applicationModel{}).Where("id = ?", archived.ID).Update("archived_at", time.Now()).Error)

	ids := func(apps []domain.Application) []int64 {
		out := make([]int64, len(apps))
		for i, a := range apps {
			out[i] = a.ID
		}
		return out
	}

	customer := int64(1)
	got, err := repo.List(ctx, ApplicationQuery{CustomerID: &customer})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{mine.ID, queued.ID}, ids(got))

	got, err = repo.List(ctx, ApplicationQuery{AssignedStaffID: &staffID})
	require.NoError(t, err)
	assert.Equal(t, []int64{mine.ID}, ids(got))
	require.Len(t, got[0].RequiredDocuments, 1)

	got, err = repo.List(ctx, ApplicationQuery{AssignedStaffID: &staffID, IncludeUnassigned: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{mine.ID, queued.ID, foreign.ID}, ids(got))

	got, err = repo.List(ctx, ApplicationQuery{OnlyUnassigned: true, IncludeArchived: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{queued.ID, foreign.ID, archived.ID}, ids(got))

	got, err = repo.List(ctx, ApplicationQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{foreign.ID, queued.ID}, ids(got))
}

func TestApplicationRepository_ReferencedBlobs(t *testing.T) {
	repo := NewApplicationRepository(newTestDB(t))
	ctx := context.Background()
	app := newApp(1, "passport")
	app.RequiredDocuments[0].BlobRef = "blob-1"
	require.NoError(t, repo.Create(ctx, app))

	refs, err := repo.ReferencedBlobs(ctx, []string{"blob-1", "blob-2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"blob-1": true}, refs)
}
