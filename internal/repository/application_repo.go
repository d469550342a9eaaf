package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nobconsult/internal/domain"

	"gorm.io/gorm"
)

type applicationModel struct {
	ID                int64      `gorm:"column:id;primaryKey"`
	ApplicationNumber string     `gorm:"column:application_number;size:32;uniqueIndex"`
	CustomerID        int64      `gorm:"column:customer_id;index"`
	ServiceID         string     `gorm:"column:service_id;size:64;index"`
	ServiceName       string     `gorm:"column:service_name"`
	AssignedStaffID   *int64     `gorm:"column:assigned_staff_id;index"`
	Status            string     `gorm:"column:status;size:32;index"`
	PaymentStatus     string     `gorm:"column:payment_status;size:16"`
	PaymentTotal      int64      `gorm:"column:payment_total"`
	InternalNotes     string     `gorm:"column:internal_notes;type:text"`
	Revision          int64      `gorm:"column:revision;not null;default:0"`
	ArchivedAt        *time.Time `gorm:"column:archived_at"`
	CreatedAt         time.Time  `gorm:"column:created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
}

func (applicationModel) TableName() string { return "applications" }

type documentModel struct {
	ApplicationID     int64      `gorm:"column:application_id;primaryKey;autoIncrement:false"`
	DocID             string     `gorm:"column:doc_id;primaryKey;size:64"`
	Position          int        `gorm:"column:position"`
	Name              string     `gorm:"column:name"`
	Description       string     `gorm:"column:description;type:text"`
	AllowedExtensions []string   `gorm:"column:allowed_extensions;serializer:json"`
	MaxSizeBytes      int64      `gorm:"column:max_size_bytes"`
	Status            string     `gorm:"column:status;size:16"`
	FileURL           *string    `gorm:"column:file_url"`
	FileName          *string    `gorm:"column:file_name"`
	BlobRef           *string    `gorm:"column:blob_ref;index"`
	UploadedAt        *time.Time `gorm:"column:uploaded_at"`
	Comment           string     `gorm:"column:comment;type:text"`
	ReviewedBy        *int64     `gorm:"column:reviewed_by"`
	ReviewedAt        *time.Time `gorm:"column:reviewed_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
}

func (documentModel) TableName() string { return "application_documents" }

type historyModel struct {
	ID            int64     `gorm:"column:id;primaryKey"`
	ApplicationID int64     `gorm:"column:application_id;uniqueIndex:ux_history_app_seq"`
	Seq           int       `gorm:"column:seq;uniqueIndex:ux_history_app_seq"`
	Status        string    `gorm:"column:status;size:32"`
	Label         string    `gorm:"column:label"`
	ByName        string    `gorm:"column:by_name"`
	ByUserID      int64     `gorm:"column:by_user_id"`
	Date          time.Time `gorm:"column:date"`
}

func (historyModel) TableName() string { return "application_history" }

type messageModel struct {
	ID            int64     `gorm:"column:id;primaryKey"`
	ApplicationID int64     `gorm:"column:application_id;index"`
	SenderID      int64     `gorm:"column:sender_id"`
	SenderRole    string    `gorm:"column:sender_role;size:20"`
	Content       string    `gorm:"column:content;type:text"`
	IsRead        bool      `gorm:"column:is_read"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (messageModel) TableName() string { return "application_messages" }

type counterModel struct {
	Year    int `gorm:"column:year;primaryKey;autoIncrement:false"`
	LastSeq int `gorm:"column:last_seq"`
}

func (counterModel) TableName() string { return "application_counters" }

// Models lists every table owned by the repository package, in migration order.
func Models() []any {
	return []any{
		&domain.User{},
		&domain.DocumentType{},
		&domain.Service{},
		&applicationModel{},
		&documentModel{},
		&historyModel{},
		&messageModel{},
		&counterModel{},
	}
}

// DocumentPatch updates columns of a single checklist row, addressed by doc id.
type DocumentPatch struct {
	DocID  string
	Fields map[string]any
}

// Mutation is everything one workflow operation writes. Apply commits it as a
// single transaction guarded by the application revision.
type Mutation struct {
	Fields    map[string]any
	Documents []DocumentPatch
	History   []domain.HistoryEntry
	Messages  []domain.Message
	// MarkReadBy flags every message not sent by this user as read.
	MarkReadBy int64
}

type ApplicationQuery struct {
	CustomerID *int64
	// AssignedStaffID restricts to one staff member; IncludeUnassigned adds
	// the unclaimed queue to that set.
	AssignedStaffID   *int64
	IncludeUnassigned bool
	OnlyUnassigned    bool
	Status            domain.ApplicationStatus
	IncludeArchived   bool
	Limit             int
	Offset            int
}

// StatusMismatch is an application whose newest history row disagrees with its status.
type StatusMismatch struct {
	ID                int64  `gorm:"column:id"`
	ApplicationNumber string `gorm:"column:application_number"`
	Status            string `gorm:"column:status"`
	HistoryStatus     string `gorm:"column:history_status"`
}

type ApplicationRepository struct {
	db    *gorm.DB
	retry RetryPolicy
	now   func() time.Time
}

func NewApplicationRepository(db *gorm.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db, retry: DefaultRetryPolicy(), now: time.Now}
}

// WithClock replaces the server clock used for history dates.
func (r *ApplicationRepository) WithClock(now func() time.Time) *ApplicationRepository {
	r.now = now
	return r
}

func (r *ApplicationRepository) serverTime() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

const maxNumberAttempts = 5

// Create stores a new application with its checklist and initial history.
// The application number is allocated inside the same transaction.
func (r *ApplicationRepository) Create(ctx context.Context, app *domain.Application) error {
	var created *domain.Application
	var err error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		err = r.retry.do(ctx, func() error {
			return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				now := r.serverTime()
				number, err := allocateNumber(tx, now.Year())
				if err != nil {
					return err
				}

				m := applicationModel{
					ApplicationNumber: number,
					CustomerID:        app.CustomerID,
					ServiceID:         app.ServiceID,
					ServiceName:       app.ServiceName,
					AssignedStaffID:   app.AssignedStaffID,
					Status:            string(app.Status),
					PaymentStatus:     string(app.Payment.Status),
					PaymentTotal:      app.Payment.TotalAmount,
					InternalNotes:     app.InternalNotes,
					Revision:          1,
					CreatedAt:         now,
					UpdatedAt:         now,
				}
				if err := tx.Create(&m).Error; err != nil {
					return err
				}

				for i, d := range app.RequiredDocuments {
					dm := toDocumentModel(m.ID, i, d)
					dm.UpdatedAt = now
					if err := tx.Create(&dm).Error; err != nil {
						return err
					}
				}

				if err := appendHistory(tx, m.ID, now, app.StatusHistory); err != nil {
					return err
				}

				loaded, err := load(tx, m.ID)
				if err != nil {
					return err
				}
				created = loaded
				return nil
			})
		})
		if err == nil || !isUniqueConstraintError(err) {
			break
		}
	}
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: application number", ErrDuplicate)
		}
		return err
	}
	*app = *created
	return nil
}

// allocateNumber takes the next free number of the year. Numbers already
// present (imported or hand-entered records) are skipped rather than reused.
func allocateNumber(tx *gorm.DB, year int) (string, error) {
	for {
		seq, err := nextSequence(tx, year)
		if err != nil {
			return "", err
		}
		number := domain.FormatApplicationNumber(year, seq)
		var cnt int64
		if err := tx.Model(&applicationModel{}).Where("application_number = ?", number).Count(&cnt).Error; err != nil {
			return "", err
		}
		if cnt == 0 {
			return number, nil
		}
	}
}

// nextSequence bumps the per-year counter. The UPDATE takes the row lock, so
// concurrent creators are serialized by the database.
func nextSequence(tx *gorm.DB, year int) (int, error) {
	res := tx.Model(&counterModel{}).Where("year = ?", year).Update("last_seq", gorm.Expr("last_seq + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		if err := tx.Create(&counterModel{Year: year, LastSeq: 1}).Error; err != nil {
			return 0, err
		}
		return 1, nil
	}
	var c counterModel
	if err := tx.Where("year = ?", year).First(&c).Error; err != nil {
		return 0, err
	}
	return c.LastSeq, nil
}

func (r *ApplicationRepository) GetByID(ctx context.Context, id int64) (*domain.Application, error) {
	var app *domain.Application
	err := r.retry.do(ctx, func() error {
		loaded, err := load(r.db.WithContext(ctx), id)
		if err != nil {
			return err
		}
		app = loaded
		return nil
	})
	if err != nil {
		return nil, notFound(err)
	}
	return app, nil
}

// Apply commits a mutation if the stored revision still equals expected.
// Application columns, each touched checklist row, history rows and messages
// are written in one transaction, so a failed history append rolls the state
// change back.
func (r *ApplicationRepository) Apply(ctx context.Context, id, expected int64, m Mutation) (*domain.Application, error) {
	var out *domain.Application
	err := r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := r.serverTime()

			fields := map[string]any{
				"revision":   gorm.Expr("revision + 1"),
				"updated_at": now,
			}
			for k, v := range m.Fields {
				fields[k] = v
			}
			res := tx.Model(&applicationModel{}).Where("id = ? AND revision = ?", id, expected).Updates(fields)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				var cnt int64
				if err := tx.Model(&applicationModel{}).Where("id = ?", id).Count(&cnt).Error; err != nil {
					return err
				}
				if cnt == 0 {
					return ErrNotFound
				}
				return ErrRevisionConflict
			}

			for _, p := range m.Documents {
				cols := make(map[string]any, len(p.Fields)+1)
				for k, v := range p.Fields {
					cols[k] = v
				}
				cols["updated_at"] = now
				res := tx.Model(&documentModel{}).Where("application_id = ? AND doc_id = ?", id, p.DocID).Updates(cols)
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					return fmt.Errorf("%w: document %s", ErrNotFound, p.DocID)
				}
			}

			if err := appendHistory(tx, id, now, m.History); err != nil {
				return err
			}

			for _, msg := range m.Messages {
				mm := messageModel{
					ApplicationID: id,
					SenderID:      msg.SenderID,
					SenderRole:    string(msg.SenderRole),
					Content:       msg.Content,
					CreatedAt:     now,
				}
				if err := tx.Create(&mm).Error; err != nil {
					return err
				}
			}

			if m.MarkReadBy != 0 {
				if err := tx.Model(&messageModel{}).
					Where("application_id = ? AND sender_id <> ? AND is_read = ?", id, m.MarkReadBy, false).
					Update("is_read", true).Error; err != nil {
					return err
				}
			}

			loaded, err := load(tx, id)
			if err != nil {
				return err
			}
			out = loaded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// appendHistory assigns consecutive sequence numbers after the newest stored
// entry. Dates never go backwards even if the server clock does.
func appendHistory(tx *gorm.DB, appID int64, now time.Time, entries []domain.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	var last historyModel
	res := tx.Where("application_id = ?", appID).Order("seq DESC").Limit(1).Find(&last)
	if res.Error != nil {
		return res.Error
	}
	seq := 0
	date := now
	if res.RowsAffected > 0 {
		seq = last.Seq
		if date.Before(last.Date) {
			date = last.Date
		}
	}
	for _, e := range entries {
		seq++
		hm := historyModel{
			ApplicationID: appID,
			Seq:           seq,
			Status:        string(e.Status),
			Label:         e.Label,
			ByName:        e.By,
			ByUserID:      e.ByUserID,
			Date:          date,
		}
		if err := tx.Create(&hm).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *ApplicationRepository) List(ctx context.Context, q ApplicationQuery) ([]domain.Application, error) {
	var models []applicationModel
	err := r.retry.do(ctx, func() error {
		tx := r.db.WithContext(ctx).Model(&applicationModel{})
		if q.CustomerID != nil {
			tx = tx.Where("customer_id = ?", *q.CustomerID)
		}
		switch {
		case q.OnlyUnassigned:
			tx = tx.Where("assigned_staff_id IS NULL")
		case q.AssignedStaffID != nil:
			if q.IncludeUnassigned {
				tx = tx.Where("(assigned_staff_id = ? OR assigned_staff_id IS NULL)", *q.AssignedStaffID)
			} else {
				tx = tx.Where("assigned_staff_id = ?", *q.AssignedStaffID)
			}
		}
		if q.Status != "" {
			tx = tx.Where("status = ?", q.Status)
		}
		if !q.IncludeArchived {
			tx = tx.Where("archived_at IS NULL")
		}
		if q.Limit > 0 {
			tx = tx.Limit(q.Limit)
		}
		if q.Offset > 0 {
			tx = tx.Offset(q.Offset)
		}
		return tx.Order("created_at DESC").Order("id DESC").Find(&models).Error
	})
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return []domain.Application{}, nil
	}

	ids := make([]int64, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	var docs []documentModel
	err = r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).Where("application_id IN ?", ids).Order("application_id").Order("position").Find(&docs).Error
	})
	if err != nil {
		return nil, err
	}
	byApp := make(map[int64][]domain.DocumentRow, len(models))
	for _, d := range docs {
		byApp[d.ApplicationID] = append(byApp[d.ApplicationID], toDomainDocument(d))
	}

	out := make([]domain.Application, 0, len(models))
	for _, m := range models {
		app := toDomainApplication(m)
		app.RequiredDocuments = byApp[m.ID]
		if app.RequiredDocuments == nil {
			app.RequiredDocuments = []domain.DocumentRow{}
		}
		out = append(out, *app)
	}
	return out, nil
}

// StatusMismatches finds applications without history or whose newest
// history row records a different status than the application itself.
func (r *ApplicationRepository) StatusMismatches(ctx context.Context) ([]StatusMismatch, error) {
	var rows []StatusMismatch
	q := `
SELECT a.id, a.application_number, a.status, COALESCE(h.status, '') AS history_status
FROM applications a
LEFT JOIN application_history h
  ON h.application_id = a.id
 AND h.seq = (SELECT MAX(h2.seq) FROM application_history h2 WHERE h2.application_id = a.id)
WHERE h.id IS NULL OR h.status <> a.status
ORDER BY a.id
`
	err := r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).Raw(q).Scan(&rows).Error
	})
	return rows, err
}

// ReferencedBlobs returns the subset of refs attached to some checklist row.
func (r *ApplicationRepository) ReferencedBlobs(ctx context.Context, refs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(refs))
	if len(refs) == 0 {
		return out, nil
	}
	var found []string
	err := r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).Model(&documentModel{}).Where("blob_ref IN ?", refs).Pluck("blob_ref", &found).Error
	})
	if err != nil {
		return nil, err
	}
	for _, ref := range found {
		out[ref] = true
	}
	return out, nil
}

func load(tx *gorm.DB, id int64) (*domain.Application, error) {
	var m applicationModel
	if err := tx.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var docs []documentModel
	if err := tx.Where("application_id = ?", id).Order("position").Find(&docs).Error; err != nil {
		return nil, err
	}
	var history []historyModel
	if err := tx.Where("application_id = ?", id).Order("seq").Find(&history).Error; err != nil {
		return nil, err
	}
	var messages []messageModel
	if err := tx.Where("application_id = ?", id).Order("id").Find(&messages).Error; err != nil {
		return nil, err
	}

	app := toDomainApplication(m)
	app.RequiredDocuments = make([]domain.DocumentRow, 0, len(docs))
	for _, d := range docs {
		app.RequiredDocuments = append(app.RequiredDocuments, toDomainDocument(d))
	}
	app.StatusHistory = make([]domain.HistoryEntry, 0, len(history))
	for _, h := range history {
		app.StatusHistory = append(app.StatusHistory, domain.HistoryEntry{
			Seq:      h.Seq,
			Status:   domain.ApplicationStatus(h.Status),
			Label:    h.Label,
			Date:     h.Date.UTC(),
			By:       h.ByName,
			ByUserID: h.ByUserID,
		})
	}
	app.Messages = make([]domain.Message, 0, len(messages))
	for _, msg := range messages {
		app.Messages = append(app.Messages, domain.Message{
			ID:         msg.ID,
			SenderID:   msg.SenderID,
			SenderRole: domain.UserRole(msg.SenderRole),
			Content:    msg.Content,
			CreatedAt:  msg.CreatedAt.UTC(),
			IsRead:     msg.IsRead,
		})
	}
	return app, nil
}

func toDomainApplication(m applicationModel) *domain.Application {
	return &domain.Application{
		ID:                m.ID,
		ApplicationNumber: m.ApplicationNumber,
		CustomerID:        m.CustomerID,
		ServiceID:         m.ServiceID,
		ServiceName:       m.ServiceName,
		AssignedStaffID:   m.AssignedStaffID,
		Status:            domain.ApplicationStatus(m.Status),
		Payment: domain.Payment{
			Status:      domain.PaymentStatus(m.PaymentStatus),
			TotalAmount: m.PaymentTotal,
		},
		InternalNotes: m.InternalNotes,
		Revision:      m.Revision,
		ArchivedAt:    m.ArchivedAt,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}

func toDomainDocument(d documentModel) domain.DocumentRow {
	row := domain.DocumentRow{
		ID:                d.DocID,
		Name:              d.Name,
		Description:       d.Description,
		AllowedExtensions: d.AllowedExtensions,
		MaxSizeBytes:      d.MaxSizeBytes,
		Status:            domain.DocumentStatus(d.Status),
		FileURL:           d.FileURL,
		FileName:          d.FileName,
		UploadedAt:        d.UploadedAt,
		Comment:           d.Comment,
		ReviewedBy:        d.ReviewedBy,
		ReviewedAt:        d.ReviewedAt,
	}
	if d.BlobRef != nil {
		row.BlobRef = *d.BlobRef
	}
	return row
}

func toDocumentModel(appID int64, position int, d domain.DocumentRow) documentModel {
	var ref *string
	if d.BlobRef != "" {
		v := d.BlobRef
		ref = &v
	}
	return documentModel{
		ApplicationID:     appID,
		DocID:             d.ID,
		Position:          position,
		Name:              d.Name,
		Description:       d.Description,
		AllowedExtensions: d.AllowedExtensions,
		MaxSizeBytes:      d.MaxSizeBytes,
		Status:            string(d.Status),
		FileURL:           d.FileURL,
		FileName:          d.FileName,
		BlobRef:           ref,
		UploadedAt:        d.UploadedAt,
		Comment:           d.Comment,
		ReviewedBy:        d.ReviewedBy,
		ReviewedAt:        d.ReviewedAt,
	}
}
