package storage

import "time"

// Blob is a file written to the uploads directory. Any record may reference
// it by ID; the record never owns the bytes.
type Blob struct {
	ID           string    `gorm:"column:id;primaryKey" json:"id"`
	OwnerID      int64     `gorm:"column:owner_id;index" json:"owner_id"`
	OriginalName string    `gorm:"column:original_name" json:"original_name"`
	FilePath     string    `gorm:"column:file_path" json:"-"`
	FileURL      string    `gorm:"column:file_url" json:"url"`
	MimeType     string    `gorm:"column:mime_type" json:"mime_type"`
	Size         int64     `gorm:"column:size" json:"size"`
	CreatedAt    time.Time `gorm:"column:created_at;index" json:"created_at"`
}

func (Blob) TableName() string { return "uploads" }

// Models lists the tables this package owns.
func Models() []any {
	return []any{&Blob{}}
}
