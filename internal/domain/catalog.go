package domain

import "time"

type ServiceCategory string

const (
	CategoryEducation ServiceCategory = "education"
	CategoryTravel    ServiceCategory = "travel"
	CategoryWork      ServiceCategory = "work"
	CategoryVisa      ServiceCategory = "visa"
)

func (c ServiceCategory) Valid() bool {
	switch c {
	case CategoryEducation, CategoryTravel, CategoryWork, CategoryVisa:
		return true
	}
	return false
}

// LocalizedText maps a locale code ("en", "ru", ...) to text.
type LocalizedText map[string]string

// Default returns the english text, or any non-empty value when english is missing.
func (t LocalizedText) Default() string {
	if v := t["en"]; v != "" {
		return v
	}
	for _, v := range t {
		if v != "" {
			return v
		}
	}
	return ""
}

// DocumentType is a master checklist entry owned by admins.
type DocumentType struct {
	ID                string    `json:"id" gorm:"primaryKey;size:64" validate:"required,max=64,slug"`
	Name              string    `json:"name" validate:"required"`
	Description       string    `json:"description,omitempty"`
	AllowedExtensions []string  `json:"allowed_extensions" gorm:"serializer:json"`
	MaxSizeBytes      int64     `json:"max_size_bytes" validate:"gte=0"`
	DefaultRequired   bool      `json:"default_required"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Service is a catalog offering customers apply for.
type Service struct {
	ID                string          `json:"id" gorm:"primaryKey;size:64" validate:"required,max=64,slug"`
	Name              LocalizedText   `json:"name" gorm:"serializer:json" validate:"required"`
	Description       LocalizedText   `json:"description,omitempty" gorm:"serializer:json"`
	Category          ServiceCategory `json:"category" gorm:"size:20;index" validate:"required,oneof=education travel work visa"`
	BaseFee           int64           `json:"base_fee" validate:"gte=0"`
	ProcessingTime    string          `json:"processing_time,omitempty"`
	Active            bool            `json:"active"`
	DisplayOrder      int             `json:"display_order"`
	RequiredDocuments []string        `json:"required_documents" gorm:"serializer:json"`
	ProcessSteps      []string        `json:"process_steps" gorm:"serializer:json"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
