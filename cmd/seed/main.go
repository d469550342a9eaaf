package main

import (
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"nobconsult/internal/config"
	"nobconsult/internal/database"
	"nobconsult/internal/domain"
	"nobconsult/internal/pkg/logger"
	"nobconsult/internal/repository"
	"nobconsult/internal/storage"
)

// seed is idempotent: existing rows (matched by email or id) are left alone.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.IsProdLike() {
		log.Fatal("refusing to seed demo accounts in a production environment")
	}

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	if err := database.Migrate(db, append(repository.Models(), storage.Models()...)...); err != nil {
		log.Fatal("migrate failed", zap.Error(err))
	}

	log.Info("creating users")
	users := []struct {
		email, password, name, dept string
		role                        domain.UserRole
	}{
		{"admin@nob.kz", "admin12345", "Admin", "management", domain.RoleAdmin},
		{"aigerim@nob.kz", "staff12345", "Aigerim", "visa", domain.RoleStaff},
		{"bolat@nob.kz", "staff12345", "Bolat", "education", domain.RoleStaff},
		{"dana@example.com", "client12345", "Dana", "", domain.RoleCustomer},
	}
	for _, u := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("hash password", zap.Error(err))
		}
		insertIgnore(db, log, &domain.User{
			Email: u.email, PasswordHash: string(hash), Name: u.name, Role: u.role, Department: u.dept,
		}, "email")
	}

	log.Info("creating document types")
	docs := []domain.DocumentType{
		{ID: "passport", Name: "Passport", Description: "All pages with stamps", AllowedExtensions: []string{".pdf", ".jpg", ".png"}, MaxSizeBytes: 10 << 20, DefaultRequired: true},
		{ID: "photo", Name: "Photo 3x4", Description: "White background, taken within 6 months", AllowedExtensions: []string{".jpg", ".png"}, MaxSizeBytes: 2 << 20, DefaultRequired: true},
		{ID: "bank-statement", Name: "Bank statement", Description: "Last 6 months, stamped by the bank", AllowedExtensions: []string{".pdf"}, MaxSizeBytes: 10 << 20},
		{ID: "employment-letter", Name: "Employment letter", AllowedExtensions: []string{".pdf"}, MaxSizeBytes: 5 << 20},
		{ID: "diploma", Name: "Diploma", Description: "With apostille", AllowedExtensions: []string{".pdf"}, MaxSizeBytes: 10 << 20},
		{ID: "transcript", Name: "Academic transcript", AllowedExtensions: []string{".pdf"}, MaxSizeBytes: 10 << 20},
		{ID: "invitation-letter", Name: "Invitation letter", AllowedExtensions: []string{".pdf", ".jpg"}, MaxSizeBytes: 5 << 20},
	}
	for i := range docs {
		insertIgnore(db, log, &docs[i], "id")
	}

	log.Info("creating services")
	services := []domain.Service{
		{
			ID:                "visa-consult",
			Name:              domain.LocalizedText{"en": "Visa consultation", "ru": "Визовая консультация"},
			Category:          domain.CategoryVisa,
			BaseFee:           1500000,
			ProcessingTime:    "10-15 business days",
			Active:            true,
			DisplayOrder:      1,
			RequiredDocuments: []string{"passport", "photo", "bank-statement", "employment-letter"},
			ProcessSteps:      []string{"Submit documents", "Document review", "Payment", "Embassy appointment", "Visa issued"},
		},
		{
			ID:                "student-visa",
			Name:              domain.LocalizedText{"en": "Study abroad", "ru": "Обучение за рубежом"},
			Category:          domain.CategoryEducation,
			BaseFee:           3000000,
			ProcessingTime:    "1-3 months",
			Active:            true,
			DisplayOrder:      2,
			RequiredDocuments: []string{"passport", "photo", "diploma", "transcript", "bank-statement"},
			ProcessSteps:      []string{"University selection", "Application", "Offer letter", "Student visa"},
		},
		{
			ID:                "work-permit",
			Name:              domain.LocalizedText{"en": "Work permit", "ru": "Разрешение на работу"},
			Category:          domain.CategoryWork,
			BaseFee:           2500000,
			Active:            true,
			DisplayOrder:      3,
			RequiredDocuments: []string{"passport", "photo", "diploma", "invitation-letter"},
			ProcessSteps:      []string{"Employer documents", "Permit application", "Permit issued"},
		},
		{
			ID:                "travel-insurance",
			Name:              domain.LocalizedText{"en": "Travel insurance", "ru": "Туристическая страховка"},
			Category:          domain.CategoryTravel,
			BaseFee:           500000,
			Active:            true,
			DisplayOrder:      4,
			RequiredDocuments: []string{"passport"},
			ProcessSteps:      []string{"Policy issued"},
		},
	}
	for i := range services {
		insertIgnore(db, log, &services[i], "id")
	}

	log.Info("seed completed")
}

func insertIgnore(db *gorm.DB, log *zap.Logger, row any, conflictColumn string) {
	res := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: conflictColumn}}, DoNothing: true}).Create(row)
	if res.Error != nil {
		log.Fatal("seed insert failed", zap.Error(res.Error))
	}
}
