// Package testsupport provides an in-memory sqlite schema and fixtures for
// repository tests.
package testsupport

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/angelmondragon/tastecert-backend/pkg/db"
	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
)

var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		company_name TEXT,
		phone TEXT,
		role TEXT NOT NULL DEFAULT 'producer',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		last_login_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		description TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT categories_name_key UNIQUE (name),
		CONSTRAINT categories_slug_key UNIQUE (slug)
	)`,
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		producer_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		category_id TEXT NOT NULL REFERENCES categories(id) ON DELETE RESTRICT,
		name TEXT NOT NULL,
		brand TEXT,
		description TEXT,
		origin TEXT,
		image_key TEXT,
		status TEXT NOT NULL DEFAULT 'submitted',
		rejection_reason TEXT,
		submitted_at DATETIME NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE evaluations (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL UNIQUE REFERENCES products(id) ON DELETE CASCADE,
		evaluator_id TEXT NOT NULL,
		appearance_score REAL NOT NULL,
		aroma_score REAL NOT NULL,
		taste_score REAL NOT NULL,
		texture_score REAL NOT NULL,
		aftertaste_score REAL NOT NULL,
		overall_score REAL NOT NULL,
		notes TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE certificate_sequences (
		year INTEGER PRIMARY KEY,
		last_value INTEGER NOT NULL,
		updated_at DATETIME
	)`,
	`CREATE TABLE certificates (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		certificate_number TEXT NOT NULL,
		award_tier TEXT NOT NULL,
		score REAL NOT NULL,
		is_published BOOLEAN NOT NULL DEFAULT 1,
		pdf_key TEXT,
		issued_at DATETIME NOT NULL,
		issued_by TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT certificates_product_id_key UNIQUE (product_id),
		CONSTRAINT certificates_certificate_number_key UNIQUE (certificate_number)
	)`,
	`CREATE TABLE qr_codes (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		image_key TEXT NOT NULL,
		image_url TEXT NOT NULL,
		redirect_url TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		scan_count INTEGER NOT NULL DEFAULT 0,
		last_scanned_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT qr_codes_product_id_key UNIQUE (product_id)
	)`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		link TEXT,
		read_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
}

// OpenDB returns a fresh in-memory database with the full domain schema and
// foreign keys enforced.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

func MustCreateUser(t *testing.T, conn *gorm.DB, role enums.UserRole) *models.User {
	t.Helper()
	company := "Test Kitchen"
	user := &models.User{
		ID:           uuid.New(),
		Email:        fmt.Sprintf("tc_test_%s@example.com", uuid.NewString()),
		PasswordHash: "hash",
		FirstName:    "Repo",
		LastName:     "Tester",
		CompanyName:  &company,
		Role:         role,
		IsActive:     true,
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func MustCreateCategory(t *testing.T, conn *gorm.DB, name string) *models.Category {
	t.Helper()
	category := &models.Category{
		ID:   uuid.New(),
		Name: name,
		Slug: fmt.Sprintf("cat-%s", uuid.NewString()[:8]),
	}
	if err := conn.Create(category).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	return category
}

func MustCreateProduct(t *testing.T, conn *gorm.DB, producerID, categoryID uuid.UUID, status enums.ProductStatus) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:          uuid.New(),
		ProducerID:  producerID,
		CategoryID:  categoryID,
		Name:        "Wildflower Honey",
		Status:      status,
		SubmittedAt: time.Now().UTC(),
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

func MustCreateEvaluation(t *testing.T, conn *gorm.DB, productID, evaluatorID uuid.UUID, overall float64) *models.Evaluation {
	t.Helper()
	evaluation := &models.Evaluation{
		ID:              uuid.New(),
		ProductID:       productID,
		EvaluatorID:     evaluatorID,
		AppearanceScore: overall,
		AromaScore:      overall,
		TasteScore:      overall,
		TextureScore:    overall,
		AftertasteScore: overall,
		OverallScore:    overall,
	}
	if err := conn.Create(evaluation).Error; err != nil {
		t.Fatalf("create evaluation: %v", err)
	}
	return evaluation
}

func MustCreateCertificate(t *testing.T, conn *gorm.DB, productID, issuerID uuid.UUID, number string) *models.Certificate {
	t.Helper()
	certificate := &models.Certificate{
		ID:                uuid.New(),
		ProductID:         productID,
		CertificateNumber: number,
		AwardTier:         enums.AwardTierGold,
		Score:             8.5,
		IsPublished:       true,
		IssuedAt:          time.Now().UTC(),
		IssuedBy:          issuerID,
	}
	if err := conn.Create(certificate).Error; err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return certificate
}

func MustCreateQRCode(t *testing.T, conn *gorm.DB, productID uuid.UUID, active bool) *models.QRCode {
	t.Helper()
	qr := &models.QRCode{
		ID:          uuid.New(),
		ProductID:   productID,
		ImageKey:    fmt.Sprintf("qr/qr-%s-1.png", productID),
		ImageURL:    fmt.Sprintf("http://localhost:8080/api/public/files/qr/qr-%s-1.png", productID),
		RedirectURL: fmt.Sprintf("http://localhost:3000/products/%s?qr=true", productID),
		IsActive:    active,
	}
	if err := conn.Create(qr).Error; err != nil {
		t.Fatalf("create qr code: %v", err)
	}
	return qr
}

// Client wraps conn in the production transaction helper.
func Client(conn *gorm.DB) *db.Client {
	return db.NewFromConn(conn)
}
