package certificates

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/tastecert-backend/internal/testsupport"
	"github.com/angelmondragon/tastecert-backend/pkg/auth"
	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tastecert-backend/pkg/errors"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox"
	"github.com/angelmondragon/tastecert-backend/pkg/storage"
	"github.com/angelmondragon/tastecert-backend/pkg/storage/local"
)

type memoryCache struct {
	values map[string]string
	sets   int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}}
}

func (c *memoryCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(raw), dest)
}

func (c *memoryCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.sets++
	c.values[key] = string(payload)
	return nil
}

func (c *memoryCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.values, k)
	}
	return nil
}

func (c *memoryCache) CacheKey(scope, id string) string {
	return "tc:cache:" + scope + ":" + id
}

type fixture struct {
	conn     *gorm.DB
	svc      Service
	store    *local.Store
	cache    *memoryCache
	admin    auth.Actor
	producer auth.Actor
	product  *models.Product
}

func newFixture(t *testing.T, productStatus enums.ProductStatus) fixture {
	t.Helper()
	conn := testsupport.OpenDB(t)
	store, err := local.New(t.TempDir(), nil)
	require.NoError(t, err)
	cache := newMemoryCache()

	svc, err := NewService(ServiceParams{
		DB:            testsupport.Client(conn),
		Repo:          NewRepository(conn),
		Allocator:     fixedAllocator(2025),
		Outbox:        outbox.NewService(outbox.NewRepository(conn), nil),
		Store:         store,
		Cache:         cache,
		APIBaseURL:    "https://api.tastecert.test",
		PublicBaseURL: "https://tastecert.test/",
		IssuerName:    "TasteCert Awards",
	})
	require.NoError(t, err)

	producer := testsupport.MustCreateUser(t, conn, enums.UserRoleProducer)
	admin := testsupport.MustCreateUser(t, conn, enums.UserRoleAdmin)
	category := testsupport.MustCreateCategory(t, conn, "Olive Oil")
	product := testsupport.MustCreateProduct(t, conn, producer.ID, category.ID, productStatus)

	return fixture{
		conn:     conn,
		svc:      svc,
		store:    store,
		cache:    cache,
		admin:    auth.Actor{UserID: admin.ID, Role: admin.Role},
		producer: auth.Actor{UserID: producer.ID, Role: producer.Role},
		product:  product,
	}
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, code), "expected %s, got %v", code, err)
}

func productStatus(t *testing.T, conn *gorm.DB, id uuid.UUID) enums.ProductStatus {
	t.Helper()
	var product models.Product
	require.NoError(t, conn.First(&product, "id = ?", id).Error)
	return product.Status
}

func TestCreateIssuesCertificate(t *testing.T) {
	f := newFixture(t, enums.ProductStatusScored)
	ctx := context.Background()
	testsupport.MustCreateEvaluation(t, f.conn, f.product.ID, f.admin.UserID, 8.7)

	cert, err := f.svc.Create(ctx, f.admin, CreateInput{ProductID: f.product.ID, AwardTier: enums.AwardTierGold})
	require.NoError(t, err)
	assert.Equal(t, "TC-2025-000001", cert.CertificateNumber)
	assert.Equal(t, 8.7, cert.Score)
	assert.Equal(t, "Gold", cert.AwardLabel)
	assert.True(t, cert.IsPublished)
	assert.True(t, cert.PDFAvailable)
	require.NotNil(t, cert.PDFURL)
	assert.Equal(t, "https://api.tastecert.test/api/v1/certificates/"+cert.ID.String()+"/pdf", *cert.PDFURL)
	assert.Equal(t, "https://tastecert.test/verify/TC-2025-000001", cert.VerificationURL)
	assert.Equal(t, "Olive Oil", cert.CategoryName)
	assert.Equal(t, enums.ProductStatusCertified, productStatus(t, f.conn, f.product.ID))

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventCertificateIssued).Count(&events).Error)
	assert.Equal(t, int64(1), events)

	rc, name, err := f.svc.OpenPDF(ctx, f.producer, cert.CertificateNumber)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
	assert.Equal(t, "TC-2025-000001.pdf", name)

	_, err = f.svc.Create(ctx, f.admin, CreateInput{ProductID: f.product.ID, AwardTier: enums.AwardTierGold})
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestCreateFailureModes(t *testing.T) {
	f := newFixture(t, enums.ProductStatusScored)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.admin, CreateInput{ProductID: uuid.New(), AwardTier: enums.AwardTierGold})
	assertCode(t, err, pkgerrors.CodeNotFound)

	_, err = f.svc.Create(ctx, f.admin, CreateInput{ProductID: f.product.ID, AwardTier: enums.AwardTierGold})
	assertCode(t, err, pkgerrors.CodeDependencyMissing)

	_, err = f.svc.Create(ctx, f.admin, CreateInput{ProductID: f.product.ID, AwardTier: "platinum"})
	assertCode(t, err, pkgerrors.CodeValidation)

	testsupport.MustCreateEvaluation(t, f.conn, f.product.ID, f.admin.UserID, 9)
	bad := "TC-2025-1"
	_, err = f.svc.Create(ctx, f.admin, CreateInput{ProductID: f.product.ID, AwardTier: enums.AwardTierGold, CertificateNumber: &bad})
	assertCode(t, err, pkgerrors.CodeValidation)

	manual := "TC-2024-000100"
	cert, err := f.svc.Create(ctx, f.admin, CreateInput{ProductID: f.product.ID, AwardTier: enums.AwardTierSilver, CertificateNumber: &manual})
	require.NoError(t, err)
	assert.Equal(t, manual, cert.CertificateNumber)

	var count int64
	require.NoError(t, f.conn.Model(&models.Certificate{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGetEnforcesOwnershipAndResolvesReferences(t *testing.T) {
	f := newFixture(t, enums.ProductStatusCertified)
	ctx := context.Background()
	stored := testsupport.MustCreateCertificate(t, f.conn, f.product.ID, f.admin.UserID, "TC-2025-000009")

	byID, err := f.svc.Get(ctx, f.producer, stored.ID.String())
	require.NoError(t, err)
	byNumber, err := f.svc.Get(ctx, f.admin, "tc-2025-000009")
	require.NoError(t, err)
	assert.Equal(t, byID.ID, byNumber.ID)

	stranger := testsupport.MustCreateUser(t, f.conn, enums.UserRoleProducer)
	_, err = f.svc.Get(ctx, auth.Actor{UserID: stranger.ID, Role: stranger.Role}, stored.ID.String())
	assertCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.Get(ctx, f.admin, "not-a-certificate")
	assertCode(t, err, pkgerrors.CodeNotFound)

	_, _, err = f.svc.OpenPDF(ctx, f.producer, stored.ID.String())
	assertCode(t, err, pkgerrors.CodeDependencyMissing)

	rendered, err := f.svc.Render(ctx, stored.ID)
	require.NoError(t, err)
	assert.True(t, rendered.PDFAvailable)
	rc, _, err := f.svc.OpenPDF(ctx, f.producer, stored.ID.String())
	require.NoError(t, err)
	require.NoError(t, rc.Close())
}

func TestVerifyUsesCacheAndHidesUnpublished(t *testing.T) {
	f := newFixture(t, enums.ProductStatusCertified)
	ctx := context.Background()
	stored := testsupport.MustCreateCertificate(t, f.conn, f.product.ID, f.admin.UserID, "TC-2025-000003")

	first, err := f.svc.Verify(ctx, "TC-2025-000003")
	require.NoError(t, err)
	assert.True(t, first.Valid)
	assert.Equal(t, "TasteCert Awards", first.Issuer)
	assert.Equal(t, 1, f.cache.sets)

	_, err = f.svc.Verify(ctx, "TC-2025-000003")
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.sets)

	_, err = f.svc.SetPublished(ctx, stored.ID, false)
	require.NoError(t, err)
	assert.Empty(t, f.cache.values)

	_, err = f.svc.Verify(ctx, "TC-2025-000003")
	assertCode(t, err, pkgerrors.CodeNotFound)
	_, err = f.svc.Verify(ctx, stored.ID.String())
	assertCode(t, err, pkgerrors.CodeNotFound)

	_, err = f.svc.Verify(ctx, " ")
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestDeleteRemovesQRAndRevertsProduct(t *testing.T) {
	f := newFixture(t, enums.ProductStatusScored)
	ctx := context.Background()
	testsupport.MustCreateEvaluation(t, f.conn, f.product.ID, f.admin.UserID, 7.5)

	cert, err := f.svc.Create(ctx, f.admin, CreateInput{ProductID: f.product.ID, AwardTier: enums.AwardTierBronze})
	require.NoError(t, err)
	qr := testsupport.MustCreateQRCode(t, f.conn, f.product.ID, true)
	require.NoError(t, f.store.Put(ctx, qr.ImageKey, strings.NewReader("png"), "image/png"))

	_, err = f.svc.Verify(ctx, cert.CertificateNumber)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, cert.ID))
	assert.Equal(t, enums.ProductStatusScored, productStatus(t, f.conn, f.product.ID))
	assert.Empty(t, f.cache.values)

	var qrCount int64
	require.NoError(t, f.conn.Model(&models.QRCode{}).Count(&qrCount).Error)
	assert.Zero(t, qrCount)

	objects, err := f.store.List(ctx, storage.PrefixQRCodes)
	require.NoError(t, err)
	assert.Empty(t, objects)
	objects, err = f.store.List(ctx, storage.PrefixCertificates)
	require.NoError(t, err)
	assert.Empty(t, objects)

	err = f.svc.Delete(ctx, cert.ID)
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestListAndExport(t *testing.T) {
	f := newFixture(t, enums.ProductStatusCertified)
	ctx := context.Background()
	testsupport.MustCreateCertificate(t, f.conn, f.product.ID, f.admin.UserID, "TC-2024-000001")

	other := testsupport.MustCreateProduct(t, f.conn, f.producer.UserID, f.product.CategoryID, enums.ProductStatusCertified)
	testsupport.MustCreateCertificate(t, f.conn, other.ID, f.admin.UserID, "TC-2025-000001")

	all, err := f.svc.List(ctx, ListParams{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 2)

	year := 2025
	filtered, err := f.svc.List(ctx, ListParams{Year: &year})
	require.NoError(t, err)
	require.Len(t, filtered.Items, 1)
	assert.Equal(t, "TC-2025-000001", filtered.Items[0].CertificateNumber)

	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(ctx, &buf, nil))

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(registerSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Certificate No.", rows[0][0])
	assert.Equal(t, "TC-2024-000001", rows[1][0])
	assert.Equal(t, "TC-2025-000001", rows[2][0])
	assert.Equal(t, "Gold", rows[1][1])
}
