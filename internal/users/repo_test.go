package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tastecert-backend/internal/testsupport"
	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	"github.com/angelmondragon/tastecert-backend/pkg/pagination"
)

func TestRepositoryListFiltersByRoleAndPaginates(t *testing.T) {
	db := testsupport.OpenDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		testsupport.MustCreateUser(t, db, enums.UserRoleProducer)
	}
	testsupport.MustCreateUser(t, db, enums.UserRoleAdmin)

	role := enums.UserRoleProducer
	first, err := repo.List(ctx, ListQuery{Role: &role, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)

	cursor := pagination.Cursor{CreatedAt: first[1].CreatedAt, ID: first[1].ID}
	rest, err := repo.List(ctx, ListQuery{Role: &role, Limit: 10, Cursor: &cursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.NotEqual(t, first[0].ID, rest[0].ID)
	assert.NotEqual(t, first[1].ID, rest[0].ID)
}

func TestRepositoryDeleteCascadesToProducts(t *testing.T) {
	db := testsupport.OpenDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	producer := testsupport.MustCreateUser(t, db, enums.UserRoleProducer)
	category := testsupport.MustCreateCategory(t, db, "Cheese")
	product := testsupport.MustCreateProduct(t, db, producer.ID, category.ID, enums.ProductStatusCertified)
	testsupport.MustCreateEvaluation(t, db, product.ID, producer.ID, 8.2)
	testsupport.MustCreateCertificate(t, db, product.ID, producer.ID, "TC-2025-000001")
	testsupport.MustCreateQRCode(t, db, product.ID, true)

	require.NoError(t, repo.Delete(ctx, producer.ID))

	var count int64
	for _, model := range []any{&models.Product{}, &models.Evaluation{}, &models.Certificate{}, &models.QRCode{}} {
		require.NoError(t, db.Model(model).Count(&count).Error)
		assert.Zero(t, count)
	}

	assert.Error(t, repo.Delete(ctx, producer.ID))
}

func TestRepositoryCreatePersistsInactiveFlag(t *testing.T) {
	db := testsupport.OpenDB(t)
	repo := NewRepository(db)
	inactive := false

	created, err := repo.Create(context.Background(), CreateUserDTO{
		Email:        "Paused@Example.com",
		PasswordHash: "hash",
		FirstName:    "Paused",
		LastName:     "User",
		IsActive:     &inactive,
	})
	require.NoError(t, err)

	found, err := repo.FindByEmail(context.Background(), "paused@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.False(t, found.IsActive)
	assert.Equal(t, enums.UserRoleProducer, found.Role)
}
