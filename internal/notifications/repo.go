package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	"github.com/angelmondragon/tastecert-backend/pkg/pagination"
)

// Repository persists in-app notifications and looks up their recipients.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type inboxQuery struct {
	userID     uuid.UUID
	limit      int
	cursor     *pagination.Cursor
	unreadOnly bool
}

func ownedBy(userID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}
}

func unread(db *gorm.DB) *gorm.DB {
	return db.Where("read_at IS NULL")
}

func (r *Repository) inbox(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Scopes(ownedBy(userID))
}

func (r *Repository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *Repository) List(ctx context.Context, q inboxQuery) ([]models.Notification, error) {
	query := r.inbox(ctx, q.userID)
	if q.unreadOnly {
		query = query.Scopes(unread)
	}
	var rows []models.Notification
	err := query.Scopes(pagination.After(q.cursor)).Limit(q.limit).Find(&rows).Error
	return rows, err
}

// MarkRead stamps one notification owned by userID. It reports false when the
// user has no such notification; an already read row is left untouched.
func (r *Repository) MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (bool, error) {
	var current models.Notification
	err := r.inbox(ctx, userID).Select("id", "read_at").Where("id = ?", id).Take(&current).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	case err != nil:
		return false, err
	case current.ReadAt != nil:
		return true, nil
	}
	err = r.inbox(ctx, userID).Scopes(unread).Where("id = ?", id).UpdateColumn("read_at", at).Error
	return true, err
}

func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	res := r.inbox(ctx, userID).Scopes(unread).UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

func (r *Repository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.inbox(ctx, userID).Scopes(unread).Count(&n).Error
	return n, err
}

// DeleteOlderThan is the retention prune for the notifications table.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

func (r *Repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Take(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListActiveAdmins returns the recipients of admin-facing notifications,
// oldest account first.
func (r *Repository) ListActiveAdmins(ctx context.Context) ([]models.User, error) {
	var admins []models.User
	err := r.db.WithContext(ctx).
		Where(&models.User{Role: enums.UserRoleAdmin, IsActive: true}).
		Order("created_at").
		Find(&admins).Error
	return admins, err
}
