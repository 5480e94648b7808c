package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/tastecert-backend/internal/notifications"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tastecert-backend/pkg/errors"
)

type testNotificationsService struct {
	markReadFn    func(ctx context.Context, userID, notificationID uuid.UUID) error
	markAllReadFn func(ctx context.Context, userID uuid.UUID) (int64, error)
	listFn        func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error)
}

func (s *testNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, nil
}

func (s *testNotificationsService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, userID, notificationID)
	}
	return nil
}

func (s *testNotificationsService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, userID)
	}
	return 0, nil
}

func TestMarkNotificationReadSuccess(t *testing.T) {
	notificationID := uuid.New()
	var gotUser uuid.UUID
	svc := &testNotificationsService{
		markReadFn: func(ctx context.Context, uid, nid uuid.UUID) error {
			gotUser = uid
			if nid != notificationID {
				t.Fatalf("unexpected notification %s", nid)
			}
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req, actor := withActor(req, enums.UserRoleProducer)
	req = addRouteParam(req, "notificationId", notificationID.String())
	rec := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if gotUser != actor.UserID {
		t.Fatalf("expected scoped to %s got %s", actor.UserID, gotUser)
	}
}

func TestMarkNotificationReadMissingActor(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = addRouteParam(req, "notificationId", uuid.NewString())
	rec := httptest.NewRecorder()
	MarkNotificationRead(&testNotificationsService{}, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestMarkNotificationReadInvalidID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req, _ = withActor(req, enums.UserRoleProducer)
	req = addRouteParam(req, "notificationId", "not-a-uuid")
	rec := httptest.NewRecorder()
	MarkNotificationRead(&testNotificationsService{}, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestMarkNotificationReadNotFound(t *testing.T) {
	svc := &testNotificationsService{
		markReadFn: func(ctx context.Context, uid, nid uuid.UUID) error {
			return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req, _ = withActor(req, enums.UserRoleProducer)
	req = addRouteParam(req, "notificationId", uuid.NewString())
	rec := httptest.NewRecorder()
	MarkNotificationRead(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	svc := &testNotificationsService{
		markAllReadFn: func(ctx context.Context, uid uuid.UUID) (int64, error) {
			return 3, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req, _ = withActor(req, enums.UserRoleProducer)
	rec := httptest.NewRecorder()
	MarkAllNotificationsRead(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var data map[string]int64
	decodeData(t, rec, &data)
	if data["updated"] != 3 {
		t.Fatalf("expected 3 updated, got %v", data)
	}
}

func TestListNotificationsParsesQuery(t *testing.T) {
	var got notifications.ListParams
	svc := &testNotificationsService{
		listFn: func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
			got = params
			return &notifications.ListResult{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/?limit=10&unreadOnly=true", nil)
	req, actor := withActor(req, enums.UserRoleProducer)
	rec := httptest.NewRecorder()
	ListNotifications(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if got.UserID != actor.UserID || got.Limit != 10 || !got.UnreadOnly {
		t.Fatalf("unexpected params %+v", got)
	}
}

func TestListNotificationsRejectsBadLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=0", nil)
	req, _ = withActor(req, enums.UserRoleProducer)
	rec := httptest.NewRecorder()
	ListNotifications(&testNotificationsService{}, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
