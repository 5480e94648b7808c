package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tastecert-backend/api/controllers"
	"github.com/angelmondragon/tastecert-backend/api/middleware"
	"github.com/angelmondragon/tastecert-backend/internal/auth"
	"github.com/angelmondragon/tastecert-backend/internal/categories"
	"github.com/angelmondragon/tastecert-backend/internal/certificates"
	"github.com/angelmondragon/tastecert-backend/internal/evaluations"
	"github.com/angelmondragon/tastecert-backend/internal/notifications"
	"github.com/angelmondragon/tastecert-backend/internal/products"
	"github.com/angelmondragon/tastecert-backend/internal/qrcodes"
	"github.com/angelmondragon/tastecert-backend/internal/users"
	"github.com/angelmondragon/tastecert-backend/pkg/auth/session"
	"github.com/angelmondragon/tastecert-backend/pkg/config"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
	"github.com/angelmondragon/tastecert-backend/pkg/metrics"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (string, string, error)
	Revoke(context.Context, string) error
	RevokeUser(context.Context, uuid.UUID) error
}

// redisStore backs rate limiting and idempotency. A nil store disables both.
type redisStore interface {
	middleware.IdempotencyStore
	middleware.RateLimiter
}

// Params collects everything the API surface depends on.
type Params struct {
	Config    *config.Config
	Logger    *logger.Logger
	Redis     redisStore
	Sessions  sessionManager
	Metrics   *metrics.HTTPMetrics
	Gatherer  prometheus.Gatherer
	Readiness []controllers.Dependency

	Auth          auth.Service
	Register      auth.RegisterService
	Users         users.Service
	Categories    categories.Service
	Products      products.Service
	Evaluations   evaluations.Service
	Certificates  certificates.Service
	QRCodes       qrcodes.Service
	Notifications notifications.Service
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
		middleware.Metrics(p.Metrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	loginPolicy := middleware.AuthRateLimitPolicy{
		Name:       "login",
		Window:     cfg.AuthRateLimit.LoginWindow,
		IPLimit:    cfg.AuthRateLimit.LoginIPLimit,
		EmailLimit: cfg.AuthRateLimit.LoginEmailLimit,
	}
	registerPolicy := middleware.AuthRateLimitPolicy{
		Name:       "register",
		Window:     cfg.AuthRateLimit.RegisterWindow,
		IPLimit:    cfg.AuthRateLimit.RegisterIPLimit,
		EmailLimit: cfg.AuthRateLimit.RegisterEmailLimit,
	}
	apiPolicy := middleware.RateLimitPolicy{Name: "api", Window: cfg.RateLimit.APIWindow, Limit: cfg.RateLimit.APIUserLimit}

	var (
		rateStore        = rateLimiter(p.Redis)
		idempotencyStore = idempotency(p.Redis)
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness...))
	})
	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(p.Gatherer))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.Ping("public"))
		r.Get("/categories", controllers.CategoryList(p.Categories, logg))
		r.Get("/certificates/{idOrNumber}", controllers.PublicCertificateVerify(p.Certificates, logg))
		r.Get("/products/{productId}/qr", controllers.PublicQRCode(p.QRCodes, logg))
		r.Post("/products/{productId}/scan", controllers.PublicQRCodeScan(p.QRCodes, logg))
		r.Get("/files/qr/{filename}", controllers.PublicQRCodeImage(p.QRCodes, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.Idempotency(idempotencyStore, logg))
			r.With(middleware.AuthRateLimit(loginPolicy, rateStore, logg)).Post("/login", controllers.AuthLogin(p.Auth, logg))
			r.With(middleware.AuthRateLimit(registerPolicy, rateStore, logg)).Post("/register", controllers.AuthRegister(p.Register, p.Auth, logg))
			r.Post("/logout", controllers.AuthLogout(p.Sessions, cfg.JWT, logg))
			r.Post("/refresh", controllers.AuthRefresh(p.Sessions, cfg.JWT, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
			r.Use(middleware.RequireRole(logg, enums.UserRoleProducer, enums.UserRoleAdmin))
			r.Use(middleware.RateLimit(apiPolicy, rateStore, logg))
			r.Use(middleware.Idempotency(idempotencyStore, logg))

			r.Get("/ping", controllers.Ping("private"))
			r.Post("/auth/logout-all", controllers.AuthLogoutEverywhere(p.Sessions, logg))

			r.Get("/users/me", controllers.UserProfile(p.Users, logg))
			r.Put("/users/me", controllers.UserProfileUpdate(p.Users, logg))

			r.Route("/products", func(r chi.Router) {
				r.Post("/", controllers.ProductCreate(p.Products, logg))
				r.Get("/", controllers.ProductList(p.Products, logg))
				r.Route("/{productId}", func(r chi.Router) {
					r.Get("/", controllers.ProductGet(p.Products, logg))
					r.Patch("/", controllers.ProductUpdate(p.Products, logg))
					r.Delete("/", controllers.ProductDelete(p.Products, logg))
					r.Post("/image", controllers.ProductImageUpload(p.Products, logg))
					r.Get("/image", controllers.ProductImage(p.Products, logg))
					r.Get("/evaluation", controllers.EvaluationGet(p.Evaluations, logg))
					r.Get("/qr", controllers.QRCodeGet(p.QRCodes, logg))
					r.Patch("/qr", controllers.QRCodeToggle(p.QRCodes, logg))
					r.Post("/qr/regenerate", controllers.QRCodeRegenerate(p.QRCodes, logg))
				})
			})

			r.Get("/certificates/{idOrNumber}", controllers.CertificateGet(p.Certificates, logg))
			r.Get("/certificates/{idOrNumber}/pdf", controllers.CertificatePDF(p.Certificates, logg))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(p.Notifications, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if cfg.FeatureFlags.AdminRegistration {
				r.Post("/register", controllers.AdminAuthRegister(p.Register, p.Auth, logg))
			}
			r.With(middleware.AuthRateLimit(loginPolicy, rateStore, logg)).Post("/login", controllers.AdminAuthLogin(p.Auth, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Use(middleware.RateLimit(apiPolicy, rateStore, logg))
			r.Use(middleware.Idempotency(idempotencyStore, logg))

			r.Get("/ping", controllers.Ping("admin"))

			r.Route("/users", func(r chi.Router) {
				r.Get("/", controllers.AdminUserList(p.Users, logg))
				r.Post("/", controllers.AdminUserCreate(p.Users, logg))
				r.Patch("/{userId}", controllers.AdminUserUpdate(p.Users, logg))
				r.Delete("/{userId}", controllers.AdminUserDelete(p.Users, logg))
			})

			r.Route("/categories", func(r chi.Router) {
				r.Post("/", controllers.AdminCategoryCreate(p.Categories, logg))
				r.Patch("/{categoryId}", controllers.AdminCategoryUpdate(p.Categories, logg))
				r.Delete("/{categoryId}", controllers.AdminCategoryDelete(p.Categories, logg))
			})

			r.Route("/products", func(r chi.Router) {
				r.Get("/", controllers.ProductList(p.Products, logg))
				r.Route("/{productId}", func(r chi.Router) {
					r.Get("/", controllers.ProductGet(p.Products, logg))
					r.Post("/review", controllers.AdminProductReview(p.Products, logg))
					r.Post("/reject", controllers.AdminProductReject(p.Products, logg))
					r.Put("/evaluation", controllers.AdminEvaluationSave(p.Evaluations, logg))
					r.Post("/qr", controllers.AdminQRCodeIssue(p.QRCodes, logg))
					r.Delete("/qr", controllers.AdminQRCodeDelete(p.QRCodes, logg))
				})
			})

			r.Route("/certificates", func(r chi.Router) {
				r.Get("/", controllers.AdminCertificateList(p.Certificates, logg))
				r.Post("/", controllers.AdminCertificateCreate(p.Certificates, logg))
				r.Get("/export", controllers.AdminCertificateExport(p.Certificates, logg))
				r.Delete("/{certificateId}", controllers.AdminCertificateDelete(p.Certificates, logg))
				r.Patch("/{certificateId}/publish", controllers.AdminCertificatePublish(p.Certificates, logg))
				r.Post("/{certificateId}/render", controllers.AdminCertificateRender(p.Certificates, logg))
			})
		})
	})

	return r
}

// rateLimiter and idempotency keep a nil store a nil interface for the middleware checks.
func rateLimiter(store redisStore) middleware.RateLimiter {
	if store == nil {
		return nil
	}
	return store
}

func idempotency(store redisStore) middleware.IdempotencyStore {
	if store == nil {
		return nil
	}
	return store
}
