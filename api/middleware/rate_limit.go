package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/tastecert-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tastecert-backend/pkg/errors"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
)

// maxAuthBody caps how much of a login/register body is inspected for the email.
const maxAuthBody = 64 << 10

// RateLimiter counts hits in fixed windows. The redis client implements it.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy throttles a surface per authenticated user, falling back to
// the client IP for anonymous callers.
type RateLimitPolicy struct {
	Name   string
	Window time.Duration
	Limit  int
}

// AuthRateLimitPolicy throttles credential endpoints per client IP and per
// submitted email. A zero limit disables that dimension.
type AuthRateLimitPolicy struct {
	Name       string
	Window     time.Duration
	IPLimit    int
	EmailLimit int
}

// budget is one counter checked for a request.
type budget struct {
	dimension string
	subject   string
	limit     int
}

// RateLimit applies RateLimitPolicy. A nil limiter disables it.
func RateLimit(policy RateLimitPolicy, limiter RateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || policy.Window <= 0 || policy.Limit <= 0 {
			return next
		}
		name := policyName(policy.Name, "api")
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b := budget{dimension: "ip", subject: clientIP(r), limit: policy.Limit}
			if userID := UserIDFromContext(r.Context()); userID != "" {
				b = budget{dimension: "user", subject: userID, limit: policy.Limit}
			}
			if enforce(w, r, limiter, logg, name, policy.Window, b) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// AuthRateLimit applies AuthRateLimitPolicy. The request body is buffered and
// restored so the handler still reads it.
func AuthRateLimit(policy AuthRateLimitPolicy, limiter RateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || policy.Window <= 0 || (policy.IPLimit <= 0 && policy.EmailLimit <= 0) {
			return next
		}
		name := policyName(policy.Name, "auth")
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			budgets := make([]budget, 0, 2)
			if policy.IPLimit > 0 {
				budgets = append(budgets, budget{dimension: "ip", subject: clientIP(r), limit: policy.IPLimit})
			}
			if policy.EmailLimit > 0 {
				email, err := peekEmail(r)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
					return
				}
				if email != "" {
					budgets = append(budgets, budget{dimension: "email", subject: hashValue(email), limit: policy.EmailLimit})
				}
			}
			if enforce(w, r, limiter, logg, name, policy.Window, budgets...) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// enforce checks every budget and writes the rejection itself. It reports
// whether the request may proceed.
func enforce(w http.ResponseWriter, r *http.Request, limiter RateLimiter, logg *logger.Logger, name string, window time.Duration, budgets ...budget) bool {
	ctx := r.Context()
	for _, b := range budgets {
		if b.subject == "" {
			continue
		}
		scope := name + ":" + b.dimension + ":" + b.subject
		allowed, count, err := limiter.FixedWindowAllow(ctx, scope, int64(b.limit), window)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
			return false
		}
		if allowed {
			continue
		}
		if logg != nil {
			logg.Warn(logg.WithFields(ctx, map[string]any{
				"policy":         name,
				"dimension":      b.dimension,
				"attempts":       count,
				"limit":          b.limit,
				"window_seconds": int(window.Seconds()),
			}), "rate limit exceeded")
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
		responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests"))
		return false
	}
	return true
}

func policyName(name, fallback string) string {
	if n := strings.ToLower(strings.TrimSpace(name)); n != "" {
		return n
	}
	return fallback
}

func peekEmail(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAuthBody))
	if err != nil {
		return "", err
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(body), r.Body), r.Body}

	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}
	return strings.ToLower(strings.TrimSpace(payload.Email)), nil
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		first, _, _ := strings.Cut(header, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
