package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/angelmondragon/tastecert-backend/api/responses"
	pkgerrors "github.com/angelmondragon/tastecert-backend/pkg/errors"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
)

// Recoverer turns a handler panic into a 500 envelope. http.ErrAbortHandler is
// re-raised so net/http can abort the connection as documented.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tracked := &statusRecorder{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				err := pkgerrors.Wrap(pkgerrors.CodeInternal, fmt.Errorf("panic: %v", rec), "panic")
				if tracked.status != 0 {
					// headers already sent; the envelope cannot be written
					if logg != nil {
						logg.Error(r.Context(), "panic.after_response_started", err)
					}
					return
				}
				responses.WriteError(r.Context(), logg, tracked, err)
			}()
			next.ServeHTTP(tracked, r)
		})
	}
}
