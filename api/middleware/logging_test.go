package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/tastecert-backend/pkg/logger"
)

func TestLoggingRecordsRouteStatusAndBytes(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "api-test", Output: &buf})

	router := chi.NewRouter()
	router.Use(Logging(logg))
	router.Get("/api/v1/certificates/{certificateID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/certificates/abc", nil))

	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var candidate map[string]any
		if err := json.Unmarshal([]byte(line), &candidate); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if candidate["message"] == "request.complete" {
			entry = candidate
		}
	}
	if entry == nil {
		t.Fatalf("no request.complete line in %q", buf.String())
	}
	if entry["status"] != float64(http.StatusNotFound) {
		t.Fatalf("unexpected status %v", entry["status"])
	}
	if entry["bytes"] != float64(len("missing")) {
		t.Fatalf("unexpected bytes %v", entry["bytes"])
	}
	if entry["route"] != "/api/v1/certificates/{certificateID}" {
		t.Fatalf("unexpected route %v", entry["route"])
	}
}
