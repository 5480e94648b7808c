package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataCatalog(t *testing.T) {
	cases := map[Code]Metadata{
		CodeValidation:        {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true, ClientFacing: true},
		CodeUnauthorized:      {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required", ClientFacing: true},
		CodeNotFound:          {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found", ClientFacing: true},
		CodeStateConflict:     {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true, ClientFacing: true},
		CodeDependencyMissing: {HTTPStatus: http.StatusConflict, PublicMessage: "required resource missing", ClientFacing: true},
		CodeRateLimit:         {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded", ClientFacing: true},
		CodeIOFailure:         {HTTPStatus: http.StatusInternalServerError, PublicMessage: "file operation failed", Retryable: true},
		CodeDependency:        {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable", Retryable: true, DetailsAllowed: true},
	}
	for code, want := range cases {
		t.Run(string(code), func(t *testing.T) {
			assert.Equal(t, want, MetadataFor(code))
		})
	}
}

func TestEveryServerCodeHidesItsMessage(t *testing.T) {
	for code, m := range catalog {
		if m.HTTPStatus >= http.StatusInternalServerError {
			assert.False(t, m.ClientFacing, code)
		}
	}
}

func TestUnknownCodeMapsToInternal(t *testing.T) {
	assert.Equal(t, catalog[CodeInternal], MetadataFor("SOMETHING_UNKNOWN"))
}

func TestErrorFormattingAndDetails(t *testing.T) {
	err := Newf(CodeValidation, "field %s is required", "name").
		WithDetails(map[string]any{"field": "name"})
	assert.Equal(t, "VALIDATION_ERROR: field name is required", err.Error())
	assert.Equal(t, map[string]any{"field": "name"}, err.Details())

	cause := stdErrors.New("connection reset")
	wrapped := Wrap(CodeDependency, cause, "load certificate")
	assert.Equal(t, "DEPENDENCY_ERROR: load certificate: connection reset", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)

	var nilErr *Error
	assert.Equal(t, CodeInternal, nilErr.Code())
	assert.Empty(t, nilErr.Message())
	assert.Nil(t, nilErr.WithDetails("x"))
}

func TestAsAndIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeDependencyMissing, "no certificate"))

	typed := As(err)
	require.NotNil(t, typed)
	assert.Equal(t, CodeDependencyMissing, typed.Code())
	assert.True(t, IsCode(err, CodeDependencyMissing))
	assert.False(t, IsCode(err, CodeConflict))
	assert.False(t, IsCode(stdErrors.New("plain"), CodeInternal))
	assert.Nil(t, As(nil))
}

func TestDumpCapturesPostgresDiagnostics(t *testing.T) {
	t.Run("pgx", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_certificates_number", TableName: "certificates"}
		dump := Dump(Wrap(CodeConflict, pgErr, "duplicate certificate number"))

		assert.Equal(t, CodeConflict, dump.Code)
		assert.Equal(t, http.StatusConflict, dump.HTTPStatus)
		require.NotNil(t, dump.PG)
		assert.Equal(t, "23505", dump.PG.Code)
		assert.Equal(t, "ux_certificates_number", dump.PG.Constraint)
		assert.Len(t, dump.Chain, 2)
		assert.Equal(t, "ux_certificates_number", dump.Fields()["pg_constraint"])
	})

	t.Run("lib/pq", func(t *testing.T) {
		pqErr := &pq.Error{Code: "23503", Table: "products", Constraint: "fk_products_producer"}
		dump := Dump(fmt.Errorf("insert: %w", pqErr))

		assert.Empty(t, dump.Code)
		require.NotNil(t, dump.PG)
		assert.Equal(t, "23503", dump.PG.Code)
		assert.Equal(t, "products", dump.PG.Table)
	})

	t.Run("plain", func(t *testing.T) {
		dump := Dump(stdErrors.New("boom"))
		assert.Nil(t, dump.PG)
		_, hasPG := dump.Fields()["pg_code"]
		assert.False(t, hasPG)
	})

	assert.Equal(t, ErrorDump{}, Dump(nil))
}
