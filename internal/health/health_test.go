package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLivenessAlwaysOK(t *testing.T) {
	h := NewHandler(zap.NewNop(), Check{Name: "broken", Probe: func(ctx context.Context) error {
		return errors.New("down")
	}})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessReportsFailingCheck(t *testing.T) {
	h := NewHandler(zap.NewNop(),
		Check{Name: "redis", Probe: func(ctx context.Context) error { return nil }},
		Check{Name: "temporal", Probe: func(ctx context.Context) error { return errors.New("unreachable") }},
	)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "temporal")
}

func TestReadinessOKWhenAllPass(t *testing.T) {
	h := NewHandler(zap.NewNop(), Check{Name: "redis", Probe: func(ctx context.Context) error { return nil }})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
