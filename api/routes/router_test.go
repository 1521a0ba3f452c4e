package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/backoffice-backend/pkg/config"
	"github.com/angelmondragon/backoffice-backend/pkg/logger"
	"github.com/angelmondragon/backoffice-backend/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

func newTestRouter() http.Handler {
	reg := prometheus.NewRegistry()
	return NewRouter(Deps{
		Config:      &config.Config{App: config.AppConfig{Env: "dev"}},
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:          stubPinger{},
		HTTPMetrics: metrics.NewHTTPMetrics(reg),
		Gatherer:    reg,
	})
}

func serve(h http.Handler, method, target, body string, tenant bool) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if tenant {
		req.Header.Set("X-Tenant-ID", uuid.NewString())
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	h := newTestRouter()

	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/health/live", "", false).Code)

	ready := serve(h, http.MethodGet, "/health/ready", "", false)
	assert.Equal(t, http.StatusOK, ready.Code)
	assert.Contains(t, ready.Body.String(), `"db":"ok"`)
	assert.NotContains(t, ready.Body.String(), "redis")
}

func TestAPIRequiresTenant(t *testing.T) {
	h := newTestRouter()
	resp := serve(h, http.MethodGet, "/api/v1/catalog/search?q=romaine", "", false)
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))
}

func TestPackParseRoute(t *testing.T) {
	h := newTestRouter()
	resp := serve(h, http.MethodPost, "/api/v1/packs/parse", `{"text":"CASE*DON JULIO ANEJO 6/750ML","base_uom":"ml"}`, true)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Contains(t, resp.Body.String(), `"base_factor":"4500"`)
}

func TestRoutesReachControllers(t *testing.T) {
	h := newTestRouter()
	lineID, vendorID, itemID := uuid.NewString(), uuid.NewString(), uuid.NewString()

	// services are unwired in this router, so every matched route answers 500
	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/catalog/search?q=romaine"},
		{http.MethodPost, "/api/v1/invoice-lines/resolve"},
		{http.MethodPost, "/api/v1/invoice-lines/" + lineID + "/resolve"},
		{http.MethodPost, "/api/v1/invoice-lines/" + lineID + "/confirm"},
		{http.MethodPost, "/api/v1/invoice-lines/" + lineID + "/unmap"},
		{http.MethodPost, "/api/v1/vendors/" + vendorID + "/bulk-resolve"},
		{http.MethodGet, "/api/v1/items/" + itemID + "/gl-suggestion"},
		{http.MethodGet, "/api/v1/exports/unmapped-items?format=xlsx"},
		{http.MethodPost, "/api/v1/imports/catalog"},
		{http.MethodGet, "/api/v1/reports/gl-compliance"},
		{http.MethodGet, "/api/v1/alias-conflicts"},
	}
	for _, rt := range routes {
		resp := serve(h, rt.method, rt.path, "", true)
		assert.Equal(t, http.StatusInternalServerError, resp.Code, "%s %s", rt.method, rt.path)
	}

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/v1/orders", "", true).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h, http.MethodGet, "/api/v1/invoice-lines/resolve", "", true).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter()
	serve(h, http.MethodGet, "/health/live", "", false)

	resp := serve(h, http.MethodGet, "/metrics", "", false)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "backoffice_http_requests_total")
}
