package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/graph"
	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/service"
)

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	store := graph.NewMemoryStore()
	require.NoError(t, graph.Seed(store))

	engine := service.NewReconciliationService(store,
		service.DefaultFraudConfig(), service.DefaultRunConfig(), zap.NewNop())
	api := NewAPIHandler(engine, nil, zap.NewNop())

	gin.SetMode(gin.TestMode)
	router := gin.New()
	v1 := router.Group("/api/v1")
	v1.POST("/reconcile", api.Reconcile)
	v1.GET("/invoices", api.ListInvoices)
	v1.GET("/invoices/:id", api.GetInvoice)
	v1.GET("/vendors", api.ListVendors)
	v1.GET("/vendors/:gstin", api.GetVendor)
	v1.GET("/fraud/summary", api.FraudSummary)
	v1.GET("/fraud/circular-trading", api.CircularTrading)
	v1.GET("/fraud/suspicious-clusters", api.SuspiciousClusters)
	v1.GET("/dashboard/summary", api.DashboardSummary)
	return router
}

func do(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var payload map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	}
	return w, payload
}

func TestReadEndpointsBeforeFirstRun(t *testing.T) {
	router := testRouter(t)
	for _, path := range []string{
		"/api/v1/invoices",
		"/api/v1/vendors",
		"/api/v1/fraud/summary",
		"/api/v1/dashboard/summary",
	} {
		w, payload := do(t, router, http.MethodGet, path, "")
		if w.Code != http.StatusConflict {
			t.Errorf("GET %s = %d, want 409 before first run", path, w.Code)
		}
		require.Contains(t, payload, "error")
	}
}

func TestReconcileThenRead(t *testing.T) {
	router := testRouter(t)

	w, payload := do(t, router, http.MethodPost, "/api/v1/reconcile", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, payload["run_id"])
	require.EqualValues(t, 24, payload["scored"])

	w, payload = do(t, router, http.MethodGet, "/api/v1/invoices", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 24, payload["count"])

	// Status filter narrows to the clean tier.
	w, payload = do(t, router, http.MethodGet, "/api/v1/invoices?status=MATCHED", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 6, payload["count"])

	w, payload = do(t, router, http.MethodGet, "/api/v1/vendors", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 8, payload["count"])

	w, payload = do(t, router, http.MethodGet, "/api/v1/fraud/circular-trading", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, payload["count"])

	w, payload = do(t, router, http.MethodGet, "/api/v1/fraud/suspicious-clusters", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 1, payload["count"])

	w, payload = do(t, router, http.MethodGet, "/api/v1/dashboard/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	summary, ok := payload["summary"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 24, summary["total_invoices"])
}

func TestGetInvoiceDetail(t *testing.T) {
	router := testRouter(t)
	do(t, router, http.MethodPost, "/api/v1/reconcile", "")

	w, payload := do(t, router, http.MethodGet, "/api/v1/invoices/INV-001", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, payload, "result")
	require.Contains(t, payload, "audit")

	w, _ = do(t, router, http.MethodGet, "/api/v1/invoices/NOPE", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetVendorDetail(t *testing.T) {
	router := testRouter(t)
	do(t, router, http.MethodPost, "/api/v1/reconcile", "")

	w, payload := do(t, router, http.MethodGet, "/api/v1/vendors/07AABCS1018A1Z4", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, payload, "vendor")
	invoices, ok := payload["invoices"].([]any)
	require.True(t, ok)
	require.Len(t, invoices, 3)

	w, _ = do(t, router, http.MethodGet, "/api/v1/vendors/00NOPE0000A0Z0", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestReconcilePeriodFilter(t *testing.T) {
	router := testRouter(t)

	w, payload := do(t, router, http.MethodPost, "/api/v1/reconcile", `{"period":"2024-10"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 8, payload["scored"])

	w, payload = do(t, router, http.MethodGet, "/api/v1/invoices", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 8, payload["count"])
}

func TestReconcileRejectsMalformedBody(t *testing.T) {
	router := testRouter(t)
	w, _ := do(t, router, http.MethodPost, "/api/v1/reconcile", `{"period":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
