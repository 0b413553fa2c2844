package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lending/internal/errs"
	"lending/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveOperationOutcomes(t *testing.T) {
	m := New()
	m.ObserveOperation(models.OpDeposit, nil, time.Millisecond)
	m.ObserveOperation(models.OpBorrow, fmt.Errorf("x: %w", errs.ErrInsufficientCollateral), time.Millisecond)
	m.ObserveOperation(models.OpBorrow, errs.ErrStalePrice, time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("deposit", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("borrow", "denied")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("borrow", "stale_price")))
}

func TestObservePool(t *testing.T) {
	m := New()
	m.ObservePool(models.Pool{AssetID: "usdc", TotalDeposited: 1000, TotalBorrowed: 400})
	require.Equal(t, 400.0, testutil.ToFloat64(m.poolTotals.WithLabelValues("usdc", "borrowed")))

	m.ForgetPool("usdc")
	require.Equal(t, 0, testutil.CollectAndCount(m.poolTotals))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveOperation(models.OpRepay, nil, time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), `lending_operations_total{kind="repay",outcome="ok"} 1`))
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	m := New()
	handler := m.HTTP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, 1, testutil.CollectAndCount(m.httpLatency))
}
