package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCountersAdvance(t *testing.T) {
	before := testutil.ToFloat64(settlements.WithLabelValues("SETTLED"))
	Settlement("SETTLED")
	require.Equal(t, before+1, testutil.ToFloat64(settlements.WithLabelValues("SETTLED")))

	beforeStale := testutil.ToFloat64(staleSwaps)
	StaleSwaps(0)
	StaleSwaps(3)
	require.Equal(t, beforeStale+3, testutil.ToFloat64(staleSwaps))

	beforeJob := testutil.ToFloat64(jobRuns.WithLabelValues("nav", "true"))
	JobRun("nav", true, 0)
	require.Equal(t, beforeJob+1, testutil.ToFloat64(jobRuns.WithLabelValues("nav", "true")))
}

func TestHandlerServesRegistry(t *testing.T) {
	NavUpdate("applied")
	SettlementCycle(20 * time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "nav_ledger_nav_nav_updates_total"))
	require.True(t, strings.Contains(body, "nav_ledger_settlement_settlement_cycle_duration_seconds"))
}
