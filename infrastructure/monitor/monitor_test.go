package monitor

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupAndSetCounters(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordLookup("hit")
	m.RecordLookup("hit")
	m.RecordLookup("miss")
	m.RecordSet(true)
	m.RecordSet(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.lookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sets.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sets.WithLabelValues("invalid")))
}

func TestRecordLoad(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordLoad(0.01, 3, nil)
	m.RecordLoad(0.02, 0, errors.New("io"))
	m.SetRecordCount(42)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.loads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loads.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.parseErrors))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.records))
}

func TestFeedCounters(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordFeedConnection()
	m.RecordFeedRecord(true)
	m.RecordFeedRecord(false)
	m.RecordFeedRecord(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.feedConnects))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.feedMessages.WithLabelValues("rejected")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(DefaultConfig())
	m.SetRecordCount(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "stock_lookup_records 7"))
}
