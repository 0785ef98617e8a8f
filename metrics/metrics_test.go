package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func Test_RecordQuery(t *testing.T) {
	before := testutil.ToFloat64(queryResultsTotal.WithLabelValues("exact"))
	RecordQuery("exact", time.Millisecond, 3)
	assert.Equal(t, before+3, testutil.ToFloat64(queryResultsTotal.WithLabelValues("exact")))
}

func Test_SetGeneration(t *testing.T) {
	SetGeneration("vol", 7, 1200, 0.25)
	assert.Equal(t, 7.0, testutil.ToFloat64(generationID.WithLabelValues("vol")))
	assert.Equal(t, 1200.0, testutil.ToFloat64(generationEntries.WithLabelValues("vol")))
	assert.Equal(t, 0.25, testutil.ToFloat64(filterFillRatio.WithLabelValues("vol")))
}

func Test_RecordBuild_FailureSkipsDuration(t *testing.T) {
	before := testutil.ToFloat64(buildsTotal.WithLabelValues("vol", "full", "failure"))
	RecordBuild("vol", "full", time.Second, false)
	assert.Equal(t, before+1, testutil.ToFloat64(buildsTotal.WithLabelValues("vol", "full", "failure")))
}

func Test_Handler(t *testing.T) {
	RecordCacheLookup(true)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "volindex_query_cache_total"))
}
