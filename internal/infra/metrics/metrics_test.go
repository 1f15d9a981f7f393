package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	t.Run("should register every queued collector and tolerate a second call", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		require.NoError(t, Register(reg))
		require.NoError(t, Register(reg))

		SetDBPoolStats(10, 4, 6)
		IncCacheRequest(" Document ", CacheHit)

		families, err := reg.Gather()
		require.NoError(t, err)
		names := make(map[string]bool, len(families))
		for _, f := range families {
			names[f.GetName()] = true
		}
		assert.True(t, names["db_pool_connections"])
		assert.True(t, names["cache_requests_total"])
	})

	t.Run("should normalize label values", func(t *testing.T) {
		before := testutil.ToFloat64(cacheRequestsTotal.WithLabelValues("document", "miss"))
		IncCacheRequest("DOCUMENT", " Miss")
		assert.Equal(t, before+1, testutil.ToFloat64(cacheRequestsTotal.WithLabelValues("document", "miss")))
	})

	t.Run("should export pool gauges per state", func(t *testing.T) {
		SetDBPoolStats(8, 3, 5)
		assert.Equal(t, 5.0, testutil.ToFloat64(dbPoolConnections.WithLabelValues("in_use")))
		assert.Equal(t, 3.0, testutil.ToFloat64(dbPoolConnections.WithLabelValues("idle")))
	})
}
