//go:build !integration

package alerting

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-subscription-storefront/internal/config"
	"video-subscription-storefront/internal/infra/logging"
)

func TestNewSentryReporter_WithoutDSN(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	alerter, flush, err := NewSentryReporter(config.SentryConfig{}, &logger)
	require.NoError(t, err)
	defer flush()

	ctx := logging.WithTraceID(context.Background(), "trace-1")
	alerter.Report(ctx, errors.New("ledger write failed"), map[string]string{"order_id": "LUA-1"})

	out := buf.String()
	assert.Contains(t, out, "ledger write failed")
	assert.Contains(t, out, `"order_id":"LUA-1"`)
	assert.Contains(t, out, `"trace_id":"trace-1"`)
	assert.IsType(t, &LogReporter{}, alerter)
}
