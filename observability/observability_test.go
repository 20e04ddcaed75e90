package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_DisabledReturnsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	require.NoError(t, err)

	m.PublishTotal("memory", "widget-created", "ok").Inc()
	m.ConsumeTotal("memory", "widget-created", "handler", "ack").Add(1)
	m.DeadletterTotal("memory", "widget-created", "handler").Inc()
	timer := m.DispatchDuration("memory", "widget-created", "handler").Timer()
	timer.ObserveDuration()
	m.CacheCreatedTotal("memory").Inc()
}

func TestNewMetrics_EnabledTracksBuiltins(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "eventbus_test"})
	require.NoError(t, err)

	m.PublishTotal("memory", "widget-created", "ok").Inc()
	m.CacheCreatedTotal("memory").Add(2)

	real, ok := m.(*metrics)
	require.True(t, ok)

	count := testutil.ToFloat64(real.publishTotal.WithLabelValues("memory", "widget-created", "ok"))
	assert.Equal(t, 1.0, count)

	cacheCount := testutil.ToFloat64(real.cacheCreatedTotal.WithLabelValues("memory"))
	assert.Equal(t, 2.0, cacheCount)
}

func TestNewTracer_DisabledReturnsNoop(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false})
	require.NoError(t, err)

	ctx, span := tr.StartSpan(context.Background(), "publish widget-created")
	assert.NotNil(t, ctx)
	span.SetAttribute("messaging.system", "memory")
	span.RecordError(errors.New("boom"))
	span.End()

	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestNewTracer_EnabledProducesValidSpanContext(t *testing.T) {
	tr, err := NewTracer(TracingConfig{
		Enabled:        true,
		ServiceName:    "eventbus-test",
		ServiceVersion: "0.0.0",
		Environment:    "test",
		AlwaysSample:   true,
	})
	require.NoError(t, err)
	defer tr.Shutdown(context.Background())

	_, span := tr.StartSpan(context.Background(), "consume widget-created", WithSpanKind(SpanKindConsumer))
	defer span.End()

	assert.True(t, span.Context().IsValid())
}
