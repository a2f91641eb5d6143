package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/petrijr/flowstate/internal/executor"
	"github.com/petrijr/flowstate/pkg/api"
	"github.com/petrijr/flowstate/pkg/flowtest"
	"github.com/petrijr/flowstate/pkg/telemetry"
)

var errBoom = errors.New("boom")

func signupFlow() *api.Flow {
	return &api.Flow{
		ID: "signup",
		States: []*api.State{
			{ID: "form", Kind: api.ViewState, Transitions: []*api.Transition{
				{On: api.OnEvent("submit"), Target: api.To("done")},
				{On: api.OnEvent("fail"), Actions: []api.Action{
					func(context.Context, api.RequestContext) (string, error) { return "", errBoom },
				}},
			}},
			{ID: "done", Kind: api.EndState},
		},
	}
}

func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestListener_RecordsSpansAndCounters(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	l, err := telemetry.NewListener(telemetry.Config{TracerProvider: tp, MeterProvider: mp})
	require.NoError(t, err)

	x, err := executor.NewInMemoryExecutor(executor.Config{Listeners: []api.Listener{l}})
	require.NoError(t, err)
	require.NoError(t, x.Register(signupFlow()))
	ext := flowtest.NewMockExternalContext()

	res, err := x.Launch(ctx, "signup", nil, ext)
	require.NoError(t, err)
	_, err = x.Resume(ctx, res.Key, ext.InSession().WithEvent("fail"))
	require.ErrorIs(t, err, errBoom)
	_, err = x.Resume(ctx, res.Key, ext.InSession().WithEvent("submit"))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(3), counterValue(t, rm, "flowstate.requests"))
	assert.Equal(t, int64(1), counterValue(t, rm, "flowstate.sessions.started"))
	assert.Equal(t, int64(1), counterValue(t, rm, "flowstate.sessions.ended"))
	assert.Equal(t, int64(1), counterValue(t, rm, "flowstate.exceptions"))
	assert.Equal(t, int64(1), counterValue(t, rm, "flowstate.pauses"))
	assert.Equal(t, int64(2), counterValue(t, rm, "flowstate.states.entered"))

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	for _, s := range spans {
		assert.Equal(t, "flowstate.request", s.Name())
	}
	assert.Equal(t, "Error", spans[1].Status().Code.String())
	assert.NotEmpty(t, spans[1].Events())
}

func TestInit_WithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := telemetry.Init(context.Background(), "", "flowstate", "test", true)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
