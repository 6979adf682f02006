package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/steveyegge/mergewatch/internal/branchstate"
	"github.com/steveyegge/mergewatch/internal/rmapi"
)

type stubAPI struct {
	state  *branchstate.BranchState
	err    error
	called []string
}

func (s *stubAPI) BranchState(_ context.Context, _, node string) (*branchstate.BranchState, error) {
	s.called = append(s.called, "state:"+node)
	return s.state, s.err
}

func (s *stubAPI) VerifyStomp(context.Context, string, string, string, int) (*rmapi.StompVerification, error) {
	s.called = append(s.called, "verify")
	return &rmapi.StompVerification{ValidRequest: true}, s.err
}

func (s *stubAPI) PerformStomp(context.Context, string, string, string, int) (*rmapi.OpResult, error) {
	s.called = append(s.called, "stomp")
	return &rmapi.OpResult{StatusCode: 200}, s.err
}

func (s *stubAPI) Reconsider(context.Context, string, string, int, string, string) error {
	s.called = append(s.called, "reconsider")
	return s.err
}

func (s *stubAPI) CreateShelf(context.Context, string, string, string, string, int) error {
	s.called = append(s.called, "shelf")
	return s.err
}

func TestWrapAPIDisabledReturnsInner(t *testing.T) {
	t.Setenv("MERGEWATCH_OTEL_ENABLED", "")
	inner := &stubAPI{}
	assert.Same(t, rmapi.API(inner), WrapAPI(inner))
}

func TestWrapAPIEnabledWraps(t *testing.T) {
	t.Setenv("MERGEWATCH_OTEL_ENABLED", "true")
	_, ok := WrapAPI(&stubAPI{}).(*InstrumentedAPI)
	assert.True(t, ok)
}

func newRecorded(t *testing.T, inner rmapi.API) (*InstrumentedAPI, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})
	return newInstrumentedAPI(inner, tp.Tracer(apiScopeName), mp.Meter(apiScopeName)), spans, reader
}

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestInstrumentedAPIDelegates(t *testing.T) {
	state, err := branchstate.Decode([]byte(`{"branch":{"name":"MAIN","edges":{"DEV":{"lastCl":1}}}}`))
	require.NoError(t, err)
	inner := &stubAPI{state: state}
	api, spans, reader := newRecorded(t, inner)
	ctx := context.Background()

	bs, err := api.BranchState(ctx, "BOT", "MAIN")
	require.NoError(t, err)
	assert.Same(t, state, bs)

	v, err := api.VerifyStomp(ctx, "BOT", "MAIN", "DEV", 3)
	require.NoError(t, err)
	assert.True(t, v.ValidRequest)

	_, err = api.PerformStomp(ctx, "BOT", "MAIN", "DEV", 3)
	require.NoError(t, err)
	require.NoError(t, api.Reconsider(ctx, "BOT", "MAIN", 3, "", ""))
	require.NoError(t, api.CreateShelf(ctx, "BOT", "MAIN", "DEV", "ws", 3))

	assert.Equal(t, []string{"state:MAIN", "verify", "stomp", "reconsider", "shelf"}, inner.called)

	var names []string
	for _, s := range spans.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		"rmapi.branch_state", "rmapi.verifystomp", "rmapi.stompchanges",
		"rmapi.reconsider", "rmapi.create_shelf",
	}, names)
	assert.Equal(t, int64(5), sumOf(t, reader, "mergewatch.api.calls"))
	assert.Equal(t, int64(0), sumOf(t, reader, "mergewatch.api.errors"))
}

func TestInstrumentedAPIRecordsErrors(t *testing.T) {
	boom := errors.New("boom")
	api, spans, reader := newRecorded(t, &stubAPI{err: boom})

	err := api.Reconsider(context.Background(), "BOT", "MAIN", 9, "DEV", "#robomerge null")
	assert.ErrorIs(t, err, boom)

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "boom", ended[0].Status().Description)
	assert.Equal(t, int64(1), sumOf(t, reader, "mergewatch.api.errors"))
}
