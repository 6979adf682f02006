package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/mergewatch/internal/branchstate"
	"github.com/steveyegge/mergewatch/internal/rmapi"
)

const apiScopeName = "github.com/steveyegge/mergewatch/rmapi"

// InstrumentedAPI wraps rmapi.API with OTel tracing and metrics.
// Every call gets a span and is counted in mergewatch.api.* metrics.
// Use WrapAPI to create one; it returns the wrapped client unchanged when
// telemetry is disabled.
type InstrumentedAPI struct {
	inner  rmapi.API
	tracer trace.Tracer
	calls  metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapAPI returns api decorated with OTel instrumentation.
func WrapAPI(api rmapi.API) rmapi.API {
	if !Enabled() {
		return api
	}
	return newInstrumentedAPI(api, Tracer(apiScopeName), Meter(apiScopeName))
}

func newInstrumentedAPI(api rmapi.API, tracer trace.Tracer, m metric.Meter) *InstrumentedAPI {
	calls, _ := m.Int64Counter("mergewatch.api.calls",
		metric.WithDescription("Total merge service API calls"),
	)
	dur, _ := m.Float64Histogram("mergewatch.api.duration",
		metric.WithDescription("Merge service API call duration"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("mergewatch.api.errors",
		metric.WithDescription("Merge service API calls that returned an error"),
	)
	return &InstrumentedAPI{inner: api, tracer: tracer, calls: calls, dur: dur, errs: errs}
}

func (a *InstrumentedAPI) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("rm.operation", name)}, attrs...)
	ctx, span := a.tracer.Start(ctx, "rmapi."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	a.calls.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (a *InstrumentedAPI) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	a.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func nodeAttrs(bot, node string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("rm.bot", bot),
		attribute.String("rm.node", node),
	}
}

func (a *InstrumentedAPI) BranchState(ctx context.Context, bot, node string) (*branchstate.BranchState, error) {
	attrs := nodeAttrs(bot, node)
	ctx, span, t := a.op(ctx, "branch_state", attrs...)
	bs, err := a.inner.BranchState(ctx, bot, node)
	if bs != nil {
		span.SetAttributes(
			attribute.Bool("rm.blocked", bs.IsBlocked()),
			attribute.Int("rm.queue_length", len(bs.Queue())),
		)
	}
	a.done(ctx, span, t, err, attrs...)
	return bs, err
}

func (a *InstrumentedAPI) VerifyStomp(ctx context.Context, bot, node, target string, cl int) (*rmapi.StompVerification, error) {
	attrs := append(nodeAttrs(bot, node), attribute.String("rm.target", target), attribute.Int("rm.cl", cl))
	ctx, span, t := a.op(ctx, rmapi.OpVerifyStomp, attrs...)
	v, err := a.inner.VerifyStomp(ctx, bot, node, target, cl)
	if v != nil {
		span.SetAttributes(attribute.Bool("rm.valid_request", v.ValidRequest))
	}
	a.done(ctx, span, t, err, attrs...)
	return v, err
}

func (a *InstrumentedAPI) PerformStomp(ctx context.Context, bot, node, target string, cl int) (*rmapi.OpResult, error) {
	attrs := append(nodeAttrs(bot, node), attribute.String("rm.target", target), attribute.Int("rm.cl", cl))
	ctx, span, t := a.op(ctx, rmapi.OpStomp, attrs...)
	res, err := a.inner.PerformStomp(ctx, bot, node, target, cl)
	if res != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
	}
	a.done(ctx, span, t, err, attrs...)
	return res, err
}

func (a *InstrumentedAPI) Reconsider(ctx context.Context, bot, node string, cl int, target, command string) error {
	attrs := append(nodeAttrs(bot, node), attribute.String("rm.target", target), attribute.Int("rm.cl", cl))
	ctx, span, t := a.op(ctx, rmapi.OpReconsider, attrs...)
	err := a.inner.Reconsider(ctx, bot, node, cl, target, command)
	a.done(ctx, span, t, err, attrs...)
	return err
}

func (a *InstrumentedAPI) CreateShelf(ctx context.Context, bot, node, target, workspace string, cl int) error {
	attrs := append(nodeAttrs(bot, node), attribute.String("rm.target", target), attribute.Int("rm.cl", cl))
	ctx, span, t := a.op(ctx, rmapi.OpCreateShelf, attrs...)
	err := a.inner.CreateShelf(ctx, bot, node, target, workspace, cl)
	a.done(ctx, span, t, err, attrs...)
	return err
}
