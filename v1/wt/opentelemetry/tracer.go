// Copyright (C) 2021 Webtrace. All rights reserved.

// Package opentelemetry provides an opentracing.Tracer backed by an
// OpenTelemetry trace.Tracer, so the shim can report through an OTel SDK.
// Install it with wt.SetTracer(opentelemetry.NewTracer(tracer)).
package opentelemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	ot "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	otlog "github.com/opentracing/opentracing-go/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/webtrace/webtrace-go/v1/wt/opentelemetry"

// NewTracer returns an OpenTracing tracer that records through the provided
// OpenTelemetry tracer.
func NewTracer(tracer trace.Tracer) ot.Tracer {
	return &Tracer{
		tracer:     tracer,
		propagator: propagation.TraceContext{},
	}
}

// NewGlobalTracer returns an OpenTracing tracer backed by the process-global
// OpenTelemetry tracer provider.
func NewGlobalTracer() ot.Tracer {
	return NewTracer(otel.Tracer(instrumentationName))
}

// Tracer reports OpenTracing spans to an OpenTelemetry SDK.
type Tracer struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// StartSpan belongs to the Tracer interface.
func (t *Tracer) StartSpan(operationName string, opts ...ot.StartSpanOption) ot.Span {
	sso := ot.StartSpanOptions{}
	for _, o := range opts {
		o.Apply(&sso)
	}
	return t.startSpanWithOptions(operationName, sso)
}

func (t *Tracer) startSpanWithOptions(operationName string, opts ot.StartSpanOptions) ot.Span {
	// place the referenced context, if any, in a Context for the OTel SDK to
	// pick up as the parent. XXX only handles one parent
	ctx := context.Background()
	for _, ref := range opts.References {
		switch ref.Type {
		case ot.ChildOfRef, ot.FollowsFromRef:
			refCtx := ref.ReferencedContext.(spanContext)
			if refCtx.otelSpan != nil { // referenced spanContext was in-process
				ctx = trace.ContextWithSpan(ctx, refCtx.otelSpan)
			} else if refCtx.remote.IsValid() { // created by Extract()
				ctx = trace.ContextWithRemoteSpanContext(ctx, refCtx.remote)
			}
		}
	}

	var o []trace.SpanStartOption
	if !opts.StartTime.IsZero() {
		o = append(o, trace.WithTimestamp(opts.StartTime))
	}

	_, s := t.tracer.Start(ctx, operationName, o...)
	newSpan := &spanImpl{tracer: t, context: spanContext{otelSpan: s}}

	// add tags, if provided in span options
	for k, v := range opts.Tags {
		newSpan.SetTag(k, v)
	}

	return newSpan
}

// Inject belongs to the Tracer interface. Only the TextMap and HTTPHeaders
// formats are supported; the span context is carried as a W3C traceparent.
func (t *Tracer) Inject(sm ot.SpanContext, format interface{}, carrier interface{}) error {
	sc, ok := sm.(spanContext)
	if !ok {
		return ot.ErrInvalidSpanContext
	}

	switch format {
	case ot.TextMap, ot.HTTPHeaders:
		writer, ok := carrier.(ot.TextMapWriter)
		if !ok {
			return ot.ErrInvalidCarrier
		}
		ctx := trace.ContextWithSpanContext(context.Background(), sc.otelSpanContext())
		t.propagator.Inject(ctx, textMapWriterCarrier{writer})
		return nil
	}
	return ot.ErrUnsupportedFormat
}

// Extract belongs to the Tracer interface.
func (t *Tracer) Extract(format interface{}, carrier interface{}) (ot.SpanContext, error) {
	switch format {
	case ot.TextMap, ot.HTTPHeaders:
		reader, ok := carrier.(ot.TextMapReader)
		if !ok {
			return nil, ot.ErrInvalidCarrier
		}

		// the TraceContext propagator looks keys up in lower case
		m := propagation.MapCarrier{}
		if err := reader.ForeachKey(func(key, val string) error {
			m[strings.ToLower(key)] = val
			return nil
		}); err != nil {
			return nil, err
		}

		sc := trace.SpanContextFromContext(t.propagator.Extract(context.Background(), m))
		if !sc.IsValid() {
			return nil, ot.ErrSpanContextNotFound
		}
		return spanContext{remote: sc}, nil
	}
	return nil, ot.ErrUnsupportedFormat
}

// textMapWriterCarrier adapts an opentracing TextMapWriter to the carrier
// interface the OTel propagator writes to.
type textMapWriterCarrier struct {
	writer ot.TextMapWriter
}

func (c textMapWriterCarrier) Get(key string) string { return "" }
func (c textMapWriterCarrier) Set(key, val string)   { c.writer.Set(key, val) }
func (c textMapWriterCarrier) Keys() []string        { return nil }

type spanContext struct {
	// 1. spanContext created by startSpanWithOptions
	otelSpan trace.Span
	// 2. spanContext created by Extract()
	remote trace.SpanContext

	// The span's associated baggage.
	baggage map[string]string // initialized on first use
}

func (c spanContext) otelSpanContext() trace.SpanContext {
	if c.otelSpan != nil {
		return c.otelSpan.SpanContext()
	}
	return c.remote
}

// ForeachBaggageItem grants access to all baggage items stored in the
// SpanContext. The bool return value indicates if the handler wants to
// continue iterating through the rest of the baggage items.
func (c spanContext) ForeachBaggageItem(handler func(k, v string) bool) {
	for k, v := range c.baggage {
		if !handler(k, v) {
			break
		}
	}
}

// WithBaggageItem returns an entirely new spanContext with the given
// key:value baggage pair set.
func (c spanContext) WithBaggageItem(key, val string) spanContext {
	var newBaggage map[string]string
	if c.baggage == nil {
		newBaggage = map[string]string{key: val}
	} else {
		newBaggage = make(map[string]string, len(c.baggage)+1)
		for k, v := range c.baggage {
			newBaggage[k] = v
		}
		newBaggage[key] = val
	}
	// Use positional parameters so the compiler will help catch new fields.
	return spanContext{c.otelSpan, c.remote, newBaggage}
}

type spanImpl struct {
	tracer     *Tracer
	sync.Mutex // protects the fields below
	context    spanContext
}

// SetBaggageItem sets the KV as a baggage item.
func (s *spanImpl) SetBaggageItem(key, val string) ot.Span {
	s.Lock()
	defer s.Unlock()
	s.context = s.context.WithBaggageItem(key, val)
	return s
}

// BaggageItem returns the baggage item with the provided key.
func (s *spanImpl) BaggageItem(key string) string {
	s.Lock()
	defer s.Unlock()
	return s.context.baggage[key]
}

// LogFields adds the fields to the span as an event.
func (s *spanImpl) LogFields(fields ...otlog.Field) {
	s.Lock()
	defer s.Unlock()
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for _, field := range fields {
		attrs = append(attrs, otAttribute(field.Key(), field.Value()))
	}
	s.context.otelSpan.AddEvent("log", trace.WithAttributes(attrs...))
}

// LogKV adds KVs to the span as an event.
func (s *spanImpl) LogKV(keyVals ...interface{}) {
	s.Lock()
	defer s.Unlock()
	var attrs []attribute.KeyValue
	for i := 0; i+1 < len(keyVals); i += 2 {
		k, ok := keyVals[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, otAttribute(k, keyVals[i+1]))
	}
	s.context.otelSpan.AddEvent("log", trace.WithAttributes(attrs...))
}

// Context returns the span context.
func (s *spanImpl) Context() ot.SpanContext {
	s.Lock()
	defer s.Unlock()
	return s.context
}

// Finish sets the end timestamp and finalizes the span state.
func (s *spanImpl) Finish() {
	s.Lock()
	defer s.Unlock()
	s.context.otelSpan.End()
}

// FinishWithOptions is like Finish() but with explicit control over the
// end timestamp. XXX LogRecords are not mapped
func (s *spanImpl) FinishWithOptions(opts ot.FinishOptions) {
	s.Lock()
	defer s.Unlock()
	if !opts.FinishTime.IsZero() {
		s.context.otelSpan.End(trace.WithTimestamp(opts.FinishTime))
		return
	}
	s.context.otelSpan.End()
}

// Tracer provides the tracer of this span.
func (s *spanImpl) Tracer() ot.Tracer { return s.tracer }

// SetOperationName sets or changes the operation name.
func (s *spanImpl) SetOperationName(operationName string) ot.Span {
	s.Lock()
	defer s.Unlock()
	s.context.otelSpan.SetName(operationName)
	return s
}

// SetTag adds a tag to the span.
func (s *spanImpl) SetTag(key string, value interface{}) ot.Span {
	s.Lock()
	defer s.Unlock()
	switch key {
	case string(ext.Error):
		s.setErrorTag(value)
	default:
		s.context.otelSpan.SetAttributes(otAttribute(key, value))
	}
	return s
}

// setErrorTag maps an OT error tag to the OTel span status.
func (s *spanImpl) setErrorTag(value interface{}) {
	switch v := value.(type) {
	case bool:
		// OpenTracing spec defines bool value
		if v {
			s.context.otelSpan.SetStatus(codes.Error, "error")
		}
	case error:
		// handle error if provided
		s.context.otelSpan.RecordError(v)
		s.context.otelSpan.SetStatus(codes.Error, v.Error())
	case string:
		// error string provided
		s.context.otelSpan.SetStatus(codes.Error, v)
	case fmt.Stringer:
		s.context.otelSpan.SetStatus(codes.Error, v.String())
	case nil:
		// no error, ignore
	default:
		// an unknown error type, assume an error
		s.context.otelSpan.SetStatus(codes.Error, fmt.Sprintf("%v", v))
	}
}

// otAttribute converts an OT tag value to an OTel attribute.
func otAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case bool:
		return attribute.Bool(key, v)
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int32:
		return attribute.Int64(key, int64(v))
	case int64:
		return attribute.Int64(key, v)
	case uint16:
		return attribute.Int64(key, int64(v))
	case float32:
		return attribute.Float64(key, float64(v))
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

// LogEvent logs an event to the span.
//
// Deprecated: this method is deprecated.
func (s *spanImpl) LogEvent(event string) {}

// LogEventWithPayload logs an event with a payload.
//
// Deprecated: this method is deprecated.
func (s *spanImpl) LogEventWithPayload(event string, payload interface{}) {}

// Log logs the LogData.
//
// Deprecated: this method is deprecated.
func (s *spanImpl) Log(data ot.LogData) {}
