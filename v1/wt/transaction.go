// Copyright (C) 2021 Webtrace. All rights reserved.

package wt

import (
	ot "github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

const (
	// MaxTransactionNameLength defines the maximum length of a user-provided
	// transaction name.
	MaxTransactionNameLength = 255
)

// The tag keys reported on spans started through the shim.
const (
	keyDescription   = "description"
	keyTransactionOp = "transaction.op"
	keyService       = "service.name"
	keyPanic         = "panic"
)

// Transaction wraps the root span of a trace for one logical operation of the
// web application. It is a bookkeeping handle: the wrapped tracer owns the
// span data, sampling and transmission; the handle pairs child span
// lifecycles with the transaction and carries the auto-end-on-shutdown flag.
type Transaction interface {
	// BeginSpan starts a child span under this transaction's root span.
	BeginSpan(operation string) ot.Span

	// BeginSpanWithOptions starts a new child span with the provided options.
	BeginSpanWithOptions(operation string, opts SpanOptions) ot.Span

	// EndSpan finishes the given span and restores the ambient active span to
	// this transaction's root span. A nil span is a guarded no-op. The span
	// must have been started through this transaction; no ownership check is
	// performed.
	EndSpan(span ot.Span)

	// End finishes the underlying root span. If this transaction is the
	// registry's current transaction, the slot is cleared first. Ending an
	// already-ended transaction is a no-op.
	End()

	// Measure runs fn inside a child span of this transaction. See the
	// package-level Measure function.
	Measure(name, operation string, fn MeasuredFunc, args ...interface{}) interface{}

	// SetAutoEnd controls whether Shutdown finishes this transaction if it is
	// still current at process exit.
	SetAutoEnd(autoEnd bool)

	// AutoEnd returns the auto-end-on-shutdown flag.
	AutoEnd() bool

	// SetName renames the transaction.
	SetName(name string) error

	// Name returns the transaction name.
	Name() string

	// SetTag sets a tag on the root span.
	SetTag(key string, value interface{})

	ok() bool
}

// SpanOptions defines the options for creating a child span.
type SpanOptions struct {
	// Description is attached to the span as a tag, for backends that
	// distinguish a short operation name from a longer description.
	Description string

	// MakeCurrent marks the new span as the ambient active span. EndSpan
	// restores the ambient active span to the transaction's root.
	MakeCurrent bool
}

// transaction is the tracing handle. It is not safe for concurrent use; the
// shim assumes single-threaded, request-scoped execution throughout.
type transaction struct {
	tracer  ot.Tracer
	root    ot.Span
	name    string
	autoEnd atomic.Bool
	ended   bool
}

func (t *transaction) ok() bool { return t != nil && !t.ended }

// BeginSpan starts a child span under this transaction's root span.
func (t *transaction) BeginSpan(operation string) ot.Span {
	return t.BeginSpanWithOptions(operation, SpanOptions{})
}

// BeginSpanWithOptions starts a new child span with the provided options.
func (t *transaction) BeginSpanWithOptions(operation string, opts SpanOptions) ot.Span {
	if !t.ok() {
		return noopTracer.StartSpan(operation)
	}

	sopts := []ot.StartSpanOption{ot.ChildOf(t.root.Context())}
	if opts.Description != "" {
		sopts = append(sopts, ot.Tag{Key: keyDescription, Value: opts.Description})
	}
	span := t.tracer.StartSpan(operation, sopts...)
	if opts.MakeCurrent {
		setActiveSpan(span)
	}
	return span
}

// EndSpan finishes the span and restores the ambient active span to the root.
func (t *transaction) EndSpan(span ot.Span) {
	if span == nil { // guarded no-op
		return
	}
	span.Finish()
	if t.ok() {
		setActiveSpan(t.root)
	}
}

// End finishes the root span, clearing the current-transaction slot first if
// this transaction occupies it.
func (t *transaction) End() {
	if !t.ok() {
		return
	}
	clearCurrent(t)
	t.root.Finish()
	t.ended = true
}

// SetAutoEnd controls the shutdown cleanup for this transaction.
func (t *transaction) SetAutoEnd(autoEnd bool) { t.autoEnd.Store(autoEnd) }

// AutoEnd returns the auto-end-on-shutdown flag.
func (t *transaction) AutoEnd() bool { return t.autoEnd.Load() }

// SetName renames the transaction.
func (t *transaction) SetName(name string) error {
	if !t.ok() {
		return errors.New("failed to set transaction name, invalid transaction")
	}
	if name == "" || len(name) > MaxTransactionNameLength {
		return errors.New("valid length for transaction name: 1~255")
	}
	t.name = name
	t.root.SetOperationName(name)
	return nil
}

// Name returns the transaction name.
func (t *transaction) Name() string { return t.name }

// SetTag sets a tag on the root span.
func (t *transaction) SetTag(key string, value interface{}) {
	if t.ok() {
		t.root.SetTag(key, value)
	}
}

var noopTracer ot.NoopTracer

// A nullTransaction is not tracing. It is handed out when the shim is
// disabled or shut down; all methods are safe no-ops.
type nullTransaction struct{}

func (t *nullTransaction) BeginSpan(operation string) ot.Span {
	return noopTracer.StartSpan(operation)
}
func (t *nullTransaction) BeginSpanWithOptions(operation string, opts SpanOptions) ot.Span {
	return noopTracer.StartSpan(operation)
}
func (t *nullTransaction) EndSpan(span ot.Span)          {}
func (t *nullTransaction) End()                          {}
func (t *nullTransaction) SetAutoEnd(autoEnd bool)       {}
func (t *nullTransaction) AutoEnd() bool                 { return false }
func (t *nullTransaction) SetName(name string) error     { return nil }
func (t *nullTransaction) Name() string                  { return "" }
func (t *nullTransaction) SetTag(key string, value interface{}) {}
func (t *nullTransaction) ok() bool                      { return false }

func (t *nullTransaction) Measure(name, operation string, fn MeasuredFunc, args ...interface{}) interface{} {
	return Measure(t, name, operation, fn, args...)
}

// NewNullTransaction returns a transaction handle that is not tracing.
func NewNullTransaction() Transaction { return &nullTransaction{} }
