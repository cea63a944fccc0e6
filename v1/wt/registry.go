// Copyright (C) 2021 Webtrace. All rights reserved.

package wt

import (
	"context"

	ot "github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/webtrace/webtrace-go/v1/wt/internal/config"
	"github.com/webtrace/webtrace-go/v1/wt/internal/log"
)

var (
	errShutdown        = errors.New("tracing has already been shut down")
	errInvalidLogLevel = errors.New("invalid log level")
)

// The process-wide registry: at most one current transaction, plus the
// ambient active span the wrapped tracer would otherwise keep per thread.
// These are plain globals without locking on purpose: the shim assumes a
// single-threaded, single-request-per-process execution model. Only the
// shutdown latch is atomic so that Shutdown stays idempotent even when a
// signal handler races the main goroutine.
var (
	currentTxn Transaction
	activeSpan ot.Span
	tracer     ot.Tracer
	closed     = atomic.NewBool(false)
)

// SetTracer installs the wrapped tracer used for new transactions. When no
// tracer is installed the OpenTracing global tracer is used.
func SetTracer(tr ot.Tracer) { tracer = tr }

func globalTracer() ot.Tracer {
	if tracer != nil {
		return tracer
	}
	return ot.GlobalTracer()
}

// NewTransaction starts a transaction named name, records operation as its
// transaction.op tag, sets it as the sole current transaction and its root
// span as the ambient active span, and returns its handle.
//
// Creating a transaction while another one is current overwrites the slot
// WITHOUT finishing the previous transaction: nesting is not supported and
// the orphaned transaction is the caller's leak. The overwrite is logged at
// WARN level.
func NewTransaction(name, operation string) Transaction {
	return newTransaction(name, operation)
}

func newTransaction(name, operation string, refs ...ot.StartSpanOption) Transaction {
	if Closed() || Disabled() || name == "" {
		return NewNullTransaction()
	}

	tr := globalTracer()
	sopts := append(refs,
		ot.Tag{Key: keyTransactionOp, Value: operation},
		ot.Tag{Key: keyService, Value: config.GetServiceName()})
	t := &transaction{
		tracer: tr,
		root:   tr.StartSpan(name, sopts...),
		name:   name,
	}
	t.autoEnd.Store(config.GetAutoEnd())

	if prev := currentTxn; prev != nil && prev.ok() {
		log.Warningf("transaction %q started while %q is still current; the previous transaction is left unfinished", name, prev.Name())
	}
	currentTxn = t
	activeSpan = t.root
	return t
}

// CurrentTransaction returns the current transaction, or nil if there is
// none.
func CurrentTransaction() Transaction { return currentTxn }

// ActiveSpan returns the ambient active span: the current transaction's root
// span, or a child span begun with MakeCurrent. It returns nil when no
// transaction is current.
func ActiveSpan() ot.Span { return activeSpan }

func setActiveSpan(span ot.Span) { activeSpan = span }

// clearCurrent empties the slot if t occupies it. The slot never holds a
// transaction that has been finished through its handle.
func clearCurrent(t *transaction) {
	if currentTxn == t {
		currentTxn = nil
		activeSpan = nil
	}
}

// EndSpan finishes span through the transaction t, or through the current
// transaction when t is nil. It is a no-op if span is nil or no transaction
// resolves.
func EndSpan(span ot.Span, t Transaction) {
	if span == nil {
		return
	}
	if t == nil {
		if currentTxn == nil {
			return
		}
		t = currentTxn
	}
	t.EndSpan(span)
}

// Shutdown is the process-exit hook: call it before the application exits
// (Go has no finalizer at exit, so cleanup is explicit). If a current
// transaction exists and its auto-end flag is set, it is ended so the
// wrapped tracer can flush it. The call is idempotent; second and later
// calls return an error. After shutdown, NewTransaction hands out null
// transactions.
func Shutdown(ctx context.Context) error {
	if !closed.CAS(false, true) {
		return errShutdown
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if t := currentTxn; t != nil && t.AutoEnd() {
		log.Debugf("shutdown: ending current transaction %q", t.Name())
		t.End()
	}
	return nil
}

// Closed returns whether Shutdown has been called.
func Closed() bool { return closed.Load() }

// Disabled returns whether the shim is disabled by configuration.
func Disabled() bool { return config.GetDisabled() }

// SetLogLevel changes the logging level of the webtrace shim.
// Valid logging levels: DEBUG, INFO, WARN, ERROR
func SetLogLevel(level string) error {
	l, ok := log.ToLogLevel(level)
	if !ok {
		return errInvalidLogLevel
	}
	log.SetLevel(l)
	return nil
}

// GetLogLevel returns the current logging level of the webtrace shim
func GetLogLevel() string {
	return log.LevelStr[log.Level()]
}
