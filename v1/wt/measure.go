// Copyright (C) 2021 Webtrace. All rights reserved.

package wt

// MeasuredFunc is a function whose execution is measured as a span. The args
// passed to Measure are handed through unchanged and the return value is
// captured for the caller.
type MeasuredFunc func(args ...interface{}) interface{}

// Measure runs fn inside a child span named after operation. If t is nil a
// transaction named name is created first and ended after fn returns;
// an existing transaction is left open. The span is ended and the ambient
// active span restored before the captured return value is handed back.
//
// There is no panic recovery: if fn panics, the span and transaction end
// calls are skipped and the unfinished span leaks into the wrapped tracer.
// Cleaning up after a panicking measured function is the caller's
// responsibility.
func Measure(t Transaction, name, operation string, fn MeasuredFunc, args ...interface{}) interface{} {
	created := false
	if t == nil {
		t = NewTransaction(name, operation)
		created = true
	}

	span := t.BeginSpan(operation)
	ret := fn(args...)
	t.EndSpan(span)
	if created {
		t.End()
	}
	return ret
}

// Measure runs fn inside a child span of this transaction.
func (t *transaction) Measure(name, operation string, fn MeasuredFunc, args ...interface{}) interface{} {
	return Measure(t, name, operation, fn, args...)
}
