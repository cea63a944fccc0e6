// Copyright (C) 2021 Webtrace. All rights reserved.

package wt_test

import (
	"testing"

	"github.com/opentracing/basictracer-go"

	"github.com/webtrace/webtrace-go/v1/wt"
)

// setTestTracer installs a basictracer with an in-memory recorder as the
// wrapped tracer, so tests can assert on the spans the shim finishes.
func setTestTracer(t *testing.T) *basictracer.InMemorySpanRecorder {
	rec := basictracer.NewInMemoryRecorder()
	wt.ResetTracing()
	wt.SetTracer(basictracer.NewWithOptions(basictracer.Options{
		Recorder:       rec,
		ShouldSample:   func(traceID uint64) bool { return true },
		MaxLogsPerSpan: 100,
	}))
	t.Cleanup(wt.ResetTracing)
	return rec
}
