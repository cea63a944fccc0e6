// Copyright (C) 2021 Webtrace. All rights reserved.

package wt_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webtrace/webtrace-go/v1/wt"
)

func TestBeginSpanParentage(t *testing.T) {
	rec := setTestTracer(t)

	tr := wt.NewTransaction("GET /orders", "http.server")
	span := tr.BeginSpan("db.query")
	tr.EndSpan(span)
	tr.End()

	spans := rec.GetSpans()
	require.Len(t, spans, 2)
	child, root := spans[0], spans[1]
	assert.Equal(t, "db.query", child.Operation)
	assert.Equal(t, "GET /orders", root.Operation)
	assert.Equal(t, root.Context.SpanID, child.ParentSpanID)
	assert.Equal(t, root.Context.TraceID, child.Context.TraceID)
}

func TestBeginSpanWithDescription(t *testing.T) {
	rec := setTestTracer(t)

	tr := wt.NewTransaction("GET /orders", "http.server")
	span := tr.BeginSpanWithOptions("db.query", wt.SpanOptions{
		Description: "SELECT * FROM orders",
	})
	tr.EndSpan(span)
	tr.End()

	spans := rec.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "SELECT * FROM orders", spans[0].Tags["description"])
}

func TestMakeCurrentRestoredOnEndSpan(t *testing.T) {
	setTestTracer(t)

	tr := wt.NewTransaction("job", "job.run")
	root := wt.ActiveSpan()

	span := tr.BeginSpanWithOptions("db.query", wt.SpanOptions{MakeCurrent: true})
	assert.Equal(t, span, wt.ActiveSpan())

	tr.EndSpan(span)
	assert.Equal(t, root, wt.ActiveSpan())

	tr.End()
}

func TestEndSpanNilIsGuarded(t *testing.T) {
	setTestTracer(t)

	tr := wt.NewTransaction("job", "job.run")
	assert.NotPanics(t, func() { tr.EndSpan(nil) })
	tr.End()
}

func TestEndTwice(t *testing.T) {
	rec := setTestTracer(t)

	tr := wt.NewTransaction("job", "job.run")
	tr.End()
	tr.End()
	assert.Len(t, rec.GetSpans(), 1)
}

func TestBeginSpanAfterEnd(t *testing.T) {
	rec := setTestTracer(t)

	tr := wt.NewTransaction("job", "job.run")
	tr.End()

	span := tr.BeginSpan("late")
	require.NotNil(t, span)
	tr.EndSpan(span)
	assert.Len(t, rec.GetSpans(), 1) // the no-op span was not recorded
}

func TestSetName(t *testing.T) {
	rec := setTestTracer(t)

	tr := wt.NewTransaction("initial", "job.run")

	assert.Error(t, tr.SetName(""))
	assert.Error(t, tr.SetName(strings.Repeat("x", wt.MaxTransactionNameLength+1)))

	require.NoError(t, tr.SetName("renamed"))
	assert.Equal(t, "renamed", tr.Name())
	tr.End()

	require.Len(t, rec.GetSpans(), 1)
	assert.Equal(t, "renamed", rec.GetSpans()[0].Operation)

	assert.Error(t, tr.SetName("too-late"))
}

func TestSetTag(t *testing.T) {
	rec := setTestTracer(t)

	tr := wt.NewTransaction("job", "job.run")
	tr.SetTag("user.id", 42)
	tr.End()
	tr.SetTag("ignored", true)

	require.Len(t, rec.GetSpans(), 1)
	assert.Equal(t, 42, rec.GetSpans()[0].Tags["user.id"])
	assert.NotContains(t, rec.GetSpans()[0].Tags, "ignored")
}

func TestAutoEndFlag(t *testing.T) {
	setTestTracer(t)

	tr := wt.NewTransaction("job", "job.run")
	assert.True(t, tr.AutoEnd())
	tr.SetAutoEnd(false)
	assert.False(t, tr.AutoEnd())
	tr.SetAutoEnd(true)
	assert.True(t, tr.AutoEnd())
	tr.End()
}

func TestNullTransaction(t *testing.T) {
	rec := setTestTracer(t)

	tr := wt.NewNullTransaction()
	assert.False(t, tr.AutoEnd())
	assert.Equal(t, "", tr.Name())
	assert.NoError(t, tr.SetName("ignored"))

	span := tr.BeginSpan("anything")
	require.NotNil(t, span)
	tr.EndSpan(span)
	tr.End()
	assert.Len(t, rec.GetSpans(), 0)

	// the measured function still runs and its value is returned
	ret := tr.Measure("m", "op", func(args ...interface{}) interface{} { return "done" })
	assert.Equal(t, "done", ret)
}
