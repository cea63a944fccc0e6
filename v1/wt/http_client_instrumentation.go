// Copyright (C) 2021 Webtrace. All rights reserved.
// Webtrace HTTP client instrumentation for Go

package wt

import (
	"net/http"

	"golang.org/x/net/context"

	ot "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

// HTTPClientSpan is a span that aids in reporting HTTP client requests.
//   req, err := http.NewRequest("GET", "http://example.com", nil)
//   l := wt.BeginHTTPClientSpan(ctx, req)
//   defer l.End()
//   // ...
//   resp, err := client.Do(req)
//   l.AddHTTPResponse(resp, err)
//   // ...
type HTTPClientSpan struct {
	span ot.Span
	t    Transaction
}

// BeginHTTPClientSpan stores trace metadata in the headers of an HTTP client
// request, allowing the trace to be continued on the other end. It returns a
// span that must have End() called to benchmark the client request, and
// should have AddHTTPResponse(r, err) called to process response metadata.
func BeginHTTPClientSpan(ctx context.Context, req *http.Request) HTTPClientSpan {
	t := TransactionFromContext(ctx)
	if req == nil {
		return HTTPClientSpan{t: t}
	}

	span := t.BeginSpanWithOptions(httpClientOp, SpanOptions{Description: req.URL.String()})
	ext.HTTPMethod.Set(span, req.Method)
	ext.HTTPUrl.Set(span, req.URL.String())
	ext.SpanKindRPCClient.Set(span)

	// propagate the trace context to the server side
	_ = globalTracer().Inject(span.Context(), ot.HTTPHeaders, ot.HTTPHeadersCarrier(req.Header))
	return HTTPClientSpan{span: span, t: t}
}

// AddHTTPResponse adds information from http.Response to this span.
func (l HTTPClientSpan) AddHTTPResponse(resp *http.Response, err error) {
	if l.span == nil {
		return
	}
	if err != nil {
		ext.Error.Set(l.span, true)
		l.span.LogKV("error.message", err.Error())
	}
	if resp != nil {
		ext.HTTPStatusCode.Set(l.span, uint16(resp.StatusCode))
	}
}

// End finishes the client span and restores the ambient active span to the
// transaction's root.
func (l HTTPClientSpan) End() {
	l.t.EndSpan(l.span)
}
