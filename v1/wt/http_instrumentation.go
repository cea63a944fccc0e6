// Copyright (C) 2021 Webtrace. All rights reserved.
// Webtrace HTTP instrumentation for Go

package wt

import (
	"fmt"
	"net/http"

	ot "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/webtrace/webtrace-go/v1/wt/internal/filter"
)

// The transaction.op values used by the HTTP instrumentation.
const (
	httpServerOp = "http.server"
	httpClientOp = "http.client"
)

// HTTPHandler wraps an http.HandlerFunc with a per-request transaction,
// returning a new handler that can be used in its place.
//   http.HandleFunc("/path", wt.HTTPHandler(myHandler))
func HTTPHandler(handler func(http.ResponseWriter, *http.Request)) func(http.ResponseWriter, *http.Request) {
	if Disabled() {
		return handler
	}
	// return wrapped HTTP request handler
	return func(w http.ResponseWriter, r *http.Request) {
		if Closed() || !filter.ShouldTrace(r.URL.String()) {
			handler(w, r)
			return
		}

		t, w, r := TransactionFromHTTPRequestResponse(w, r)
		defer t.End()

		defer func() { // catch and report panic, if one occurs
			if err := recover(); err != nil {
				t.SetTag(keyPanic, fmt.Sprintf("%v", err))
				panic(err) // re-raise the panic
			}
		}()
		// Call original HTTP handler
		handler(w, r)
	}
}

// TransactionFromHTTPRequestResponse returns a Transaction, a wrapped
// http.ResponseWriter, and a modified http.Request, given an
// http.ResponseWriter and http.Request. If a distributed trace is described
// in the HTTP request headers, the new transaction continues it. The returned
// http.ResponseWriter should be used in place of the one passed in, in order
// to observe the response's status code.
//   func myHandler(w http.ResponseWriter, r *http.Request) {
//       t, w, r := wt.TransactionFromHTTPRequestResponse(w, r)
//       defer t.End()
//       // ...
//   }
func TransactionFromHTTPRequestResponse(w http.ResponseWriter, r *http.Request) (Transaction, http.ResponseWriter, *http.Request) {
	var refs []ot.StartSpanOption
	if sc, err := globalTracer().Extract(ot.HTTPHeaders, ot.HTTPHeadersCarrier(r.Header)); err == nil {
		refs = append(refs, ot.ChildOf(sc))
	}

	t := newTransaction(r.Method+" "+r.URL.Path, httpServerOp, refs...)
	t.SetTag(string(ext.HTTPMethod), r.Method)
	t.SetTag(string(ext.HTTPUrl), r.URL.String())
	t.SetTag(string(ext.SpanKind), string(ext.SpanKindRPCServerEnum))

	// Associate the transaction with http.Request to expose it to the handler
	r = r.WithContext(NewContext(r.Context(), t))

	wrapper := newResponseWriter(w, t) // wrap writer with response-observing writer
	return t, wrapper, r
}

// HTTPResponseWriter observes an http.ResponseWriter when WriteHeader() or
// Write() is called to check the status code.
type HTTPResponseWriter struct {
	Writer      http.ResponseWriter
	t           Transaction
	StatusCode  int
	WroteHeader bool
}

func (w *HTTPResponseWriter) Write(p []byte) (n int, err error) {
	if !w.WroteHeader {
		w.WriteHeader(w.StatusCode)
	}
	return w.Writer.Write(p)
}

// Header implements the http.ResponseWriter interface.
func (w *HTTPResponseWriter) Header() http.Header { return w.Writer.Header() }

// WriteHeader implements the http.ResponseWriter interface.
func (w *HTTPResponseWriter) WriteHeader(status int) {
	w.StatusCode = status // observe HTTP status code
	w.t.SetTag(string(ext.HTTPStatusCode), uint16(status))
	w.WroteHeader = true
	w.Writer.WriteHeader(status)
}

// newResponseWriter observes the HTTP status code of an HTTP response,
// returning a wrapped http.ResponseWriter.
func newResponseWriter(writer http.ResponseWriter, t Transaction) *HTTPResponseWriter {
	w := &HTTPResponseWriter{Writer: writer, t: t, StatusCode: http.StatusOK}
	t.SetTag(string(ext.HTTPStatusCode), uint16(http.StatusOK))
	return w
}
