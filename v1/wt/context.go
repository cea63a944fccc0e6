// Copyright (C) 2021 Webtrace. All rights reserved.

package wt

import (
	"context"
)

type contextKeyT interface{}

var contextKey = contextKeyT("github.com/webtrace/webtrace-go/v1/wt.Transaction")

// NewContext returns a copy of the parent context and associates it with a
// Transaction.
func NewContext(ctx context.Context, t Transaction) context.Context {
	return context.WithValue(ctx, contextKey, t)
}

// TransactionFromContext returns the Transaction bound to the context, or a
// null transaction if there is none.
func TransactionFromContext(ctx context.Context) Transaction {
	t, ok := fromContext(ctx)
	if !ok {
		return NewNullTransaction()
	}
	return t
}

func fromContext(ctx context.Context) (t Transaction, ok bool) {
	if ctx == nil {
		return nil, false
	}
	t, ok = ctx.Value(contextKey).(Transaction)
	return
}

// if context contains a valid Transaction, run f
func runCtx(ctx context.Context, f func(t Transaction)) {
	if t, ok := fromContext(ctx); ok {
		f(t)
	}
}

// EndTransaction ends a Transaction, given a context that was associated
// with it.
func EndTransaction(ctx context.Context) { runCtx(ctx, func(t Transaction) { t.End() }) }
