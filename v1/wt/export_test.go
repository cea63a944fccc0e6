// Copyright (C) 2021 Webtrace. All rights reserved.

package wt

// ResetTracing clears the registry state. Only for use in tests.
func ResetTracing() {
	currentTxn = nil
	activeSpan = nil
	tracer = nil
	closed.Store(false)
}
