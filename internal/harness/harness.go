// Package harness wires a logger into a cancellable context, the way
// alloc.RunInTest does for the teacher's own state tests. No package in
// this module imports it; the tests and cmd/gcdemo build their logger
// contexts inline.
package harness

import (
	"context"
	"testing"

	"github.com/outofforest/logger"
)

// NewTestContext returns a context carrying a logger, cancelled
// automatically when the test completes.
func NewTestContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	t.Cleanup(cancel)
	return ctx
}

// NewContext returns a context carrying a logger, for use outside tests.
// The caller owns the returned cancel function.
func NewContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
}
