package context

import (
	stdctx "context"

	"votevault/pkg/config"
	"votevault/pkg/metrics"
)

// OperationContext holds request-scoped data for a single protocol operation.
type OperationContext struct {
	Ctx      stdctx.Context    // Cancellation for blocking store and ledger calls.
	Config   *config.Config    // The process configuration.
	Recorder *metrics.Recorder // The metrics recorder for the current operation.
}

// NewContext creates a new OperationContext bound to the background context.
func NewContext(config *config.Config, rec *metrics.Recorder) *OperationContext {
	return &OperationContext{
		Ctx:      stdctx.Background(),
		Config:   config,
		Recorder: rec,
	}
}

// WithContext returns a copy of the OperationContext using ctx for cancellation.
func (c *OperationContext) WithContext(ctx stdctx.Context) *OperationContext {
	cp := *c
	cp.Ctx = ctx
	return &cp
}

// Context returns the context.Context for blocking calls, never nil.
func (c *OperationContext) Context() stdctx.Context {
	if c.Ctx == nil {
		return stdctx.Background()
	}
	return c.Ctx
}

// Err reports whether the operation has been cancelled.
func (c *OperationContext) Err() error {
	if c.Ctx == nil {
		return nil
	}
	return c.Ctx.Err()
}
