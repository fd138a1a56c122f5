package i965

import "github.com/gogpu/i965/internal/brw"

// ContextOption configures a Context during creation.
//
// Example:
//
//	ctx, err := i965.NewContext(ws,
//	    i965.WithBatchSize(4096),
//	    i965.WithOrderCheck(true),
//	)
type ContextOption func(*contextOptions)

// contextOptions holds optional configuration for Context creation.
type contextOptions struct {
	cfg brw.Config
}

// defaultOptions returns the default context options. Zero sizes select
// the driver defaults.
func defaultOptions() contextOptions {
	return contextOptions{}
}

// WithOrderCheck makes every validation assert that no state atom raised
// a flag that an earlier atom had already consumed. Intended for tests
// and debug builds.
func WithOrderCheck(on bool) ContextOption {
	return func(o *contextOptions) {
		o.cfg.OrderCheck = on
	}
}

// WithPoolSizes sets the byte sizes of the general and surface state
// pools. A zero size keeps the default.
func WithPoolSizes(general, surface uint32) ContextOption {
	return func(o *contextOptions) {
		o.cfg.GeneralPoolSize = general
		o.cfg.SurfacePoolSize = surface
	}
}

// WithBatchSize sets the batch capacity in dwords.
func WithBatchSize(dwords int) ContextOption {
	return func(o *contextOptions) {
		o.cfg.BatchDwords = dwords
	}
}

// WithEmitStateAlways re-emits every command packet on each validation,
// which makes every batch self-contained.
func WithEmitStateAlways(on bool) ContextOption {
	return func(o *contextOptions) {
		o.cfg.EmitStateAlways = on
	}
}
