package core

import (
	"context"

	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
)

// QueryContext is a context that contains a height of the target chain for querying states
type QueryContext interface {
	// Context returns `context.Context`
	Context() context.Context

	// Height returns a height of the target chain for querying a state.
	// A zero height means the latest height.
	Height() clienttypes.Height
}

type queryContext struct {
	ctx    context.Context
	height clienttypes.Height
}

var _ QueryContext = (*queryContext)(nil)

// NewQueryContext returns a new context for querying states
func NewQueryContext(ctx context.Context, height clienttypes.Height) QueryContext {
	return queryContext{ctx: ctx, height: height}
}

// NewLatestQueryContext returns a context that queries the latest state
func NewLatestQueryContext(ctx context.Context) QueryContext {
	return queryContext{ctx: ctx, height: clienttypes.ZeroHeight()}
}

// Context returns `context.Context`
func (qc queryContext) Context() context.Context {
	return qc.ctx
}

// Height returns a height of the target chain for querying a state
func (qc queryContext) Height() clienttypes.Height {
	return qc.height
}
