package router

import (
	"context"

	"github.com/morezero/wallet-router/pkg/permission"
	"github.com/morezero/wallet-router/pkg/wire"
)

// Handler processes one request and returns exactly one response.
type Handler func(ctx context.Context, session *wire.SessionContext, req *wire.Request) *wire.Response

// Middleware wraps a Handler to add cross-cutting behavior. A middleware may
// pass through, short-circuit with a response, or suspend awaiting an
// asynchronous result before calling next.
type Middleware func(next Handler) Handler

// Chain composes middlewares around h. The first middleware is outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// askRequiredKey marks a request whose method is Ask-gated for the approval
// middleware downstream.
type askRequiredKey struct{}

func askRequired(ctx context.Context) bool {
	v, _ := ctx.Value(askRequiredKey{}).(bool)
	return v
}

// PermissionMiddleware consults the store for each request. Allow passes
// through, Deny short-circuits, and Ask defers the decision to the approval
// gate downstream; the store itself never blocks.
func PermissionMiddleware(store *permission.Store) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, session *wire.SessionContext, req *wire.Request) *wire.Response {
			chainID := ""
			if session != nil {
				chainID = session.ChainID
			}
			switch store.GetState(chainID, req.Method) {
			case permission.StateAllow:
				return next(ctx, session, req)
			case permission.StateAsk:
				return next(context.WithValue(ctx, askRequiredKey{}, true), session, req)
			default:
				return wire.ErrResponse(req.ID, wire.CodePermissionDenied,
					"method is not permitted on this chain")
			}
		}
	}
}
