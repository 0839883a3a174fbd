// Package router dispatches session requests through an ordered middleware
// chain (permission check, approval gate) to the wallet transport selected
// for the request's chain and wallet.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/wallet-router/pkg/events"
	"github.com/morezero/wallet-router/pkg/permission"
	"github.com/morezero/wallet-router/pkg/wire"
)

const logPrefix = "router:dispatch"

// deniedMessage is used for both explicit denials and approval timeouts so
// callers cannot tell whether the approver acted or the system gave up.
const deniedMessage = "request was not approved"

const (
	defaultRequestTimeout  = 25 * time.Second
	defaultApprovalTimeout = 2 * time.Minute
)

// Config holds router configuration.
type Config struct {
	// RequestTimeout bounds one forwarded wallet call.
	RequestTimeout time.Duration
	// ApprovalTimeout bounds one Ask decision.
	ApprovalTimeout time.Duration
}

// DefaultConfig returns the default router configuration.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:  defaultRequestTimeout,
		ApprovalTimeout: defaultApprovalTimeout,
	}
}

// Router is the orchestrator: it runs each inbound request through the
// middleware chain and forwards approved requests to the resolved wallet.
type Router struct {
	permissions *permission.Store
	ask         permission.AskFunc
	registry    *WalletRegistry
	publisher   events.EventPublisher
	config      Config
	handler     Handler
}

// NewRouterParams holds parameters for NewRouter.
type NewRouterParams struct {
	Permissions *permission.Store
	// Ask is the asynchronous decision callback for Ask-state methods
	// (typically approval.Gate over a Queue). Nil fails closed.
	Ask       permission.AskFunc
	Registry  *WalletRegistry
	Publisher events.EventPublisher
	// Middlewares run before the permission and approval middlewares.
	Middlewares []Middleware
	Config      Config
}

// NewRouter creates a new Router instance.
func NewRouter(params NewRouterParams) *Router {
	cfg := params.Config
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = defaultApprovalTimeout
	}

	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}

	perms := params.Permissions
	if perms == nil {
		perms = permission.NewStore(permission.DefaultConfig())
	}

	reg := params.Registry
	if reg == nil {
		reg = NewWalletRegistry()
	}

	r := &Router{
		permissions: perms,
		ask:         params.Ask,
		registry:    reg,
		publisher:   pub,
		config:      cfg,
	}

	mws := append([]Middleware{}, params.Middlewares...)
	mws = append(mws, PermissionMiddleware(perms), r.approvalMiddleware())
	r.handler = Chain(r.forward, mws...)
	return r
}

// Registry returns the wallet registry for registration wiring.
func (r *Router) Registry() *WalletRegistry { return r.registry }

// Permissions returns the permission store.
func (r *Router) Permissions() *permission.Store { return r.permissions }

// Dispatch routes one request and returns exactly one response. Unrecognized
// methods short-circuit before any permission check or transport call.
func (r *Router) Dispatch(ctx context.Context, session *wire.SessionContext, req *wire.Request) *wire.Response {
	if req == nil || req.ID == "" {
		return wire.ErrResponse("", wire.CodeInvalidRequest, "request id is required")
	}
	chainID := ""
	if session != nil {
		chainID = session.ChainID
	}
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s chain=%s", logPrefix, req.Method, req.ID, chainID))

	if !r.registry.Recognizes(chainID, req.Method) {
		return wire.ErrResponse(req.ID, wire.CodeMethodNotFound,
			fmt.Sprintf("unknown method %q on chain %q", req.Method, chainID))
	}

	r.publish(ctx, events.TypeRequestStarted, session, req, "")
	resp := r.handler(ctx, session, req)
	code := ""
	if resp.Error != nil {
		code = resp.Error.Code
	}
	r.publish(ctx, events.TypeRequestCompleted, session, req, code)
	return resp
}

// approvalMiddleware suspends Ask-gated requests until the decision callback
// settles. It fails closed: callback errors, timeouts, and explicit denials
// all surface as the same PERMISSION_DENIED error.
func (r *Router) approvalMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, session *wire.SessionContext, req *wire.Request) *wire.Response {
			if !askRequired(ctx) {
				return next(ctx, session, req)
			}

			askCtx, cancel := context.WithTimeout(ctx, r.config.ApprovalTimeout)
			defer cancel()

			approved := false
			var err error
			if r.ask != nil {
				approved, err = r.ask(askCtx, session, req)
			} else {
				slog.Warn(fmt.Sprintf("%s - no ask callback configured, denying request %s", logPrefix, req.ID))
			}

			if err != nil {
				if wire.ErrorCode(err) == wire.CodeInvalidState {
					// Duplicate pending id is a caller protocol violation, not
					// a denial; report it as such.
					r.publish(ctx, events.TypeRequestDenied, session, req, wire.CodeInvalidState)
					return wire.ErrorToResponse(req.ID, err)
				}
				slog.Info(fmt.Sprintf("%s - approval failed for request %s: %v", logPrefix, req.ID, err))
				approved = false
			}
			if !approved {
				r.publish(ctx, events.TypeRequestDenied, session, req, wire.CodePermissionDenied)
				return wire.ErrResponse(req.ID, wire.CodePermissionDenied, deniedMessage)
			}

			r.publish(ctx, events.TypeRequestApproved, session, req, "")
			return next(ctx, session, req)
		}
	}
}

// forward resolves the destination wallet and forwards the request through
// its correlator. Transport failures are not retried here.
func (r *Router) forward(ctx context.Context, session *wire.SessionContext, req *wire.Request) *wire.Response {
	chainID, walletID, constraint := "", "", ""
	if session != nil {
		chainID = session.ChainID
		walletID = session.WalletID
		constraint = session.WalletVersion
	}

	entry, err := r.registry.Resolve(chainID, walletID, constraint)
	if err != nil {
		return wire.ErrorToResponse(req.ID, err)
	}

	timeout := r.config.RequestTimeout
	if session != nil && session.TimeoutMs > 0 {
		if d := time.Duration(session.TimeoutMs) * time.Millisecond; d < timeout {
			timeout = d
		}
	}

	resp, err := entry.Caller.Call(ctx, req.Method, req.Params, timeout)
	if err != nil {
		switch wire.ErrorCode(err) {
		case wire.CodeTimeout, wire.CodeTransportDisconnected:
			return wire.ErrorToResponse(req.ID, err)
		default:
			return wire.ErrResponse(req.ID, wire.CodeTransportError, err.Error())
		}
	}

	// The correlator used its own wire-level id on the wallet leg; the
	// response returned to the session carries the session's request id.
	return &wire.Response{ID: req.ID, Ok: resp.Ok, Result: resp.Result, Error: resp.Error}
}

func (r *Router) publish(ctx context.Context, eventType string, session *wire.SessionContext, req *wire.Request, code string) {
	event := &events.RequestEvent{
		Type:      eventType,
		RequestID: req.ID,
		Method:    req.Method,
		Code:      code,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if session != nil {
		event.SessionID = session.SessionID
		event.ChainID = session.ChainID
		event.WalletID = session.WalletID
	}
	if err := r.publisher.PublishRequest(ctx, event); err != nil {
		slog.Debug(fmt.Sprintf("%s - event publish failed (ignored): %v", logPrefix, err))
	}
}
