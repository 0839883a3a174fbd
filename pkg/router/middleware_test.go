package router

import (
	"context"
	"testing"

	"github.com/morezero/wallet-router/pkg/permission"
	"github.com/morezero/wallet-router/pkg/wire"
)

func TestChain_Order(t *testing.T) {
	var trace []string
	mk := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, session *wire.SessionContext, req *wire.Request) *wire.Response {
				trace = append(trace, name+":before")
				resp := next(ctx, session, req)
				trace = append(trace, name+":after")
				return resp
			}
		}
	}
	final := func(ctx context.Context, session *wire.SessionContext, req *wire.Request) *wire.Response {
		trace = append(trace, "handler")
		return wire.OkResponse(req.ID, nil)
	}

	h := Chain(final, mk("outer"), mk("inner"))
	h(context.Background(), nil, &wire.Request{ID: "req-1"})

	want := []string{"outer:before", "inner:before", "handler", "inner:after", "outer:after"}
	if len(trace) != len(want) {
		t.Fatalf("expected %d steps, got %v", len(want), trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("step %d: expected %s, got %s", i, want[i], trace[i])
		}
	}
}

func TestPermissionMiddleware_Allow(t *testing.T) {
	store := permission.NewStore(permission.DefaultConfig())
	store.SetState("eip155:1", "eth_accounts", permission.StateAllow)

	called := false
	h := PermissionMiddleware(store)(func(ctx context.Context, session *wire.SessionContext, req *wire.Request) *wire.Response {
		called = true
		if askRequired(ctx) {
			t.Error("allow should not mark the request as ask-gated")
		}
		return wire.OkResponse(req.ID, nil)
	})

	session := &wire.SessionContext{SessionID: "s", ChainID: "eip155:1"}
	resp := h(context.Background(), session, &wire.Request{ID: "req-1", Method: "eth_accounts"})
	if !called {
		t.Fatal("handler was not reached")
	}
	if !resp.Ok {
		t.Errorf("expected ok, got %+v", resp.Error)
	}
}

func TestPermissionMiddleware_Ask(t *testing.T) {
	store := permission.NewStore(permission.DefaultConfig())
	store.SetState("eip155:1", "eth_sendTransaction", permission.StateAsk)

	h := PermissionMiddleware(store)(func(ctx context.Context, session *wire.SessionContext, req *wire.Request) *wire.Response {
		if !askRequired(ctx) {
			t.Error("ask state should mark the request for the approval gate")
		}
		return wire.OkResponse(req.ID, nil)
	})

	session := &wire.SessionContext{SessionID: "s", ChainID: "eip155:1"}
	h(context.Background(), session, &wire.Request{ID: "req-1", Method: "eth_sendTransaction"})
}

func TestPermissionMiddleware_DenyShortCircuits(t *testing.T) {
	store := permission.NewStore(permission.DefaultConfig())
	store.SetState("eip155:1", "eth_sign", permission.StateDeny)

	h := PermissionMiddleware(store)(func(ctx context.Context, session *wire.SessionContext, req *wire.Request) *wire.Response {
		t.Error("handler must not run for denied method")
		return nil
	})

	session := &wire.SessionContext{SessionID: "s", ChainID: "eip155:1"}
	resp := h(context.Background(), session, &wire.Request{ID: "req-1", Method: "eth_sign"})
	if resp.Ok {
		t.Fatal("expected error response")
	}
	if resp.Error.Code != wire.CodePermissionDenied {
		t.Errorf("expected PERMISSION_DENIED, got %s", resp.Error.Code)
	}
}

func TestPermissionMiddleware_DefaultApplies(t *testing.T) {
	// No explicit entry: the store default (deny) decides.
	store := permission.NewStore(permission.DefaultConfig())

	h := PermissionMiddleware(store)(func(ctx context.Context, session *wire.SessionContext, req *wire.Request) *wire.Response {
		t.Error("handler must not run under default deny")
		return nil
	})

	session := &wire.SessionContext{SessionID: "s", ChainID: "eip155:1"}
	resp := h(context.Background(), session, &wire.Request{ID: "req-1", Method: "eth_unlisted"})
	if resp.Error == nil || resp.Error.Code != wire.CodePermissionDenied {
		t.Fatalf("expected PERMISSION_DENIED, got %+v", resp.Error)
	}
}
