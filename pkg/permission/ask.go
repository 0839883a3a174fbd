package permission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/wallet-router/pkg/wire"
)

const askLogPrefix = "permission:ask"

// AskFunc is the asynchronous decision callback invoked for Ask-state
// methods. It may consult session, origin, and request content. The result
// applies to that one request only.
type AskFunc func(ctx context.Context, session *wire.SessionContext, req *wire.Request) (bool, error)

// EvaluateAsk runs fn with a deadline and a fail-closed contract: an error,
// a timeout, or context expiry all count as Deny, never as Allow.
func EvaluateAsk(ctx context.Context, fn AskFunc, timeout time.Duration, session *wire.SessionContext, req *wire.Request) bool {
	if fn == nil {
		return false
	}
	askCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	approved, err := fn(askCtx, session, req)
	if err != nil {
		slog.Info(fmt.Sprintf("%s - ask callback failed for request %s, denying: %v", askLogPrefix, req.ID, err))
		return false
	}
	if askCtx.Err() != nil {
		slog.Info(fmt.Sprintf("%s - ask callback deadline expired for request %s, denying", askLogPrefix, req.ID))
		return false
	}
	return approved
}
