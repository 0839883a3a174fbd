package approval

import (
	"context"

	"github.com/morezero/wallet-router/pkg/permission"
	"github.com/morezero/wallet-router/pkg/wire"
)

// Gate adapts a Queue to the Ask-callback contract: each invocation creates
// its own pending entry keyed by the request id and suspends until that
// entry is resolved, cancelled, or times out.
func Gate(q *Queue) permission.AskFunc {
	return func(ctx context.Context, session *wire.SessionContext, req *wire.Request) (bool, error) {
		sessionID := ""
		if session != nil {
			sessionID = session.SessionID
		}
		p, err := q.Enqueue(sessionID, session, req)
		if err != nil {
			return false, err
		}
		return p.Wait(ctx)
	}
}
