// Package events defines lifecycle event types and publisher interfaces for
// request dispatch observability. Events are advisory and never affect
// dispatch correctness.
package events

// Lifecycle event types.
const (
	TypeRequestStarted   = "request.started"
	TypeRequestApproved  = "request.approved"
	TypeRequestDenied    = "request.denied"
	TypeRequestCompleted = "request.completed"
)

// RequestEvent is emitted as a request moves through the dispatcher.
type RequestEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	RequestID string `json:"requestId"`
	ChainID   string `json:"chainId,omitempty"`
	WalletID  string `json:"walletId,omitempty"`
	Method    string `json:"method"`
	Code      string `json:"code,omitempty"`
	Timestamp string `json:"timestamp"`
}
