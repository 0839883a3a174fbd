// Package wire defines the JSON envelopes exchanged between dApp sessions,
// the router, and wallet transports.
package wire

import "encoding/json"

// Request is the JSON envelope for an inbound session request.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	Ctx    *SessionContext `json:"ctx,omitempty"`
}

// Response is the JSON envelope returned to the calling session.
type Response struct {
	ID     string          `json:"id"`
	Ok     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorDetail    `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// SessionContext identifies the calling origin and session. It is immutable
// for the lifetime of a request and passed by reference through the
// middleware chain.
type SessionContext struct {
	SessionID     string `json:"sessionId"`
	Origin        string `json:"origin,omitempty"`
	ChainID       string `json:"chainId"`
	WalletID      string `json:"walletId,omitempty"`
	WalletVersion string `json:"walletVersion,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}
