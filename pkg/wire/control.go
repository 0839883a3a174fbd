package wire

// Control-plane envelopes exchanged on the router's admin subjects.

// WalletAnnouncement registers or removes a wallet node.
type WalletAnnouncement struct {
	Action   string   `json:"action"` // "register" or "unregister"
	ChainID  string   `json:"chainId"`
	WalletID string   `json:"walletId"`
	Version  string   `json:"version,omitempty"`
	Methods  []string `json:"methods,omitempty"`
}

// ApprovalDecision is the approver UI's verdict for one pending approval.
type ApprovalDecision struct {
	RequestID string `json:"requestId"`
	Approved  bool   `json:"approved"`
}

// PermissionChange sets or reads a permission entry.
type PermissionChange struct {
	Action    string `json:"action"` // "set" or "get"
	ChainID   string `json:"chainId"`
	Method    string `json:"method"`
	State     string `json:"state,omitempty"`
	UpdatedBy string `json:"updatedBy,omitempty"`
}

// SessionClosed announces that a session has been torn down.
type SessionClosed struct {
	SessionID string `json:"sessionId"`
}

// Ack is the generic control-plane reply.
type Ack struct {
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// AckOK builds a success Ack.
func AckOK(result interface{}) *Ack {
	return &Ack{Ok: true, Result: result}
}

// AckErr builds a failure Ack from err, preserving RouterError codes.
func AckErr(err error) *Ack {
	resp := ErrorToResponse("", err)
	return &Ack{Ok: false, Error: resp.Error}
}
