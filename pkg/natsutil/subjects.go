package natsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	// SubjectRequests receives session requests for dispatch.
	SubjectRequests = "wallet.router.v1.requests"
	// SubjectApprovals receives approval decisions from the approver UI.
	SubjectApprovals = "wallet.router.v1.approvals"
	// SubjectRegister receives wallet node announcements.
	SubjectRegister = "wallet.router.v1.register"
	// SubjectSessionClosed receives session teardown notices.
	SubjectSessionClosed = "wallet.router.v1.sessions.closed"
	// SubjectPermissions receives permission set/get operations.
	SubjectPermissions = "wallet.router.v1.permissions"
	// SubjectEvents is the global lifecycle event subject.
	SubjectEvents = "wallet.router.events"
	// SubjectApprovalNotify is where pending-approval notifications go for the approver UI.
	SubjectApprovalNotify = "wallet.router.approvals.pending"
)

// BuildWalletSendSubject builds the subject the router publishes wallet
// requests on for a (chain, wallet) pair.
func BuildWalletSendSubject(chainID, walletID string) string {
	return fmt.Sprintf("wallet.node.%s.%s.in", sanitize(chainID), sanitize(walletID))
}

// BuildWalletRecvSubject builds the subject the router receives wallet
// responses on for a (chain, wallet) pair.
func BuildWalletRecvSubject(chainID, walletID string) string {
	return fmt.Sprintf("wallet.node.%s.%s.out", sanitize(chainID), sanitize(walletID))
}

// BuildEventSubject builds a granular lifecycle event subject.
func BuildEventSubject(chainID, method string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectEvents, sanitize(chainID), sanitize(method))
}

// sanitize makes a token safe for use inside a COMMS subject.
func sanitize(s string) string {
	if s == "" {
		return "_"
	}
	s = strings.ReplaceAll(s, ".", "_")
	return strings.ReplaceAll(s, " ", "_")
}
