package router

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/morezero/wallet-router/pkg/wire"
)

// stubCaller answers every call with a canned response and records what it
// was asked.
type stubCaller struct {
	calls    int
	lastCall string
	resp     *wire.Response
	err      error
}

func (s *stubCaller) Call(ctx context.Context, method string, params json.RawMessage, timeout time.Duration) (*wire.Response, error) {
	s.calls++
	s.lastCall = method
	if s.err != nil {
		return nil, s.err
	}
	if s.resp != nil {
		return s.resp, nil
	}
	return wire.OkResponse("wallet-wire-id", []byte(`"done"`)), nil
}

func mustRegister(t *testing.T, r *WalletRegistry, chainID, walletID, version string, methods ...string) *stubCaller {
	t.Helper()
	c := &stubCaller{}
	if err := r.Register(&WalletEntry{
		ChainID:  chainID,
		WalletID: walletID,
		Version:  version,
		Methods:  methods,
		Caller:   c,
	}); err != nil {
		t.Fatalf("register %s/%s: %v", chainID, walletID, err)
	}
	return c
}

func TestWalletRegistry_RegisterValidation(t *testing.T) {
	r := NewWalletRegistry()

	if err := r.Register(&WalletEntry{WalletID: "w", Version: "1.0.0", Caller: &stubCaller{}}); err == nil {
		t.Error("expected error for missing chainID")
	}
	if err := r.Register(&WalletEntry{ChainID: "c", WalletID: "w", Version: "1.0.0"}); err == nil {
		t.Error("expected error for missing caller")
	}
	if err := r.Register(&WalletEntry{ChainID: "c", WalletID: "w", Version: "not-semver", Caller: &stubCaller{}}); err == nil {
		t.Error("expected error for invalid version")
	}
}

func TestWalletRegistry_ResolvePinned(t *testing.T) {
	r := NewWalletRegistry()
	mustRegister(t, r, "eip155:1", "metamask", "2.1.0", "eth_accounts")

	e, err := r.Resolve("eip155:1", "metamask", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e.WalletID != "metamask" {
		t.Errorf("expected metamask, got %s", e.WalletID)
	}

	if _, err := r.Resolve("eip155:1", "rabby", ""); wire.ErrorCode(err) != wire.CodeWalletNotFound {
		t.Errorf("expected WALLET_NOT_FOUND for unknown wallet, got %v", err)
	}
	if _, err := r.Resolve("solana:mainnet", "metamask", ""); wire.ErrorCode(err) != wire.CodeWalletNotFound {
		t.Errorf("expected WALLET_NOT_FOUND for unknown chain, got %v", err)
	}
}

func TestWalletRegistry_ResolveConstraint(t *testing.T) {
	r := NewWalletRegistry()
	mustRegister(t, r, "eip155:1", "old", "1.4.2", "eth_accounts")
	mustRegister(t, r, "eip155:1", "mid", "1.9.0", "eth_accounts")
	mustRegister(t, r, "eip155:1", "new", "2.0.1", "eth_accounts")

	// No pin, no constraint: highest version wins.
	e, err := r.Resolve("eip155:1", "", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e.WalletID != "new" {
		t.Errorf("expected new, got %s", e.WalletID)
	}

	// Caret range keeps us on the 1.x line, highest match.
	e, err = r.Resolve("eip155:1", "", "^1.2.0")
	if err != nil {
		t.Fatalf("resolve ^1.2.0: %v", err)
	}
	if e.WalletID != "mid" {
		t.Errorf("expected mid for ^1.2.0, got %s", e.WalletID)
	}

	// Pinned wallet must also satisfy the constraint.
	if _, err := r.Resolve("eip155:1", "old", "^2.0.0"); wire.ErrorCode(err) != wire.CodeWalletNotFound {
		t.Errorf("expected WALLET_NOT_FOUND for pinned wallet outside range, got %v", err)
	}

	// Unsatisfiable range.
	if _, err := r.Resolve("eip155:1", "", "^3.0.0"); wire.ErrorCode(err) != wire.CodeWalletNotFound {
		t.Errorf("expected WALLET_NOT_FOUND for ^3.0.0, got %v", err)
	}

	// Garbage constraint is the caller's mistake.
	if _, err := r.Resolve("eip155:1", "", "not a range"); wire.ErrorCode(err) != wire.CodeInvalidRequest {
		t.Errorf("expected INVALID_REQUEST for bad constraint, got %v", err)
	}
}

func TestWalletRegistry_ReannounceReplaces(t *testing.T) {
	r := NewWalletRegistry()
	mustRegister(t, r, "eip155:1", "metamask", "1.0.0", "eth_accounts")
	mustRegister(t, r, "eip155:1", "metamask", "1.1.0", "eth_accounts", "eth_sign")

	e, err := r.Resolve("eip155:1", "metamask", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e.Version != "1.1.0" {
		t.Errorf("expected replaced version 1.1.0, got %s", e.Version)
	}
	if len(e.Methods) != 2 {
		t.Errorf("expected 2 methods, got %d", len(e.Methods))
	}
}

func TestWalletRegistry_Recognizes(t *testing.T) {
	r := NewWalletRegistry()
	mustRegister(t, r, "eip155:1", "metamask", "1.0.0", "eth_accounts", "eth_sendTransaction")

	if !r.Recognizes("eip155:1", "eth_accounts") {
		t.Error("expected eth_accounts to be recognized")
	}
	if r.Recognizes("eip155:1", "eth_mystery") {
		t.Error("expected eth_mystery to be unrecognized")
	}
	if r.Recognizes("solana:mainnet", "eth_accounts") {
		t.Error("expected method to be chain-scoped")
	}
}

func TestWalletRegistry_Unregister(t *testing.T) {
	r := NewWalletRegistry()
	mustRegister(t, r, "eip155:1", "metamask", "1.0.0", "eth_accounts")

	if !r.Unregister("eip155:1", "metamask") {
		t.Error("expected unregister to report existing entry")
	}
	if r.Unregister("eip155:1", "metamask") {
		t.Error("expected second unregister to report missing entry")
	}
	if r.Recognizes("eip155:1", "eth_accounts") {
		t.Error("expected method gone after unregister")
	}
}

func TestWalletRegistry_ListSorted(t *testing.T) {
	r := NewWalletRegistry()
	mustRegister(t, r, "solana:mainnet", "phantom", "1.0.0", "signMessage")
	mustRegister(t, r, "eip155:1", "rabby", "1.0.0", "eth_accounts")
	mustRegister(t, r, "eip155:1", "metamask", "1.0.0", "eth_accounts")

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 wallets, got %d", len(list))
	}
	if list[0].WalletID != "metamask" || list[1].WalletID != "rabby" || list[2].WalletID != "phantom" {
		t.Errorf("unexpected order: %s, %s, %s", list[0].WalletID, list[1].WalletID, list[2].WalletID)
	}
}
