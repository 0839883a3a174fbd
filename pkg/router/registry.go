package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	masterminds "github.com/Masterminds/semver/v3"

	"github.com/morezero/wallet-router/pkg/wire"
)

const registryLogPrefix = "router:registry"

// Caller is the awaitable call surface of a wallet transport's correlator.
type Caller interface {
	Call(ctx context.Context, method string, params json.RawMessage, timeout time.Duration) (*wire.Response, error)
}

// WalletEntry describes one registered wallet endpoint.
type WalletEntry struct {
	ChainID  string
	WalletID string
	Version  string
	Methods  []string
	Caller   Caller
}

// WalletInfo is the status-reporting view of a registered wallet.
type WalletInfo struct {
	ChainID  string   `json:"chainId"`
	WalletID string   `json:"walletId"`
	Version  string   `json:"version"`
	Methods  []string `json:"methods"`
}

// WalletRegistry maps (chainID, walletID) to live wallet transports and
// resolves version constraints when a session does not pin a wallet.
type WalletRegistry struct {
	mu     sync.RWMutex
	chains map[string]map[string]*WalletEntry
}

// NewWalletRegistry creates an empty registry.
func NewWalletRegistry() *WalletRegistry {
	return &WalletRegistry{chains: make(map[string]map[string]*WalletEntry)}
}

// Register adds or replaces a wallet entry. The version must parse as
// semver; re-announcing an existing (chain, wallet) pair replaces it.
func (r *WalletRegistry) Register(e *WalletEntry) error {
	if e.ChainID == "" || e.WalletID == "" {
		return fmt.Errorf("%s - chainID and walletID are required", registryLogPrefix)
	}
	if e.Caller == nil {
		return fmt.Errorf("%s - wallet %s/%s has no transport", registryLogPrefix, e.ChainID, e.WalletID)
	}
	if _, err := masterminds.NewVersion(e.Version); err != nil {
		return fmt.Errorf("%s - wallet %s/%s has invalid version %q: %w", registryLogPrefix, e.ChainID, e.WalletID, e.Version, err)
	}

	r.mu.Lock()
	wallets, ok := r.chains[e.ChainID]
	if !ok {
		wallets = make(map[string]*WalletEntry)
		r.chains[e.ChainID] = wallets
	}
	wallets[e.WalletID] = e
	r.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - registered wallet chain=%s wallet=%s version=%s methods=%d",
		registryLogPrefix, e.ChainID, e.WalletID, e.Version, len(e.Methods)))
	return nil
}

// Unregister removes a wallet entry, reporting whether it existed.
func (r *WalletRegistry) Unregister(chainID, walletID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	wallets, ok := r.chains[chainID]
	if !ok {
		return false
	}
	if _, ok := wallets[walletID]; !ok {
		return false
	}
	delete(wallets, walletID)
	if len(wallets) == 0 {
		delete(r.chains, chainID)
	}
	return true
}

// Resolve finds the wallet for (chainID, walletID). With an empty walletID
// it picks the highest-version wallet on the chain satisfying constraint
// (a SemVer range such as "^1.2.0"; empty matches any version).
func (r *WalletRegistry) Resolve(chainID, walletID, constraint string) (*WalletEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wallets, ok := r.chains[chainID]
	if !ok || len(wallets) == 0 {
		return nil, wire.NewRouterError(wire.CodeWalletNotFound,
			fmt.Sprintf("no wallet registered for chain %q", chainID))
	}

	var c *masterminds.Constraints
	if constraint != "" {
		parsed, err := masterminds.NewConstraint(constraint)
		if err != nil {
			return nil, wire.NewRouterError(wire.CodeInvalidRequest,
				fmt.Sprintf("invalid wallet version constraint %q", constraint))
		}
		c = parsed
	}

	if walletID != "" {
		e, ok := wallets[walletID]
		if !ok {
			return nil, wire.NewRouterError(wire.CodeWalletNotFound,
				fmt.Sprintf("wallet %q is not registered for chain %q", walletID, chainID))
		}
		if c != nil && !satisfies(c, e.Version) {
			return nil, wire.NewRouterError(wire.CodeWalletNotFound,
				fmt.Sprintf("wallet %q version %s does not satisfy %q", walletID, e.Version, constraint))
		}
		return e, nil
	}

	var candidates []*WalletEntry
	for _, e := range wallets {
		if c == nil || satisfies(c, e.Version) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, wire.NewRouterError(wire.CodeWalletNotFound,
			fmt.Sprintf("no wallet on chain %q satisfies %q", chainID, constraint))
	}
	sortByVersionDesc(candidates)
	return candidates[0], nil
}

// Recognizes reports whether any wallet on chainID handles method.
func (r *WalletRegistry) Recognizes(chainID, method string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.chains[chainID] {
		for _, m := range e.Methods {
			if m == method {
				return true
			}
		}
	}
	return false
}

// List returns all registered wallets sorted by chain then wallet id.
func (r *WalletRegistry) List() []WalletInfo {
	r.mu.RLock()
	var out []WalletInfo
	for _, wallets := range r.chains {
		for _, e := range wallets {
			out = append(out, WalletInfo{
				ChainID:  e.ChainID,
				WalletID: e.WalletID,
				Version:  e.Version,
				Methods:  append([]string(nil), e.Methods...),
			})
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChainID != out[j].ChainID {
			return out[i].ChainID < out[j].ChainID
		}
		return out[i].WalletID < out[j].WalletID
	})
	return out
}

func satisfies(c *masterminds.Constraints, version string) bool {
	v, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}
	return c.Check(v)
}

func sortByVersionDesc(entries []*WalletEntry) {
	sort.Slice(entries, func(i, j int) bool {
		vi, err1 := masterminds.NewVersion(entries[i].Version)
		vj, err2 := masterminds.NewVersion(entries[j].Version)
		if err1 != nil || err2 != nil {
			return false
		}
		return vi.GreaterThan(vj)
	})
}
