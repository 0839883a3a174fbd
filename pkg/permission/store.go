// Package permission implements the per-chain, per-method tri-state access
// policy consulted before any request is forwarded to a wallet.
package permission

import (
	"fmt"
	"sync"
)

// State is one of the three access tiers for a (chain, method) pair. The
// three states have no ordering; they are names, not levels.
type State string

const (
	// StateAllow lets the request through without asking.
	StateAllow State = "allow"
	// StateAsk requires an external per-request decision before proceeding.
	StateAsk State = "ask"
	// StateDeny rejects the request outright.
	StateDeny State = "deny"
)

// ParseState converts a string to a State, rejecting unknown values.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StateAllow, StateAsk, StateDeny:
		return State(s), nil
	default:
		return "", fmt.Errorf("unknown permission state %q (want allow, ask, or deny)", s)
	}
}

// Config holds store configuration.
type Config struct {
	// Default applies to any (chain, method) pair without an explicit entry.
	Default State
}

// DefaultConfig returns the fail-closed default configuration.
func DefaultConfig() Config {
	return Config{Default: StateDeny}
}

// Store holds the chainID → method → State policy. Reads are synchronous
// snapshot reads; mutation happens only through SetState. An Ask outcome
// never changes the store — persisting a grant is an explicit SetState by
// the embedding application.
type Store struct {
	mu     sync.RWMutex
	def    State
	chains map[string]map[string]State
}

// NewStore creates a Store with the given configuration.
func NewStore(cfg Config) *Store {
	def := cfg.Default
	if def == "" {
		def = StateDeny
	}
	return &Store{
		def:    def,
		chains: make(map[string]map[string]State),
	}
}

// GetState returns the state for (chainID, method), falling back to the
// configured default when no explicit entry exists.
func (s *Store) GetState(chainID, method string) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if methods, ok := s.chains[chainID]; ok {
		if st, ok := methods[method]; ok {
			return st
		}
	}
	return s.def
}

// SetState sets the state for (chainID, method). This is the only mutation
// path into the policy.
func (s *Store) SetState(chainID, method string, state State) error {
	if _, err := ParseState(string(state)); err != nil {
		return err
	}
	if chainID == "" || method == "" {
		return fmt.Errorf("chainID and method are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	methods, ok := s.chains[chainID]
	if !ok {
		methods = make(map[string]State)
		s.chains[chainID] = methods
	}
	methods[method] = state
	return nil
}

// Default returns the fallback state for unlisted pairs.
func (s *Store) Default() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.def
}

// Snapshot returns a copy of all explicit entries, for status reporting and
// persistence.
func (s *Store) Snapshot() map[string]map[string]State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]State, len(s.chains))
	for chain, methods := range s.chains {
		m := make(map[string]State, len(methods))
		for method, st := range methods {
			m[method] = st
		}
		out[chain] = m
	}
	return out
}
