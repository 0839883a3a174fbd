package permission

import "testing"

func TestStore_DefaultDeny(t *testing.T) {
	s := NewStore(DefaultConfig())
	if got := s.GetState("eip155:1", "eth_sendTransaction"); got != StateDeny {
		t.Errorf("expected deny for unlisted pair, got %s", got)
	}
	if s.Default() != StateDeny {
		t.Errorf("expected default deny, got %s", s.Default())
	}
}

func TestStore_SetAndGet(t *testing.T) {
	s := NewStore(DefaultConfig())

	if err := s.SetState("eip155:1", "eth_accounts", StateAllow); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := s.SetState("eip155:1", "eth_sendTransaction", StateAsk); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	if got := s.GetState("eip155:1", "eth_accounts"); got != StateAllow {
		t.Errorf("expected allow, got %s", got)
	}
	if got := s.GetState("eip155:1", "eth_sendTransaction"); got != StateAsk {
		t.Errorf("expected ask, got %s", got)
	}
	// Same method on a different chain has no entry and falls back.
	if got := s.GetState("eip155:137", "eth_accounts"); got != StateDeny {
		t.Errorf("expected deny on other chain, got %s", got)
	}
}

func TestStore_SetStateValidates(t *testing.T) {
	s := NewStore(DefaultConfig())
	if err := s.SetState("eip155:1", "eth_sign", State("maybe")); err == nil {
		t.Error("expected error for unknown state")
	}
	if err := s.SetState("", "eth_sign", StateAllow); err == nil {
		t.Error("expected error for empty chainID")
	}
	if err := s.SetState("eip155:1", "", StateAllow); err == nil {
		t.Error("expected error for empty method")
	}
}

func TestStore_ConfigurableDefault(t *testing.T) {
	s := NewStore(Config{Default: StateAsk})
	if got := s.GetState("eip155:1", "anything"); got != StateAsk {
		t.Errorf("expected ask default, got %s", got)
	}
}

func TestParseState(t *testing.T) {
	for _, valid := range []string{"allow", "ask", "deny"} {
		st, err := ParseState(valid)
		if err != nil {
			t.Errorf("ParseState(%q) failed: %v", valid, err)
		}
		if string(st) != valid {
			t.Errorf("ParseState(%q) = %q", valid, st)
		}
	}
	if _, err := ParseState("ALLOW"); err == nil {
		t.Error("expected error for uppercase state")
	}
	if _, err := ParseState(""); err == nil {
		t.Error("expected error for empty state")
	}
}

func TestStore_Snapshot(t *testing.T) {
	s := NewStore(DefaultConfig())
	s.SetState("eip155:1", "eth_accounts", StateAllow)

	snap := s.Snapshot()
	if snap["eip155:1"]["eth_accounts"] != StateAllow {
		t.Fatalf("snapshot missing entry: %v", snap)
	}

	// Mutating the snapshot must not touch the store.
	snap["eip155:1"]["eth_accounts"] = StateDeny
	if got := s.GetState("eip155:1", "eth_accounts"); got != StateAllow {
		t.Errorf("snapshot mutation leaked into store: %s", got)
	}
}
