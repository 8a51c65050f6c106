package chat

import "testing"

func TestRegistryReplacesEarlierRegistration(t *testing.T) {
	r := NewRegistry()

	conns := make([]*conn, 5)
	for i := range conns {
		conns[i] = newConn(nil)
		r.add("user_u1", conns[i])
	}

	if got := r.size(); got != 1 {
		t.Fatalf("registry size = %d, want 1", got)
	}
	if got := r.get("user_u1"); got != conns[4] {
		t.Fatalf("lookup returned conn %v, want most recent", got)
	}
}

func TestRegistryRemoveIsPointerCompared(t *testing.T) {
	r := NewRegistry()

	old := newConn(nil)
	r.add("seller_s1", old)
	replacement := newConn(nil)
	r.add("seller_s1", replacement)

	// the replaced socket closing must not evict the replacement
	r.remove("seller_s1", old)
	if got := r.get("seller_s1"); got != replacement {
		t.Fatalf("replacement evicted by stale remove")
	}

	r.remove("seller_s1", replacement)
	if got := r.get("seller_s1"); got != nil {
		t.Fatalf("expected empty registry, got %v", got)
	}
}

func TestRegistryGetUnknownKey(t *testing.T) {
	r := NewRegistry()
	if got := r.get("user_nobody"); got != nil {
		t.Fatalf("expected nil for unknown key, got %v", got)
	}
}
