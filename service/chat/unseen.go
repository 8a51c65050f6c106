package chat

import "sync"

// unseenTable mirrors the counter store per (receiver, conversation),
// keyed by "<receiverIdentityKey>_<conversationId>". The store owns the
// count; the mirror is synced on every routed message and only continues
// the sequence on its own while the store is unreachable.
type unseenTable struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newUnseenTable() *unseenTable {
	return &unseenTable{counts: make(map[string]int64)}
}

func unseenTableKey(identityKey, conversationID string) string {
	return identityKey + "_" + conversationID
}

func (t *unseenTable) incr(key string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[key]++
	return t.counts[key]
}

func (t *unseenTable) set(key string, n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[key] = n
}

func (t *unseenTable) get(key string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[key]
}

func (t *unseenTable) clear(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, key)
}
