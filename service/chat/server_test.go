package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/marketlink/sellchat/module/chat/model"
)

type fakePresence struct {
	mu      sync.Mutex
	online  map[string]bool // role_id -> online
	failSet bool
}

func newFakePresence() *fakePresence {
	return &fakePresence{online: make(map[string]bool)}
}

func (f *fakePresence) Online(_ context.Context, role, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return context.DeadlineExceeded
	}
	f.online[role+"_"+id] = true
	return nil
}

func (f *fakePresence) Offline(_ context.Context, role, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.online, role+"_"+id)
	return nil
}

func (f *fakePresence) isOnline(role, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[role+"_"+id]
}

type fakeCounters struct {
	mu       sync.Mutex
	counts   map[string]int64 // role_conv
	cleared  []string         // role_conv
	failIncr bool
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{counts: make(map[string]int64)}
}

func (f *fakeCounters) Incr(_ context.Context, role, conversationID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIncr {
		return 0, context.DeadlineExceeded
	}
	k := role + "_" + conversationID
	f.counts[k]++
	return f.counts[k], nil
}

func (f *fakeCounters) Clear(_ context.Context, role, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counts, role+"_"+conversationID)
	f.cleared = append(f.cleared, role+"_"+conversationID)
	return nil
}

type fakeProducer struct {
	mu      sync.Mutex
	keys    []string
	records []model.LogRecord
	err     error
}

func (f *fakeProducer) Publish(conversationID string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	var rec model.LogRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return err
	}
	f.keys = append(f.keys, conversationID)
	f.records = append(f.records, rec)
	return nil
}

func newTestServer() (*Server, *fakePresence, *fakeCounters, *fakeProducer) {
	pres := newFakePresence()
	ctr := newFakeCounters()
	prod := &fakeProducer{}
	return NewServer("gw-test", pres, ctr, prod), pres, ctr, prod
}

// drain decodes every frame currently queued on the conn.
func drain(t *testing.T, c *conn) []serverFrameRaw {
	t.Helper()
	var out []serverFrameRaw
	for {
		select {
		case b := <-c.send:
			var f serverFrameRaw
			if err := json.Unmarshal(b, &f); err != nil {
				t.Fatalf("bad frame %q: %v", b, err)
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

type serverFrameRaw struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (f serverFrameRaw) message(t *testing.T) MessagePayload {
	t.Helper()
	var p MessagePayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	return p
}

func (f serverFrameRaw) unseen(t *testing.T) unseenPayload {
	t.Helper()
	var p unseenPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	return p
}

func chatFrame(from, to, conv, body, senderType string) []byte {
	b, _ := json.Marshal(map[string]string{
		"fromUserId": from, "toUserId": to, "conversationId": conv,
		"messageBody": body, "senderType": senderType,
	})
	return b
}

func TestRegistrationSetsPresence(t *testing.T) {
	s, pres, _, _ := newTestServer()

	c := newConn(nil)
	s.handleFrame(c, []byte("user_u1"))

	if c.key != "user_u1" {
		t.Fatalf("conn key = %q", c.key)
	}
	if s.reg.get("user_u1") != c {
		t.Fatal("conn not registered")
	}
	if !pres.isOnline("user", "u1") {
		t.Fatal("presence flag not set")
	}

	s.unregister(c)
	if s.reg.get("user_u1") != nil {
		t.Fatal("conn still registered after close")
	}
	if pres.isOnline("user", "u1") {
		t.Fatal("presence flag not cleared on close")
	}
}

func TestChatDeliveredToOnlineReceiverAndEchoed(t *testing.T) {
	s, _, _, prod := newTestServer()

	sender := newConn(nil)
	receiver := newConn(nil)
	s.handleFrame(sender, []byte("user_u1"))
	s.handleFrame(receiver, []byte("seller_s1"))

	s.handleFrame(sender, chatFrame("u1", "s1", "c1", "hi", "user"))

	rFrames := drain(t, receiver)
	if len(rFrames) != 2 {
		t.Fatalf("receiver got %d frames, want 2", len(rFrames))
	}
	if rFrames[0].Type != FrameNewMessage {
		t.Fatalf("first receiver frame = %s", rFrames[0].Type)
	}
	msg := rFrames[0].message(t)
	if msg.Content != "hi" || msg.ConversationID != "c1" || msg.SenderID != "u1" || msg.SenderType != "user" {
		t.Fatalf("NEW_MESSAGE payload %+v", msg)
	}
	if rFrames[1].Type != FrameUnseenCountUpdate {
		t.Fatalf("second receiver frame = %s", rFrames[1].Type)
	}
	if u := rFrames[1].unseen(t); u.ConversationID != "c1" || u.Count != 1 {
		t.Fatalf("UNSEEN_COUNT_UPDATE payload %+v", u)
	}

	sFrames := drain(t, sender)
	if len(sFrames) != 1 || sFrames[0].Type != FrameNewMessage {
		t.Fatalf("sender frames %+v, want one echoed NEW_MESSAGE", sFrames)
	}
	echo := sFrames[0].message(t)
	if echo.Content != msg.Content || echo.ConversationID != msg.ConversationID {
		t.Fatal("echo differs from delivered message")
	}

	if len(prod.records) != 1 || prod.keys[0] != "c1" || prod.records[0].Content != "hi" {
		t.Fatalf("log publish %+v keys=%v", prod.records, prod.keys)
	}
}

func TestChatOfflineReceiverStillEchoesAndPublishes(t *testing.T) {
	s, _, _, prod := newTestServer()

	sender := newConn(nil)
	s.handleFrame(sender, []byte("user_u1"))

	s.handleFrame(sender, chatFrame("u1", "s1", "c1", "hi", "user"))

	sFrames := drain(t, sender)
	if len(sFrames) != 1 || sFrames[0].Type != FrameNewMessage {
		t.Fatalf("sender frames %+v", sFrames)
	}
	if len(prod.records) != 1 {
		t.Fatalf("log records = %d, want 1", len(prod.records))
	}
	if prod.records[0].SenderType != "user" || prod.records[0].ConversationID != "c1" {
		t.Fatalf("log record %+v", prod.records[0])
	}
	if prod.records[0].CreatedAt == "" {
		t.Fatal("log record missing createdAt")
	}
}

func TestChatPublishesEvenWhenReceiverOnline(t *testing.T) {
	s, _, _, prod := newTestServer()

	sender := newConn(nil)
	receiver := newConn(nil)
	s.handleFrame(sender, []byte("user_u1"))
	s.handleFrame(receiver, []byte("seller_s1"))

	s.handleFrame(sender, chatFrame("u1", "s1", "c1", "a", "user"))
	s.handleFrame(sender, chatFrame("u1", "s1", "c1", "b", "user"))

	if len(prod.records) != 2 {
		t.Fatalf("log records = %d, want 2 (always append)", len(prod.records))
	}
}

func TestIncompleteChatEventDropped(t *testing.T) {
	s, _, _, prod := newTestServer()

	sender := newConn(nil)
	receiver := newConn(nil)
	s.handleFrame(sender, []byte("user_u1"))
	s.handleFrame(receiver, []byte("seller_s1"))

	// missing messageBody, missing toUserId, missing conversationId
	s.handleFrame(sender, chatFrame("u1", "s1", "c1", "", "user"))
	s.handleFrame(sender, chatFrame("u1", "", "c1", "hi", "user"))
	s.handleFrame(sender, chatFrame("u1", "s1", "", "hi", "user"))

	if got := len(drain(t, receiver)); got != 0 {
		t.Fatalf("receiver got %d frames, want 0", got)
	}
	if got := len(drain(t, sender)); got != 0 {
		t.Fatalf("sender got %d frames (no echo for dropped events), want 0", got)
	}
	if len(prod.records) != 0 {
		t.Fatal("dropped events must not reach the log")
	}
}

func TestMalformedFrameDroppedConnectionStaysUsable(t *testing.T) {
	s, _, _, prod := newTestServer()

	sender := newConn(nil)
	s.handleFrame(sender, []byte("user_u1"))

	s.handleFrame(sender, []byte("{not json"))
	s.handleFrame(sender, chatFrame("u1", "s1", "c1", "still here", "user"))

	if len(prod.records) != 1 || prod.records[0].Content != "still here" {
		t.Fatalf("log records %+v", prod.records)
	}
}

func TestUnseenMonotonicAndMarkAsSeen(t *testing.T) {
	s, _, ctr, _ := newTestServer()

	sender := newConn(nil)
	receiver := newConn(nil)
	s.handleFrame(sender, []byte("user_u1"))
	s.handleFrame(receiver, []byte("seller_s1"))

	for i := 0; i < 3; i++ {
		s.handleFrame(sender, chatFrame("u1", "s1", "c1", "m", "user"))
	}

	frames := drain(t, receiver)
	var counts []int64
	for _, f := range frames {
		if f.Type == FrameUnseenCountUpdate {
			counts = append(counts, f.unseen(t).Count)
		}
	}
	if len(counts) != 3 || counts[0] != 1 || counts[1] != 2 || counts[2] != 3 {
		t.Fatalf("unseen counts = %v, want [1 2 3]", counts)
	}

	// receiver acknowledges the conversation
	s.handleFrame(receiver, []byte(`{"type":"MARK_AS_SEEN","conversationId":"c1"}`))

	if got := s.unseen.get(unseenTableKey("seller_s1", "c1")); got != 0 {
		t.Fatalf("local unseen after MARK_AS_SEEN = %d, want 0", got)
	}
	// the durable counter gets the same clear the fetch path issues
	if len(ctr.cleared) != 1 || ctr.cleared[0] != "seller_c1" {
		t.Fatalf("counter store clears = %v", ctr.cleared)
	}

	// next message starts from 1 again
	s.handleFrame(sender, chatFrame("u1", "s1", "c1", "m", "user"))
	frames = drain(t, receiver)
	last := frames[len(frames)-1]
	if last.Type != FrameUnseenCountUpdate || last.unseen(t).Count != 1 {
		t.Fatalf("count after clear = %+v, want 1", last)
	}
}

func TestUnseenResetsAfterHistoryFetchClear(t *testing.T) {
	s, _, ctr, _ := newTestServer()

	sender := newConn(nil)
	receiver := newConn(nil)
	s.handleFrame(sender, []byte("user_u1"))
	s.handleFrame(receiver, []byte("seller_s1"))

	s.handleFrame(sender, chatFrame("u1", "s1", "c1", "a", "user"))
	s.handleFrame(sender, chatFrame("u1", "s1", "c1", "b", "user"))
	drain(t, receiver)

	// the query service clears the counter when the receiver fetches
	// history; the gateway was not involved
	if err := ctr.Clear(context.Background(), "seller", "c1"); err != nil {
		t.Fatal(err)
	}

	s.handleFrame(sender, chatFrame("u1", "s1", "c1", "c", "user"))
	frames := drain(t, receiver)
	last := frames[len(frames)-1]
	if last.Type != FrameUnseenCountUpdate || last.unseen(t).Count != 1 {
		t.Fatalf("count after out-of-band clear = %+v, want 1", last)
	}
}

func TestUnseenContinuesFromMirrorOnStoreError(t *testing.T) {
	s, _, ctr, _ := newTestServer()

	sender := newConn(nil)
	receiver := newConn(nil)
	s.handleFrame(sender, []byte("user_u1"))
	s.handleFrame(receiver, []byte("seller_s1"))

	s.handleFrame(sender, chatFrame("u1", "s1", "c1", "a", "user"))
	ctr.failIncr = true
	s.handleFrame(sender, chatFrame("u1", "s1", "c1", "b", "user"))

	frames := drain(t, receiver)
	var counts []int64
	for _, f := range frames {
		if f.Type == FrameUnseenCountUpdate {
			counts = append(counts, f.unseen(t).Count)
		}
	}
	if len(counts) != 2 || counts[0] != 1 || counts[1] != 2 {
		t.Fatalf("unseen counts = %v, want [1 2]", counts)
	}
}

func TestNewServerRequiresDependencies(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("nil producer accepted")
		}
	}()
	NewServer("gw-test", newFakePresence(), newFakeCounters(), nil)
}

func TestLogPublishFailureIsSwallowed(t *testing.T) {
	s, _, _, prod := newTestServer()
	prod.err = context.DeadlineExceeded

	sender := newConn(nil)
	receiver := newConn(nil)
	s.handleFrame(sender, []byte("user_u1"))
	s.handleFrame(receiver, []byte("seller_s1"))

	s.handleFrame(sender, chatFrame("u1", "s1", "c1", "hi", "user"))

	// live delivery already happened; the failure is a persistence gap only
	if got := len(drain(t, receiver)); got != 2 {
		t.Fatalf("receiver got %d frames, want 2", got)
	}
	if got := len(drain(t, sender)); got != 1 {
		t.Fatalf("sender got %d frames, want 1", got)
	}
}

func TestPreRegistrationEventFramesDropped(t *testing.T) {
	s, _, _, prod := newTestServer()

	c := newConn(nil)
	s.handleFrame(c, chatFrame("u1", "s1", "c1", "hi", "user"))

	if c.key != "" {
		t.Fatalf("conn registered from event frame, key=%q", c.key)
	}
	if len(prod.records) != 0 {
		t.Fatal("unregistered conn must not publish")
	}
}
