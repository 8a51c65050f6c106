package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/marketlink/sellchat/global"
	"github.com/marketlink/sellchat/logger"
	"github.com/marketlink/sellchat/module/chat/model"
	"github.com/marketlink/sellchat/service/metrics"
	"github.com/marketlink/sellchat/tools/safe"
)

// PresenceStore marks identities online/offline in the TTL store.
type PresenceStore interface {
	Online(ctx context.Context, role, id string) error
	Offline(ctx context.Context, role, id string) error
}

// CounterStore owns the durable unseen counters. The gateway increments on
// routing and clears on MARK_AS_SEEN; the query service issues the same
// clear when the receiver fetches history, so the store is the single
// source the live count is read from.
type CounterStore interface {
	Incr(ctx context.Context, receiverRole, conversationID string) (int64, error)
	Clear(ctx context.Context, receiverRole, conversationID string) error
}

// LogProducer appends a record to the durable message log, keyed by
// conversation id.
type LogProducer interface {
	Publish(conversationID string, value []byte) error
}

type Server struct {
	gwID     string
	reg      *Registry
	unseen   *unseenTable
	presence PresenceStore
	counters CounterStore
	producer LogProducer
}

func NewServer(gwID string, presence PresenceStore, counters CounterStore, producer LogProducer) *Server {
	safe.MustNotNil(presence, "presence store")
	safe.MustNotNil(counters, "counter store")
	safe.MustNotNil(producer, "log producer")
	return &Server{
		gwID:     gwID,
		reg:      NewRegistry(),
		unseen:   newUnseenTable(),
		presence: presence,
		counters: counters,
		producer: producer,
	}
}

func (s *Server) GwID() string { return s.gwID }

// register moves a conn from Connected-Unregistered to Registered: the
// registry entry is taken over (silent replace) and the presence flag is
// set with its fixed TTL. Presence write failure is log-and-continue; the
// live path stays up.
func (s *Server) register(c *conn, key, role, id string) {
	c.key = key
	if prev := s.reg.add(key, c); prev != nil {
		logger.Infof("[WS] identity %s re-registered, replacing conn=%s", key, prev.id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.presence.Online(ctx, role, id); err != nil {
		logger.Errorf("[WS] presence online failed key=%s: %v", key, err)
	}
}

// unregister runs on socket close: registry entry removed (only if still
// ours), presence flag deleted unconditionally.
func (s *Server) unregister(c *conn) {
	if c.key == "" {
		return
	}
	s.reg.remove(c.key, c)
	role, id, ok := global.ParseIdentityKey(c.key)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.presence.Offline(ctx, role, id); err != nil {
		logger.Errorf("[WS] presence offline failed key=%s: %v", c.key, err)
	}
}

// handleChat routes one well-formed chat event: bump the receiver's unseen
// count in the counter store, push NEW_MESSAGE + UNSEEN_COUNT_UPDATE to
// the receiver if online, echo NEW_MESSAGE to the sender, and always
// append to the durable log. The store-returned count feeds the live
// frame, so a clear issued by the fetch path is reflected immediately.
func (s *Server) handleChat(ev *ChatEvent, sender *conn) {
	if ev.ToUserID == "" || ev.MessageBody == "" || ev.ConversationID == "" {
		metrics.FramesDropped.WithLabelValues("incomplete").Inc()
		logger.Infof("[WS] drop incomplete chat event conn=%s conv=%q to=%q", sender.id, ev.ConversationID, ev.ToUserID)
		return
	}
	senderRole := ev.SenderType
	if !global.IsValidRole(senderRole) {
		// fall back to the registered identity's role
		if r, _, ok := global.ParseIdentityKey(sender.key); ok {
			senderRole = r
		} else {
			metrics.FramesDropped.WithLabelValues("incomplete").Inc()
			return
		}
	}
	receiverRole := global.OppositeRole(senderRole)
	receiverKey := global.IdentityKey(receiverRole, ev.ToUserID)

	msg := model.Message{
		ConversationID: ev.ConversationID,
		SenderID:       ev.FromUserID,
		SenderType:     senderRole,
		Content:        ev.MessageBody,
		CreatedAt:      time.Now().UTC(),
	}
	payload := MessagePayload{
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderType:     msg.SenderType,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt.Format(time.RFC3339Nano),
	}

	localKey := unseenTableKey(receiverKey, ev.ConversationID)
	ctrCtx, ctrCancel := context.WithTimeout(context.Background(), 2*time.Second)
	count, err := s.counters.Incr(ctrCtx, receiverRole, ev.ConversationID)
	ctrCancel()
	if err != nil {
		// counter store unreachable, continue from the local mirror
		logger.Errorf("[WS] incr unseen failed conv=%s: %v", ev.ConversationID, err)
		count = s.unseen.incr(localKey)
	} else {
		s.unseen.set(localKey, count)
	}

	if rc := s.reg.get(receiverKey); rc != nil {
		rc.push(BuildNewMessage(payload))
		rc.push(BuildUnseenCountUpdate(ev.ConversationID, count))
		metrics.MessagesRouted.WithLabelValues("online").Inc()
	} else {
		// no redelivery queued; the durable log is the backstop
		metrics.MessagesRouted.WithLabelValues("offline").Inc()
	}

	// echo for optimistic-UI confirmation
	sender.push(BuildNewMessage(payload))

	rec, merr := json.Marshal(model.NewLogRecord(msg))
	if merr != nil {
		logger.Errorf("[WS] marshal log record conv=%s: %v", ev.ConversationID, merr)
		return
	}
	if err := s.producer.Publish(ev.ConversationID, rec); err != nil {
		// live delivery already happened; this is a persistence gap, not a
		// delivery gap. Log and continue.
		metrics.LogPublishFailures.Inc()
		logger.Errorf("[WS] log publish failed conv=%s: %v", ev.ConversationID, err)
	}
}

// handleMarkSeen resets the sender's unseen count for the conversation,
// both in the gateway-local table and in the durable counter store.
func (s *Server) handleMarkSeen(ev *ChatEvent, sender *conn) {
	if ev.ConversationID == "" || sender.key == "" {
		metrics.FramesDropped.WithLabelValues("incomplete").Inc()
		return
	}
	s.unseen.clear(unseenTableKey(sender.key, ev.ConversationID))

	role, _, ok := global.ParseIdentityKey(sender.key)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.counters.Clear(ctx, role, ev.ConversationID); err != nil {
		logger.Errorf("[WS] clear unseen failed key=%s conv=%s: %v", sender.key, ev.ConversationID, err)
	}
}
