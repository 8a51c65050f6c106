package message

import (
	"context"
	"sync"
	"time"

	"github.com/marketlink/sellchat/logger"
	"github.com/marketlink/sellchat/module/chat/model"
	"github.com/marketlink/sellchat/service/metrics"
)

// Item is one buffered log record. Ack commits the record's log offset and
// is invoked only after a successful relational write. An item with a zero
// Msg carries only the offset of a skipped record: it is never written,
// but its commit still waits for the records buffered before it, because
// marking an offset marks everything below it too.
type Item struct {
	Msg model.Message
	Ack func()
}

// FlushFunc writes a whole batch in one transaction (all-or-nothing).
type FlushFunc func(ctx context.Context, batch []model.Message) error

// PersistedFunc runs once per message after a successful flush; the
// consumer uses it to bump the receiver's durable unseen counter.
type PersistedFunc func(ctx context.Context, m model.Message)

const flushTimeout = 10 * time.Second

// Batcher accumulates log records in a time-windowed buffer and flushes
// them as one batched write. The one-shot timer is armed only on the
// empty->non-empty transition, under the same lock as the append, so
// concurrent adds never arm two timers. A failed flush requeues the whole
// batch at the front of the buffer and re-arms; retry is unbounded on the
// fixed window cadence.
type Batcher struct {
	mu     sync.Mutex
	buf    []Item
	timer  *time.Timer
	window time.Duration

	flush     FlushFunc
	persisted PersistedFunc
}

func NewBatcher(window time.Duration, flush FlushFunc, persisted PersistedFunc) *Batcher {
	if window <= 0 {
		window = 3 * time.Second
	}
	return &Batcher{window: window, flush: flush, persisted: persisted}
}

// Add appends one item; arms the flush timer if the buffer was empty.
func (b *Batcher) Add(it Item) {
	b.mu.Lock()
	b.buf = append(b.buf, it)
	if b.timer == nil {
		b.timer = time.AfterFunc(b.window, b.Flush)
	}
	b.mu.Unlock()
}

// Len reports the current buffer size.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Flush drains the buffer and writes it as one batch. Buffer contents
// leave memory only on success; on failure the batch goes back to the
// front, ahead of anything that arrived during the failed attempt.
func (b *Batcher) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := b.buf
	b.buf = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		metrics.BatchFlushes.WithLabelValues("empty").Inc()
		return
	}

	msgs := make([]model.Message, 0, len(batch))
	for _, it := range batch {
		if it.Msg.ConversationID != "" {
			msgs = append(msgs, it.Msg)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if len(msgs) > 0 {
		if err := b.flush(ctx, msgs); err != nil {
			metrics.BatchFlushes.WithLabelValues("error").Inc()
			logger.Errorf("[Batch] flush of %d messages failed, requeueing: %v", len(msgs), err)

			b.mu.Lock()
			requeued := make([]Item, 0, len(batch)+len(b.buf))
			requeued = append(requeued, batch...)
			requeued = append(requeued, b.buf...)
			b.buf = requeued
			if b.timer == nil {
				b.timer = time.AfterFunc(b.window, b.Flush)
			}
			b.mu.Unlock()
			return
		}
	}

	metrics.BatchFlushes.WithLabelValues("ok").Inc()
	metrics.BatchSize.Observe(float64(len(msgs)))

	for _, it := range batch {
		if b.persisted != nil && it.Msg.ConversationID != "" {
			b.persisted(ctx, it.Msg)
		}
		if it.Ack != nil {
			it.Ack()
		}
	}
}
