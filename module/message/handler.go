package message

import (
	"encoding/json"

	"github.com/marketlink/sellchat/logger"
	"github.com/marketlink/sellchat/module/chat/model"
	"github.com/marketlink/sellchat/service/kafka"
	"github.com/marketlink/sellchat/tools/ids"
)

// NewLogHandler adapts the batcher to the durable-log consumer. The ack is
// handed to the batcher and fired only after a successful flush. Poison
// records are skipped, not written, but their offsets still ride the next
// successful flush: committing one immediately would mark past valid
// records at lower offsets that are still sitting in the buffer.
func NewLogHandler(b *Batcher) kafka.RecordHandler {
	return func(topic string, key, value []byte, ack func()) error {
		var rec model.LogRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			logger.Errorf("[Batch] unparseable log record topic=%s key=%s: %v", topic, key, err)
			b.Add(Item{Ack: ack})
			return err
		}
		msg, err := rec.ToMessage(ids.GenerateString())
		if err != nil {
			logger.Errorf("[Batch] invalid log record topic=%s key=%s: %v", topic, key, err)
			b.Add(Item{Ack: ack})
			return err
		}
		b.Add(Item{Msg: msg, Ack: ack})
		return nil
	}
}
