package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketlink/sellchat/global"
	"github.com/marketlink/sellchat/logger"
	"github.com/marketlink/sellchat/module/chat/model"
	"github.com/marketlink/sellchat/module/chat/store"
	"github.com/marketlink/sellchat/module/message"
	"github.com/marketlink/sellchat/service/kafka"
	"github.com/marketlink/sellchat/service/metrics"
	"github.com/marketlink/sellchat/tools/safe"
)

func main() {
	cfg, err := global.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	global.ConfigIds(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("init store: %v", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		logger.Fatalf("migrate: %v", err)
	}

	batcher := message.NewBatcher(cfg.FlushWindow, st.InsertBatch, func(_ context.Context, _ model.Message) {
		metrics.MessagesPersisted.Inc()
	})

	safe.SafeGo(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Infof("[HTTP] metrics on %s", cfg.MetricsAddr)
		_ = http.ListenAndServe(cfg.MetricsAddr, mux)
	})

	kafka.Cfg.Brokers = cfg.KafkaBrokers
	kafka.Cfg.GroupID = cfg.ConsumerGroup
	kafka.Cfg.Topic = cfg.ChatTopic

	logger.Infof("[Kafka] consumer group %s on topic %s", cfg.ConsumerGroup, cfg.ChatTopic)
	err = kafka.StartConsumerGroup(ctx, cfg.KafkaBrokers, cfg.ConsumerGroup,
		[]string{cfg.ChatTopic}, message.NewLogHandler(batcher))
	if err != nil && err != context.Canceled {
		logger.Errorf("consumer group stopped: %v", err)
	}

	// drain what is already buffered before exit; unflushed records replay
	// from the log on restart anyway
	batcher.Flush()
}
