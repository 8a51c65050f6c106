package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketlink/sellchat/global"
	"github.com/marketlink/sellchat/logger"
	"github.com/marketlink/sellchat/service/chat"
	"github.com/marketlink/sellchat/service/kafka"
	redis2 "github.com/marketlink/sellchat/service/storage/redis"
)

func main() {
	cfg, err := global.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	global.ConfigIds(cfg)

	if err := redis2.InitRedis(redis2.Config{
		Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
	}); err != nil {
		logger.Fatalf("init redis: %v", err)
	}

	kafka.Cfg.Brokers = cfg.KafkaBrokers
	kafka.Cfg.Topic = cfg.ChatTopic
	if err := kafka.InitKafkaClient(); err != nil {
		logger.Fatalf("init kafka client: %v", err)
	}
	if err := kafka.InitSyncProducerFromClient(); err != nil {
		logger.Fatalf("init kafka producer: %v", err)
	}
	defer kafka.CloseProducer()
	defer kafka.CloseClient()

	srv := chat.NewServer(cfg.GatewayID,
		chat.RedisPresence{GatewayID: cfg.GatewayID, TTL: cfg.PresenceTTL},
		chat.RedisCounters{},
		chat.KafkaLog{Topic: cfg.ChatTopic},
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/chat", srv.HandleWS)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("[HTTP] gateway %s listening on %s", srv.GwID(), cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("[HTTP] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
