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
	"github.com/marketlink/sellchat/module/chat/service"
	"github.com/marketlink/sellchat/module/chat/store"
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

	api := service.NewAPI(st, cfg.PageSize)

	r := gin.New()
	r.Use(gin.Recovery())
	api.Register(r, []byte(cfg.JWTSecret))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	httpSrv := &http.Server{Addr: cfg.APIAddr, Handler: r}

	go func() {
		logger.Infof("[HTTP] query api listening on %s", cfg.APIAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
