package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"socialchat/internal/auth"
	"socialchat/internal/config"
	"socialchat/internal/db"
	clog "socialchat/internal/log"
	"socialchat/internal/mw"
	"socialchat/internal/revocation"
	"socialchat/internal/server"
	"socialchat/internal/service"
	"socialchat/internal/ws"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库、装配各组件并启动服务，收到信号后优雅退出。
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	clog.Init(cfg.Env, cfg.LogLevel)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("revocation pool")
	}
	defer pool.Close()
	revocations := revocation.NewStore(pool)
	sweeper := revocation.NewSweeper(revocations, cfg.TokenSweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	gateway := auth.NewGateway(issuer, revocations)

	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()
	dispatch := ws.NewDispatcher(hub)

	users := service.NewUserService(gdb, issuer, revocations)
	conversations := service.NewConversationService(gdb, users, dispatch)
	presence := service.NewPresenceService(gdb, users, dispatch)
	notifications := service.NewNotificationService(gdb, users, dispatch)

	frameLimiter := mw.NewRateLimiter(rate.Limit(cfg.WSFrameRate), cfg.WSFrameBurst, 2*time.Minute)
	frameLimiter.Start()
	defer frameLimiter.Stop()
	httpLimiter := mw.NewRateLimiter(rate.Limit(cfg.HTTPRate), cfg.HTTPBurst, 2*time.Minute)
	defer httpLimiter.Stop()

	endpoint := ws.NewEndpoint(hub, gateway, ws.NewRouter(conversations, presence, notifications), frameLimiter, cfg.Env, cfg.WSAllowedOrigins)
	r := server.SetupRouter(cfg, server.Deps{
		Gateway:  gateway,
		Handler:  server.NewHandler(users, conversations, presence, notifications),
		Endpoint: endpoint,
		Limiter:  httpLimiter,
		Hub:      hub,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	// 升级后的连接不受 Shutdown 管理，停止 hub 关闭它们并等待离线状态写回
	hub.Stop()
	if err := endpoint.Drain(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("websocket drain")
	}
}
