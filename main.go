package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"marketplace-chat/internal/api"
	"marketplace-chat/internal/config"
	"marketplace-chat/internal/handlers"
	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/rabbitmq"
	"marketplace-chat/internal/session"
	"marketplace-chat/internal/telemetry"
	"marketplace-chat/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.Tracing.Endpoint)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("event publisher mode=%s reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))

	audit := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditRouteKey, cfg.ServiceName, cfg.Environment)

	backend := api.NewClient(cfg.Backend.URL, cfg.Backend.Token, cfg.Backend.RequestTimeout)
	transport := ws.NewClient(ws.Options{
		URL:               cfg.Socket.URL,
		Token:             cfg.Backend.Token,
		HandshakeTimeout:  cfg.Socket.HandshakeTimeout,
		RequestTimeout:    cfg.Socket.RequestTimeout,
		ReconnectAttempts: cfg.Socket.ReconnectAttempts,
		ReconnectDelay:    cfg.Socket.ReconnectDelay,
		ReconnectDelayMax: cfg.Socket.ReconnectDelayMax,
	})
	defer transport.Close()

	sess := session.New(session.Config{
		ViewerID:     cfg.UserID,
		Transport:    transport,
		Backend:      backend,
		Audit:        audit,
		ReadCooldown: cfg.Socket.ReadCooldown,
		CheckTimeout: cfg.Socket.RequestTimeout,
	})
	if err := sess.Start(ctx); err != nil {
		log.Fatalf("failed to start session: %v", err)
	}
	defer sess.Stop()

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.RouterConfig{
		ServiceName:  cfg.ServiceName,
		Token:        cfg.Bridge.Token,
		Session:      sess,
		Requirements: backend,
		Audit:        audit,
		Debug:        cfg.Bridge.Debug,
	})

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Bridge.Port),
		Handler: router,
	}
	go func() {
		log.Printf("bridge listening addr=%s user_id=%s", srv.Addr, cfg.UserID)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("bridge shutdown failed: %v", err)
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("tracing shutdown failed: %v", err)
		}
	}
}
