// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/rapidaai/voicebridge/internal/config"
	"github.com/rapidaai/voicebridge/internal/frame"
	"github.com/rapidaai/voicebridge/internal/listener"
	"github.com/rapidaai/voicebridge/internal/metrics"
	"github.com/rapidaai/voicebridge/internal/session"
	"github.com/rapidaai/voicebridge/internal/transport/rtpmedia"
	"github.com/rapidaai/voicebridge/pkg/commons"
)

// noopToolHandler relays every tool call to a JSON error, since booking and
// business-logic tools are external collaborators the engine never
// implements — it only forwards {name, arguments} and writes back whatever
// JSON result a real handler would have produced.
type noopToolHandler struct{}

func (noopToolHandler) Handle(_ context.Context, name string, _ []byte) ([]byte, error) {
	return nil, fmt.Errorf("voicebridge: no tool handler registered for %q", name)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	logger, sync, err := commons.NewApplicationLogger()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tcpListener := listener.New(cfg, logger, noopToolHandler{})

	rtpPool, err := buildPortAllocator(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("rtp port allocator: %w", err)
	}
	channelCli := rtpmedia.NewChannelClient(cfg.Switch.ControlURL, cfg.Switch.ControlUser, cfg.Switch.ControlPass)
	rtpAcceptor := listener.NewRTPAcceptor(logger, rtpPool, channelCli, cfg.RTP.BindHost, noopToolHandler{})
	rtpWebhook := listener.NewRTPWebhook(cfg, rtpAcceptor, func(callID string, transport session.FrontendTransport) {
		sess := session.New(cfg, logger, callID, transport, frame.CodecLinear16_16k, 640, noopToolHandler{})
		tcpListener.Register(callID, sess)
		defer tcpListener.Unregister(callID)
		sess.Run(ctx)
	})

	mux := http.NewServeMux()
	mux.Handle("/", rtpWebhook)
	mux.HandleFunc("/healthz", metrics.Healthz)
	if cfg.Observability.EnableMetrics {
		registry := prometheus.NewRegistry()
		registry.MustRegister(metrics.NewCollector(tcpListener, tcpListener, rtpPool))
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.RTP.BindHost, cfg.RTP.WebhookPort),
		Handler: mux,
	}

	errCh := make(chan error, 2)
	go func() {
		if err := tcpListener.Run(ctx); err != nil {
			errCh <- fmt.Errorf("switch listener: %w", err)
		}
	}()
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("rtp webhook server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Infow("shutting down")
	case err := <-errCh:
		logger.Errorw("fatal component error", "error", err)
	}

	tcpListener.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	return nil
}

func buildPortAllocator(ctx context.Context, cfg *config.Config, logger commons.Logger) (rtpmedia.PortAllocator, error) {
	var pool rtpmedia.PortAllocator
	if cfg.RTP.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RTP.RedisAddr})
		pool = rtpmedia.NewRedisPortAllocator(client, logger, cfg.RTP.PortStart, cfg.RTP.PortEnd)
	} else {
		pool = rtpmedia.NewLocalPortAllocator(cfg.RTP.PortStart, cfg.RTP.PortEnd)
	}
	if err := pool.Init(ctx); err != nil {
		return nil, err
	}
	return pool, nil
}
