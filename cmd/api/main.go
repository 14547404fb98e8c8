package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/IvaTomevska/loob-beta/internal/analysis/mood"
	"github.com/IvaTomevska/loob-beta/internal/config"
	"github.com/IvaTomevska/loob-beta/internal/handler"
	"github.com/IvaTomevska/loob-beta/internal/logging"
	"github.com/IvaTomevska/loob-beta/internal/metrics"
	"github.com/IvaTomevska/loob-beta/internal/service/ai"
	"github.com/IvaTomevska/loob-beta/internal/service/broadcast"
	"github.com/IvaTomevska/loob-beta/internal/service/chat"
	"github.com/IvaTomevska/loob-beta/internal/service/pipeline"
	"github.com/IvaTomevska/loob-beta/internal/service/retrieval"
	"github.com/IvaTomevska/loob-beta/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 加载 .env 文件
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Info("no .env file loaded, continuing with system environment variables only", zap.Error(envErr))
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	// 消息存储
	turnStore, err := store.New(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("initializing message store: %w", err)
	}
	closers = append(closers, turnStore)
	chatService := chat.NewService(turnStore, logger, m)
	logger.Info("message store ready", zap.String("backend", cfg.Store.Backend))

	// 流式补全服务
	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		closeAll()
		return fmt.Errorf("initializing chat model: %w", err)
	}
	aiService, err := ai.NewService(ctx, chatModel, cfg.AI.DefaultModel, logger, m)
	if err != nil {
		closeAll()
		return err
	}
	logger.Info("AI service initialized", zap.String("default_model", cfg.AI.DefaultModel))

	// 检索是可选的：未配置向量化密钥时拒绝 RAG 请求
	var retriever pipeline.Retriever
	if cfg.Embedding.APIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, retrieval disabled")
	} else {
		embedder, err := retrieval.NewOpenAIEmbedder(cfg.Embedding)
		if err != nil {
			closeAll()
			return err
		}
		index, err := retrieval.NewIndex(cfg.Vector)
		if err != nil {
			closeAll()
			return fmt.Errorf("initializing vector index: %w", err)
		}
		closers = append(closers, index)
		retriever = retrieval.NewRetriever(embedder, index, cfg.Vector.TopK, logger, m)
		logger.Info("retrieval enabled",
			zap.String("vector_backend", cfg.Vector.Backend),
			zap.String("embedding_model", cfg.Embedding.Model),
		)
	}

	// 实时广播
	var hub *broadcast.Hub
	if slices.Contains(cfg.Broadcast.Backends, "hub") {
		hub = broadcast.NewHub()
	}
	dispatcher, err := broadcast.New(cfg.Broadcast, hub, logger, m)
	if err != nil {
		closeAll()
		return fmt.Errorf("initializing broadcast: %w", err)
	}
	// 广播分发器需先于存储关闭，迟到的投递仍可记录日志
	closers = append([]io.Closer{dispatcher}, closers...)
	logger.Info("broadcast ready", zap.Strings("backends", cfg.Broadcast.Backends))

	p, err := pipeline.New(pipeline.Deps{
		Retriever:   retriever,
		Streamer:    aiService,
		Turns:       chatService,
		Broadcaster: dispatcher,
		Extractor:   mood.NewExtractor(logger.Named("analysis")),
		Logger:      logger,
		Metrics:     m,
		Channel:     cfg.Broadcast.Channel,
		Event:       cfg.Broadcast.Event,
		Closers:     closers,
	})
	if err != nil {
		closeAll()
		return err
	}

	deps := handler.RouterDeps{
		Pipeline:    p,
		Transcripts: chatService,
		Gatherer:    registry,
		Logger:      logger,
	}
	if hub != nil {
		deps.Hub = hub
	}
	router := handler.NewRouter(deps)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if hub != nil {
		// Hub 关闭后长连接订阅随之结束
		srv.RegisterOnShutdown(func() { _ = hub.Close() })
	}

	logger.Info("loob backend listening", zap.String("addr", cfg.Server.Addr))
	serveErr := runServer(ctx, srv)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := p.Shutdown(shutdownCtx); err != nil {
		logger.Warn("pipeline shutdown incomplete", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return serveErr
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
