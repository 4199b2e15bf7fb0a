package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ai-memoryd/memoryd/internal/classify"
	"github.com/ai-memoryd/memoryd/internal/compact"
	"github.com/ai-memoryd/memoryd/internal/config"
	"github.com/ai-memoryd/memoryd/internal/daemon"
	"github.com/ai-memoryd/memoryd/internal/embed"
	"github.com/ai-memoryd/memoryd/internal/extract"
	"github.com/ai-memoryd/memoryd/internal/gossip"
	"github.com/ai-memoryd/memoryd/internal/llmclient"
	"github.com/ai-memoryd/memoryd/internal/retrieve"
	"github.com/ai-memoryd/memoryd/internal/store"
	"github.com/ai-memoryd/memoryd/internal/threadmgr"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/sirupsen/logrus"
)

func main() {
	projectDir := flag.String("project", ".", "Project root directory (holds .ai/ and config.json)")
	natsPort := flag.Int("nats-port", 0, "Embedded NATS port (0 = pick a free port)")
	flag.Parse()

	absProject, err := filepath.Abs(*projectDir)
	if err != nil {
		logrus.WithError(err).Fatal("resolving project directory")
	}
	aiDir := filepath.Join(absProject, ".ai")
	if err := os.MkdirAll(aiDir, 0o700); err != nil {
		logrus.WithError(err).Fatal("creating .ai directory")
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}
	logFile, err := os.OpenFile(filepath.Join(aiDir, "processor.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		logrus.WithError(err).Fatal("opening processor.log")
	}
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	entry := log.WithField("component", "memoryd")

	cfg, err := config.Load(filepath.Join(absProject, "config.json"))
	if err != nil {
		entry.WithError(err).Fatal("loading config.json")
	}
	entry.WithFields(logrus.Fields{
		"project":     cfg.ProjectName,
		"thread_mode": cfg.Settings.ThreadMode,
		"quota":       cfg.Quota(),
	}).Info("configuration loaded")

	st, err := store.Open(aiDir, entry.WithField("component", "store"))
	if err != nil {
		entry.WithError(err).Fatal("opening store")
	}

	// Start the embedded NATS server gossip's Bus dials into. One broker
	// per daemon process; agents never need their own.
	port := *natsPort
	if port == 0 {
		port = server.RANDOM_PORT
	}
	natsOpts := &server.Options{
		Host:     "127.0.0.1",
		Port:     port,
		HTTPPort: -1,
		NoLog:    true,
		NoSigs:   true,
	}
	natsServer, err := server.NewServer(natsOpts)
	if err != nil {
		entry.WithError(err).Fatal("creating embedded NATS server")
	}
	go natsServer.Start()
	if !natsServer.ReadyForConnections(5 * time.Second) {
		entry.Fatal("embedded NATS server failed to start in time")
	}
	natsURL := natsServer.ClientURL()
	entry.WithField("url", natsURL).Info("embedded NATS server started")

	bus, err := gossip.Connect(natsURL, entry.WithField("component", "gossip"))
	if err != nil {
		entry.WithError(err).Fatal("connecting gossip bus")
	}

	var primaryEmbedder embed.Embedder
	if cfg.LLM.EmbeddingEndpoint != "" {
		primaryEmbedder = embed.NewHTTPEmbedder(cfg.LLM.EmbeddingEndpoint, cfg.LLM.EmbeddingModel)
	}
	embedder := embed.NewFallbackEmbedder(primaryEmbedder, entry.WithField("component", "embed"))

	llm := llmclient.New(llmclient.Config{
		APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		CLIPath: cfg.LLM.ClaudeCLIPath,
		Timeout: 30 * time.Second,
	}, http.DefaultClient, entry.WithField("component", "llmclient"))

	extractor := extract.New(llm)
	classifier := classify.New(llm)
	propagator := gossip.New(st, llm, bus, entry.WithField("component", "gossip"))

	manager := threadmgr.New(st, embedder, extractor, classifier, propagator, entry.WithField("component", "threadmgr"))
	retriever := retrieve.New(st, embedder, manager)
	compactor := compact.New(st, extractor, manager)

	srv := daemon.New(
		filepath.Join(aiDir, "processor.sock"),
		filepath.Join(aiDir, "processor.pid"),
		st, manager, classifier, propagator, retriever, compactor,
		cfg, entry.WithField("component", "daemon"),
	)

	if err := srv.Start(); err != nil {
		entry.WithError(err).Fatal("starting daemon")
	}

	go func() {
		if err := srv.Serve(); err != nil {
			entry.WithError(err).Warn("daemon accept loop stopped")
		}
	}()

	entry.WithField("socket", filepath.Join(aiDir, "processor.sock")).Info("memoryd ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	entry.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		entry.WithError(err).Warn("daemon shutdown error")
	}
	bus.Close()
	natsServer.Shutdown()

	fmt.Fprintln(os.Stderr, "memoryd stopped")
}
