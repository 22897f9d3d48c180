// Package main is the entry point for the Duetto alerting service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duetto/duetto/internal/aienrich"
	"github.com/duetto/duetto/internal/alert"
	"github.com/duetto/duetto/internal/broadcast"
	"github.com/duetto/duetto/internal/buildinfo"
	"github.com/duetto/duetto/internal/collector"
	"github.com/duetto/duetto/internal/config"
	"github.com/duetto/duetto/internal/engine"
	"github.com/duetto/duetto/internal/notify"
	"github.com/duetto/duetto/internal/processor"
	"github.com/duetto/duetto/internal/server"
	"github.com/duetto/duetto/internal/ticker"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "serve":
			runServe(logger, *configPath)
		case "version":
			fmt.Println(buildinfo.String())
			for k, v := range buildinfo.BuildInfo() {
				fmt.Printf("  %-12s %s\n", k+":", v)
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
			os.Exit(1)
		}
		return
	}

	fmt.Println("Duetto - Real-Time Market-Event Alerting")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve    Start the alerting pipeline and push server")
	fmt.Println("  version  Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func runServe(logger *slog.Logger, configPath string) {
	logger.Info("starting Duetto", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Warn("no config file found, using defaults and environment", "error", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	logger.Info("config loaded", "path", cfgPath, "server_port", cfg.Server.Port, "notify_min_priority", cfg.NotifyMinPriority)

	resolver := ticker.New(ticker.WithLogger(logger))

	collectors := buildCollectors(cfg, resolver, logger)
	if len(collectors) == 0 {
		logger.Warn("no collectors enabled, the pipeline will sit idle")
	}

	chain := processor.NewChain(
		processor.NewDedup(processor.DefaultDedupCapacity),
		processor.NewCatalystClassifier(true),
		processor.NewPriorityFilter(alert.ParsePriority(cfg.NotifyMinPriority), nil, nil),
	)

	hub := broadcast.NewHub(logger)
	fanout := buildFanout(cfg, logger)

	sup := engine.New(logger, collectors, chain, hub, fanout)

	srv := server.NewServer(cfg.Server.Host, cfg.Server.Port, hub, sup, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		logger.Error("engine failed to start", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
		sup.Stop()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Duetto stopped")
}

// buildCollectors constructs every enabled collector from cfg. Disabled
// collectors are simply omitted; the engine runs fine with any subset.
func buildCollectors(cfg *config.Config, resolver *ticker.Resolver, logger *slog.Logger) []collector.Collector {
	var collectors []collector.Collector

	if cfg.Filing.Enabled && cfg.Filing.Configured() {
		sources := make([]collector.FeedSource, 0, len(cfg.Filing.Forms))
		for _, form := range cfg.Filing.Forms {
			sources = append(sources, collector.FeedSource{
				FormType: form,
				URL:      fmt.Sprintf(cfg.Filing.FeedURLTemplate, form),
			})
		}
		rateLimit := time.Duration(cfg.Filing.RateLimitSeconds * float64(time.Second))
		pollInterval := time.Duration(cfg.Filing.PollIntervalSeconds) * time.Second
		feed := collector.NewFilingFeed(sources, cfg.Filing.UserAgent, rateLimit, pollInterval, resolver,
			collector.WithFilingFeedLogger(logger))
		collectors = append(collectors, feed)
	}

	if cfg.Approvals.Enabled {
		pollInterval := time.Duration(cfg.Approvals.PollIntervalSeconds) * time.Second
		scraper := collector.NewApprovalsScraper(cfg.Approvals.IndexURLTemplate, buildinfo.UserAgent(), pollInterval,
			collector.WithApprovalsLogger(logger),
			collector.WithLookbackYears(cfg.Approvals.LookbackYears))
		collectors = append(collectors, scraper)
	}

	if cfg.Quotes.Enabled && len(cfg.Quotes.Symbols) > 0 {
		quotes := collector.NewQuoteStream(cfg.Quotes.DialURL, cfg.Quotes.AuthToken, cfg.Quotes.Symbols, cfg.Quotes.ThresholdPct, resolver,
			collector.WithQuoteStreamLogger(logger))
		collectors = append(collectors, quotes)
	}

	return collectors
}

// buildFanout constructs the notifier set and, if configured, the AI
// enrichment stage applied once per alert before dispatch.
func buildFanout(cfg *config.Config, logger *slog.Logger) *notify.Fanout {
	var notifiers []notify.Notifier

	if n := notify.NewChatBotNotifier(cfg.ChatBot.Token, cfg.ChatBot.ChatID, notify.WithChatBotLogger(logger)); n != nil {
		notifiers = append(notifiers, n)
	}

	if n := buildSMTPNotifier(cfg, logger); n != nil {
		notifiers = append(notifiers, n)
	}

	if n := buildWebhookNotifier(cfg, logger); n != nil {
		notifiers = append(notifiers, n)
	}

	if n := buildRichCardNotifier(cfg, logger); n != nil {
		notifiers = append(notifiers, n)
	}

	opts := []notify.FanoutOption{notify.WithFanoutLogger(logger)}
	if e := buildEnricher(cfg, logger); e != nil {
		opts = append(opts, notify.WithEnricher(e))
	}

	return notify.NewFanout(alert.ParsePriority(cfg.NotifyMinPriority), notifiers, opts...)
}

func buildSMTPNotifier(cfg *config.Config, logger *slog.Logger) *notify.EmailNotifier {
	if !cfg.SMTP.Configured() {
		return nil
	}
	var opts []notify.EmailOption
	if cfg.SMTP.StartTLS {
		opts = append(opts, notify.WithEmailStartTLS())
	}
	opts = append(opts, notify.WithEmailLogger(logger))
	return notify.NewEmailNotifier(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, cfg.SMTP.To, opts...)
}

func buildWebhookNotifier(cfg *config.Config, logger *slog.Logger) *notify.WebhookNotifier {
	if !cfg.Webhook.Configured() {
		return nil
	}
	return notify.NewWebhookNotifier(cfg.Webhook.URL, notify.WebhookFormat(cfg.Webhook.Format), notify.WithWebhookLogger(logger))
}

func buildRichCardNotifier(cfg *config.Config, logger *slog.Logger) *notify.RichCardNotifier {
	if !cfg.RichCard.Configured() {
		return nil
	}
	return notify.NewRichCardNotifier(cfg.RichCard.URL, notify.WithRichCardLogger(logger))
}

// buildEnricher returns the AIEnricher satisfying notify.Enricher per
// cfg.AI.Provider, or nil if enrichment is disabled.
func buildEnricher(cfg *config.Config, logger *slog.Logger) notify.Enricher {
	if !cfg.AI.Enabled {
		return nil
	}
	switch cfg.AI.Provider {
	case "chat_v1":
		if c := aienrich.NewChatApiV1(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model, logger); c != nil {
			return c
		}
		return nil
	case "chat_v2":
		if c := aienrich.NewChatApiV2(cfg.AI.APIKey, cfg.AI.BaseURL, cfg.AI.Model, logger); c != nil {
			return c
		}
		return nil
	default:
		return aienrich.NewRuleBased()
	}
}
