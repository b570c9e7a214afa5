// Command margin anchors annotations to a live page and keeps them in
// sync with a remote store.
//
// Usage:
//
//	margin -config margin.yaml            # full daemon from YAML config
//	margin -url https://example.com       # quick attach with defaults
//	margin -url https://example.com -mcp  # expose tools over MCP stdio
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/margin"
	"github.com/hazyhaar/margin/browser"
	"github.com/hazyhaar/margin/pagewatch"
	"github.com/hazyhaar/margin/store"
	"github.com/hazyhaar/margin/syncq"
)

func main() {
	configPath := flag.String("config", "", "path to margin.yaml config file")
	pageURL := flag.String("url", "", "document to attach to (overrides config)")
	dbPath := flag.String("db", "", "SQLite path for the local store (overrides config)")
	listen := flag.String("listen", "", "HTTP API address (overrides config)")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools over stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *pageURL, *dbPath, *listen, *mcpStdio); err != nil {
		logger.Error("margin: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, pageURL, dbPath, listen string, mcpStdio bool) error {
	cfg := &margin.Config{}
	if configPath != "" {
		loaded, err := margin.LoadConfigFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if pageURL != "" {
		cfg.Page.URL = pageURL
	}
	if dbPath != "" {
		cfg.DB = dbPath
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if cfg.Page.URL == "" {
		fmt.Fprintln(os.Stderr, "usage: margin -config <file> | -url <url>")
		os.Exit(1)
	}
	if cfg.DB == "" {
		cfg.DB = "margin.db"
	}

	kv, err := store.Open(cfg.DB, store.WithMkdirAll())
	if err != nil {
		return err
	}
	defer kv.Close()

	// Attach to the live page.
	host, err := browser.Open(ctx, cfg.Page.URL, browser.Options{
		Remote: cfg.Page.Browser,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer host.Close()

	var remote syncq.Remote
	if cfg.Remote.URL != "" {
		remote = syncq.NewHTTPRemote(cfg.Remote.URL, cfg.Remote.Token)
	}

	engine, err := margin.NewEngine(margin.EngineOptions{
		KV:           kv,
		Remote:       remote,
		Snapshot:     host.Snapshot,
		MaxSelection: cfg.Selection.MaxLength,
		Color:        cfg.Color,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	snapshot, err := host.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := engine.LoadDocument(ctx, cfg.Page.URL, snapshot); err != nil {
		return err
	}

	// Document watcher: debounced mutation bursts + SPA navigations.
	watcher := pagewatch.New(cfg.Page.URL, engine, pagewatch.Options{
		Debounce: cfg.Watch.Debounce,
		Settle:   cfg.Watch.Settle,
		Logger:   logger,
	})
	go watcher.Run(ctx)
	go forwardEvents(ctx, host, watcher)

	// Periodic sync pass.
	if q := engine.Queue(); q != nil {
		go q.Run(ctx, cfg.Sync.Interval, engine.Location)
	}

	// MCP tools over stdio.
	if mcpStdio {
		srv := mcp.NewServer(&mcp.Implementation{Name: "margin", Version: "1.0.0"}, nil)
		engine.RegisterMCP(srv)
		go func() {
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("margin: mcp stdio", "error", err)
			}
		}()
	}

	// HTTP API.
	if cfg.Listen != "" {
		httpSrv := &http.Server{Addr: cfg.Listen, Handler: engine.Routes()}
		go func() {
			logger.Info("margin: http listening", "addr", cfg.Listen)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("margin: http", "error", err)
			}
		}()
		defer httpSrv.Close()
	}

	<-ctx.Done()
	return nil
}

// forwardEvents feeds host signals into the watcher.
func forwardEvents(ctx context.Context, host *browser.Host, watcher *pagewatch.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-host.Bumps():
			watcher.Bump()
		case url := <-host.Navigations():
			watcher.Navigate(url)
		}
	}
}
