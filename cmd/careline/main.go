// Careline is a customer support agent for an online electronics retailer.
// It answers questions, looks up orders, starts returns, checks stock, and
// escalates to humans, driven by a tool-calling language model.
//
// By default it runs an interactive terminal session; with -serve it exposes
// the same agent over HTTP.
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

	"github.com/google/uuid"

	"github.com/careline/careline/agent"
	"github.com/careline/careline/agent/terminal"
	"github.com/careline/careline/config"
	"github.com/careline/careline/knowledge"
	"github.com/careline/careline/llm"
	"github.com/careline/careline/server"
	"github.com/careline/careline/session"
	"github.com/careline/careline/tools"
	"github.com/careline/careline/tools/mcp"
)

func main() {
	configPath := flag.String("config", "", "explicit config file (default: ~/.careline/config.yaml then ./.careline/config.yaml)")
	threadID := flag.String("thread", "", "conversation thread to open or resume (default: a new thread)")
	serve := flag.Bool("serve", false, "run the HTTP server instead of the terminal")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose || *serve {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*configPath, *threadID, *serve, logger); err != nil {
		fmt.Fprintf(os.Stderr, "careline: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, threadID string, serve bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}

	registry, mcpClients, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range mcpClients {
			if err := c.Stop(); err != nil {
				logger.Warn("stopping mcp server", "server", c.Name, "error", err)
			}
		}
	}()

	store, err := session.NewFileStore(cfg.CheckpointDir)
	if err != nil {
		return err
	}
	policy := agent.Policy{
		MaxRounds:    cfg.MaxRounds,
		MaxRetries:   cfg.MaxRetries,
		ModelTimeout: time.Duration(cfg.ModelTimeoutSeconds) * time.Second,
		ToolTimeout:  time.Duration(cfg.ToolTimeoutSeconds) * time.Second,
	}
	a := agent.New(client, registry, store, policy, logger)

	if serve {
		return runServer(ctx, cfg, a, store, logger)
	}

	if threadID == "" {
		threadID = uuid.NewString()
	}
	return terminal.New(a, threadID, os.Stdin, os.Stdout).Run(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM {
	case "openai":
		return llm.NewOpenAIClient(ctx, cfg.Model, cfg.BaseURL)
	case "gemini":
		return llm.NewGeminiClient(ctx, cfg.Model)
	case "bedrock":
		return llm.NewBedrockClient(ctx, cfg.Model)
	case "anthropic", "":
		return llm.NewAnthropicClient(ctx, cfg.Model)
	case "scripted":
		// Offline demo mode, no API key needed.
		return llm.NewScriptedClient(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM)
	}
}

// buildRegistry wires the built-in support tools plus any configured MCP
// servers. MCP failures are fatal; a configured tool server that cannot
// start would otherwise silently shrink the agent's abilities.
func buildRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tools.Registry, []*mcp.Client, error) {
	registry := tools.NewRegistry()

	orders := tools.NewOrderBook()
	builtins := []tools.Tool{
		&tools.OrderStatusTool{Orders: orders},
		&tools.InitiateReturnTool{Orders: orders},
		&tools.InventoryTool{Inventory: tools.NewInventoryBook()},
		&tools.EscalateTool{Logger: logger},
	}

	docs, err := knowledge.LoadFiles(cfg.KnowledgePaths)
	if err != nil {
		return nil, nil, err
	}
	if len(docs) > 0 {
		index, err := knowledge.NewIndex(nil)
		if err != nil {
			return nil, nil, err
		}
		index.Add(docs...)
		logger.Info("knowledge base loaded", "documents", index.Len())
		builtins = append(builtins, &tools.KnowledgeSearchTool{Index: index})
	} else {
		logger.Warn("no knowledge base documents found", "paths", cfg.KnowledgePaths)
	}

	for _, t := range builtins {
		if err := registry.Register(t); err != nil {
			return nil, nil, err
		}
	}

	var clients []*mcp.Client
	for _, srv := range cfg.AdditionalMCPServers {
		c, err := mcp.Connect(ctx, srv.Name, srv.Command, srv.Args, logger)
		if err != nil {
			for _, prev := range clients {
				_ = prev.Stop()
			}
			return nil, nil, err
		}
		if err := c.RegisterAll(registry); err != nil {
			_ = c.Stop()
			for _, prev := range clients {
				_ = prev.Stop()
			}
			return nil, nil, err
		}
		clients = append(clients, c)
	}
	return registry, clients, nil
}

func runServer(ctx context.Context, cfg *config.Config, a *agent.Agent, store session.Store, logger *slog.Logger) error {
	srv := server.New(cfg.HTTPAddr, a, store, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
