package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/wfunc/playerhook/config"
	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/logger"
	playerhook_mcp "github.com/wfunc/playerhook/mcp"
	"github.com/wfunc/playerhook/monitor"
	"github.com/wfunc/playerhook/persistence"
	playerhook_rpc "github.com/wfunc/playerhook/rpc"
	"github.com/wfunc/playerhook/rules/inarow"
	"github.com/wfunc/playerhook/rules/scripted"
	"github.com/wfunc/playerhook/server"
	"github.com/wfunc/playerhook/services"
	"github.com/wfunc/playerhook/session"
	"github.com/wfunc/playerhook/signing"
	"github.com/wfunc/playerhook/webhook"
)

const version = "1.0.0"

func main() {
	cmd := &cli.Command{
		Name:    "playerhook",
		Usage:   "host turn-based board game sessions for remote players",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: ".", Usage: "directory holding config.yaml and .env"},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP, websocket and RPC servers",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "serve the session tools over MCP on stdio",
				Action: serveMCP,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	monitor *monitor.Monitor
	store   persistence.Store
	service *services.SessionService
}

func setup(ctx context.Context, cmd *cli.Command) (*app, error) {
	// Load configuration
	cfg, err := config.LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	deriver, err := signing.FromConfig(cfg.Signing)
	if err != nil {
		return nil, err
	}

	rules := game.NewRuleRegistry()
	if err := inarow.Register(rules); err != nil {
		return nil, err
	}
	if cfg.Rules.ScriptsDir != "" {
		if _, err := scripted.RegisterDir(rules, cfg.Rules.ScriptsDir, cfg.Rules.ScriptTimeout); err != nil {
			return nil, fmt.Errorf("load rules scripts: %w", err)
		}
	}

	// Initialize Database
	store, err := persistence.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}
	logger.Log.Infof("Using %s session store", cfg.Database.Driver)

	mon := monitor.NewMonitor(cfg.Metrics.Namespace)
	registry := session.NewRegistry(rules,
		session.WithDeriver(deriver),
		session.WithJoinPolicy(session.ParseJoinPolicy(cfg.Session.JoinPolicy)),
		session.WithRecorder(mon),
	)
	client := webhook.NewClient(cfg.Webhook.Timeout, webhook.WithObserver(mon))
	service := services.NewSessionService(cfg.Server.BaseURL, registry, store, webhook.NewForwarder(client),
		services.WithGauges(mon),
		services.WithSyncInterval(cfg.Session.SyncInterval),
	)
	if _, err := service.Restore(ctx); err != nil {
		service.Close()
		store.Close()
		return nil, fmt.Errorf("restore sessions: %w", err)
	}

	return &app{cfg: cfg, monitor: mon, store: store, service: service}, nil
}

func (a *app) close() {
	a.service.Close()
	if err := a.store.Close(); err != nil {
		logger.Log.Errorf("Failed to close store: %v", err)
	}
	logger.Sync()
}

func serve(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	opts := []server.Option{
		server.WithHeartbeat(a.cfg.Server.Heartbeat),
		server.WithPlacementRate(a.cfg.Server.PlacementRate, a.cfg.Server.PlacementBurst),
		server.WithMCP(playerhook_mcp.NewServer(a.service, version).MCPServer()),
	}
	if a.cfg.Server.RPCAddress != "" {
		rpcServer, err := playerhook_rpc.NewServer(a.cfg.Server.RPCAddress, a.service)
		if err != nil {
			return fmt.Errorf("create RPC server: %w", err)
		}
		opts = append(opts, server.WithRPC(rpcServer))
	}

	// Start Server
	srv := server.NewServer(a.cfg.Server.HTTPAddress, a.service, a.monitor, opts...)
	logger.Log.Infof("Starting session server on %s, sessions under %s", a.cfg.Server.HTTPAddress, a.cfg.Server.BaseURL)
	return srv.Start(ctx)
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	logger.Log.Info("MCP stdio server ready")
	return playerhook_mcp.NewServer(a.service, version).ServeStdio()
}
