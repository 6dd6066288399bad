package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	ethadapter "credpost/internal/adapters/ethereum"
	"credpost/internal/adapters/httpapi"
	"credpost/internal/adapters/httpapi/middleware"
	"credpost/internal/adapters/memory"
	redisadapter "credpost/internal/adapters/redis"
	"credpost/internal/config"
	"credpost/internal/core/post"
	postapp "credpost/internal/core/post/service"
	sessionapp "credpost/internal/core/session/service"
	userapp "credpost/internal/core/user/service"
	eventsPort "credpost/internal/ports/events"
	postPort "credpost/internal/ports/post"
	userPort "credpost/internal/ports/user"
	"credpost/internal/workers"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-redis/redis/v8"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var settings *config.Settings

func main() {
	app := &cli.App{
		Name:  "credpost",
		Usage: "web client for the credibility voting contract",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "env file(s) to load before reading the environment (default .env)",
			},
		},
		Before: setup,
		After: func(*cli.Context) error {
			config.SyncLogger()
			return nil
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the web UI",
				Action: serve,
			},
			{
				Name:  "posts",
				Usage: "connect once, print the discovered posts and the account's credibility, then exit",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "print JSON instead of a table"},
				},
				Action: listPosts,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "credpost:", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) error {
	var err error
	settings, err = config.Load(c.StringSlice("env-file")...)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	return config.InitLogger(settings.LogMode)
}

// application holds every long-lived component of one process.
type application struct {
	rpc        *rpc.Client
	redis      *redis.Client
	bus        eventsPort.Bus
	controller *sessionapp.Controller
	watcher    *workers.ProviderWatcher
}

func build(ctx context.Context, s *config.Settings, logger *zap.Logger) (*application, error) {
	app := &application{}

	rpcClient, err := config.InitEthereum(ctx, s)
	if err != nil {
		return nil, err
	}
	app.rpc = rpcClient

	if s.RedisEnabled() {
		client, err := config.InitRedis(ctx, s)
		if err != nil {
			app.close(logger)
			return nil, err
		}
		app.redis = client
		bus, err := redisadapter.NewEventBusRedis(ctx, client, s.EventsChannel, logger)
		if err != nil {
			app.close(logger)
			return nil, err
		}
		app.bus = bus
	} else {
		app.bus = memory.NewEventBus(logger)
	}

	provider := ethadapter.NewProvider(rpcClient, time.Second, logger)
	contract := ethadapter.NewContractClient(s.ContractAddress, provider.Eth, provider, ethadapter.ContractOptions{
		TxTimeout:   s.TxTimeout,
		ReadTimeout: s.ReadTimeout,
		DeployBlock: s.DeployBlock,
		ScanChunk:   s.ScanChunk,
	}, logger)

	var discovery postPort.Discovery
	switch s.Discovery {
	case config.DiscoveryProbe:
		discovery = post.ProbeRange{From: s.ProbeFrom, To: s.ProbeTo}
		logger.Info("Post discovery: probe", zap.Uint64("from", s.ProbeFrom), zap.Uint64("to", s.ProbeTo))
	default:
		discovery = post.NewRegistry()
		logger.Info("Post discovery: log scan", zap.Uint64("deployBlock", s.DeployBlock))
	}

	postSvc := postapp.NewPostService(contract, discovery, contract, logger)
	userSvc := userapp.NewUserService(contract, logger)
	feed := workers.NewEventWorker(contract, app.bus, s.EventPollInterval, logger)
	app.controller = sessionapp.NewController(provider, postSvc, userSvc, app.bus, feed, logger)

	app.watcher = workers.NewProviderWatcher(provider, s.ProviderPollInterval, logger)
	app.watcher.OnAccountsChanged = app.controller.HandleAccountsChanged
	app.watcher.OnChainChanged = app.controller.HandleChainChanged
	return app, nil
}

func (a *application) close(logger *zap.Logger) {
	if a.controller != nil {
		a.controller.Disconnect()
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			logger.Error("❌ Error closing event bus", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Error("❌ Error closing Redis connection", zap.Error(err))
		}
	}
	if a.rpc != nil {
		a.rpc.Close()
	}
}

func serve(c *cli.Context) error {
	logger := config.Logger
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	app, err := build(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer app.close(logger)

	go app.watcher.Run(ctx)

	tokens := middleware.NewSessionTokens(settings.SessionSecret, 24*time.Hour)
	r := httpapi.SetupRoutes(app.controller, app.bus, tokens, settings.CORSOrigins, logger)

	srv := &http.Server{
		Addr:    ":" + settings.AppPort,
		Handler: r,
		// request contexts end with ctx so open SSE streams let Shutdown finish
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🚀 credpost is running", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("Shutting down...")

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("❌ Server forced to shutdown", zap.Error(err))
	}

	logger.Info("🛑 credpost exited")
	return nil
}

type postsOutput struct {
	Account string              `json:"account"`
	ChainID string              `json:"chainId"`
	User    *userPort.UserDTO   `json:"user"`
	Posts   []*postPort.PostDTO `json:"posts"`
}

func listPosts(c *cli.Context) error {
	logger := config.Logger
	app, err := build(c.Context, settings, logger)
	if err != nil {
		return err
	}
	defer app.close(logger)

	sess, err := app.controller.Connect(c.Context)
	if err != nil {
		return fmt.Errorf("connect wallet: %w", err)
	}
	snap := app.controller.Snapshot()

	out := postsOutput{
		Account: sess.Account.Hex(),
		ChainID: sess.ChainID.String(),
		User:    userPort.NewUserDTO(snap.User),
		Posts:   postPort.NewPostDTOs(snap.Posts),
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Account: %s (chain %s)\n", out.Account, out.ChainID)
	if out.User != nil {
		fmt.Printf("Credibility score: %s, successful posts: %s\n\n", out.User.CredibilityScore, out.User.SuccessfulPosts)
	} else {
		fmt.Print("Credibility score: —, successful posts: —\n\n")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POST ID\tCREATOR\tUPVOTES\tDOWNVOTES\tSTATUS")
	for _, p := range out.Posts {
		status := "open"
		if p.IsFinalized {
			status = "✅ finalized"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.ShortCreator, p.Upvotes, p.Downvotes, status)
	}
	return w.Flush()
}
