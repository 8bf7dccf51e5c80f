package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/madflojo/tasks"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/seabucks/dealer/config"
	"github.com/seabucks/dealer/events"
	dealerhttp "github.com/seabucks/dealer/http"
	"github.com/seabucks/dealer/logger"
	dealermcp "github.com/seabucks/dealer/mcp"
	"github.com/seabucks/dealer/quote"
	"github.com/seabucks/dealer/rates"
	"github.com/seabucks/dealer/settlement"
	"github.com/seabucks/dealer/store"
)

const (
	warmInterval  = 45 * time.Second
	watchInterval = 12 * time.Second
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the quote API and MCP tools",
		Long: `Start the dealer HTTP server.

Routes:
  POST /api/quote          issue a signed quote
  POST /api/quote/verify   check an X-SIGNED-QUOTE header
  GET  /api/rates          USD reference rates
  GET  /api/health         dealer status
  GET  /metrics            Prometheus metrics
  POST /mcp                MCP tools (get_quote, get_rates, get_dealer_status)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if !cfg.HasKeySource() {
				return errNoKeySource
			}

			logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
			app := newServeApp(cfg, logger.L())
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}

	cmd.Flags().String("listen", ":8080", "Listen address")
	_ = opts.v.BindPFlag("listen_addr", cmd.Flags().Lookup("listen"))
	return cmd
}

func newServeApp(cfg *config.Config, log *zap.Logger) *fx.App {
	return fx.New(
		fx.Supply(cfg, log),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(
			newSigner,
			newRateChain,
			newRegistry,
			newEngine,
			newChainClients,
			newPublisher,
			newAPIServer,
			newMCPServer,
			newHTTPServer,
			tasks.New,
		),
		fx.Invoke(
			startWarmer,
			startWatchers,
			func(*http.Server) {},
		),
	)
}

// chainClients are RPC connections to chains that have both an RPC URL and a router.
type chainClients map[int64]*ethclient.Client

func newChainClients(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (chainClients, error) {
	clients := chainClients{}
	for chainID, url := range cfg.RPCURLs {
		if _, ok := cfg.Routers[chainID]; !ok {
			log.Warn("dealerd.rpc_without_router", zap.Int64("chain_id", chainID))
			continue
		}
		client, err := ethclient.Dial(url)
		if err != nil {
			return nil, fmt.Errorf("chain %d: failed to connect to RPC endpoint: %w", chainID, err)
		}
		clients[chainID] = client
	}
	lc.Append(fx.StopHook(func() {
		for _, c := range clients {
			c.Close()
		}
	}))
	return clients, nil
}

// newRegistry returns nil when no Redis address is configured.
func newRegistry(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*store.RedisRegistry, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	reg, err := store.NewRedisRegistry(cfg.RedisAddr, cfg.RedisDB, store.WithLogger(log))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(reg.Close))
	return reg, nil
}

// newPublisher returns nil when no NATS URL is configured.
func newPublisher(lc fx.Lifecycle, cfg *config.Config) (*events.Publisher, error) {
	if cfg.NATSURL == "" {
		return nil, nil
	}
	pub, err := events.Connect(cfg.NATSURL, cfg.NATSSubject, cfg.ServiceName)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(pub.Close))
	return pub, nil
}

func newAPIServer(cfg *config.Config, engine *quote.Engine, chain *rates.Chain, clients chainClients, log *zap.Logger) *dealerhttp.Server {
	checkers := make(map[int64]dealerhttp.NonceChecker, len(clients))
	for chainID, client := range clients {
		checkers[chainID] = settlement.NewBinding(cfg.Routers[chainID], client)
	}
	return dealerhttp.NewServer(engine, chain,
		dealerhttp.WithNonceCheckers(checkers),
		dealerhttp.WithLogger(log),
	)
}

func newMCPServer(cfg *config.Config, engine *quote.Engine, chain *rates.Chain, log *zap.Logger) *dealermcp.Server {
	return dealermcp.NewServer(cfg.ServiceName, version, engine, chain, dealermcp.WithLogger(log))
}

func newHTTPServer(lc fx.Lifecycle, cfg *config.Config, api *dealerhttp.Server, tools *dealermcp.Server, log *zap.Logger) *http.Server {
	srv := api.NewHTTPServer(cfg.ListenAddr, cfg.HTTPReadTimeout, cfg.HTTPWriteTimeout)

	mux := http.NewServeMux()
	mux.Handle("/mcp", tools.Handler())
	mux.Handle("/", srv.Handler)
	srv.Handler = mux

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("dealerd.listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("dealerd.serve_failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
	return srv
}

func startWarmer(lc fx.Lifecycle, chain *rates.Chain, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	warmer := rates.NewWarmer(chain, warmInterval, log)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return warmer.Start(ctx)
		},
		OnStop: func(context.Context) error {
			cancel()
			warmer.Stop()
			return nil
		},
	})
}

// startWatchers relays router events to NATS for every connected chain.
func startWatchers(lc fx.Lifecycle, cfg *config.Config, clients chainClients, pub *events.Publisher, scheduler *tasks.Scheduler, log *zap.Logger) error {
	if pub == nil || len(clients) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	for chainID, client := range clients {
		w, err := settlement.NewWatcher(chainID, cfg.Routers[chainID], client, pub,
			settlement.WithWatcherLogger(log))
		if err != nil {
			cancel()
			return err
		}
		if _, err := scheduler.Add(&tasks.Task{
			Interval:    watchInterval,
			TaskContext: tasks.TaskContext{Context: ctx},
			FuncWithTaskContext: func(tc tasks.TaskContext) error {
				_, err := w.Poll(tc.Context)
				return err
			},
			ErrFunc: func(err error) {
				log.Warn("dealerd.watch_failed", zap.Int64("chain_id", chainID), zap.Error(err))
			},
		}); err != nil {
			cancel()
			return err
		}
	}

	lc.Append(fx.StopHook(func() {
		cancel()
		scheduler.Stop()
	}))
	return nil
}
