package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/account"
	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-devicekey-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-devicekey-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-devicekey-go/pkg/utilities"
)

var (
	flagPort  string
	flagStore string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.ConfigFromEnv()
		if flagPort != "" {
			cfg.Port = flagPort
		}
		if flagStore != "" {
			cfg.StoreDriver = flagStore
		}
		return serve(cfg, database.ConfigFromEnv())
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagPort, "port", "", "listen port (overrides PORT)")
	serveCmd.Flags().StringVar(&flagStore, "store", "", "store driver: memory, postgres or bolt (overrides STORE_DRIVER)")
}

func serve(cfg config.Config, dbCfg database.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	// init logger
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer lg.Sync()
	sugar := lg.Sugar()
	sugar.Infow("starting devicekey service", "store", cfg.StoreDriver, "token_ttl", cfg.TokenTTL)

	store, err := openStore(context.Background(), cfg.StoreDriver, dbCfg)
	if err != nil {
		return err
	}
	defer store.Close()

	handler, err := buildHandler(cfg, store, sugar)
	if err != nil {
		return err
	}

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// run server in background
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	sugar.Infow("server running", "addr", cfg.Addr())

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	sugar.Info("shutting down")

	// give a short grace period for in-flight requests
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
	return nil
}

// openStore connects the configured credential store backend.
func openStore(ctx context.Context, driver string, dbCfg database.Config) (repo.Store, error) {
	switch driver {
	case config.DriverMemory:
		return repo.NewMemoryStore(), nil
	case config.DriverPostgres:
		db, err := database.Connect(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		s := repo.NewPostgresStore(db)
		if err := s.EnsureTable(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure table: %w", err)
		}
		return s, nil
	case config.DriverBolt:
		db, err := database.OpenBolt(dbCfg)
		if err != nil {
			return nil, err
		}
		s, err := repo.NewBoltStore(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// buildHandler wires services, metrics and routes on top of store.
func buildHandler(cfg config.Config, store repo.Store, logger *zap.SugaredLogger) (http.Handler, error) {
	clock := clockwork.NewRealClock()
	tokens := token.NewService(store, token.WithClock(clock), token.WithTTL(cfg.TokenTTL))

	opts := []account.Option{
		account.WithHasher(account.BcryptHasher{Cost: cfg.BcryptCost}),
		account.WithClock(clock),
	}
	if cfg.AssertionSecret != "" {
		signer, err := token.NewSigner([]byte(cfg.AssertionSecret), cfg.AssertionIssuer, cfg.TokenTTL, clock)
		if err != nil {
			return nil, err
		}
		opts = append(opts, account.WithSigner(signer))
	}
	svc, err := account.NewAccountService(store, tokens, logger, opts...)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	return router.RegisterRoutes(router.Options{
		Logger:         logger,
		Accounts:       account.NewHandler(svc, logger, m),
		Registry:       reg,
		AllowedOrigins: cfg.CORSOrigins,
	}), nil
}
