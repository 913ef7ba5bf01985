package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"story-chain/story"
	"story-chain/story/application"
	"story-chain/story/domain"
	"story-chain/story/infra"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	dbPath     string
	listenAddr string
	staticDir  string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:          "storyd",
		Short:        "Collaborative one-sentence-a-day story server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&f.dbPath, "db", "", "sqlite database path (overrides STORY_DB_PATH)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	serve.Flags().StringVar(&f.listenAddr, "listen", "", "listen address (overrides LISTEN_ADDR)")
	serve.Flags().StringVar(&f.staticDir, "static", "", "directory with the front-end files")

	latest := &cobra.Command{
		Use:   "latest",
		Short: "Print the current sentence of the story",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			return printLatest(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	root.AddCommand(serve, latest)
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	return root
}

func (f *flags) load() (config, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return config{}, err
	}
	if f.dbPath != "" {
		cfg.DB.Path = f.dbPath
	}
	if f.listenAddr != "" {
		cfg.ListenAddr = f.listenAddr
	}
	if f.staticDir != "" {
		cfg.StaticDir = f.staticDir
	}
	if err := cfg.validate(); err != nil {
		return config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}

type ledgerCloser interface {
	domain.Ledger
	io.Closer
}

func openLedger(ctx context.Context, cfg config) (ledgerCloser, error) {
	switch cfg.DB.Driver {
	case "postgres":
		l, err := infra.OpenPostgresLedger(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		if dir := filepath.Dir(cfg.DB.Path); dir != "." && cfg.DB.Path != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating data dir: %w", err)
			}
		}
		l, err := infra.OpenSQLiteLedger(ctx, cfg.DB.Path)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
}

func newService(cfg config, ledger domain.Ledger, stats domain.StatsStore, logger *slog.Logger) *application.Service {
	return &application.Service{
		Ledger:   ledger,
		Identity: infra.TokenResolver{},
		Policy: application.DailyPolicy{
			Window:     cfg.Story.DayWindow,
			BypassName: cfg.Story.BypassName,
		},
		Stats:          stats,
		Logger:         logger,
		MaxSentenceLen: cfg.Story.MaxSentence,
		MaxNameLen:     cfg.Story.MaxName,
	}
}

func serve(parent context.Context, cfg config) error {
	if parent == nil {
		parent = context.Background()
	}
	logger := slog.New(story.NewContextHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.slogLevel()})))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ledger, err := openLedger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer func() { _ = ledger.Close() }()

	var stats domain.StatsStore = infra.NewMemoryStatsStore()
	if cfg.Stats.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			return fmt.Errorf("redis stats ping: %w", err)
		}
		stats = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		)
	}

	svc := newService(cfg, ledger, stats, logger)

	var pool *infra.ChanPool
	opts := story.Options{
		Service:      svc,
		StaticDir:    cfg.StaticDir,
		CookieMaxAge: cfg.Cookie.MaxAge,
		SecureCookie: cfg.Cookie.Secure,
		Logger:       logger,
	}
	if cfg.Concurrency.Max > 0 {
		pool = infra.NewChanPool(cfg.Concurrency.Max)
		opts.InFlight = pool.InUse
	}

	h := story.NewHandler(opts)
	if cfg.Throttle.Enabled {
		throttle := infra.NewThrottleStore(cfg.Throttle.RPS, cfg.Throttle.Burst)
		throttle.StartJanitor(ctx)
		h = story.ThrottleMiddleware(story.ThrottleOptions{
			Store:               throttle,
			TrustXForwardedFor:  cfg.Throttle.TrustXFF,
			MinRetryAfter:       cfg.Throttle.MinRetryAfter,
			AddRateLimitHeaders: cfg.Throttle.AddHeaders,
		})(h)
	}
	if pool != nil {
		h = story.ConcurrencyMiddleware(story.ConcurrencyOptions{
			Pool:           pool,
			AcquireTimeout: cfg.Concurrency.Timeout,
			SubmitReserve:  cfg.Concurrency.SubmitReserve,
		})(h)
	}
	h = story.AccessLog(logger)(h)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("story server listening", "addr", cfg.ListenAddr, "db_driver", cfg.DB.Driver, "static_dir", cfg.StaticDir)
	logger.Info("story policy", "day_window", cfg.Story.DayWindow, "bypass_enabled", cfg.Story.BypassName != "", "max_sentence", cfg.Story.MaxSentence)
	logger.Info("throttle", "enabled", cfg.Throttle.Enabled, "rps", cfg.Throttle.RPS, "burst", cfg.Throttle.Burst, "trust_xff", cfg.Throttle.TrustXFF)
	logger.Info("stats", "redis", cfg.Stats.RedisAddr != "", "bucket", cfg.Stats.Bucket, "track_keys", cfg.Stats.TrackKeys)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

func printLatest(ctx context.Context, out io.Writer, cfg config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ledger, err := openLedger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer ledger.Close()

	svc := newService(cfg, ledger, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s, err := svc.GetCurrent(ctx)
	if err != nil {
		return err
	}
	n, err := svc.Length(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%q - %s\n", s.Text, s.Author)
	if !s.CreatedAt.IsZero() {
		fmt.Fprintf(out, "added %s\n", s.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "%d sentences so far\n", n)
	return nil
}
