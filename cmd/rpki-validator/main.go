package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/srx-go/rpki-validator/internal/aspadb"
	"github.com/srx-go/rpki-validator/internal/aspatrie"
	"github.com/srx-go/rpki-validator/internal/bgpsec"
	"github.com/srx-go/rpki-validator/internal/clientmap"
	"github.com/srx-go/rpki-validator/internal/cmdqueue"
	"github.com/srx-go/rpki-validator/internal/config"
	"github.com/srx-go/rpki-validator/internal/db"
	"github.com/srx-go/rpki-validator/internal/dispatch"
	"github.com/srx-go/rpki-validator/internal/metrics"
	"github.com/srx-go/rpki-validator/internal/notify"
	"github.com/srx-go/rpki-validator/internal/pathcache"
	"github.com/srx-go/rpki-validator/internal/rpki"
	"github.com/srx-go/rpki-validator/internal/server"
	"github.com/srx-go/rpki-validator/internal/trustfeed"
	"github.com/srx-go/rpki-validator/internal/updatecache"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "migrate":
		runMigrate()
	case "feed-reload":
		runFeedReload()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: rpki-validator <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve        Start the validation server")
	fmt.Println("  migrate      Run database migrations")
	fmt.Println("  feed-reload  Reload the ASPA seed table from Postgres once and exit")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// migrationsDir returns the path to the migrations directory relative to
// the binary.
func migrationsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

func runServe() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting rpki-validator",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.String("listener", cfg.Listener.Address),
		zap.String("http_listen", cfg.Service.HTTPListen),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	trust := aspatrie.New()
	aspaLoader := aspadb.New(pool, trust, logger.Named("aspadb"))

	tlsCfg, err := cfg.Kafka.BuildTLSConfig()
	if err != nil {
		logger.Fatal("failed to build TLS config", zap.Error(err))
	}
	saslMech := cfg.Kafka.BuildSASLMechanism()

	feed, err := trustfeed.New(
		cfg.Kafka.Brokers, cfg.Kafka.TrustFeed.GroupID, cfg.Kafka.TrustFeed.Topics,
		cfg.Kafka.ClientID+"-trustfeed", cfg.Kafka.FetchMaxBytes, tlsCfg, saslMech,
		trust, cfg.Dispatch.QueueNotifyBuffer, logger.Named("trustfeed"),
	)
	if err != nil {
		logger.Fatal("failed to create trust feed consumer", zap.Error(err))
	}
	defer feed.Close()

	// ASPA seed load must complete before the dispatch pool starts serving,
	// so the first wave of verify requests sees a populated trust store.
	loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := aspaLoader.LoadOnce(loadCtx, "startup"); err != nil {
		logger.Fatal("failed to load ASPA seed table", zap.Error(err))
	}
	loadCancel()

	go func() {
		if err := aspaLoader.RunReload(ctx, time.Duration(cfg.Postgres.ReloadIntervalSecs)*time.Second); err != nil {
			logger.Error("ASPA reload loop stopped", zap.Error(err))
		}
	}()
	go feed.Run(ctx)

	queue := cmdqueue.New()
	clients := clientmap.New()
	updates := updatecache.New(cfg.Dispatch.QueueNotifyBuffer)
	paths := pathcache.New()

	dispatcher := dispatch.New(dispatch.Config{
		ProtocolVersion:   cfg.Listener.ProtocolVersion,
		WorkerPoolSize:    cfg.Dispatch.WorkerPoolSize,
		SyncOnConnect:     cfg.Dispatch.SyncOnConnect,
		DefaultKeepWindow: time.Duration(cfg.Dispatch.DefaultKeepWindowSeconds) * time.Second,
	}, queue, clients, updates, paths, trust, rpki.StubValidator{}, bgpsec.StubVerifier{}, logger.Named("dispatch"))
	dispatcher.Start()

	fanout := notify.New(updates, clients, feed, logger.Named("notify"))
	fanout.Start()

	proxyListener := server.NewListener(queue, clients, logger.Named("listener"))
	if err := proxyListener.Serve(cfg.Listener.Address); err != nil {
		logger.Fatal("failed to start proxy listener", zap.Error(err))
	}

	httpServer := server.NewHTTPServer(cfg.Service.HTTPListen, aspaLoader, feed, trust, logger.Named("http"))
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start HTTP server", zap.Error(err))
	}

	logger.Info("rpki-validator started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := proxyListener.Close(); err != nil {
		logger.Error("proxy listener close error", zap.Error(err))
	}

	cancel() // stops the trust feed consumer and the ASPA reload loop
	fanout.Stop()
	dispatcher.Stop()

	done := make(chan struct{})
	go func() {
		proxyListener.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("all connections drained")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout reached, some connections may not have drained")
	}

	logger.Info("rpki-validator stopped")
}

func runMigrate() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running migrations", zap.String("dsn", redactDSN(cfg.Postgres.DSN)))

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrationsDir(), logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	logger.Info("migrations complete")
}

// runFeedReload loads the ASPA seed table once into a standalone trust
// store, outside the server process, and logs how many objects it read. It
// does not touch a running server's trust store; the server picks up table
// changes through its own periodic reload.
func runFeedReload() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	trust := aspatrie.New()
	loader := aspadb.New(pool, trust, logger.Named("aspadb"))
	if err := loader.LoadOnce(ctx, "manual"); err != nil {
		logger.Fatal("feed reload failed", zap.Error(err))
	}

	logger.Info("feed reload complete", zap.Int("aspa_objects", trust.Count()))
}

func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		re := regexp.MustCompile(`password\s*=\s*\S+`)
		return re.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
