package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/n3tuk/langgraph-opensearch-store/internal/config"
	"github.com/n3tuk/langgraph-opensearch-store/internal/engine"
	"github.com/n3tuk/langgraph-opensearch-store/internal/logger"
	"github.com/n3tuk/langgraph-opensearch-store/internal/metrics"
	"github.com/n3tuk/langgraph-opensearch-store/internal/schema"
	"github.com/n3tuk/langgraph-opensearch-store/internal/server"
	"github.com/n3tuk/langgraph-opensearch-store/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// setupTimeout bounds connecting to the cluster and installing the schema.
const setupTimeout = 60 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "opensearch-store",
	Short: "OpenSearch-backed key/value store for LangGraph",
	Long: `A namespaced key/value store on OpenSearch with search, TTL expiry,
schema migration, and snapshot management.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "Commit:  %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "Built:   %s\n", date)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with probes, metrics, and the TTL sweeper",
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)

	// Connection and index flags are shared by every command
	flags := rootCmd.PersistentFlags()
	flags.String("conn", "", "OpenSearch connection string (http[s]://[user:pass@]host[:port][,host...][/?auth_mode=...&token=...&index_prefix=...])")
	flags.StringSlice("hosts", []string{engine.DefaultHost}, "OpenSearch hosts")
	flags.String("auth-mode", engine.DefaultAuthMode, "Authentication mode (none, basic, token)")
	flags.String("username", "", "Username for basic authentication")
	flags.String("password", "", "Password for basic authentication")
	flags.String("token", "", "Bearer token for token authentication")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification")
	flags.Duration("request-timeout", engine.DefaultRequestTimeout, "Per-request timeout (e.g., 30s)")
	flags.String("index-prefix", schema.DefaultPrefix, "Prefix for the alias, index, and template names")
	flags.Int("shards", schema.DefaultShards, "Primary shards per backing index")
	flags.Int("replicas", schema.DefaultReplicas, "Replicas per backing index")
	flags.Duration("default-ttl", 0, "TTL applied to writes without one (0 disables)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "json", "Log format (json, console)")

	_ = viper.BindPFlag("opensearch.conn", flags.Lookup("conn"))
	_ = viper.BindPFlag("opensearch.hosts", flags.Lookup("hosts"))
	_ = viper.BindPFlag("opensearch.auth_mode", flags.Lookup("auth-mode"))
	_ = viper.BindPFlag("opensearch.username", flags.Lookup("username"))
	_ = viper.BindPFlag("opensearch.password", flags.Lookup("password"))
	_ = viper.BindPFlag("opensearch.token", flags.Lookup("token"))
	_ = viper.BindPFlag("opensearch.insecure_skip_verify", flags.Lookup("insecure-skip-verify"))
	_ = viper.BindPFlag("opensearch.request_timeout", flags.Lookup("request-timeout"))
	_ = viper.BindPFlag("index.prefix", flags.Lookup("index-prefix"))
	_ = viper.BindPFlag("index.shards", flags.Lookup("shards"))
	_ = viper.BindPFlag("index.replicas", flags.Lookup("replicas"))
	_ = viper.BindPFlag("ttl.default", flags.Lookup("default-ttl"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))

	// Service flags
	serveCmd.Flags().Int("api-port", 8080, "API server port")
	serveCmd.Flags().String("api-host", "0.0.0.0", "API server host")
	serveCmd.Flags().Int("probe-port", 8081, "Probe server port")
	serveCmd.Flags().String("probe-host", "0.0.0.0", "Probe server host")
	serveCmd.Flags().Int("metrics-port", 9090, "Metrics server port")
	serveCmd.Flags().String("metrics-host", "0.0.0.0", "Metrics server host")
	serveCmd.Flags().Bool("tls-enabled", false, "Enable TLS for API server")
	serveCmd.Flags().String("tls-cert", "", "Path to TLS certificate")
	serveCmd.Flags().String("tls-key", "", "Path to TLS key")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout (e.g., 30s)")
	serveCmd.Flags().Duration("health-check-timeout", 5*time.Second, "Health check timeout (e.g., 5s)")
	serveCmd.Flags().Duration("health-cache-duration", 10*time.Second, "Health check cache duration (e.g., 10s)")
	serveCmd.Flags().Duration("ttl-sweep-interval", 0, "Interval between background TTL sweeps (0 disables)")
	serveCmd.Flags().Float64("ttl-sweep-rate", 1, "Maximum sweep batches per second (0 is unlimited)")
	serveCmd.Flags().Int("ttl-batch-size", 1000, "Expired items removed per sweep batch")

	_ = viper.BindPFlag("api.port", serveCmd.Flags().Lookup("api-port"))
	_ = viper.BindPFlag("api.host", serveCmd.Flags().Lookup("api-host"))
	_ = viper.BindPFlag("probe.port", serveCmd.Flags().Lookup("probe-port"))
	_ = viper.BindPFlag("probe.host", serveCmd.Flags().Lookup("probe-host"))
	_ = viper.BindPFlag("metrics.port", serveCmd.Flags().Lookup("metrics-port"))
	_ = viper.BindPFlag("metrics.host", serveCmd.Flags().Lookup("metrics-host"))
	_ = viper.BindPFlag("tls.enabled", serveCmd.Flags().Lookup("tls-enabled"))
	_ = viper.BindPFlag("tls.cert", serveCmd.Flags().Lookup("tls-cert"))
	_ = viper.BindPFlag("tls.key", serveCmd.Flags().Lookup("tls-key"))
	_ = viper.BindPFlag("shutdown.timeout", serveCmd.Flags().Lookup("shutdown-timeout"))
	_ = viper.BindPFlag("health.check_timeout", serveCmd.Flags().Lookup("health-check-timeout"))
	_ = viper.BindPFlag("health.cache_duration", serveCmd.Flags().Lookup("health-cache-duration"))
	_ = viper.BindPFlag("ttl.sweep_interval", serveCmd.Flags().Lookup("ttl-sweep-interval"))
	_ = viper.BindPFlag("ttl.sweep_rate", serveCmd.Flags().Lookup("ttl-sweep-rate"))
	_ = viper.BindPFlag("ttl.batch_size", serveCmd.Flags().Lookup("ttl-batch-size"))
}

// session holds what every store command needs.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// newSession loads the configuration and builds the logger.
func newSession() (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return &session{cfg: cfg, logger: log}, nil
}

// open connects to the cluster and installs the schema. Engine operations
// are recorded when m is not nil.
func (s *session) open(ctx context.Context, m *engine.Metrics) error {
	storeCfg, err := s.cfg.StoreConfig()
	if err != nil {
		return err
	}

	setupCtx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()

	st, err := store.Open(setupCtx, storeCfg, s.logger, m)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	if err := st.Setup(setupCtx); err != nil {
		return fmt.Errorf("failed to set up store: %w", err)
	}

	s.store = st
	return nil
}

// openStore returns a session with a connected store for one-shot commands.
func openStore(ctx context.Context) (*session, error) {
	sess, err := newSession()
	if err != nil {
		return nil, err
	}

	if err := sess.open(ctx, nil); err != nil {
		return nil, err
	}

	return sess, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func runServer(cmd *cobra.Command, args []string) error {
	sess, err := newSession()
	if err != nil {
		return err
	}
	log := sess.logger
	defer func() { _ = log.Sync() }()

	log.Info("Starting OpenSearch store service",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
		zap.String("index_prefix", sess.cfg.IndexPrefix),
	)

	// Create metrics with build info; the store's engine records into the same registry
	buildInfo := map[string]string{
		"version": version,
		"commit":  commit,
		"date":    date,
	}
	m := metrics.NewMetrics(sess.cfg.MetricsNamespace, buildInfo)

	if err := sess.open(cmd.Context(), m.Engine); err != nil {
		return err
	}

	srv, err := server.New(sess.cfg, log, sess.store, m)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Start server
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info("Service started successfully")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutdown signal received")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), sess.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		return err
	}

	log.Info("Service stopped gracefully")
	return nil
}
