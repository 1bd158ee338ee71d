package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/n3tuk/langgraph-opensearch-store/internal/engine"
	"github.com/n3tuk/langgraph-opensearch-store/internal/schema"
	"github.com/n3tuk/langgraph-opensearch-store/internal/storage"
	"github.com/n3tuk/langgraph-opensearch-store/internal/store"
	"github.com/n3tuk/langgraph-opensearch-store/internal/ttl"
)

// Config holds all configuration for the store and its service.
type Config struct {
	// OpenSearch connection settings
	OpenSearchConn               string
	OpenSearchHosts              []string
	OpenSearchAuthMode           string
	OpenSearchUsername           string
	OpenSearchPassword           string
	OpenSearchToken              string
	OpenSearchInsecureSkipVerify bool
	OpenSearchRequestTimeout     time.Duration
	OpenSearchMaxRetries         int

	// Index settings
	IndexPrefix        string
	IndexShards        int
	IndexReplicas      int
	IndexRefresh       string
	IndexMaxNamespaces int

	// TTL settings
	TTLDefault       time.Duration
	TTLBatchSize     int
	TTLSweepInterval time.Duration
	TTLSweepRate     float64

	// API server settings
	APIPort int
	APIHost string

	// Probe server settings
	ProbePort int
	ProbeHost string

	// Metrics server settings
	MetricsPort int
	MetricsHost string

	// TLS settings
	TLSEnabled bool
	TLSCert    string
	TLSKey     string

	// Logging settings
	LogLevel  string
	LogFormat string

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration

	// Health check settings
	HealthCheckTimeout       time.Duration
	HealthCheckCacheDuration time.Duration

	// Metrics settings
	MetricsNamespace       string
	MetricsCollectInterval time.Duration
}

// Load reads configuration from environment variables, config file, and flags.
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("opensearch.conn", "")
	viper.SetDefault("opensearch.hosts", []string{engine.DefaultHost})
	viper.SetDefault("opensearch.auth_mode", engine.DefaultAuthMode)
	viper.SetDefault("opensearch.username", "")
	viper.SetDefault("opensearch.password", "")
	viper.SetDefault("opensearch.token", "")
	viper.SetDefault("opensearch.insecure_skip_verify", false)
	viper.SetDefault("opensearch.request_timeout", engine.DefaultRequestTimeout.String())
	viper.SetDefault("opensearch.max_retries", engine.DefaultMaxRetries)
	viper.SetDefault("index.prefix", schema.DefaultPrefix)
	viper.SetDefault("index.shards", schema.DefaultShards)
	viper.SetDefault("index.replicas", schema.DefaultReplicas)
	viper.SetDefault("index.refresh", engine.DefaultRefresh)
	viper.SetDefault("index.max_namespaces", storage.DefaultMaxNamespaces)
	viper.SetDefault("ttl.default", "0s")
	viper.SetDefault("ttl.batch_size", ttl.DefaultBatchSize)
	viper.SetDefault("ttl.sweep_interval", "0s")
	viper.SetDefault("ttl.sweep_rate", 1.0)
	viper.SetDefault("api.port", 8080)
	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("probe.port", 8081)
	viper.SetDefault("probe.host", "0.0.0.0")
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("metrics.host", "0.0.0.0")
	viper.SetDefault("metrics.collect_interval", "30s")
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cert", "")
	viper.SetDefault("tls.key", "")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("shutdown.timeout", "30s")
	viper.SetDefault("health.check_timeout", "5s")
	viper.SetDefault("health.cache_duration", "10s")

	// Enable environment variable support with automatic replacement
	viper.SetEnvPrefix("LGSTORE")
	viper.AutomaticEnv()
	// Replace . with _ in environment variable names (e.g., index.prefix -> LGSTORE_INDEX_PREFIX)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// The connection variables are also read under their unprefixed names
	_ = viper.BindEnv("opensearch.conn", "LGSTORE_OPENSEARCH_CONN", "OPENSEARCH_CONN")
	_ = viper.BindEnv("opensearch.hosts", "LGSTORE_OPENSEARCH_HOSTS", "OPENSEARCH_HOSTS")
	_ = viper.BindEnv("opensearch.auth_mode", "LGSTORE_OPENSEARCH_AUTH_MODE", "OPENSEARCH_AUTH_MODE")
	_ = viper.BindEnv("opensearch.username", "LGSTORE_OPENSEARCH_USERNAME", "OPENSEARCH_USERNAME")
	_ = viper.BindEnv("opensearch.password", "LGSTORE_OPENSEARCH_PASSWORD", "OPENSEARCH_PASSWORD")

	// Try to read config file if it exists
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/opensearch-store/")

	// Reading config file is optional
	_ = viper.ReadInConfig()

	// Parse configuration
	cfg := &Config{
		OpenSearchConn:               viper.GetString("opensearch.conn"),
		OpenSearchHosts:              splitHosts(viper.GetStringSlice("opensearch.hosts")),
		OpenSearchAuthMode:           strings.ToLower(viper.GetString("opensearch.auth_mode")),
		OpenSearchUsername:           viper.GetString("opensearch.username"),
		OpenSearchPassword:           viper.GetString("opensearch.password"),
		OpenSearchToken:              viper.GetString("opensearch.token"),
		OpenSearchInsecureSkipVerify: viper.GetBool("opensearch.insecure_skip_verify"),
		OpenSearchMaxRetries:         viper.GetInt("opensearch.max_retries"),
		IndexPrefix:                  viper.GetString("index.prefix"),
		IndexShards:                  viper.GetInt("index.shards"),
		IndexReplicas:                viper.GetInt("index.replicas"),
		IndexRefresh:                 viper.GetString("index.refresh"),
		IndexMaxNamespaces:           viper.GetInt("index.max_namespaces"),
		TTLBatchSize:                 viper.GetInt("ttl.batch_size"),
		TTLSweepRate:                 viper.GetFloat64("ttl.sweep_rate"),
		APIPort:                      viper.GetInt("api.port"),
		APIHost:                      viper.GetString("api.host"),
		ProbePort:                    viper.GetInt("probe.port"),
		ProbeHost:                    viper.GetString("probe.host"),
		MetricsPort:                  viper.GetInt("metrics.port"),
		MetricsHost:                  viper.GetString("metrics.host"),
		TLSEnabled:                   viper.GetBool("tls.enabled"),
		TLSCert:                      viper.GetString("tls.cert"),
		TLSKey:                       viper.GetString("tls.key"),
		LogLevel:                     strings.ToLower(viper.GetString("log.level")),
		LogFormat:                    strings.ToLower(viper.GetString("log.format")),
		MetricsNamespace:             "langgraph_store", // Fixed value, not configurable
	}

	durations := []struct {
		key  string
		name string
		dst  *time.Duration
	}{
		{"opensearch.request_timeout", "request timeout", &cfg.OpenSearchRequestTimeout},
		{"ttl.default", "default ttl", &cfg.TTLDefault},
		{"ttl.sweep_interval", "sweep interval", &cfg.TTLSweepInterval},
		{"metrics.collect_interval", "metrics collect interval", &cfg.MetricsCollectInterval},
		{"shutdown.timeout", "shutdown timeout", &cfg.ShutdownTimeout},
		{"health.check_timeout", "health check timeout", &cfg.HealthCheckTimeout},
		{"health.cache_duration", "health check cache duration", &cfg.HealthCheckCacheDuration},
	}
	for _, d := range durations {
		value, err := time.ParseDuration(viper.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = value
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// splitHosts accepts hosts given as a list or as one comma separated value.
func splitHosts(values []string) []string {
	var hosts []string
	for _, value := range values {
		for _, host := range strings.Split(value, ",") {
			if host = strings.TrimSpace(host); host != "" {
				hosts = append(hosts, host)
			}
		}
	}
	return hosts
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.APIPort < 1 || c.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", c.APIPort)
	}
	if c.ProbePort < 1 || c.ProbePort > 65535 {
		return fmt.Errorf("invalid probe port: %d", c.ProbePort)
	}
	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}

	if c.TLSEnabled {
		if c.TLSCert == "" {
			return fmt.Errorf("TLS enabled but no certificate path provided")
		}
		if c.TLSKey == "" {
			return fmt.Errorf("TLS enabled but no key path provided")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.LogFormat)
	}

	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %s (must be positive)", c.ShutdownTimeout)
	}

	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("invalid health check timeout: %s (must be positive)", c.HealthCheckTimeout)
	}

	if c.HealthCheckCacheDuration < 0 {
		return fmt.Errorf("invalid health check cache duration: %s (must be non-negative, zero disables caching)", c.HealthCheckCacheDuration)
	}

	if c.MetricsNamespace == "" {
		return fmt.Errorf("metrics namespace cannot be empty")
	}

	if c.MetricsCollectInterval <= 0 {
		return fmt.Errorf("invalid metrics collect interval: %s (must be positive)", c.MetricsCollectInterval)
	}

	if c.TTLSweepInterval < 0 {
		return fmt.Errorf("invalid sweep interval: %s (must be non-negative, zero disables the sweeper)", c.TTLSweepInterval)
	}

	if c.TTLSweepRate < 0 {
		return fmt.Errorf("invalid sweep rate: %v (must be non-negative, zero disables pacing)", c.TTLSweepRate)
	}

	storeCfg, err := c.StoreConfig()
	if err != nil {
		return err
	}

	return storeCfg.Validate()
}

// StoreConfig builds the store configuration. A connection string, when set,
// supplies the hosts, and any non-empty discrete credential or a non-default
// auth mode takes precedence over the values it carries.
func (c *Config) StoreConfig() (*store.StoreConfig, error) {
	conn := engine.NewDefaultConnectionConfig()
	prefix := c.IndexPrefix

	if c.OpenSearchConn != "" {
		parsed, err := engine.ParseConnString(c.OpenSearchConn)
		if err != nil {
			return nil, err
		}
		conn = parsed

		if p := connIndexPrefix(c.OpenSearchConn); p != "" {
			prefix = p
		}

		if c.OpenSearchUsername != "" {
			conn.Username = c.OpenSearchUsername
			if conn.AuthMode == engine.AuthNone {
				conn.AuthMode = engine.AuthBasic
			}
		}
		if c.OpenSearchPassword != "" {
			conn.Password = c.OpenSearchPassword
		}
		if c.OpenSearchToken != "" {
			conn.Token = c.OpenSearchToken
			if conn.AuthMode == engine.AuthNone {
				conn.AuthMode = engine.AuthToken
			}
		}
		if c.OpenSearchAuthMode != "" && c.OpenSearchAuthMode != engine.DefaultAuthMode {
			conn.AuthMode = c.OpenSearchAuthMode
		}
		if c.OpenSearchInsecureSkipVerify {
			conn.InsecureSkipVerify = true
		}
	} else {
		conn.Hosts = c.OpenSearchHosts
		conn.AuthMode = c.OpenSearchAuthMode
		conn.Username = c.OpenSearchUsername
		conn.Password = c.OpenSearchPassword
		conn.Token = c.OpenSearchToken
		conn.InsecureSkipVerify = c.OpenSearchInsecureSkipVerify
	}

	conn.RequestTimeout = c.OpenSearchRequestTimeout
	conn.MaxRetries = c.OpenSearchMaxRetries
	conn.Refresh = c.IndexRefresh

	return &store.StoreConfig{
		Connection:     conn,
		IndexPrefix:    prefix,
		Shards:         c.IndexShards,
		Replicas:       c.IndexReplicas,
		DefaultTTL:     c.TTLDefault,
		MaxNamespaces:  c.IndexMaxNamespaces,
		SweepBatchSize: c.TTLBatchSize,
	}, nil
}

// connIndexPrefix returns the index_prefix query parameter of a connection string.
func connIndexPrefix(conn string) string {
	u, err := url.Parse(strings.TrimSpace(conn))
	if err != nil {
		return ""
	}
	return u.Query().Get("index_prefix")
}
