package engine

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Authentication modes.
const (
	AuthNone  = "none"
	AuthBasic = "basic"
	AuthToken = "token"
)

// Refresh policies applied to document writes.
const (
	RefreshNone    = "false"
	RefreshWaitFor = "wait_for"
	RefreshForce   = "true"
)

const (
	// DefaultHost is used when no hosts are configured.
	DefaultHost = "http://localhost:9200"
	// DefaultAuthMode is the default authentication mode.
	DefaultAuthMode = AuthNone
	// DefaultRequestTimeout bounds how long a response header may take.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultMaxRetries is the number of transport retries the client performs.
	DefaultMaxRetries = 3
	// DefaultRefresh makes writes visible to the next search before returning.
	DefaultRefresh = RefreshWaitFor
)

// ConnectionConfig holds the parameters for connecting to the search engine.
type ConnectionConfig struct {
	// Hosts are the endpoint URIs of the cluster.
	Hosts []string

	// AuthMode is one of "none", "basic", or "token".
	AuthMode string

	// Username and Password are used with basic authentication.
	Username string
	Password string

	// Token is sent as a bearer token with token authentication.
	Token string

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// RequestTimeout bounds how long a response header may take.
	RequestTimeout time.Duration

	// MaxRetries is the number of retries the client transport performs.
	MaxRetries int

	// Refresh is the refresh policy for document writes.
	// Valid values: "false", "wait_for", "true"
	Refresh string
}

// NewDefaultConnectionConfig returns a ConnectionConfig with sensible defaults.
func NewDefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Hosts:          []string{DefaultHost},
		AuthMode:       DefaultAuthMode,
		RequestTimeout: DefaultRequestTimeout,
		MaxRetries:     DefaultMaxRetries,
		Refresh:        DefaultRefresh,
	}
}

// ParseConnString parses a connection string of the form
//
//	http[s]://[user:pass@]host1[:port][,host2[:port]...][/][?auth_mode=..&token=..&insecure_skip_verify=..]
//
// into a ConnectionConfig with defaults for anything it does not set.
// Credentials in the user info imply basic authentication unless auth_mode says otherwise.
func ParseConnString(conn string) (*ConnectionConfig, error) {
	cfg := NewDefaultConnectionConfig()

	scheme, rest, ok := strings.Cut(strings.TrimSpace(conn), "://")
	if !ok {
		return nil, fmt.Errorf("invalid connection string: missing scheme")
	}
	scheme = strings.ToLower(scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("connection string scheme must be http or https, got: %q", scheme)
	}

	// The authority holds a comma separated host list, which url.Parse
	// cannot validate, so each host is parsed on its own.
	authority, rawQuery := rest, ""
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		authority = rest[:i]
		if _, q, found := strings.Cut(rest[i:], "?"); found {
			rawQuery = q
		}
	}

	if i := strings.LastIndex(authority, "@"); i >= 0 {
		u, err := url.Parse(scheme + "://" + authority[:i] + "@localhost")
		if err != nil {
			return nil, fmt.Errorf("invalid connection string credentials: %w", err)
		}
		cfg.AuthMode = AuthBasic
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
		authority = authority[i+1:]
	}

	cfg.Hosts = nil
	for _, host := range strings.Split(authority, ",") {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		endpoint := scheme + "://" + host
		u, err := url.Parse(endpoint)
		if err != nil || u.Host != host || u.Hostname() == "" {
			return nil, fmt.Errorf("invalid host %q in connection string", host)
		}
		cfg.Hosts = append(cfg.Hosts, endpoint)
	}
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("connection string has no hosts")
	}

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string query: %w", err)
	}
	if mode := query.Get("auth_mode"); mode != "" {
		cfg.AuthMode = strings.ToLower(mode)
	}
	if token := query.Get("token"); token != "" {
		cfg.Token = token
		if query.Get("auth_mode") == "" {
			cfg.AuthMode = AuthToken
		}
	}
	if skip := query.Get("insecure_skip_verify"); skip != "" {
		cfg.InsecureSkipVerify, err = strconv.ParseBool(skip)
		if err != nil {
			return nil, fmt.Errorf("invalid insecure_skip_verify: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks if the connection configuration is valid.
func (c *ConnectionConfig) Validate() error {
	if len(c.Hosts) == 0 {
		return fmt.Errorf("at least one host is required")
	}
	for _, host := range c.Hosts {
		u, err := url.Parse(host)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("host must be an http or https URL, got: %s", host)
		}
	}

	switch c.AuthMode {
	case AuthNone:
	case AuthBasic:
		if c.Username == "" {
			return fmt.Errorf("basic authentication requires a username")
		}
	case AuthToken:
		if c.Token == "" {
			return fmt.Errorf("token authentication requires a token")
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (must be none, basic, or token)", c.AuthMode)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be zero or greater, got: %d", c.MaxRetries)
	}

	switch c.Refresh {
	case RefreshNone, RefreshWaitFor, RefreshForce:
	default:
		return fmt.Errorf("invalid refresh policy: %s (must be false, wait_for, or true)", c.Refresh)
	}

	return nil
}
