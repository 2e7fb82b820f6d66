package config

import "time"

const (
	DefaultMaxDepth         = 5
	DefaultNumWorkers       = 4
	DefaultTopWords         = 25
	DefaultMaxPageSizeBytes = 10 << 20 // 10 MiB
	DefaultUserAgent        = "wordcrawl/1.0 (+https://github.com/Sriram-PR/wordcrawl)"
)

// AppConfig holds the application configuration for one crawl session
type AppConfig struct {
	StartURLs          []string         `yaml:"start_urls"`
	MaxDepth           *int             `yaml:"max_depth,omitempty"` // nil = default; 0 = seeds only
	NumWorkers         int              `yaml:"num_workers"`
	StateDir           string           `yaml:"state_dir"`
	OutputDir          string           `yaml:"output_dir"`
	PersistentVisited  bool             `yaml:"persistent_visited,omitempty"` // Keep the visited set in BadgerDB so a crawl can be resumed
	TopWords           int              `yaml:"top_words,omitempty"`
	MaxPageSizeBytes   int64            `yaml:"max_page_size_bytes,omitempty"`
	UserAgent          string           `yaml:"user_agent,omitempty"`
	MaxRetries         int              `yaml:"max_retries,omitempty"`
	InitialRetryDelay  time.Duration    `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay      time.Duration    `yaml:"max_retry_delay,omitempty"`
	GlobalCrawlTimeout time.Duration    `yaml:"global_crawl_timeout,omitempty"`
	PerPageTimeout     time.Duration    `yaml:"per_page_timeout,omitempty"` // Timeout for fetching and processing a single page (0 = no timeout)
	DBGCInterval       time.Duration    `yaml:"db_gc_interval,omitempty"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // Tri-state: nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
	MaxRedirects          int           `yaml:"max_redirects,omitempty"`
}

// GetEffectiveMaxDepth returns the configured depth ceiling, or DefaultMaxDepth when unset
func (c *AppConfig) GetEffectiveMaxDepth() int {
	if c.MaxDepth != nil {
		return *c.MaxDepth
	}
	return DefaultMaxDepth
}

// SetMaxDepth overrides the depth ceiling, e.g. from a command-line flag
func (c *AppConfig) SetMaxDepth(depth int) {
	c.MaxDepth = &depth
}
