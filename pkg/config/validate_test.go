package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/wordcrawl/pkg/utils"
)

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func minimalConfig() AppConfig {
	return AppConfig{StartURLs: []string{"https://example.com/"}}
}

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := minimalConfig()
	warnings, err := cfg.Validate()
	require.NoError(t, err)

	require.NotNil(t, cfg.MaxDepth)
	assert.Equal(t, 5, *cfg.MaxDepth)
	assert.Equal(t, 4, cfg.NumWorkers)
	assert.Equal(t, "./wordcrawl_output", cfg.OutputDir)
	assert.Equal(t, "./wordcrawl_state", cfg.StateDir)
	assert.Equal(t, 25, cfg.TopWords)
	assert.Equal(t, int64(10<<20), cfg.MaxPageSizeBytes)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 1*time.Second, cfg.InitialRetryDelay)
	assert.Equal(t, 30*time.Second, cfg.MaxRetryDelay)
	assert.Equal(t, 10*time.Minute, cfg.DBGCInterval)

	// Check HTTP client defaults
	assert.Equal(t, 45*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 100, cfg.HTTPClientSettings.MaxIdleConns)
	assert.Equal(t, 2, cfg.HTTPClientSettings.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, cfg.HTTPClientSettings.IdleConnTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTPClientSettings.TLSHandshakeTimeout)
	assert.Equal(t, 1*time.Second, cfg.HTTPClientSettings.ExpectContinueTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTPClientSettings.DialerTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTPClientSettings.DialerKeepAlive)
	assert.Equal(t, 10, cfg.HTTPClientSettings.MaxRedirects)

	assert.True(t, containsWarning(warnings, "num_workers should be > 0"))
	assert.True(t, containsWarning(warnings, "output_dir is empty"))
	// state_dir only matters with a persistent visited set
	assert.False(t, containsWarning(warnings, "state_dir is empty"))
}

func TestAppConfig_Validate_ValidConfig(t *testing.T) {
	cfg := AppConfig{
		StartURLs:         []string{"http://example.com/docs/", "https://example.org"},
		NumWorkers:        8,
		OutputDir:         "/output",
		StateDir:          "/state",
		PersistentVisited: true,
		TopWords:          10,
		MaxPageSizeBytes:  1024,
		UserAgent:         "test-agent",
		MaxRetries:        5,
		InitialRetryDelay: 2 * time.Second,
		MaxRetryDelay:     60 * time.Second,
		HTTPClientSettings: HTTPClientConfig{
			Timeout:      30 * time.Second,
			MaxIdleConns: 50,
		},
	}
	cfg.SetMaxDepth(2)

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, 2, cfg.GetEffectiveMaxDepth())
	assert.Equal(t, 8, cfg.NumWorkers)
	assert.Equal(t, "/output", cfg.OutputDir)
	assert.Equal(t, 10, cfg.TopWords)
	assert.Equal(t, int64(1024), cfg.MaxPageSizeBytes)
	assert.Equal(t, "test-agent", cfg.UserAgent)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 50, cfg.HTTPClientSettings.MaxIdleConns)
}

func TestAppConfig_Validate_MaxDepthZeroKept(t *testing.T) {
	cfg := minimalConfig()
	cfg.SetMaxDepth(0)
	_, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.GetEffectiveMaxDepth())
}

func TestAppConfig_Validate_FatalErrors(t *testing.T) {
	negative := -1
	tests := []struct {
		name    string
		cfg     AppConfig
		errText string
	}{
		{"NoStartURLs", AppConfig{}, "no start_urls"},
		{"RelativeStartURL", AppConfig{StartURLs: []string{"/docs"}}, "start_urls[0]"},
		{"OpaqueStartURL", AppConfig{StartURLs: []string{"https://ok.example/", "mailto:x@y"}}, "start_urls[1]"},
		{"FTPStartURL", AppConfig{StartURLs: []string{"ftp://files.example/"}}, "start_urls[0]"},
		{"NegativeMaxDepth", AppConfig{StartURLs: []string{"https://example.com/"}, MaxDepth: &negative}, "max_depth cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings, err := tt.cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, utils.ErrConfigValidation)
			assert.Contains(t, err.Error(), tt.errText)
			assert.Nil(t, warnings)
		})
	}
}

func TestAppConfig_Validate_NegativeValues(t *testing.T) {
	cfg := minimalConfig()
	cfg.NumWorkers = 2
	cfg.OutputDir = "out"
	cfg.MaxRetries = -1
	cfg.TopWords = -5
	cfg.MaxPageSizeBytes = -1
	cfg.GlobalCrawlTimeout = -time.Second
	cfg.PerPageTimeout = -time.Second

	warnings, err := cfg.Validate()
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.TopWords)
	assert.Equal(t, int64(DefaultMaxPageSizeBytes), cfg.MaxPageSizeBytes)
	assert.Equal(t, time.Duration(0), cfg.GlobalCrawlTimeout)
	assert.Equal(t, time.Duration(0), cfg.PerPageTimeout)

	assert.True(t, containsWarning(warnings, "max_retries cannot be negative"))
	assert.True(t, containsWarning(warnings, "top_words cannot be negative"))
	assert.True(t, containsWarning(warnings, "max_page_size_bytes cannot be negative"))
	assert.True(t, containsWarning(warnings, "global_crawl_timeout cannot be negative"))
	assert.True(t, containsWarning(warnings, "per_page_timeout cannot be negative"))
}

func TestAppConfig_Validate_RetryDelayClamp(t *testing.T) {
	cfg := minimalConfig()
	cfg.MaxRetries = 2
	cfg.InitialRetryDelay = time.Minute
	cfg.MaxRetryDelay = 10 * time.Second

	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.InitialRetryDelay)
	assert.True(t, containsWarning(warnings, "initial_retry_delay"))
}

func TestAppConfig_Validate_PersistentStateDirWarning(t *testing.T) {
	cfg := minimalConfig()
	cfg.PersistentVisited = true
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.True(t, containsWarning(warnings, "state_dir is empty"))
}
