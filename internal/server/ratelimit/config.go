package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig limits one route.
type EndpointConfig struct {
	// Path is a route pattern, see MatchEndpoint.
	Path   string
	Method string
	Limit  int
	Window time.Duration
	// Burst defaults to Limit when zero.
	Burst int
}

// LoadConfig reads the RATE_LIMIT_* environment variables.
func LoadConfig() *Config {
	return LoadConfigFrom(os.Getenv)
}

// LoadConfigFrom reads the rate limit settings through getenv.
func LoadConfigFrom(getenv func(string) string) *Config {
	if !envBool(getenv, "RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    envInt(getenv, "RATE_LIMIT_DEFAULT_LIMIT", 1000),
		DefaultWindow:   envDuration(getenv, "RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: envDuration(getenv, "RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		Whitelist:       parseIPList(getenv("RATE_LIMIT_WHITELIST")),
		Blacklist:       parseIPList(getenv("RATE_LIMIT_BLACKLIST")),
		Endpoints:       DefaultEndpointConfigs(envInt(getenv, "RATE_LIMIT_STAGE_RUNS_PER_HOUR", 30)),
	}
}

// DefaultEndpointConfigs returns the route limits. Stage runs call the paid
// generator and get the strictest tier.
func DefaultEndpointConfigs(stageRunsPerHour int) []EndpointConfig {
	return []EndpointConfig{
		{Path: "/projects/*/stages/*/run", Method: "POST", Limit: stageRunsPerHour, Window: time.Hour, Burst: 5},
		{Path: "/projects/*/stages/*/stream", Method: "POST", Limit: stageRunsPerHour, Window: time.Hour, Burst: 5},

		{Path: "/projects", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/projects/", Method: "POST", Limit: 100, Window: time.Minute, Burst: 20},
		{Path: "/projects/", Method: "PUT", Limit: 100, Window: time.Minute, Burst: 20},
		{Path: "/projects/", Method: "DELETE", Limit: 100, Window: time.Minute, Burst: 10},
	}
}

func envInt(getenv func(string) string, key string, def int) int {
	if v, err := strconv.Atoi(getenv(key)); err == nil {
		return v
	}
	return def
}

func envBool(getenv func(string) string, key string, def bool) bool {
	if v, err := strconv.ParseBool(getenv(key)); err == nil {
		return v
	}
	return def
}

func envDuration(getenv func(string) string, key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(getenv(key)); err == nil {
		return v
	}
	return def
}

func parseIPList(list string) map[string]bool {
	out := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			out[ip] = true
		}
	}
	return out
}
