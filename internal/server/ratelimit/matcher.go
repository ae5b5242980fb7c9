package ratelimit

import "strings"

// MatchEndpoint returns the first configuration whose method matches and
// whose path pattern matches path. A "*" segment matches any single segment
// and a trailing "/" matches any suffix. GET /health is never limited.
func MatchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	if path == "/health" && method == "GET" {
		return &EndpointConfig{Path: "/health", Method: method}
	}

	for i := range configs {
		c := &configs[i]
		if c.Method == method && matchPath(c.Path, path) {
			return c
		}
	}
	return nil
}

func matchPath(pattern, path string) bool {
	if pattern == path {
		return true
	}
	prefix := strings.HasSuffix(pattern, "/")

	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(got) < len(want) || (!prefix && len(got) != len(want)) {
		return false
	}
	for i, seg := range want {
		if seg != "*" && seg != got[i] {
			return false
		}
	}
	return true
}
