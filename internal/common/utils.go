package common

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// BaseURL normalizes a server address given as "host:port" or as a URL into
// "http://host:port" without a trailing slash.
func BaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty server address")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", raw, err)
	}
	if u.Scheme != "http" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if _, _, err := net.SplitHostPort(u.Host); err != nil {
		return "", fmt.Errorf("server address %q needs host:port: %w", raw, err)
	}
	return u.Scheme + "://" + u.Host, nil
}
