package db

import (
	"fmt"
	"net/url"
	"strings"
)

// WithDatabase returns dsn pointing at another database on the same
// postgres server. A DSN without scheme is treated as postgres://.
func WithDatabase(dsn, name string) (string, error) {
	if strings.TrimSpace(dsn) == "" {
		return "", fmt.Errorf("empty DSN")
	}
	if name == "" {
		return dsn, nil
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
	}
	u.Path = "/" + strings.TrimPrefix(name, "/")
	return u.String(), nil
}
