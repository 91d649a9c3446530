package store

import (
	"context"
	"net/url"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var ErrUnsupportedScheme = errors.New("unsupported store scheme")

// OpenFunc opens the table named table at the location given by u.
type OpenFunc func(ctx context.Context, u *url.URL, table string) (Table, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]OpenFunc{}
)

// Register makes a backend available under a URL scheme. It is meant to be
// called from the init function of a backend package.
func Register(scheme string, fn OpenFunc) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if _, dup := backends[scheme]; dup {
		panic("store: Register called twice for scheme " + scheme)
	}
	backends[scheme] = fn
}

// Schemes lists the registered URL schemes.
func Schemes() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	out := make([]string, 0, len(backends))
	for s := range backends {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Open opens table on the backend selected by the scheme of rawURL,
// e.g. "memory://", "sqlite:///var/lib/migrate/buzz.db" or
// "redis://localhost:6379/0".
func Open(ctx context.Context, rawURL, table string) (Table, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse store url %q", rawURL)
	}

	backendsMu.RLock()
	fn, ok := backends[u.Scheme]
	backendsMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedScheme, "scheme=%q, registered=%v", u.Scheme, Schemes())
	}

	t, err := fn(ctx, u, table)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s store", u.Scheme)
	}
	return t, nil
}
