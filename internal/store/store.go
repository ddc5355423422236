// Package store persists contributions.
//
// Ownership boundary:
// - insertion-ordered contribution storage
// - filtered listing and the recent view
//
// Backends: memory (ephemeral) and sqlite (durable).
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/heritagectl/internal/heritage"
)

var (
	ErrNotFound      = errors.New("store: contribution not found")
	ErrDuplicate     = errors.New("store: duplicate contribution id")
	ErrUnknownDriver = errors.New("store: unknown driver")
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"

	DefaultRecent = 3
)

// Query filters a listing. Zero values match everything.
type Query struct {
	Kind    heritage.Kind
	Region  string
	User    string
	Session string
	Limit   int
	Offset  int
}

// Store is the contribution persistence boundary.
type Store interface {
	Add(ctx context.Context, c heritage.Contribution) error
	Get(ctx context.Context, id string) (heritage.Contribution, error)
	List(ctx context.Context, q Query) ([]heritage.Contribution, error)
	Recent(ctx context.Context, n int) ([]heritage.Contribution, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (map[heritage.Kind]int, error)
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver string
	Path   string
}

// Open constructs the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, opts.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}

func (q Query) matches(c heritage.Contribution) bool {
	if q.Kind != "" && c.Kind != q.Kind {
		return false
	}
	if r := foldKey(q.Region); r != "" && r != foldKey(c.Region) {
		return false
	}
	if u := foldKey(q.User); u != "" && u != foldKey(c.User) {
		return false
	}
	if q.Session != "" && q.Session != c.Session {
		return false
	}
	return true
}

// foldKey is the case-insensitive match key for region and user filters.
// Both backends compare on it so non-ASCII names fold the same way.
func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeRecent(n int) int {
	if n <= 0 {
		return DefaultRecent
	}
	return n
}

func emptyCounts() map[heritage.Kind]int {
	out := make(map[heritage.Kind]int, len(heritage.Kinds()))
	for _, k := range heritage.Kinds() {
		out[k] = 0
	}
	return out
}
