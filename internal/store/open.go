package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mmcdole/portal/internal/domain"
)

// Supported cache drivers
const (
	DriverBolt   = "bolt"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Options selects and locates a cache backend
type Options struct {
	Driver  string // bolt (default), sqlite or memory
	Dir     string // Base cache directory; empty means memory-only
	BaseURL string // API root, hashed into a per-server subdirectory
}

// Open returns the backend selected by opts
func Open(ctx context.Context, opts Options) (domain.Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverBolt
	}
	if opts.Dir == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemoryBackend(), nil
	case DriverBolt:
		s, err := NewBoltBackend(Path(opts))
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		s, err := NewSQLiteBackend(ctx, Path(opts))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q (want bolt, sqlite or memory)", opts.Driver)
	}
}

// Path returns the database file the options resolve to ("" for memory)
func Path(opts Options) string {
	if opts.Dir == "" || opts.Driver == DriverMemory {
		return ""
	}

	dir := opts.Dir
	if opts.BaseURL != "" {
		dir = filepath.Join(opts.Dir, hashServerURL(opts.BaseURL))
	}

	if opts.Driver == DriverSQLite {
		return filepath.Join(dir, "portal.sqlite")
	}
	return filepath.Join(dir, "portal.db")
}

func hashServerURL(serverURL string) string {
	normalized := strings.TrimRight(strings.ToLower(serverURL), "/")
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}
