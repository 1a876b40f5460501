// Package store persists benchmark outcomes. Every sink takes a named JSON
// document and reports where it ended up.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/DetectBench/internal/config"
)

var (
	ErrInvalidName   = errors.New("invalid document name")
	ErrUnknownDriver = errors.New("unknown store driver")
)

type Store interface {
	// Save persists doc under name and returns its location.
	Save(ctx context.Context, name string, doc []byte) (string, error)
	Close() error
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && name != "." && name != ".."
}

// New builds the sink selected by cfg.Driver.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.Dir), nil
	case "redis":
		return NewRedisStoreFromAddr(cfg.RedisAddr, WithPrefix(cfg.RedisPrefix)), nil
	case "postgres":
		pool, err := Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s := NewPostgresStore(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}
