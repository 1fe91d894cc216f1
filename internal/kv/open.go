package kv

import (
	"context"
	"fmt"

	"github.com/example/aove-scheduler/internal/config"
	"github.com/example/aove-scheduler/internal/crypto"
	"github.com/example/aove-scheduler/internal/db"
)

// Open builds the Store selected by KV_BACKEND. The postgres backend uses d,
// which must already be migrated. The returned close func is never nil.
func Open(ctx context.Context, cfg config.Config, d *db.DB) (Store, func(), error) {
	switch cfg.KVBackend {
	case "redis":
		r, err := NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	case "postgres":
		if d == nil {
			return nil, nil, fmt.Errorf("KV_BACKEND=postgres needs a database connection")
		}
		var aead *crypto.AEAD
		if len(cfg.KVEncKey) > 0 {
			var err error
			if aead, err = crypto.New(cfg.KVEncKey); err != nil {
				return nil, nil, err
			}
		}
		return NewPostgres(d, aead), func() {}, nil
	default:
		return Env{}, func() {}, nil
	}
}
