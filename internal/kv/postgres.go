package kv

import (
	"context"
	"fmt"

	"github.com/example/aove-scheduler/internal/crypto"
	"github.com/example/aove-scheduler/internal/db"
)

// Postgres keeps values in the kv_store table. With a sealer configured,
// writes are encrypted and reads transparently open sealed rows.
type Postgres struct {
	db   *db.DB
	aead *crypto.AEAD
}

func NewPostgres(d *db.DB, aead *crypto.AEAD) *Postgres {
	return &Postgres{db: d, aead: aead}
}

func (p *Postgres) Read(ctx context.Context, key string) (string, bool, error) {
	var value string
	var sealed bool
	err := p.db.QueryRow(ctx, `SELECT value, sealed FROM kv_store WHERE key=$1`, key).Scan(&value, &sealed)
	if db.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, db.WrapNotFound(err)
	}
	if sealed {
		if p.aead == nil {
			return "", false, fmt.Errorf("kv: %s is sealed but KV_ENC_KEY is not set", key)
		}
		value, err = p.aead.Open(key, value)
		if err != nil {
			return "", false, fmt.Errorf("kv: open %s: %w", key, err)
		}
	}
	if value == "" {
		return "", false, nil
	}
	return value, true, nil
}

func (p *Postgres) Write(ctx context.Context, key, value string) error {
	sealed := false
	if p.aead != nil {
		v, err := p.aead.Seal(key, value)
		if err != nil {
			return err
		}
		value, sealed = v, true
	}
	return p.db.Exec(ctx, `
INSERT INTO kv_store(key, value, sealed, updated_at) VALUES ($1,$2,$3,now())
ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, sealed=EXCLUDED.sealed, updated_at=now()`,
		key, value, sealed)
}
