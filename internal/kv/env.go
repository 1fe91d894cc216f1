package kv

import (
	"context"
	"os"
	"strings"
)

// Env reads keys from the process environment (populated from .env by config.FromEnv).
// Writes only last for the lifetime of the process.
type Env struct{}

func (Env) Read(_ context.Context, key string) (string, bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false, nil
	}
	return v, true, nil
}

func (Env) Write(_ context.Context, key, value string) error {
	return os.Setenv(key, value)
}
