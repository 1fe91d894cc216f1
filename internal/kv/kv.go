// Package kv is the flat key-value store holding accounts and notification settings.
package kv

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// Recognised keys.
const (
	KeyAccounts   = "WEAIOVE_ACCOUNTS"
	KeyChunkSize  = "NOTIFY_CHUNK_SIZE"
	KeyBarkKey    = "BARK_KEY"
	KeyBarkServer = "BARK_SERVER"
	KeyRecordsID  = "weaiove_recordsId"
)

type Store interface {
	// Read returns ok=false when the key is absent.
	Read(ctx context.Context, key string) (value string, ok bool, err error)
	Write(ctx context.Context, key, value string) error
}

// ReadInt parses key as a positive integer, returning def when it is
// missing, unparsable or not positive. The second result reports whether
// a present value had to be replaced by def.
func ReadInt(ctx context.Context, s Store, key string, def int) (int, bool, error) {
	v, ok, err := s.Read(ctx, key)
	if err != nil || !ok {
		return def, false, err
	}
	n, perr := strconv.Atoi(strings.TrimSpace(v))
	if perr != nil || n <= 0 {
		return def, true, nil
	}
	return n, false, nil
}

// Memory is an in-process Store, used by tests and dry runs.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemory(seed map[string]string) *Memory {
	m := make(map[string]string, len(seed))
	for k, v := range seed {
		m[k] = v
	}
	return &Memory{m: m}
}

func (s *Memory) Read(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *Memory) Write(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}
