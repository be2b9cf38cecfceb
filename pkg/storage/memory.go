package storage

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/JaimeStill/manifest/pkg/lifecycle"
)

type memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory returns a process-local System for tests and offline CLI runs.
func NewMemory() System {
	return &memory{blobs: make(map[string][]byte)}
}

func (m *memory) Start(*lifecycle.Coordinator) error { return nil }

func (m *memory) Upload(ctx context.Context, key string, reader io.Reader, _ string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.blobs[key] = data
	m.mu.Unlock()
	return nil
}

func (m *memory) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memory) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; !ok {
		return ErrNotFound
	}
	delete(m.blobs, key)
	return nil
}
