package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MemoryClient keeps objects in memory. It backs local development without a
// bucket and package tests.
type MemoryClient struct {
	mu      sync.Mutex
	baseURL string
	objects map[string][]byte
	types   map[string]string

	// FailUploads makes every Upload return an error.
	FailUploads bool
}

func NewMemoryClient(baseURL string) *MemoryClient {
	return &MemoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (m *MemoryClient) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if m.FailUploads {
		return "", fmt.Errorf("upload %s: storage unavailable", key)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return m.baseURL + "/" + key, nil
}

func (m *MemoryClient) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	delete(m.types, key)
	return nil
}

func (m *MemoryClient) KeyFromURL(rawURL string) (string, error) {
	return keyFromURL(m.baseURL, rawURL)
}

// Object returns a stored object and its content type.
func (m *MemoryClient) Object(key string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, m.types[key], ok
}

// Len returns the number of stored objects.
func (m *MemoryClient) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
