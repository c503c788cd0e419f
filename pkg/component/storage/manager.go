// Package storage defines the client contract shared by the docrag backends
// and a registry that health-checks and closes them together.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Client is a connected backend the manager can ping and close.
type Client interface {
	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// HealthStatus is the outcome of one ping.
type HealthStatus struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// Manager manages the storage clients of one process. It is safe for
// concurrent use.
//
// Example usage:
//
//	mgr := storage.NewManager()
//	mgr.MustRegister("redis", redisClient)
//	statuses := mgr.HealthCheckAll(ctx)
//	defer mgr.CloseAll()
type Manager struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewManager creates a new storage manager instance.
func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]Client),
	}
}

// Register registers a client under a unique name.
func (m *Manager) Register(name string, client Client) error {
	if name == "" {
		return errors.New("client name cannot be empty")
	}
	if client == nil {
		return errors.New("client cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[name]; exists {
		return fmt.Errorf("client '%s' is already registered", name)
	}
	m.clients[name] = client
	return nil
}

// MustRegister registers a storage client and panics if registration fails.
func (m *Manager) MustRegister(name string, client Client) {
	if err := m.Register(name, client); err != nil {
		panic(fmt.Sprintf("failed to register storage client: %v", err))
	}
}

// List returns the registered client names, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthCheckAll pings every registered client concurrently.
func (m *Manager) HealthCheckAll(ctx context.Context) map[string]HealthStatus {
	m.mu.RLock()
	clients := make(map[string]Client, len(m.clients))
	for name, client := range m.clients {
		clients[name] = client
	}
	m.mu.RUnlock()

	statuses := make(map[string]HealthStatus, len(clients))
	var statusMu sync.Mutex
	var wg sync.WaitGroup

	for name, client := range clients {
		wg.Add(1)
		go func(n string, c Client) {
			defer wg.Done()

			start := time.Now()
			err := c.Ping(ctx)
			status := HealthStatus{
				Name:    n,
				Healthy: err == nil,
				Latency: time.Since(start),
			}
			if err != nil {
				status.Error = err.Error()
			}

			statusMu.Lock()
			statuses[n] = status
			statusMu.Unlock()
		}(name, client)
	}

	wg.Wait()
	return statuses
}

// AllHealthy reports whether every client answered its ping.
func AllHealthy(statuses map[string]HealthStatus) bool {
	for _, status := range statuses {
		if !status.Healthy {
			return false
		}
	}
	return true
}

// CloseAll closes every client, continuing past failures, and empties the
// registry.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, client := range m.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close client '%s': %w", name, err))
		}
		delete(m.clients, name)
	}
	return errors.Join(errs...)
}
