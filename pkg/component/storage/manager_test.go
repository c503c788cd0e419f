package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	name     string
	pingErr  error
	closeErr error
	closed   bool
}

func (m *mockClient) Name() string                 { return m.name }
func (m *mockClient) Ping(ctx context.Context) error { return m.pingErr }
func (m *mockClient) Close() error {
	m.closed = true
	return m.closeErr
}

var _ Client = (*mockClient)(nil)

func TestRegister(t *testing.T) {
	mgr := NewManager()
	require.NoError(t, mgr.Register("redis", &mockClient{name: "redis"}))
	assert.Error(t, mgr.Register("redis", &mockClient{name: "redis"}))
	assert.Error(t, mgr.Register("", &mockClient{}))
	assert.Error(t, mgr.Register("nil", nil))
	assert.Panics(t, func() { mgr.MustRegister("redis", &mockClient{}) })
	assert.Equal(t, []string{"redis"}, mgr.List())
}

func TestHealthCheckAll(t *testing.T) {
	mgr := NewManager()
	mgr.MustRegister("milvus", &mockClient{name: "milvus"})
	mgr.MustRegister("redis", &mockClient{name: "redis", pingErr: errors.New("connection refused")})

	statuses := mgr.HealthCheckAll(context.Background())
	require.Len(t, statuses, 2)
	assert.True(t, statuses["milvus"].Healthy)
	assert.False(t, statuses["redis"].Healthy)
	assert.Equal(t, "connection refused", statuses["redis"].Error)
	assert.False(t, AllHealthy(statuses))
}

func TestCloseAllContinuesPastFailures(t *testing.T) {
	a := &mockClient{name: "a", closeErr: errors.New("boom")}
	b := &mockClient{name: "b"}
	mgr := NewManager()
	mgr.MustRegister("a", a)
	mgr.MustRegister("b", b)

	err := mgr.CloseAll()
	assert.ErrorContains(t, err, "boom")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Empty(t, mgr.List())
}
