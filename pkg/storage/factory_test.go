package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend_Disabled(t *testing.T) {
	b, err := NewBackend(context.Background(), &Config{})
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = NewBackend(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestNewBackend_InvalidConfig(t *testing.T) {
	_, err := NewBackend(context.Background(), &Config{Backend: "tape"})
	require.ErrorContains(t, err, "invalid storage configuration")
	assert.True(t, IsInvalidInput(err))
}

func TestNewBackend_Local(t *testing.T) {
	b, err := NewBackend(context.Background(), &Config{Backend: BackendLocal, WorkspaceRoot: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	assert.IsType(t, &LocalBackend{}, b)
}

func TestNewBackend_FactoryError(t *testing.T) {
	factoriesMu.RLock()
	orig := factories[BackendPostgres]
	factoriesMu.RUnlock()
	t.Cleanup(func() { RegisterFactory(BackendPostgres, orig) })

	RegisterFactory(BackendPostgres, func(context.Context, *Config) (Backend, error) {
		return nil, errors.New("boom")
	})

	_, err := NewBackend(context.Background(), &Config{Backend: BackendPostgres, DatabaseURL: "postgres://x"})
	require.ErrorContains(t, err, "failed to create storage backend: boom")
}
