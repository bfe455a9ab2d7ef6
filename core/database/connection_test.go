package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/AzielCF/az-messenger/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "messenger.db")

	db, err := NewDatabase(config.DatabaseConfig{Driver: "sqlite", Name: path}, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	assert.NoError(t, Ping(context.Background(), db))
	assert.FileExists(t, path)
}

func TestNewDatabase_UnsupportedDriver(t *testing.T) {
	_, err := NewDatabase(config.DatabaseConfig{Driver: "oracle", Name: "x"}, false)
	assert.ErrorContains(t, err, "unsupported database driver")
}
