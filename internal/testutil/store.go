// Package testutil provides stores and embedders for package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemo/internal/profile"
	"github.com/hrygo/mnemo/store"
	"github.com/hrygo/mnemo/store/db/file"
	"github.com/hrygo/mnemo/store/db/sqlite"
)

// NewSQLiteStore returns a migrated in-memory SQLite store expecting vectors of dims.
func NewSQLiteStore(t *testing.T, dims int) *store.Store {
	t.Helper()
	prof := &profile.Profile{
		Mode:                "dev",
		Driver:              profile.DriverSQLite,
		DSN:                 ":memory:",
		EmbeddingDimensions: dims,
	}
	driver, err := sqlite.NewDB(prof)
	require.NoError(t, err)
	return migrate(t, driver, prof)
}

// NewFileStore returns a migrated file store rooted in a temporary directory.
func NewFileStore(t *testing.T) *store.Store {
	t.Helper()
	prof := &profile.Profile{
		Mode:   "dev",
		Driver: profile.DriverFile,
		Data:   t.TempDir(),
	}
	driver, err := file.NewDB(prof)
	require.NoError(t, err)
	return migrate(t, driver, prof)
}

func migrate(t *testing.T, driver store.Driver, prof *profile.Profile) *store.Store {
	t.Helper()
	s := store.New(driver, prof)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}
