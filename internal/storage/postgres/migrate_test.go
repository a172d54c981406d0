package postgres

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	t.Parallel()

	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))
}

func TestNewMigratorRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := NewMigrator("://not-a-url")
	require.Error(t, err)
}
