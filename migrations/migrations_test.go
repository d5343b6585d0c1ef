package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/guardian?sslmode=disable", driverURL("postgres://u:p@db:5432/guardian?sslmode=disable"))
	assert.Equal(t, "pgx5://db/guardian", driverURL("postgresql://db/guardian"))
	assert.Equal(t, "pgx5://db/guardian", driverURL("pgx5://db/guardian"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(FS, "*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
