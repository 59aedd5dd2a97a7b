package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	t.Parallel()
	entries, err := migrationFiles.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.Regexp(t, `^\d{5}_.+\.sql$`, e.Name())
	}
}

func TestRunMigrations_NilDBIsNoOp(t *testing.T) {
	t.Parallel()
	assert.NoError(t, RunMigrations(context.Background(), nil))
}
