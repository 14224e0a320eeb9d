package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useSQLite(t *testing.T) {
	t.Helper()
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "admin.db"))
	t.Setenv("REDIS_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("ADMIN_USERNAME", "")
	t.Setenv("ADMIN_PASSWORD", "")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCmdSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"migrate", "recalculate-levels", "create-admin", "leaderboard"})
}

func TestCreateAdminIsIdempotent(t *testing.T) {
	useSQLite(t)

	out, err := run(t, "create-admin", "--username", "root", "--password", "s3cret-pass")
	require.NoError(t, err)
	assert.Contains(t, out, `Admin "root" created`)

	out, err = run(t, "create-admin", "--username", "root", "--password", "s3cret-pass")
	require.NoError(t, err)
	assert.Contains(t, out, `Admin "root" already exists`)
}

func TestCreateAdminNeedsCredentials(t *testing.T) {
	useSQLite(t)

	_, err := run(t, "create-admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username and password are required")
}

func TestRecalculateLevels(t *testing.T) {
	useSQLite(t)

	_, err := run(t, "create-admin", "--username", "root", "--password", "s3cret-pass")
	require.NoError(t, err)

	out, err := run(t, "recalculate-levels")
	require.NoError(t, err)
	assert.Contains(t, out, "Levels recalculated: 0 changed")
}

func TestMigrateSQLite(t *testing.T) {
	useSQLite(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Migrations completed successfully")
}

func TestMigrateStatusRequiresPostgres(t *testing.T) {
	useSQLite(t)

	_, err := run(t, "migrate", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATA_BACKEND=postgres")
}

func TestLeaderboardRebuildRequiresRedis(t *testing.T) {
	useSQLite(t)

	_, err := run(t, "leaderboard", "rebuild")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL is not set")
}
