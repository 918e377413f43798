package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"socialgraph/internal/config"
	"socialgraph/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T, env string) *config.Config {
	t.Helper()
	return &config.Config{
		Env:                      env,
		DBDriver:                 "sqlite",
		SQLitePath:               filepath.Join(t.TempDir(), "graph.db"),
		DBMaxOpenConns:           1,
		DBMaxIdleConns:           1,
		DBConnMaxLifetimeMinutes: 5,
	}
}

func closeRuntime(t *testing.T, rt *Runtime) {
	t.Cleanup(func() {
		if sqlDB, err := rt.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
}

func TestInitRuntimeWithoutFixture(t *testing.T) {
	rt, err := InitRuntime(context.Background(), sqliteConfig(t, "test"), Options{})
	require.NoError(t, err)
	closeRuntime(t, rt)

	assert.Nil(t, rt.Redis)
	assert.Nil(t, rt.Profiles)
}

func TestInitRuntimeAppliesFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
users:
  - uid: alice
    display_name: Alice
  - uid: bob
    display_name: Bob
friendships:
  - from: alice
    to: bob
`), 0o600))

	cfg := sqliteConfig(t, "development")
	rt, err := InitRuntime(context.Background(), cfg, Options{Fixture: path})
	require.NoError(t, err)
	closeRuntime(t, rt)

	assert.Equal(t, "Bob", rt.Profiles["bob"].DisplayName)

	edges, err := repository.NewFriendRepository(rt.DB).ListFriends(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "bob", edges[0].UID)
}

func TestInitRuntimeMissingFixture(t *testing.T) {
	_, err := InitRuntime(context.Background(), sqliteConfig(t, "test"),
		Options{Fixture: filepath.Join(t.TempDir(), "missing.yml")})
	assert.Error(t, err)
}
