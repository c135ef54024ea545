package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/forumops/migrant/internal/cli"
	"github.com/forumops/migrant/internal/source"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfig(t *testing.T) {
	t.Setenv(cli.DatabaseURLEnv, "")
	t.Setenv(cli.SettingsFileEnv, "")

	t.Run("it will work without a settings file", func(t *testing.T) {
		t.Chdir(t.TempDir())

		v := viper.New()
		v.Set("db", "sqlite:/tmp/forum.db")

		cfg, err := resolveConfig(v)
		require.NoError(t, err)
		assert.Equal(t, "sqlite:/tmp/forum.db", cfg.DatabaseURL)
		assert.Equal(t, source.DefaultMigrationsFolder, cfg.MigrationsFolder)
		assert.Equal(t, source.DefaultMigrationsFolder, cfg.GoFolder)
		assert.NotEmpty(t, cfg.Migrations)
	})

	t.Run("it will fail on a settings file that was asked for and is missing", func(t *testing.T) {
		v := viper.New()
		v.Set("settings", filepath.Join(t.TempDir(), "nope.yml"))

		_, err := resolveConfig(v)
		assert.Error(t, err)
	})

	t.Run("it will read the forum of the environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "migrant.yml")
		require.NoError(t, os.WriteFile(path, []byte(`migrations:
  local_folder: ./sql
environments:
  staging:
    meta:
      database_url: sqlite:/tmp/meta.db
`), 0644))

		v := viper.New()
		v.Set("settings", path)
		v.Set("env", "staging")
		v.Set("forum", "meta")

		cfg, err := resolveConfig(v)
		require.NoError(t, err)
		assert.Equal(t, "sqlite:/tmp/meta.db", cfg.DatabaseURL)
		assert.Equal(t, "./sql", cfg.MigrationsFolder)
	})
}

func TestRootCmd(t *testing.T) {
	t.Run("it will take the database url from PG_URL", func(t *testing.T) {
		t.Setenv(cli.DatabaseURLEnv, "postgres://forum@localhost/forum")

		v := viper.New()
		newRootCmd(v)
		assert.Equal(t, "postgres://forum@localhost/forum", v.GetString("db"))
	})

	t.Run("it will scaffold without a database", func(t *testing.T) {
		t.Setenv(cli.DatabaseURLEnv, "")
		t.Setenv(cli.SettingsFileEnv, "")
		t.Chdir(t.TempDir())

		out := new(bytes.Buffer)
		root := newRootCmd(viper.New())
		root.SetOut(out)
		root.SetArgs([]string{"create", "addUserField", "--log-format", "bw"})

		require.NoError(t, root.Execute())
		assert.Contains(t, out.String(), "addUserField.up.sql")

		matches, err := filepath.Glob(filepath.Join(source.DefaultMigrationsFolder, "*.addUserField.down.sql"))
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("it will refuse unknown create formats", func(t *testing.T) {
		root := newRootCmd(viper.New())
		root.SetArgs([]string{"create", "addUserField", "--format", "rb"})
		assert.Error(t, root.Execute())
	})
}
