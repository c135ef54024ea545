package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/forumops/migrant/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSSource(t *testing.T) {
	ctx := context.Background()

	t.Run("it will pair up and down scripts and order them by version", func(t *testing.T) {
		fsys := fstest.MapFS{
			"20200102T100000.createPosts.up.sql":   {Data: []byte("CREATE TABLE posts (id INTEGER PRIMARY KEY);")},
			"20200102T100000.createPosts.down.sql": {Data: []byte("DROP TABLE posts;")},
			"20200101.createUsers.up.sql":          {Data: []byte("-- idempotent\nCREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY);")},
			"README.md":                            {Data: []byte("not a migration")},
		}

		factories, err := NewFSSource(fsys, "embedded", nil).Select(ctx)
		require.NoError(t, err)

		definitions, err := migration.NewDefinitions(factories...)
		require.NoError(t, err)
		require.Len(t, definitions, 2)

		users, posts := definitions[0], definitions[1]

		assert.Equal(t, "createUsers", users.Name)
		assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), users.DateWritten)
		assert.True(t, users.Idempotent)
		assert.False(t, users.Reversible())
		assert.Equal(t, "embedded/20200101.createUsers.up.sql", users.Source)

		assert.Equal(t, "createPosts", posts.Name)
		assert.Equal(t, time.Date(2020, 1, 2, 10, 0, 0, 0, time.UTC), posts.DateWritten)
		assert.False(t, posts.Idempotent)
		assert.True(t, posts.Reversible())
	})

	t.Run("it will reject sql files that do not follow the naming scheme", func(t *testing.T) {
		fsys := fstest.MapFS{"create_users.sql": {Data: []byte("SELECT 1;")}}

		_, err := NewFSSource(fsys, "bad", nil).Select(ctx)
		assert.ErrorIs(t, err, ErrNotAMigrationFile)
	})

	t.Run("it will reject a down script without an up script", func(t *testing.T) {
		fsys := fstest.MapFS{"20200101.createUsers.down.sql": {Data: []byte("DROP TABLE users;")}}

		_, err := NewFSSource(fsys, "bad", nil).Select(ctx)
		assert.ErrorIs(t, err, ErrMissingUpScript)
	})

	t.Run("it will yield configured factories from memory", func(t *testing.T) {
		f := migration.New("inMemory", "2020-01-01", true, migration.Exec("SELECT 1"), nil)

		factories, err := NewInMemorySource(f).Select(ctx)
		require.NoError(t, err)
		assert.Len(t, factories, 1)
	})
}

func TestLocalFolderSource(t *testing.T) {
	at := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

	t.Run("it will create empty scripts that it can read back", func(t *testing.T) {
		folder := filepath.Join(t.TempDir(), "migrations")
		lfs := NewLocalFolderSource(folder, nil)
		assert.False(t, lfs.IsValid())

		factories, err := lfs.Select(context.Background())
		require.NoError(t, err)
		assert.Empty(t, factories)

		path, err := lfs.Create("addUserField", at)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(folder, "20210304T050607.addUserField.up.sql"), path)
		assert.FileExists(t, filepath.Join(folder, "20210304T050607.addUserField.down.sql"))
		assert.True(t, lfs.IsValid())

		factories, err = lfs.Select(context.Background())
		require.NoError(t, err)
		require.Len(t, factories, 1)

		d, err := factories[0]()
		require.NoError(t, err)
		assert.Equal(t, "addUserField", d.Name)
		assert.Equal(t, at, d.DateWritten)
	})

	t.Run("it will refuse a name that already has a migration", func(t *testing.T) {
		lfs := NewLocalFolderSource(t.TempDir(), nil)

		_, err := lfs.Create("addUserField", at)
		require.NoError(t, err)

		_, err = lfs.Create("addUserField", at.Add(time.Hour))
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("it will refuse names that cannot be file names", func(t *testing.T) {
		lfs := NewLocalFolderSource(t.TempDir(), nil)

		for _, name := range []string{"", "1st", "drop ../users", "a.b"} {
			_, err := lfs.Create(name, at)
			assert.ErrorIs(t, err, ErrInvalidName, name)
		}
	})
}

const manifest = `package migrations

import "github.com/forumops/migrant/migration"

var All = []migration.Factory{
	// createUsers
	CreateUsers,
	// {{ do_not_edit . }}
}
`

func TestGoScaffolder(t *testing.T) {
	at := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

	t.Run("it will write the migration and list it in the manifest", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultManifest), []byte(manifest), 0644))

		g := NewGoScaffolder(dir, "", nil)
		path, err := g.Create("add-user_field", at)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "20210304T050607_add_user_field.go"), path)

		src, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(src), "package migrations")
		assert.Contains(t, string(src), "var Migration20210304T050607_AddUserField = migration.New(")
		assert.Contains(t, string(src), `"2021-03-04T05:06:07"`)

		all, err := os.ReadFile(filepath.Join(dir, DefaultManifest))
		require.NoError(t, err)
		assert.Contains(t, string(all), "\tCreateUsers,\n\t// add-user_field\n\tMigration20210304T050607_AddUserField,\n\t// {{ do_not_edit . }}\n}")

		exists, err := g.Exists("add-user_field")
		require.NoError(t, err)
		assert.True(t, exists)

		_, err = g.Create("add-user_field", at.Add(time.Hour))
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("it will refuse a manifest without the marker", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultManifest), []byte("package migrations\n"), 0644))

		_, err := NewGoScaffolder(dir, "", nil).Create("addUserField", at)
		assert.ErrorIs(t, err, ErrManifestMarkerMissing)
	})

	t.Run("it will camel case names", func(t *testing.T) {
		assert.Equal(t, "Migration20210304T050607_FillPostsAf", Variable(at, "fill_posts af"))
		assert.Equal(t, "Migration20210304T050607_AddUserField", Variable(at, "addUserField"))
	})

	t.Run("it will parse kinds", func(t *testing.T) {
		k, err := ParseKind("GO")
		require.NoError(t, err)
		assert.Equal(t, KindGo, k)

		k, err = ParseKind("")
		require.NoError(t, err)
		assert.Equal(t, KindSQL, k)

		_, err = ParseKind("yaml")
		assert.ErrorIs(t, err, ErrUnknownKind)
	})
}
