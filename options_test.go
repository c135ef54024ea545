package migrant

import (
	"testing"
	"time"

	"github.com/forumops/migrant/internal/database"
	"github.com/forumops/migrant/internal/database/sqlgateway"
	"github.com/forumops/migrant/internal/database/sqlgateway/mysql"
	"github.com/forumops/migrant/internal/database/sqlgateway/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUseMySQL(t *testing.T) {
	t.Parallel()

	t.Run("default mysql options", func(t *testing.T) {
		m := Migrator{}
		checkerRuns := 0
		checker := func(mysqlOpts *mysql.Options, cOpts *sqlgateway.ConnectOptions) {
			assert.Equal(t, "", mysqlOpts.MigrationsTable)
			assert.Equal(t, sqlgateway.DefaultConnectionAttempts, cOpts.MaxAttempts)
			checkerRuns++
		}

		err := UseMySQL(&sqlx.DB{}, checker)(&m)
		require.NoError(t, err)
		require.Equal(t, 1, checkerRuns)

		d := m.database.dialect(database.CommonOptions{})
		assert.Equal(t, "mysql", d.Name())
		assert.False(t, d.TransactionalDDL())
		assert.Contains(t, d.InitQueries()[0], "CREATE TABLE IF NOT EXISTS migrations")
		assert.Contains(t, d.InitQueries()[0], "CHARACTER SET=utf8mb4")
	})

	t.Run("custom mysql options", func(t *testing.T) {
		m := Migrator{}

		err := UseMySQL(
			&sqlx.DB{},
			WithMySQLMigrationTable("versions"),
			WithMySQLCharset("latin1"),
			WithMySQLMaxConnectionAttempts(3),
			WithMySQLConnectionTimeout(time.Second),
		)(&m)
		require.NoError(t, err)

		assert.Equal(t, 3, m.database.connect.MaxAttempts)
		assert.Equal(t, time.Second, m.database.connect.MaxTimeout)

		d := m.database.dialect(database.CommonOptions{})
		assert.Contains(t, d.InitQueries()[0], "CREATE TABLE IF NOT EXISTS versions")
		assert.Contains(t, d.InitQueries()[0], "CHARACTER SET=latin1")
	})

	t.Run("global table names win", func(t *testing.T) {
		m := Migrator{}

		require.NoError(t, UseMySQL(&sqlx.DB{}, WithMySQLMigrationTable("versions"))(&m))
		require.NoError(t, UseMigrationsTable("forum_migrations", "forum_runs")(&m))

		d := m.database.dialect(m.tables)
		assert.Contains(t, d.InitQueries()[0], "CREATE TABLE IF NOT EXISTS forum_migrations")
		assert.Contains(t, d.InitQueries()[1], "CREATE TABLE IF NOT EXISTS forum_runs")
	})
}

func TestUsePostgres(t *testing.T) {
	t.Parallel()

	m := Migrator{}
	err := UsePostgres(
		&sqlx.DB{},
		WithPostgresSchema("forum"),
		WithPostgresMigrationTable("versions"),
		WithPostgresMaxConnectionAttempts(5),
		WithPostgresConnectionTimeout(2*time.Second),
	)(&m)
	require.NoError(t, err)

	assert.Equal(t, 5, m.database.connect.MaxAttempts)
	assert.Equal(t, 2*time.Second, m.database.connect.MaxTimeout)

	d := m.database.dialect(database.CommonOptions{})
	require.IsType(t, &postgres.Dialect{}, d)
	assert.True(t, d.TransactionalDDL())
	assert.Contains(t, d.ReadQuery(), "FROM forum.versions")
}

func TestUseSqlite(t *testing.T) {
	t.Parallel()

	m := Migrator{}
	err := UseSqlite(&sqlx.DB{}, WithSqliteMigrationTable("versions"), WithSqliteMaxConnectionAttempts(2), WithSqliteConnectionTimeout(time.Second))(&m)
	require.NoError(t, err)

	assert.Equal(t, 2, m.database.connect.MaxAttempts)
	assert.Equal(t, time.Second, m.database.connect.MaxTimeout)
	assert.Contains(t, m.database.dialect(database.CommonOptions{}).ReadQuery(), "FROM versions")
}
