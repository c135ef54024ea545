//go:build integration

package migrant

import (
	"context"
	"fmt"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *sqlx.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req := tc.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "forum",
			"POSTGRES_PASSWORD": "forum",
			"POSTGRES_DB":       "forum",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	}

	pg, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("skipping postgres container test: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := sqlx.Open("pgx", fmt.Sprintf("postgres://forum:forum@%s:%s/forum?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestMigrator_Postgres(t *testing.T) {
	ctx := context.Background()
	db := startPostgres(t)

	newMigrator := func(t *testing.T, opts ...OptionFunc) *Migrator {
		opts = append([]OptionFunc{UsePostgres(db, WithPostgresSchema("forum"), WithPostgresMaxConnectionAttempts(10))}, opts...)
		m, closer, err := NewMigrator(opts...)
		require.NoError(t, err)
		t.Cleanup(func() { _ = closer() })
		return m
	}

	t.Run("it will keep migrations before a failure inside one session", func(t *testing.T) {
		m := newMigrator(t,
			UseSessionTransaction(true),
			UseMigrations(createUsers, addUserField, createBroken, createPosts),
		)

		migrated, err := m.Up(ctx)
		require.Error(t, err)
		assert.True(t, IsExecutionError(err))
		assert.Equal(t, []string{"createUsers", "addUserField"}, migrated)

		var n int
		require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = 'broken'"))
		assert.Equal(t, 0, n)

		require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM forum.migrations"))
		assert.Equal(t, 2, n)

		runs, err := m.History(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, runs, 3)
	})

	t.Run("it will revert in reverse order", func(t *testing.T) {
		m := newMigrator(t, UseMigrations(createUsers, addUserField))

		reverted, err := m.Down(ctx, WithTarget("createUsers"))
		require.NoError(t, err)
		assert.Equal(t, []string{"addUserField", "createUsers"}, reverted)

		_, err = m.Down(ctx)
		assert.ErrorIs(t, err, ErrNothingToRollback)
	})
}
