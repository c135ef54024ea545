package migrations_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/forumops/migrant"
	"github.com/forumops/migrant/migration"
	"github.com/forumops/migrant/migrations"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, db *sqlx.DB) {
	t.Helper()

	tx := db.MustBegin()
	tx.MustExec("INSERT INTO users (id, name, created_at) VALUES ('u1', 'alice', CURRENT_TIMESTAMP)")

	for i := 1; i <= 1200; i++ {
		var af interface{}
		if i%4 == 0 {
			af = true
		}
		tx.MustExec("INSERT INTO posts (id, author_id, title, af) VALUES (?, 'u1', ?, ?)", fmt.Sprintf("p%04d", i), fmt.Sprintf("post %d", i), af)
	}

	for i := 1; i <= 30; i++ {
		var poll interface{}
		if i%2 == 0 {
			poll = "yes/no"
		}
		tx.MustExec("INSERT INTO comments (id, post_id, author_id, body, legacy_poll) VALUES (?, ?, 'u1', 'hi', ?)",
			fmt.Sprintf("c%02d", i), fmt.Sprintf("p%04d", i%3+1), poll)
	}

	require.NoError(t, tx.Commit())
}

func TestForumMigrations(t *testing.T) {
	ctx := context.Background()

	db, err := sqlx.Open("sqlite3", filepath.Join(t.TempDir(), "forum.db"))
	require.NoError(t, err)
	defer db.Close()

	m, closer, err := migrant.NewMigrator(
		migrant.UseSqlite(db, migrant.WithSqliteMaxConnectionAttempts(1)),
		migrant.UseSessionTransaction(true),
		migrant.UseMigrations(migrations.All...),
	)
	require.NoError(t, err)
	defer func() { assert.NoError(t, closer()) }()

	t.Run("it will register every migration of the manifest", func(t *testing.T) {
		defs, err := migration.NewDefinitions(migrations.All...)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"createForumTables",
			"fillPostsAf",
			"dropCommentsLegacyPoll",
			"denormalizePostCommentCount",
		}, defs.Names())
	})

	migrated, err := m.Up(ctx, migrant.WithTarget("createForumTables"))
	require.NoError(t, err)
	require.Equal(t, []string{"createForumTables"}, migrated)

	seed(t, db)

	migrated, err = m.Up(ctx)
	require.NoError(t, err)
	require.Len(t, migrated, 3)

	t.Run("it will fill af on every post", func(t *testing.T) {
		var n int
		require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM posts WHERE af IS NULL"))
		assert.Equal(t, 0, n)

		require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM posts WHERE af = 1"))
		assert.Equal(t, 300, n)
	})

	t.Run("it will clear legacy polls", func(t *testing.T) {
		var n int
		require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM comments WHERE legacy_poll IS NOT NULL"))
		assert.Equal(t, 0, n)
	})

	t.Run("it will count comments per post", func(t *testing.T) {
		var counts []int
		require.NoError(t, db.Select(&counts, "SELECT comment_count FROM posts WHERE id IN ('p0001', 'p0002', 'p0003', 'p0004') ORDER BY id"))
		assert.Equal(t, []int{10, 10, 10, 0}, counts)

		var n int
		require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM posts WHERE comment_count IS NULL"))
		assert.Equal(t, 0, n)
	})

	t.Run("it will rerun idempotent helpers without changes", func(t *testing.T) {
		require.NoError(t, m.Rerun(ctx, "fillPostsAf"))
		require.NoError(t, m.Rerun(ctx, "denormalizePostCommentCount"))

		var n int
		require.NoError(t, db.Get(&n, "SELECT SUM(comment_count) FROM posts"))
		assert.Equal(t, 30, n)
	})

	t.Run("it will revert the denormalization and stop at forward-only migrations", func(t *testing.T) {
		reverted, err := m.Down(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"denormalizePostCommentCount"}, reverted)

		var n int
		require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM posts WHERE comment_count IS NOT NULL"))
		assert.Equal(t, 0, n)

		_, err = m.Down(ctx)
		assert.ErrorIs(t, err, migrant.ErrIrreversibleMigration)
	})
}
