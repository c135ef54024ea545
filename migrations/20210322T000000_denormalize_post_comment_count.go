package migrations

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/forumops/migrant/batch"
	"github.com/forumops/migrant/collection"
	"github.com/forumops/migrant/migration"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const commentCountBatchSize = 500

// Migration20210322T000000_DenormalizePostCommentCount stores the number of
// comments on every post so listings stop counting them per request
var Migration20210322T000000_DenormalizePostCommentCount = migration.New(
	"denormalizePostCommentCount",
	"2021-03-22T00:00:00",
	true,
	func(ctx context.Context, tx migration.Tx) error {
		_, err := batch.MigrateDocuments(ctx, tx, batch.MigrateOptions{
			Description:     "Counting comments of posts",
			Collection:      Posts,
			UnmigratedQuery: sq.Eq{"comment_count": nil},
			Columns:         []string{Posts.Key},
			Migrate:         countComments,
			Pacing:          batch.Pacing{BatchSize: commentCountBatchSize},
		})

		return err
	},
	migration.Exec("UPDATE posts SET comment_count = NULL;"),
)

func countComments(ctx context.Context, tx migration.Tx, docs []collection.Document) error {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.String(Posts.Key))
	}

	q, args, err := sqlx.In(`UPDATE posts
		SET comment_count = (SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id)
		WHERE id IN (?);`, ids)
	if err != nil {
		return errors.Wrap(err, "could not build comment count update")
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
		return errors.Wrapf(err, "could not count comments of %d posts", len(ids))
	}

	return nil
}
