package migrations

import (
	"context"

	"github.com/forumops/migrant/batch"
	"github.com/forumops/migrant/migration"
)

// Posts written before af existed get its default, forward-only
var Migration20210308T000000_FillPostsAf = migration.New(
	"fillPostsAf",
	"2021-03-08T00:00:00",
	true,
	func(ctx context.Context, tx migration.Tx) error {
		_, err := batch.FillDefaultValues(ctx, tx, batch.FillOptions{Collection: Posts, Field: "af"})
		return err
	},
	nil,
)
