package migrations

import (
	"context"

	"github.com/forumops/migrant/batch"
	"github.com/forumops/migrant/migration"
)

var Migration20210315T000000_DropCommentsLegacyPoll = migration.New(
	"dropCommentsLegacyPoll",
	"2021-03-15T00:00:00",
	true,
	func(ctx context.Context, tx migration.Tx) error {
		_, err := batch.DropUnusedField(ctx, tx, Comments, "legacy_poll")
		return err
	},
	nil,
)
