package migrations

import "github.com/forumops/migrant/migration"

// All is read by cmd/migrant, `migrant create --format go` appends to it
var All = []migration.Factory{
	// createForumTables
	Migration20210301T000000_CreateForumTables,
	// fillPostsAf
	Migration20210308T000000_FillPostsAf,
	// dropCommentsLegacyPoll
	Migration20210315T000000_DropCommentsLegacyPoll,
	// denormalizePostCommentCount
	Migration20210322T000000_DenormalizePostCommentCount,
	// {{ do_not_edit . }}
}
