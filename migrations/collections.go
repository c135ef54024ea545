// Package migrations holds the forum's Go migrations and the schema
// declarations the batch helpers work against.
package migrations

import "github.com/forumops/migrant/collection"

var (
	Users = collection.New(
		"users",
		collection.Field{Name: "name"},
		collection.Field{Name: "created_at"},
	).WithKey("id")

	Posts = collection.New(
		"posts",
		collection.Field{Name: "author_id"},
		collection.Field{Name: "title"},
		collection.Field{Name: "af", Default: false, CanAutofillDefault: true},
		collection.Field{Name: "comment_count"},
	).WithKey("id")

	Comments = collection.New(
		"comments",
		collection.Field{Name: "post_id"},
		collection.Field{Name: "author_id"},
		collection.Field{Name: "body"},
		collection.Field{Name: "legacy_poll"},
	).WithKey("id")
)
