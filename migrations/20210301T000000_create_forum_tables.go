package migrations

import "github.com/forumops/migrant/migration"

var Migration20210301T000000_CreateForumTables = migration.NewFromScripts(
	"createForumTables",
	"2021-03-01T00:00:00",
	true,
	[]string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS posts (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			author_id VARCHAR(36) NOT NULL,
			title VARCHAR(255) NOT NULL,
			af BOOLEAN NULL,
			comment_count INTEGER NULL
		);`,
		`CREATE TABLE IF NOT EXISTS comments (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			post_id VARCHAR(36) NOT NULL,
			author_id VARCHAR(36) NOT NULL,
			body TEXT NOT NULL,
			legacy_poll TEXT NULL
		);`,
	},
	[]string{
		"DROP TABLE IF EXISTS comments;",
		"DROP TABLE IF EXISTS posts;",
		"DROP TABLE IF EXISTS users;",
	},
)
