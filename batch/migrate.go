package batch

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/dustin/go-humanize"
	"github.com/forumops/migrant/collection"
	"github.com/forumops/migrant/migration"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrDocumentsNotMigrated = errors.New("documents not updated in migrate documents")

type MigrateOptions struct {
	Description string
	Collection  *collection.Collection
	// UnmigratedQuery matches documents that still need migrating, after
	// Migrate has run on a batch none of it may match again
	UnmigratedQuery sq.Sqlizer
	Columns         []string
	Migrate         Callback
	Pacing
}

// MigrateDocuments keeps fetching unmigrated documents and handing them to
// Migrate until the query matches nothing, it returns the number of
// documents handed over. Without a query every document is migrated once.
func MigrateDocuments(ctx context.Context, tx migration.Tx, opts MigrateOptions) (int, error) {
	if opts.Collection == nil {
		return 0, errors.Wrap(ErrMissingArgument, "collection")
	}

	if opts.Migrate == nil {
		return 0, errors.Wrap(ErrMissingArgument, "migrate")
	}

	if opts.BatchSize <= 0 {
		return 0, errors.Wrapf(ErrInvalidBatchSize, "%d", opts.BatchSize)
	}

	p := opts.Pacing.withDefaults(opts.BatchSize, DefaultLoadFactor)
	if err := p.validate(); err != nil {
		return 0, err
	}

	if opts.Description == "" {
		opts.Description = "Migration on " + opts.Collection.Name
	}

	log := p.Log.With(zap.String("step", opts.Description))
	log.Info("Beginning migration step")

	affected := 0
	migrate := func(ctx context.Context, tx migration.Tx, docs []collection.Document) error {
		if err := opts.Migrate(ctx, tx, docs); err != nil {
			return err
		}

		affected += len(docs)
		log.Debug("Documents updated", zap.String("total", humanize.Comma(int64(affected))))

		return nil
	}

	if opts.UnmigratedQuery == nil {
		log.Info("No unmigrated-document query, migrating all documents", zap.String("collection", opts.Collection.Name))

		err := ForEachDocumentBatchInCollection(ctx, tx, ForEachOptions{
			Collection: opts.Collection,
			Columns:    opts.Columns,
			Callback:   migrate,
			Pacing:     p,
		})

		return affected, err
	}

	key := opts.Collection.Key
	previous := make(map[string]struct{})
	done := false

	for !done {
		err := RunThenSleep(ctx, p.Clock, p.LoadFactor, func(ctx context.Context) error {
			docs, err := fetch(ctx, tx, opts.Collection, opts.Columns, opts.UnmigratedQuery, nil, p.BatchSize)
			if err != nil {
				return err
			}

			if len(docs) == 0 {
				done = true
				return nil
			}

			var stale []string
			for _, doc := range docs {
				if _, ok := previous[doc.String(key)]; ok {
					stale = append(stale, doc.String(key))
				}
			}

			if len(stale) > 0 {
				err := errors.Wrapf(ErrDocumentsNotMigrated, "%s", strings.Join(stale, ","))
				log.Error("Documents still match the unmigrated query", zap.Error(err))
				return err
			}

			previous = make(map[string]struct{}, len(docs))
			for _, doc := range docs {
				previous[doc.String(key)] = struct{}{}
			}

			return migrate(ctx, tx, docs)
		})

		if err != nil {
			return affected, err
		}
	}

	log.Info(fmt.Sprintf("Finished migration step, %s documents affected", humanize.Comma(int64(affected))))

	return affected, nil
}
