// Package batch provides the primitives data migrations use to walk and
// rewrite large collections in bounded memory. Every helper works through
// the transaction handle it is given and nothing else.
package batch

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
	"github.com/forumops/migrant/collection"
	"github.com/forumops/migrant/migration"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize     = 1000
	DefaultFillBatchSize = 10000
)

var (
	ErrMissingArgument  = errors.New("missing required argument")
	ErrInvalidBatchSize = errors.New("invalid batch size")
)

// Callback receives one batch together with the transaction it was read in
type Callback func(ctx context.Context, tx migration.Tx, docs []collection.Document) error

// Pacing controls batch size and how hard a helper is allowed to push the database
type Pacing struct {
	BatchSize  int
	LoadFactor float64
	Clock      clock.Clock
	Log        *zap.Logger
}

func (p Pacing) withDefaults(batchSize int, loadFactor float64) Pacing {
	if p.BatchSize == 0 {
		p.BatchSize = batchSize
	}

	if p.LoadFactor == 0 {
		p.LoadFactor = loadFactor
	}

	if p.Clock == nil {
		p.Clock = clock.New()
	}

	if p.Log == nil {
		p.Log = zap.NewNop()
	}

	return p
}

func (p Pacing) validate() error {
	if p.BatchSize <= 0 {
		return errors.Wrapf(ErrInvalidBatchSize, "%d", p.BatchSize)
	}

	return ValidateLoadFactor(p.LoadFactor)
}

type ForEachOptions struct {
	Collection *collection.Collection
	// Filter must not constrain the collection key, the cursor owns it
	Filter   sq.Sqlizer
	Columns  []string
	Callback Callback
	Pacing
}

// ForEachDocumentBatchInCollection walks the documents matching the filter in key order, handing
// them to the callback batch by batch. It stops after the first batch that is
// shorter than the batch size. Every document that exists when the scan
// reaches its key is visited once. Documents inserted behind the cursor are not.
func ForEachDocumentBatchInCollection(ctx context.Context, tx migration.Tx, opts ForEachOptions) error {
	if opts.Collection == nil {
		return errors.Wrap(ErrMissingArgument, "collection")
	}

	if opts.Callback == nil {
		return errors.Wrap(ErrMissingArgument, "callback")
	}

	p := opts.Pacing.withDefaults(DefaultBatchSize, 1)
	if err := p.validate(); err != nil {
		return err
	}

	log := p.Log.With(zap.String("collection", opts.Collection.Name))

	var (
		cursor  interface{}
		visited int
		done    bool
	)

	for !done {
		err := RunThenSleep(ctx, p.Clock, p.LoadFactor, func(ctx context.Context) error {
			docs, err := fetch(ctx, tx, opts.Collection, opts.Columns, opts.Filter, cursor, p.BatchSize)
			if err != nil {
				return err
			}

			if len(docs) == 0 {
				done = true
				return nil
			}

			if err := opts.Callback(ctx, tx, docs); err != nil {
				return err
			}

			visited += len(docs)
			cursor = docs[len(docs)-1].Get(opts.Collection.Key)
			done = len(docs) < p.BatchSize

			log.Debug("batch done", zap.String("visited", humanize.Comma(int64(visited))))

			return nil
		})

		if err != nil {
			return err
		}
	}

	return nil
}

// ForEachDocumentInCollection calls f once per document, reading in batches underneath
func ForEachDocumentInCollection(
	ctx context.Context,
	tx migration.Tx,
	opts ForEachOptions,
	f func(ctx context.Context, tx migration.Tx, doc collection.Document) error,
) error {
	if f == nil {
		return errors.Wrap(ErrMissingArgument, "document callback")
	}

	opts.Callback = func(ctx context.Context, tx migration.Tx, docs []collection.Document) error {
		for _, doc := range docs {
			if err := f(ctx, tx, doc); err != nil {
				return err
			}
		}
		return nil
	}

	return ForEachDocumentBatchInCollection(ctx, tx, opts)
}

func builder(tx migration.Tx) sq.StatementBuilderType {
	if sqlx.BindType(tx.DriverName()) == sqlx.DOLLAR {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}

	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

func quote(tx migration.Tx, ident string) string {
	return quoteIdent(tx.DriverName(), ident)
}

// quoteIdent quotes every part of a schema qualified name on its own
func quoteIdent(driver, ident string) string {
	open, closing := `"`, `"`
	if driver == "mysql" {
		open, closing = "`", "`"
	}

	parts := strings.Split(ident, ".")
	for i := range parts {
		parts[i] = open + strings.ReplaceAll(parts[i], closing, closing+closing) + closing
	}

	return strings.Join(parts, ".")
}

func selectColumns(tx migration.Tx, c *collection.Collection, columns []string) []string {
	if len(columns) == 0 {
		return []string{"*"}
	}

	result := []string{quote(tx, c.Key)}
	for _, col := range columns {
		if col == c.Key {
			continue
		}
		result = append(result, quote(tx, col))
	}

	return result
}

// fetch reads up to limit documents after the cursor in key order,
// a nil cursor starts from the beginning
func fetch(
	ctx context.Context,
	tx migration.Tx,
	c *collection.Collection,
	columns []string,
	filter sq.Sqlizer,
	cursor interface{},
	limit int,
) ([]collection.Document, error) {
	key := quote(tx, c.Key)

	b := builder(tx).
		Select(selectColumns(tx, c, columns)...).
		From(quote(tx, c.Name)).
		OrderBy(key + " ASC").
		Limit(uint64(limit))

	if filter != nil {
		b = b.Where(filter)
	}

	if cursor != nil {
		b = b.Where(sq.Gt{key: cursor})
	}

	q, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrapf(err, "could not build batch query for %s", c.Name)
	}

	rows, err := tx.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "could not fetch batch from %s", c.Name)
	}
	defer rows.Close()

	docs := make([]collection.Document, 0, limit)
	for rows.Next() {
		doc := make(map[string]interface{})
		if err := rows.MapScan(doc); err != nil {
			return nil, errors.Wrapf(err, "could not scan document from %s", c.Name)
		}

		docs = append(docs, collection.Document(doc).Normalize())
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "batch iteration over %s failed", c.Name)
	}

	return docs, nil
}

// scanKeys walks the keys of rows matching cond in key order, it is what the
// in-place updaters use since they only need to address rows
func scanKeys(
	ctx context.Context,
	tx migration.Tx,
	c *collection.Collection,
	cond sq.Sqlizer,
	p Pacing,
	f func(ctx context.Context, keys []interface{}) error,
) error {
	var (
		cursor interface{}
		done   bool
	)

	for !done {
		err := RunThenSleep(ctx, p.Clock, p.LoadFactor, func(ctx context.Context) error {
			docs, err := fetch(ctx, tx, c, []string{c.Key}, cond, cursor, p.BatchSize)
			if err != nil {
				return err
			}

			if len(docs) == 0 {
				done = true
				return nil
			}

			keys := make([]interface{}, len(docs))
			for i := range docs {
				keys[i] = docs[i].Get(c.Key)
			}

			if err := f(ctx, keys); err != nil {
				return err
			}

			cursor = keys[len(keys)-1]
			done = len(docs) < p.BatchSize

			return nil
		})

		if err != nil {
			return err
		}
	}

	return nil
}
