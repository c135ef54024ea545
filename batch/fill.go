package batch

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/dustin/go-humanize"
	"github.com/forumops/migrant/collection"
	"github.com/forumops/migrant/migration"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrUnknownField    = errors.New("field is not declared in the collection schema")
	ErrNoDefaultValue  = errors.New("field does not have a default value")
	ErrNotAutofillable = errors.New("field is not marked autofillable")
)

type FillOptions struct {
	Collection *collection.Collection
	Field      string
	Pacing
}

// FillDefaultValues sets the schema default on every row where the field is
// null and returns how many rows it touched, a second run touches none
func FillDefaultValues(ctx context.Context, tx migration.Tx, opts FillOptions) (int64, error) {
	if opts.Collection == nil {
		return 0, errors.Wrap(ErrMissingArgument, "collection")
	}

	if opts.Field == "" {
		return 0, errors.Wrap(ErrMissingArgument, "field")
	}

	field, ok := opts.Collection.Field(opts.Field)
	if !ok {
		return 0, errors.Wrapf(ErrUnknownField, "%s.%s", opts.Collection.Name, opts.Field)
	}

	if field.Default == nil {
		return 0, errors.Wrapf(ErrNoDefaultValue, "%s.%s", opts.Collection.Name, opts.Field)
	}

	if !field.CanAutofillDefault {
		return 0, errors.Wrapf(ErrNotAutofillable, "%s.%s", opts.Collection.Name, opts.Field)
	}

	p := opts.Pacing.withDefaults(DefaultFillBatchSize, DefaultLoadFactor)
	if err := p.validate(); err != nil {
		return 0, err
	}

	log := p.Log.With(zap.String("collection", opts.Collection.Name), zap.String("field", opts.Field))
	log.Info("Filling in default values")

	column := quote(tx, opts.Field)
	missing := sq.Eq{column: nil}

	var matched int64
	err := scanKeys(ctx, tx, opts.Collection, missing, p, func(ctx context.Context, keys []interface{}) error {
		n, err := update(ctx, tx, builder(tx).
			Update(quote(tx, opts.Collection.Name)).
			Set(column, field.Default).
			Where(sq.Eq{quote(tx, opts.Collection.Key): keys}).
			Where(missing))
		if err != nil {
			return errors.Wrapf(err, "could not fill %s.%s", opts.Collection.Name, opts.Field)
		}

		matched += n
		log.Debug("Finished bucket", zap.Int64("updated", n))

		return nil
	})

	if err != nil {
		return matched, err
	}

	log.Info("Done filling default values", zap.String("rows", humanize.Comma(matched)))

	return matched, nil
}

// DropUnusedField clears the field on every row that still has a value,
// rows that are already null are never touched
func DropUnusedField(ctx context.Context, tx migration.Tx, c *collection.Collection, field string, pacing ...Pacing) (int64, error) {
	if c == nil {
		return 0, errors.Wrap(ErrMissingArgument, "collection")
	}

	if field == "" {
		return 0, errors.Wrap(ErrMissingArgument, "field")
	}

	if field == c.Key {
		return 0, errors.Errorf("refusing to drop the key of %s", c.Name)
	}

	var p Pacing
	if len(pacing) > 0 {
		p = pacing[0]
	}

	p = p.withDefaults(DefaultBatchSize, DefaultLoadFactor)
	if err := p.validate(); err != nil {
		return 0, err
	}

	column := quote(tx, field)
	present := sq.NotEq{column: nil}

	var dropped int64
	err := scanKeys(ctx, tx, c, present, p, func(ctx context.Context, keys []interface{}) error {
		n, err := update(ctx, tx, builder(tx).
			Update(quote(tx, c.Name)).
			Set(column, nil).
			Where(sq.Eq{quote(tx, c.Key): keys}).
			Where(present))
		if err != nil {
			return errors.Wrapf(err, "could not drop %s.%s", c.Name, field)
		}

		dropped += n
		return nil
	})

	if err != nil {
		return dropped, err
	}

	p.Log.Info(
		"Dropped unused field",
		zap.String("collection", c.Name),
		zap.String("field", field),
		zap.String("rows", humanize.Comma(dropped)),
	)

	return dropped, nil
}

func update(ctx context.Context, tx migration.Tx, b sq.UpdateBuilder) (int64, error) {
	q, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
