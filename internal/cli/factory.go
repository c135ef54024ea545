package cli

import (
	"net/url"

	"github.com/forumops/migrant"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/xo/dburl"
)

var ErrUnknownDriver = errors.New("unknown database driver")

type (
	migratorFactory    func(db *sqlx.DB, cfg Config) migrant.OptionFunc
	migratorFactoryMap map[string]migratorFactory
)

// drivers maps what dburl resolves to the registered sql driver
var drivers = map[string]string{
	"postgres": "pgx",
	"pgx":      "pgx",
	"mysql":    "mysql",
	"sqlite3":  "sqlite3",
}

var factories = migratorFactoryMap{
	"pgx": func(db *sqlx.DB, cfg Config) migrant.OptionFunc {
		var opts []migrant.PostgresOptionFunc
		if cfg.Schema != "" {
			opts = append(opts, migrant.WithPostgresSchema(cfg.Schema))
		}

		return migrant.UsePostgres(db, opts...)
	},
	"mysql": func(db *sqlx.DB, _ Config) migrant.OptionFunc {
		return migrant.UseMySQL(db)
	},
	"sqlite3": func(db *sqlx.DB, _ Config) migrant.OptionFunc {
		return migrant.UseSqlite(db)
	},
}

// openDatabase resolves the url to a driver and opens it, mysql urls get
// the parameters the runner relies on
func openDatabase(rawURL string) (*sqlx.DB, string, error) {
	if rawURL == "" {
		return nil, "", ErrDatabaseURLMissing
	}

	u, err := dburl.Parse(rawURL)
	if err != nil {
		return nil, "", errors.Wrap(err, "could not parse database url")
	}

	driver, ok := drivers[u.Driver]
	if !ok {
		return nil, "", errors.Wrapf(ErrUnknownDriver, "%s", u.Driver)
	}

	if driver == "mysql" {
		if u, err = withMySQLParams(rawURL); err != nil {
			return nil, "", err
		}
	}

	db, err := sqlx.Open(driver, u.DSN)
	if err != nil {
		return nil, "", errors.Wrapf(err, "could not open %s database", driver)
	}

	return db, driver, nil
}

func withMySQLParams(rawURL string) (*dburl.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse database url")
	}

	q := parsed.Query()
	q.Set("parseTime", "true")
	q.Set("multiStatements", "true")
	parsed.RawQuery = q.Encode()

	u, err := dburl.Parse(parsed.String())
	if err != nil {
		return nil, errors.Wrap(err, "could not parse database url")
	}

	return u, nil
}

func createMigratorFrom(driver string, factoryMap migratorFactoryMap, db *sqlx.DB, cfg Config) (migrant.OptionFunc, error) {
	factory, ok := factoryMap[driver]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownDriver, "no factory for [%s]", driver)
	}

	return factory(db, cfg), nil
}
