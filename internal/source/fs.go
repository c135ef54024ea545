package source

import (
	"context"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/forumops/migrant/internal/logger"
	"github.com/forumops/migrant/migration"
	"github.com/pkg/errors"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"

	idempotentMarker = "-- idempotent"
)

var fileRegexp = regexp.MustCompile(`^(?P<version>\d{8}(?:T\d{6})?)\.(?P<name>[A-Za-z][A-Za-z0-9_-]*)\.(?P<direction>up|down)\.sql$`)

type scriptPair struct {
	version string
	name    string
	upFile  string
	up      string
	down    string
}

// FSSource reads SQL migrations from the root of a file system,
// an os.DirFS folder or an embed.FS compiled into the binary
type FSSource struct {
	fsys   fs.FS
	origin string
	lg     logger.Logger
}

var _ Selector = (*FSSource)(nil)

func NewFSSource(fsys fs.FS, origin string, lg logger.Logger) *FSSource {
	if lg == nil {
		lg = logger.NullLogger{}
	}

	return &FSSource{fsys: fsys, origin: origin, lg: lg}
}

func (s *FSSource) Select(ctx context.Context) ([]migration.Factory, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, errors.Wrapf(err, "could not read migrations from %s", s.origin)
	}

	pairs := make(map[string]*scriptPair)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}

		m := fileRegexp.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, errors.Wrapf(ErrNotAMigrationFile, "%s", path.Join(s.origin, e.Name()))
		}

		version, name, direction := m[1], m[2], m[3]
		key := version + "." + name

		b, err := fs.ReadFile(s.fsys, e.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "could not read %s", path.Join(s.origin, e.Name()))
		}

		p, ok := pairs[key]
		if !ok {
			p = &scriptPair{version: version, name: name}
			pairs[key] = p
		}

		if direction == "up" {
			p.up = string(b)
			p.upFile = e.Name()
		} else {
			p.down = string(b)
		}
	}

	keys := make([]string, 0, len(pairs))
	for k, p := range pairs {
		if p.upFile == "" {
			return nil, errors.Wrapf(ErrMissingUpScript, "%s", path.Join(s.origin, k+downSuffix))
		}
		keys = append(keys, k)
	}

	sort.Strings(keys)

	factories := make([]migration.Factory, 0, len(keys))
	for _, k := range keys {
		s.lg.Debugf("found SQL migration %s in %s", k, s.origin)
		factories = append(factories, s.factory(pairs[k]))
	}

	return factories, nil
}

func (s *FSSource) factory(p *scriptPair) migration.Factory {
	var down migration.Func
	if strings.TrimSpace(p.down) != "" {
		down = migration.Exec(p.down)
	}

	idempotent := strings.HasPrefix(strings.ToLower(strings.TrimSpace(p.up)), idempotentMarker)

	return func() (*migration.Definition, error) {
		d, err := migration.New(p.name, p.version, idempotent, migration.Exec(p.up), down)()
		if err != nil {
			return nil, err
		}

		d.Source = path.Join(s.origin, p.upFile)

		return d, nil
	}
}
