package source

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/forumops/migrant/internal/logger"
	"github.com/forumops/migrant/migration"
	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	DefaultManifest = "all.go"
	DefaultPackage  = "migrations"

	manifestMarker = "{{ do_not_edit . }}"
)

var ErrManifestMarkerMissing = errors.New("manifest has no " + manifestMarker + " marker")

var goMigrationTemplate = template.Must(template.New("migration").Parse(`package {{ .Package }}

import (
	"context"

	"github.com/forumops/migrant/migration"
)

var {{ .Variable }} = migration.New(
	"{{ .Name }}",
	"{{ .Date }}",
	false,
	func(ctx context.Context, tx migration.Tx) error {
		return nil
	},
	func(ctx context.Context, tx migration.Tx) error {
		return nil
	},
)
`))

var wordSeparators = regexp.MustCompile(`[_\-\s]+`)

// GoScaffolder writes Go migrations into a manifest package and lists
// them in its manifest file
type GoScaffolder struct {
	dir      string
	manifest string
	pkg      string
	lg       logger.Logger
}

var _ Creator = (*GoScaffolder)(nil)

func NewGoScaffolder(dir, pkg string, lg logger.Logger) *GoScaffolder {
	if pkg == "" {
		pkg = DefaultPackage
	}

	if lg == nil {
		lg = logger.NullLogger{}
	}

	return &GoScaffolder{
		dir:      dir,
		manifest: filepath.Join(dir, DefaultManifest),
		pkg:      pkg,
		lg:       lg,
	}
}

// Variable is the exported Go identifier of a migration named name
func Variable(at time.Time, name string) string {
	words := wordSeparators.Split(strings.TrimSpace(name), -1)
	title := cases.Title(language.Und, cases.NoLower)

	var camel strings.Builder
	for _, w := range words {
		camel.WriteString(title.String(w))
	}

	return fmt.Sprintf("Migration%s_%s", at.UTC().Format("20060102T150405"), camel.String())
}

func (g *GoScaffolder) Exists(name string) (bool, error) {
	matches, err := filepath.Glob(filepath.Join(g.dir, "*T[0-9][0-9][0-9][0-9][0-9][0-9]_"+g.fileSuffix(name)))
	if err != nil {
		return false, errors.Wrapf(err, "could not look for %s in %s", name, g.dir)
	}

	return len(matches) > 0, nil
}

// Create writes the migration file and splices its variable into the
// manifest right before the marker, the manifest is gofmt'ed afterwards
func (g *GoScaffolder) Create(name string, at time.Time) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}

	if exists, err := g.Exists(name); err != nil {
		return "", err
	} else if exists {
		return "", errors.Wrapf(ErrAlreadyExists, "%s in %s", name, g.dir)
	}

	manifest, err := os.ReadFile(g.manifest)
	if err != nil {
		return "", errors.Wrapf(err, "could not read manifest %s", g.manifest)
	}

	if !bytes.Contains(manifest, []byte(manifestMarker)) {
		return "", errors.Wrapf(ErrManifestMarkerMissing, "%s", g.manifest)
	}

	type context struct {
		Package  string
		Name     string
		Variable string
		Date     string
	}

	c := context{
		Package:  g.pkg,
		Name:     name,
		Variable: Variable(at, name),
		Date:     at.UTC().Format("2006-01-02T15:04:05"),
	}

	tmpl, err := template.
		New("manifest").
		Funcs(template.FuncMap{"do_not_edit": func(c context) string {
			return fmt.Sprintf("%s\n%s,\n// %s", c.Name, c.Variable, manifestMarker)
		}}).
		Parse(string(manifest))
	if err != nil {
		return "", errors.Wrapf(err, "could not parse manifest %s", g.manifest)
	}

	buf := new(bytes.Buffer)
	if err := goMigrationTemplate.Execute(buf, c); err != nil {
		return "", errors.Wrap(err, "could not render migration")
	}

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return "", errors.Wrap(err, "could not format migration")
	}

	filename := filepath.Join(g.dir, at.UTC().Format(migration.DatetimeLayout)+"_"+g.fileSuffix(name))
	if err := os.WriteFile(filename, src, 0644); err != nil {
		return "", errors.Wrapf(err, "could not create file [%s]", filename)
	}

	buf.Reset()
	if err := tmpl.Execute(buf, c); err != nil {
		return "", errors.Wrapf(err, "could not update manifest %s", g.manifest)
	}

	src, err = format.Source(buf.Bytes())
	if err != nil {
		return "", errors.Wrapf(err, "could not format manifest %s", g.manifest)
	}

	if err := os.WriteFile(g.manifest, src, 0644); err != nil {
		return "", errors.Wrapf(err, "could not write manifest %s", g.manifest)
	}

	g.lg.Successf("created %s and added %s to %s", filename, c.Variable, g.manifest)

	return filename, nil
}

func (g *GoScaffolder) fileSuffix(name string) string {
	return strings.ToLower(wordSeparators.ReplaceAllString(name, "_")) + ".go"
}
