package cli

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	DefaultSettingsFile = "./migrant.yml"
	DefaultEnvironment  = "development"
	DefaultForum        = "forum"

	SettingsFileEnv = "SETTINGS_FILE"
	DatabaseURLEnv  = "PG_URL"
)

var (
	ErrDatabaseURLMissing = errors.New("database url was not defined")
	ErrUnknownEnvironment = errors.New("environment is not defined in settings")
	ErrUnknownForum       = errors.New("forum is not defined in settings")
)

const settingsStub = `version: "1"
migrations:
  local_folder: ./migrations
  go_folder: ./migrations
  go_package: migrations
  migrations_table: migrations
  runs_table: migration_runs
environments:
  development:
    forum:
      database_url: "%%PG_URL%%"
`

type (
	ForumSettings struct {
		DatabaseURL string `yaml:"database_url"`
		Schema      string `yaml:"schema"`
	}

	migrationSettings struct {
		LocalFolder     string `yaml:"local_folder"`
		GoFolder        string `yaml:"go_folder"`
		GoPackage       string `yaml:"go_package"`
		MigrationsTable string `yaml:"migrations_table"`
		RunsTable       string `yaml:"runs_table"`
	}

	// Settings is the content of the settings file, every string value can
	// be written as %%NAME%% to read it from the environment
	Settings struct {
		Version      string                              `yaml:"version"`
		Migrations   migrationSettings                   `yaml:"migrations"`
		Environments map[string]map[string]ForumSettings `yaml:"environments"`
	}
)

// SettingsPath picks the settings file: the flag, then SETTINGS_FILE, then the default
func SettingsPath(flag string) string {
	if flag != "" {
		return flag
	}

	if env := os.Getenv(SettingsFileEnv); env != "" {
		return env
	}

	return DefaultSettingsFile
}

func LoadSettings(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not open migrant settings file")
	}

	defer f.Close()

	return ParseSettings(f)
}

func ParseSettings(r io.Reader) (*Settings, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "could not read migrant settings file")
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrap(err, "could not parse migrant settings file")
	}

	s.Migrations.LocalFolder = fromEnv(s.Migrations.LocalFolder)
	s.Migrations.GoFolder = fromEnv(s.Migrations.GoFolder)
	s.Migrations.GoPackage = fromEnv(s.Migrations.GoPackage)
	s.Migrations.MigrationsTable = fromEnv(s.Migrations.MigrationsTable)
	s.Migrations.RunsTable = fromEnv(s.Migrations.RunsTable)

	for env, forums := range s.Environments {
		for name, f := range forums {
			f.DatabaseURL = fromEnv(f.DatabaseURL)
			f.Schema = fromEnv(f.Schema)
			s.Environments[env][name] = f
		}
	}

	return &s, nil
}

// Forum returns the settings of one forum in one environment
func (s *Settings) Forum(env, forum string) (ForumSettings, error) {
	forums, ok := s.Environments[env]
	if !ok {
		return ForumSettings{}, errors.Wrapf(ErrUnknownEnvironment, "%s", env)
	}

	f, ok := forums[forum]
	if !ok {
		return ForumSettings{}, errors.Wrapf(ErrUnknownForum, "%s in %s", forum, env)
	}

	return f, nil
}

// Apply fills whatever cfg left empty from the settings
func (s *Settings) Apply(cfg *Config, env, forum string) error {
	m := s.Migrations
	cfg.MigrationsFolder = firstOf(cfg.MigrationsFolder, m.LocalFolder)
	cfg.GoFolder = firstOf(cfg.GoFolder, m.GoFolder)
	cfg.GoPackage = firstOf(cfg.GoPackage, m.GoPackage)
	cfg.MigrationsTable = firstOf(cfg.MigrationsTable, m.MigrationsTable)
	cfg.RunsTable = firstOf(cfg.RunsTable, m.RunsTable)

	if cfg.DatabaseURL != "" && cfg.Schema != "" {
		return nil
	}

	f, err := s.Forum(env, forum)
	if err != nil {
		if cfg.DatabaseURL != "" {
			return nil
		}

		return err
	}

	cfg.DatabaseURL = firstOf(cfg.DatabaseURL, f.DatabaseURL)
	cfg.Schema = firstOf(cfg.Schema, f.Schema)

	return nil
}

func WriteSettingsStub(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "could not create settings file")
	}

	if _, err := io.Copy(f, strings.NewReader(settingsStub)); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "could not write settings file")
	}

	return f.Close()
}

func fromEnv(value string) string {
	if len(value) > 4 && strings.HasPrefix(value, "%%") && strings.HasSuffix(value, "%%") {
		return os.Getenv(strings.Trim(value, "%"))
	}

	return value
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
