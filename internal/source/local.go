package source

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/forumops/migrant/internal/logger"
	"github.com/forumops/migrant/migration"
	"github.com/pkg/errors"
)

const DefaultMigrationsFolder = "./migrations"

// LocalFolderSource is an FSSource over a folder on disk that can also
// scaffold new SQL migrations into it
type LocalFolderSource struct {
	*FSSource
	folder string
}

var (
	_ Selector = (*LocalFolderSource)(nil)
	_ Creator  = (*LocalFolderSource)(nil)
)

func NewLocalFolderSource(folder string, lg logger.Logger) *LocalFolderSource {
	return &LocalFolderSource{
		FSSource: NewFSSource(os.DirFS(folder), folder, lg),
		folder:   folder,
	}
}

func (lfs *LocalFolderSource) Folder() string {
	return lfs.folder
}

func (lfs *LocalFolderSource) IsValid() bool {
	info, err := os.Stat(lfs.folder)
	if os.IsNotExist(err) {
		return false
	}

	return err == nil && info.IsDir()
}

// Select treats a missing folder as one without migrations, Create makes it
func (lfs *LocalFolderSource) Select(ctx context.Context) ([]migration.Factory, error) {
	if _, err := os.Stat(lfs.folder); os.IsNotExist(err) {
		lfs.lg.Debugf("migrations folder %s does not exist", lfs.folder)
		return nil, nil
	}

	return lfs.FSSource.Select(ctx)
}

// Exists reports whether an up script for name exists under any version
func (lfs *LocalFolderSource) Exists(name string) (bool, error) {
	matches, err := filepath.Glob(filepath.Join(lfs.folder, "*."+name+upSuffix))
	if err != nil {
		return false, errors.Wrapf(err, "could not look for %s in %s", name, lfs.folder)
	}

	return len(matches) > 0, nil
}

// Create writes empty up and down scripts versioned with at and returns
// the path of the up script
func (lfs *LocalFolderSource) Create(name string, at time.Time) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}

	if exists, err := lfs.Exists(name); err != nil {
		return "", err
	} else if exists {
		return "", errors.Wrapf(ErrAlreadyExists, "%s in %s", name, lfs.folder)
	}

	if err := os.MkdirAll(lfs.folder, 0755); err != nil {
		return "", errors.Wrapf(err, "could not create folder [%s]", lfs.folder)
	}

	key := at.UTC().Format(migration.DatetimeLayout) + "." + name
	up := filepath.Join(lfs.folder, key+upSuffix)
	down := filepath.Join(lfs.folder, key+downSuffix)

	for _, filename := range []string{up, down} {
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err != nil {
			return "", errors.Wrapf(err, "could not create file [%s]", filename)
		}

		if cErr := f.Close(); cErr != nil {
			return "", errors.Wrapf(cErr, "could not close file %s", filename)
		}
	}

	lfs.lg.Successf("created %s", up)

	return up, nil
}
