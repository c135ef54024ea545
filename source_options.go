package migrant

import (
	"io/fs"

	"github.com/forumops/migrant/internal/source"
)

// UseLocalFolderSource reads SQL migrations from folder and lets Create
// scaffold new ones there
func UseLocalFolderSource(folder string) OptionFunc {
	return func(m *Migrator) error {
		m.deferred = append(m.deferred, func(m *Migrator) error {
			lfs := source.NewLocalFolderSource(folder, m.lg)
			m.selectors = append(m.selectors, lfs)
			m.creators[source.KindSQL] = lfs
			return nil
		})

		return nil
	}
}

// UseFS reads SQL migrations from the root of fsys, typically an embed.FS
func UseFS(fsys fs.FS, origin string) OptionFunc {
	return func(m *Migrator) error {
		m.deferred = append(m.deferred, func(m *Migrator) error {
			m.selectors = append(m.selectors, source.NewFSSource(fsys, origin, m.lg))
			return nil
		})

		return nil
	}
}

// UseGoScaffold lets Create write Go migrations into the manifest package in dir
func UseGoScaffold(dir, pkg string) OptionFunc {
	return func(m *Migrator) error {
		m.deferred = append(m.deferred, func(m *Migrator) error {
			m.creators[source.KindGo] = source.NewGoScaffolder(dir, pkg, m.lg)
			return nil
		})

		return nil
	}
}

func UseSelectors(selectors ...source.Selector) OptionFunc {
	return func(m *Migrator) error {
		m.selectors = append(m.selectors, selectors...)
		return nil
	}
}
