package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PathResolver locates the shared container directory the store lives in.
type PathResolver interface {
	ContainerDirectory() (string, error)
}

// PathResolverFunc adapts a function to PathResolver.
type PathResolverFunc func() (string, error)

// ContainerDirectory calls f.
func (f PathResolverFunc) ContainerDirectory() (string, error) {
	return f()
}

// StaticDir resolves to dir. An empty dir resolves to the user config
// directory's homestore subdirectory.
func StaticDir(dir string) PathResolver {
	return PathResolverFunc(func() (string, error) {
		if dir != "" {
			return dir, nil
		}
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("locate user config directory: %w", err)
		}
		return filepath.Join(base, "homestore"), nil
	})
}

var errNoContainer = errors.New("container directory unavailable")

// storeDirectory resolves the directory holding the store files. When the
// resolver fails it falls back to the temporary directory and logs an error.
func (m *Manager) storeDirectory() string {
	if m.dir != "" {
		return m.dir
	}
	base, err := m.resolver.ContainerDirectory()
	if err == nil && base == "" {
		err = errNoContainer
	}
	if err != nil {
		m.log.Error("unable to resolve store directory, using temporary directory",
			"error", err, "fallback", os.TempDir())
		base = os.TempDir()
	}
	m.dir = filepath.Join(base, m.storeDirName)
	return m.dir
}

// ensureDirectory creates dir with owner-only permissions if absent.
func ensureDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
