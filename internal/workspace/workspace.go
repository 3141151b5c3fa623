// Package workspace models the on-disk layout of an apidb workspace and
// the exclusive lock guarding its mutating operations.
//
// Everything apidb persists lives under <root>/.apidb/:
//
//	config.json   source list (owned by the config package)
//	index.sqlite  published query index (+ .tmp/.bak siblings during rebuild)
//	state.sqlite  cache ledger, survives index rebuilds
//	blobs/        content-addressed raw fetched bytes
//	lock          exclusive marker holding the owner's pid
package workspace

import (
	"os"
	"path/filepath"
)

// DirName is the workspace data directory created under the root.
const DirName = ".apidb"

// Handle is an explicit workspace value threaded through every call.
// It is never ambient or global.
type Handle struct {
	root string
}

// NewHandle creates a handle for the given workspace root.
func NewHandle(root string) Handle {
	return Handle{root: root}
}

// Root returns the workspace root directory.
func (h Handle) Root() string {
	return h.root
}

// Dir returns the .apidb data directory.
func (h Handle) Dir() string {
	return filepath.Join(h.root, DirName)
}

// EnsureDir creates the .apidb data directory idempotently.
func (h Handle) EnsureDir() error {
	return os.MkdirAll(h.Dir(), 0700)
}

// ConfigPath returns the path to config.json.
func (h Handle) ConfigPath() string {
	return filepath.Join(h.Dir(), "config.json")
}

// SettingsPath returns the path to the optional settings.toml.
func (h Handle) SettingsPath() string {
	return filepath.Join(h.Dir(), "settings.toml")
}

// IndexPath returns the canonical published index path.
func (h Handle) IndexPath() string {
	return filepath.Join(h.Dir(), "index.sqlite")
}

// IndexTmpPath returns the temporary index path used during rebuild.
func (h Handle) IndexTmpPath() string {
	return h.IndexPath() + ".tmp"
}

// IndexBakPath returns the backup path of the previously published index.
func (h Handle) IndexBakPath() string {
	return h.IndexPath() + ".bak"
}

// StatePath returns the cache ledger path.
func (h Handle) StatePath() string {
	return filepath.Join(h.Dir(), "state.sqlite")
}

// BlobDir returns the content-addressed blob directory.
func (h Handle) BlobDir() string {
	return filepath.Join(h.Dir(), "blobs")
}

// LockPath returns the exclusive lock marker path.
func (h Handle) LockPath() string {
	return filepath.Join(h.Dir(), "lock")
}

// RootSelection reports how a workspace root was chosen.
type RootSelection struct {
	Root   string
	Reason string
}

// FindRoot selects the workspace root. An explicit flag wins; otherwise
// the nearest ancestor of cwd containing a .apidb directory; otherwise
// cwd itself.
func FindRoot(cwd, rootFlag string) (RootSelection, error) {
	if rootFlag != "" {
		abs, err := filepath.Abs(rootFlag)
		if err != nil {
			return RootSelection{}, err
		}
		return RootSelection{Root: abs, Reason: "explicit --root"}, nil
	}

	abs, err := filepath.Abs(cwd)
	if err != nil {
		return RootSelection{}, err
	}

	cur := abs
	for {
		if isDir(filepath.Join(cur, DirName)) {
			return RootSelection{Root: cur, Reason: "found " + DirName + " directory"}, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}

	return RootSelection{Root: abs, Reason: "default to cwd"}, nil
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
