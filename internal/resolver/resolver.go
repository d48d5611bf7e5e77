// Package resolver locates trusted system utilities on a fixed, ordered
// search path. Every subprocess the broker spawns must name a binary that
// passed through Resolve; there is no fallback to $PATH lookup.
package resolver

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aicers/roxy/pkg/logger"
	"github.com/aicers/roxy/pkg/reconcile"
	"golang.org/x/sys/unix"
)

// SearchPath is the only set of directories a utility may be resolved
// from, in lookup order.
var SearchPath = []string{"/usr/bin", "/usr/sbin", "/bin", "/sbin"}

type Resolver struct {
	dirs   []string
	logger *slog.Logger

	// cache holds successful resolutions only. Utilities do not move at
	// runtime, so entries are write-once and shared without extra locking.
	cache sync.Map
}

func New() *Resolver {
	return NewWithPath(SearchPath)
}

// NewWithPath exists for tests; production code uses New.
func NewWithPath(dirs []string) *Resolver {
	return &Resolver{
		dirs:   dirs,
		logger: logger.Component(logger.Resolver),
	}
}

// Resolve returns the absolute path of the first executable candidate for
// name. It fails closed with KindUtilityNotFound when the search path is
// exhausted, even if a like-named file exists elsewhere.
func (r *Resolver) Resolve(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) {
		return "", reconcile.NewError(reconcile.KindUtilityNotFound, "utility name %q is not a bare name", name)
	}

	if p, ok := r.cache.Load(name); ok {
		return p.(string), nil
	}

	for _, dir := range r.dirs {
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if unix.Access(candidate, unix.X_OK) != nil {
			continue
		}

		r.cache.Store(name, candidate)
		r.logger.Debug("Resolved utility", "name", name, "path", candidate)
		return candidate, nil
	}

	return "", reconcile.NewError(reconcile.KindUtilityNotFound, "utility %q not found in search path", name)
}

// PathEnv returns the PATH value subprocesses run with: exactly the
// resolver's search directories, nothing else.
func (r *Resolver) PathEnv() string {
	return strings.Join(r.dirs, ":")
}
