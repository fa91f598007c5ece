// Package registry is the authoritative store of ModelEntry, ABTest, and
// DefaultPointer records. The default Store implementation is file-backed,
// rooted at a registry directory with three JSON artifacts; writes are
// atomic (write-to-temp, fsync, rename) and serialized per artifact.
package registry

import "github.com/Basilakis/kai-sub004/internal/domain"

// Store is the pluggable backend a Registry writes through. A file-backed
// implementation is provided; an external database client satisfying the
// same contract can be substituted without changing Registry's callers.
type Store interface {
	LoadModels() ([]domain.ModelEntry, error)
	SaveModels([]domain.ModelEntry) error

	LoadABTests() ([]domain.ABTest, error)
	SaveABTests([]domain.ABTest) error

	LoadDefaults() (map[domain.ModelType]string, error)
	SaveDefaults(map[domain.ModelType]string) error
}
