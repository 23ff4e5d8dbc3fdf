package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// registryFile is the persisted shape of the all-time registry.
type registryFile struct {
	Codes       []string  `json:"codes"`
	LastUpdated time.Time `json:"last_updated"`
	TotalCount  int       `json:"total_count"`
}

// Registry is the permanent record of order codes ever successfully
// completed, across all runs. It grows monotonically; entries are never
// removed. The membership index is derived on load and kept in sync by Add;
// it is never serialized.
type Registry struct {
	mu          sync.Mutex
	path        string
	codes       []string
	index       map[string]struct{}
	lastUpdated time.Time
}

// LoadRegistry reads the registry at path, or returns an empty one when the
// file is absent or corrupt.
func LoadRegistry(path string) (*Registry, error) {
	var f registryFile
	found, err := loadJSON(path, &f)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		path:  path,
		index: make(map[string]struct{}, len(f.Codes)),
	}
	if found {
		r.lastUpdated = f.LastUpdated
		for _, code := range f.Codes {
			if _, dup := r.index[code]; dup {
				continue
			}
			r.index[code] = struct{}{}
			r.codes = append(r.codes, code)
		}
		zap.L().Info("progress: loaded all-time registry",
			zap.String("path", path),
			zap.Int("codes", len(r.codes)),
		)
	}
	return r, nil
}

// Add records code as permanently completed. Returns false if it was
// already present.
func (r *Registry) Add(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[code]; ok {
		return false
	}
	r.index[code] = struct{}{}
	r.codes = append(r.codes, code)
	r.lastUpdated = time.Now().UTC()
	return true
}

// Contains reports whether code has ever been completed.
func (r *Registry) Contains(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.index[code]
	return ok
}

// Count returns the number of registered codes.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.codes)
}

// Flush writes the registry to its backing file.
func (r *Registry) Flush() error {
	r.mu.Lock()
	f := registryFile{
		Codes:       append([]string(nil), r.codes...),
		LastUpdated: r.lastUpdated,
		TotalCount:  len(r.codes),
	}
	r.mu.Unlock()

	return writeJSONAtomic(r.path, f)
}
