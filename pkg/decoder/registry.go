package decoder

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/user/pointstream/pkg/ports"
)

type backend struct {
	factory  ports.CodecFactory
	hardware map[string]bool
}

// Registry maps codec names to backend factories.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]backend)}
}

// Register adds a factory for one or more codec names. hardware lists the
// hardware backend names the factory accepts besides software decoding.
func (r *Registry) Register(names []string, factory ports.CodecFactory, hardware ...string) {
	hw := make(map[string]bool, len(hardware))
	for _, h := range hardware {
		hw[strings.ToLower(h)] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		r.backends[strings.ToLower(name)] = backend{factory: factory, hardware: hw}
	}
}

// Lookup returns the factory for codec with the given hardware backend.
// An empty hardware name selects software decoding.
func (r *Registry) Lookup(codec, hardware string) (ports.CodecFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[strings.ToLower(codec)]
	if !ok {
		return nil, fmt.Errorf("%w: codec %q", ErrNotFound, codec)
	}
	if hardware != "" && !b.hardware[strings.ToLower(hardware)] {
		return nil, fmt.Errorf("%w: hardware %q for codec %q", ErrNotFound, hardware, codec)
	}
	return b.factory, nil
}

// Codecs lists the registered codec names in sorted order.
func (r *Registry) Codecs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
