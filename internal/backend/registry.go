package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrBackendNotFound   = errors.New("backend not found")
	ErrBackendRegistered = errors.New("backend already registered")
	ErrBackendInvalid    = errors.New("backend kind is invalid")
)

// Factory constructs a backend from explicit options.
type Factory func(opts Options) (Backend, error)

// Descriptor describes a registered variant.
type Descriptor struct {
	Kind           Kind
	Images         bool
	DefaultBaseURL string
	Factory        Factory
}

var (
	registryMu sync.RWMutex
	registry   = map[Kind]Descriptor{}
)

// Register adds a backend variant to the registry.
func Register(desc Descriptor) error {
	if !desc.Kind.Valid() {
		return ErrBackendInvalid
	}
	if desc.Factory == nil {
		return errors.New("backend factory is nil")
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[desc.Kind]; exists {
		return ErrBackendRegistered
	}

	registry[desc.Kind] = desc
	return nil
}

// Lookup returns the descriptor for kind.
func Lookup(kind Kind) (Descriptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	desc, ok := registry[kind]
	return desc, ok
}

// New constructs a backend of the given kind.
func New(kind Kind, opts Options) (Backend, error) {
	desc, ok := Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, kind)
	}
	return desc.Factory(opts)
}

// Registered returns all registered descriptors sorted by kind.
func Registered() []Descriptor {
	registryMu.RLock()
	defer registryMu.RUnlock()

	descs := make([]Descriptor, 0, len(registry))
	for _, desc := range registry {
		descs = append(descs, desc)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Kind < descs[j].Kind })
	return descs
}

// DefaultKind returns the default backend kind.
func DefaultKind() Kind {
	return KindCerebras
}
