// Package registry maps textual type tags to factories for graph elements.
//
// A Registry is an owned value; there is no process-wide registry. Element families expose a
// Register function which callers run once at startup, usually through Populate.
package registry

import (
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/posegraph/graph"
)

var (
	// ErrDuplicateTag is returned when a tag or a concrete type is registered twice.
	ErrDuplicateTag = errors.New("tag already registered")
	// ErrTagNotFound is returned when creating an element for an unknown tag.
	ErrTagNotFound = errors.New("tag not registered")
)

// A Factory creates a default constructed element.
type Factory func() graph.Element

// A Registrar adds a family of element types to a registry.
type Registrar func(r *Registry) error

// Registration is what is stored for each tag.
type Registration struct {
	Tag     string
	Factory Factory
	// RegistrarLoc is the file and line that registered the tag.
	RegistrarLoc string
	elemType     reflect.Type
}

// Registry holds registrations. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byTag  map[string]Registration
	byType map[reflect.Type]string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byTag:  map[string]Registration{},
		byType: map[reflect.Type]string{},
	}
}

// Register associates tag with factory. A tag, or the concrete type the factory produces, can
// only be registered once; a second attempt fails and leaves the registry unchanged.
func (r *Registry) Register(tag string, factory Factory) error {
	if tag == "" {
		return errors.New("cannot register an empty tag")
	}
	if factory == nil {
		return errors.Errorf("cannot register a nil factory for tag %s", tag)
	}
	sample := factory()
	if sample == nil {
		return errors.Errorf("factory for tag %s returned nil", tag)
	}
	elemType := reflect.TypeOf(sample)

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byTag[tag]; ok {
		return errors.Wrapf(ErrDuplicateTag, "%s (first registered at %s)", tag, old.RegistrarLoc)
	}
	if other, ok := r.byType[elemType]; ok {
		return errors.Wrapf(ErrDuplicateTag, "type %s already registered as %s", elemType, other)
	}
	r.byTag[tag] = Registration{
		Tag:          tag,
		Factory:      factory,
		RegistrarLoc: callerLoc(),
		elemType:     elemType,
	}
	r.byType[elemType] = tag
	return nil
}

func callerLoc() string {
	// skip callerLoc and Register
	if _, file, line, ok := runtime.Caller(2); ok {
		return fmt.Sprintf("%s:%d", file, line)
	}
	return "unknown"
}

// Create returns a new element for tag.
func (r *Registry) Create(tag string) (graph.Element, error) {
	r.mu.RLock()
	reg, ok := r.byTag[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrap(ErrTagNotFound, tag)
	}
	return reg.Factory(), nil
}

// Lookup returns the registration for tag.
func (r *Registry) Lookup(tag string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byTag[tag]
	return reg, ok
}

// Tag returns the tag elem's concrete type was registered under.
func (r *Registry) Tag(elem graph.Element) (string, bool) {
	if elem == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	tag, ok := r.byType[reflect.TypeOf(elem)]
	return tag, ok
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	tags := make([]string, 0, len(r.byTag))
	for tag := range r.byTag {
		tags = append(tags, tag)
	}
	r.mu.RUnlock()
	sort.Strings(tags)
	return tags
}

// Populate runs each registrar against r in order, stopping at the first failure.
func Populate(r *Registry, registrars ...Registrar) error {
	for _, reg := range registrars {
		if err := reg(r); err != nil {
			return err
		}
	}
	return nil
}
