// Package serialization defines the wire-format contract every transport
// uses to turn an EventContext into bytes and back, plus the default JSON
// implementation.
package serialization

import (
	"io"

	"github.com/xraph/eventbus/core"
)

// Serializer converts between a type-erased envelope and a byte stream. A
// concrete Serializer must produce a self-describing payload: Deserialize
// only receives back what Serialize wrote plus the declared content type.
type Serializer interface {
	// Serialize writes raw to w and returns the content type it wrote
	// (media type plus charset, e.g. "application/json; charset=utf-8").
	Serialize(w io.Writer, raw *core.RawContext, hostInfo core.HostInfo) (contentType string, err error)

	// Deserialize reconstructs the type-erased envelope from r, given the
	// content type it was published with. Missing fields decode to the
	// zero/absent value rather than erroring.
	Deserialize(r io.Reader, contentType string) (*core.RawContext, error)

	// Name identifies this serializer for registry.Overrides.Serializer
	// lookups and Freeze's InvalidSerializer validation.
	Name() string
}

// Registry resolves a serializer by name, falling back to a bus-wide
// default when a registration names none.
type Registry struct {
	byName  map[string]Serializer
	fallback string
}

// NewRegistry creates a serializer registry whose default is the serializer
// named defaultName; NewRegistry panics if that serializer isn't among ss,
// since a bus can never start without a working default.
func NewRegistry(defaultName string, ss ...Serializer) *Registry {
	r := &Registry{byName: make(map[string]Serializer, len(ss)), fallback: defaultName}
	for _, s := range ss {
		r.byName[s.Name()] = s
	}
	if _, ok := r.byName[defaultName]; !ok {
		panic("serialization: default serializer " + defaultName + " not registered")
	}
	return r
}

// Get resolves name, or the registry's default when name is empty.
func (r *Registry) Get(name string) (Serializer, bool) {
	if name == "" {
		name = r.fallback
	}
	s, ok := r.byName[name]
	return s, ok
}

// Default returns the registry's fallback serializer.
func (r *Registry) Default() Serializer {
	s := r.byName[r.fallback]
	return s
}
