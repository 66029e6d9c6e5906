package adapter

import (
	"fmt"

	"github.com/losesky/heatlink/internal/model"
)

// TypeFactory dispatches to one of several Constructors based on a
// descriptor's type (spec.md §4.4: "a factory consults the descriptor's
// type and instantiates the matching adapter class"). Callers wire the
// concrete jsonadapter/rssadapter/htmladapter constructors in; this
// package stays decoupled from those implementations.
type TypeFactory struct {
	byType map[model.SourceType]Constructor
}

// NewTypeFactory builds a TypeFactory from a type->constructor map.
func NewTypeFactory(byType map[model.SourceType]Constructor) *TypeFactory {
	cp := make(map[model.SourceType]Constructor, len(byType))
	for k, v := range byType {
		cp[k] = v
	}
	return &TypeFactory{byType: cp}
}

// Construct implements Constructor, routing to the registered constructor
// for desc.Type.
func (f *TypeFactory) Construct(desc model.SourceDescriptor) (Adapter, error) {
	ctor, ok := f.byType[desc.Type]
	if !ok {
		return nil, fmt.Errorf("adapter factory: no constructor registered for type %q", desc.Type)
	}
	return ctor(desc)
}
