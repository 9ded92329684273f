package script

import (
	"context"
	"fmt"

	"github.com/psaab/bessctl/pkg/cmdtree"
	"github.com/psaab/bessctl/pkg/engine"
)

// Kind tells what a constructor builds.
type Kind int

const (
	PortConstructor Kind = iota
	ModuleConstructor
)

func (k Kind) String() string {
	if k == PortConstructor {
		return "port"
	}
	return "module"
}

// Constructor is one callable class name.
type Constructor struct {
	Class string
	Kind  Kind
}

// reserved names can be neither classes nor entity names.
var reserved = []string{failFunc, "engine"}

// Namespace maps class names to constructors. It is built once per run
// from the engine's drivers and module classes.
type Namespace struct {
	ctors map[string]Constructor
}

// NewNamespace registers one constructor per driver and per module
// class. A class name that collides with another class or a reserved
// name is an internal error.
func NewNamespace(drivers, classes []string) (*Namespace, error) {
	ns := &Namespace{ctors: make(map[string]Constructor, len(drivers)+len(classes))}
	taken := make(map[string]bool, len(reserved))
	for _, r := range reserved {
		taken[r] = true
	}
	add := func(name string, kind Kind) error {
		if taken[name] {
			return &cmdtree.InternalError{Msg: fmt.Sprintf("invalid %s class name: %s", kind, name)}
		}
		taken[name] = true
		ns.ctors[name] = Constructor{Class: name, Kind: kind}
		return nil
	}
	for _, d := range drivers {
		if err := add(d, PortConstructor); err != nil {
			return nil, err
		}
	}
	for _, c := range classes {
		if err := add(c, ModuleConstructor); err != nil {
			return nil, err
		}
	}
	return ns, nil
}

// LoadNamespace builds a Namespace from e's current listings.
func LoadNamespace(ctx context.Context, e engine.Engine) (*Namespace, error) {
	drivers, err := e.ListDrivers(ctx)
	if err != nil {
		return nil, err
	}
	classes, err := e.ListModuleClasses(ctx)
	if err != nil {
		return nil, err
	}
	return NewNamespace(drivers, classes)
}

// Lookup returns the constructor for class.
func (ns *Namespace) Lookup(class string) (Constructor, bool) {
	c, ok := ns.ctors[class]
	return c, ok
}

// Taken reports whether name is a class or reserved name.
func (ns *Namespace) Taken(name string) bool {
	if _, ok := ns.ctors[name]; ok {
		return true
	}
	for _, r := range reserved {
		if r == name {
			return true
		}
	}
	return false
}
