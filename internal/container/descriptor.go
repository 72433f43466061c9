package container

import (
	"errors"
	"fmt"
)

// Policy controls what happens when a declared dependency is missing at
// construction time.
type Policy int

const (
	// DependencyHard aborts registration with ErrMissingHardDependency.
	DependencyHard Policy = iota
	// DependencySoft skips the component silently.
	DependencySoft
	// DependencyOptional registers the component anyway. Optional
	// dependencies create no cascade edge.
	DependencyOptional
)

func (p Policy) String() string {
	switch p {
	case DependencyHard:
		return "hard"
	case DependencySoft:
		return "soft"
	case DependencyOptional:
		return "optional"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Dependency is a declared requirement on another component.
type Dependency struct {
	Key    Key
	Policy Policy
}

// Hard declares a hard dependency on T.
func Hard[T any]() Dependency {
	return Dependency{Key: KeyOf[T](), Policy: DependencyHard}
}

// Soft declares a soft dependency on T.
func Soft[T any]() Dependency {
	return Dependency{Key: KeyOf[T](), Policy: DependencySoft}
}

// Optional declares an optional dependency on T.
func Optional[T any]() Dependency {
	return Dependency{Key: KeyOf[T](), Policy: DependencyOptional}
}

// Descriptor describes one component a scan produced or a host registers
// directly. Exactly one of New and Instance is set.
type Descriptor struct {
	Key          Key
	New          func() (any, error)
	Instance     any
	Dependencies []Dependency
}

// Provide describes a component of type T built by fn.
//
//	container.Provide(timer.NewService, container.Hard[*metadata.Store]())
func Provide[T any](fn func() (T, error), deps ...Dependency) Descriptor {
	return Descriptor{
		Key: KeyOf[T](),
		New: func() (any, error) {
			v, err := fn()
			if err != nil {
				return nil, err
			}
			return v, nil
		},
		Dependencies: deps,
	}
}

// Supply describes an already constructed instance keyed by its dynamic type.
func Supply(instance any, deps ...Dependency) Descriptor {
	return Descriptor{Key: KeyFor(instance), Instance: instance, Dependencies: deps}
}

// SupplyAs describes an already constructed instance keyed by T, typically an
// interface the instance implements.
func SupplyAs[T any](instance T, deps ...Dependency) Descriptor {
	return Descriptor{Key: KeyOf[T](), Instance: instance, Dependencies: deps}
}

// Validate checks the descriptor is usable.
func (d Descriptor) Validate() error {
	if d.Key.IsZero() {
		return errors.New("descriptor has no key")
	}
	if d.New == nil && d.Instance == nil {
		return fmt.Errorf("descriptor %s has neither constructor nor instance", d.Key)
	}
	if d.New != nil && d.Instance != nil {
		return fmt.Errorf("descriptor %s has both constructor and instance", d.Key)
	}
	for _, dep := range d.Dependencies {
		if dep.Key.IsZero() {
			return fmt.Errorf("descriptor %s declares a dependency without key", d.Key)
		}
		if dep.Key == d.Key {
			return fmt.Errorf("descriptor %s depends on itself", d.Key)
		}
	}
	return nil
}

// construct returns the component instance, calling New when needed. Panics
// in the constructor are reported as errors.
func (d Descriptor) construct() (instance any, err error) {
	if d.Instance != nil {
		instance = d.Instance
	} else {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("constructor panicked: %v", r)
			}
		}()
		instance, err = d.New()
		if err != nil {
			return nil, err
		}
	}
	if instance == nil {
		return nil, errors.New("constructor returned nil")
	}
	if !d.Key.accepts(instance) {
		return nil, fmt.Errorf("instance of type %T cannot be stored under %s", instance, d.Key)
	}
	return instance, nil
}
