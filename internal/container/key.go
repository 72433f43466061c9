package container

import "reflect"

// Key identifies a managed component by its Go type. Interface keys are the
// interface type itself, so a component can be registered under the
// abstraction its dependents ask for.
type Key struct {
	typ reflect.Type
}

// KeyOf returns the key of T.
//
//	container.KeyOf[*timer.Service]()
//	container.KeyOf[eventbus.Publisher]() // interface key
func KeyOf[T any]() Key {
	return Key{typ: reflect.TypeOf((*T)(nil)).Elem()}
}

// KeyFor returns the key of the dynamic type of v. A nil v yields the zero key.
func KeyFor(v any) Key {
	if v == nil {
		return Key{}
	}
	return Key{typ: reflect.TypeOf(v)}
}

// KeyOfType returns the key of t.
func KeyOfType(t reflect.Type) Key {
	return Key{typ: t}
}

// Type returns the underlying reflect.Type, nil for the zero key.
func (k Key) Type() reflect.Type {
	return k.typ
}

// IsZero reports whether k identifies no type.
func (k Key) IsZero() bool {
	return k.typ == nil
}

func (k Key) String() string {
	if k.typ == nil {
		return "<nil>"
	}
	return k.typ.String()
}

// accepts reports whether an instance can be stored under k.
func (k Key) accepts(instance any) bool {
	if k.typ == nil || instance == nil {
		return false
	}
	return reflect.TypeOf(instance).AssignableTo(k.typ)
}
