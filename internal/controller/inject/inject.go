// Package inject provides the field injection controller. Exported struct
// fields tagged `inject:""` are set from the container by field type before
// the component's PRE_INIT hook runs; `inject:"optional"` fields are left
// untouched when nothing is registered for their type.
//
//	type Service struct {
//	    Store  *metadata.Store     `inject:""`
//	    Events eventbus.Publisher  `inject:"optional"`
//	}
//
// Declare the same dependencies on the descriptor (container.Hard,
// container.Optional) so construction order and cascading follow them.
package inject

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/moolen/hearth/internal/container"
	"github.com/moolen/hearth/internal/logging"
)

const (
	tagName         = "inject"
	tagOptional     = "optional"
	DefaultPlanSize = 256
)

// Resolver looks up component instances. *container.Container implements it.
type Resolver interface {
	Get(key container.Key) (any, bool)
}

type target struct {
	name     string
	index    []int
	key      container.Key
	optional bool
}

// plan is the cached list of injectable fields of a struct type.
type plan struct {
	targets []target
	err     error
}

// Stats reports plan cache usage.
type Stats struct {
	Plans  int
	Hits   uint64
	Misses uint64
}

// Controller injects tagged fields.
type Controller struct {
	resolver Resolver
	plans    *lru.Cache[reflect.Type, *plan]
	hits     atomic.Uint64
	misses   atomic.Uint64
	logger   *logging.Logger
}

// New creates an injection controller with the default plan cache size.
func New(resolver Resolver) *Controller {
	c, err := NewWithSize(resolver, DefaultPlanSize)
	if err != nil {
		// only reachable with a non-positive size
		panic(err)
	}
	return c
}

// NewWithSize creates an injection controller caching up to size plans.
func NewWithSize(resolver Resolver, size int) (*Controller, error) {
	if size <= 0 {
		return nil, fmt.Errorf("plan cache size must be positive, got %d", size)
	}
	plans, err := lru.New[reflect.Type, *plan](size)
	if err != nil {
		return nil, err
	}
	return &Controller{
		resolver: resolver,
		plans:    plans,
		logger:   logging.GetLogger("controller.inject"),
	}, nil
}

// Name implements container.Controller.
func (c *Controller) Name() string {
	return "inject"
}

// Apply sets every tagged field of the instance.
func (c *Controller) Apply(_ context.Context, rec *container.Record) error {
	v, ok := structPointer(rec.Instance())
	if !ok {
		return nil
	}
	p := c.planFor(v.Type())
	if p.err != nil {
		return p.err
	}

	elem := v.Elem()
	for _, t := range p.targets {
		dep, found := c.resolver.Get(t.key)
		if !found {
			if t.optional {
				c.logger.Debug("Optional field %s.%s left empty: %s not registered", v.Type(), t.name, t.key)
				continue
			}
			return fmt.Errorf("field %s: %w: %s", t.name, container.ErrNotRegistered, t.key)
		}

		field := elem.FieldByIndex(t.index)
		dv := reflect.ValueOf(dep)
		if !dv.Type().AssignableTo(field.Type()) {
			return fmt.Errorf("field %s: %T is not assignable to %s", t.name, dep, field.Type())
		}
		field.Set(dv)
	}
	return nil
}

// Release zeroes the injected fields so a torn down component holds no
// references to other components.
func (c *Controller) Release(_ context.Context, rec *container.Record) error {
	v, ok := structPointer(rec.Instance())
	if !ok {
		return nil
	}
	p := c.planFor(v.Type())
	if p.err != nil {
		return nil
	}
	elem := v.Elem()
	for _, t := range p.targets {
		field := elem.FieldByIndex(t.index)
		field.Set(reflect.Zero(field.Type()))
	}
	return nil
}

// Stats returns cache statistics.
func (c *Controller) Stats() Stats {
	return Stats{Plans: c.plans.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func (c *Controller) planFor(t reflect.Type) *plan {
	if p, ok := c.plans.Get(t); ok {
		c.hits.Add(1)
		return p
	}
	c.misses.Add(1)
	p := buildPlan(t)
	c.plans.Add(t, p)
	return p
}

func buildPlan(t reflect.Type) *plan {
	st := t.Elem()
	p := &plan{}
	for i := 0; i < st.NumField(); i++ {
		sf := st.Field(i)
		tag, ok := sf.Tag.Lookup(tagName)
		if !ok {
			continue
		}
		if !sf.IsExported() {
			p.err = fmt.Errorf("field %s.%s is tagged %q but not exported", st, sf.Name, tagName)
			return p
		}
		var optional bool
		switch tag {
		case "":
		case tagOptional:
			optional = true
		default:
			p.err = fmt.Errorf("field %s.%s has unknown %s tag %q", st, sf.Name, tagName, tag)
			return p
		}
		p.targets = append(p.targets, target{
			name:     sf.Name,
			index:    sf.Index,
			key:      container.KeyOfType(sf.Type),
			optional: optional,
		})
	}
	return p
}

func structPointer(instance any) (reflect.Value, bool) {
	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	return v, true
}
