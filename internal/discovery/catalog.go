// Package discovery implements the container's scanner over an explicit
// catalog of descriptor providers. Packages register providers for a
// boundary from init(), the way integration factories are registered:
//
//	func init() {
//	    if err := discovery.Register("timer", "timer.service", provide); err != nil {
//	        logging.GetLogger("extensions.timer").Warn("register provider: %v", err)
//	    }
//	}
//
// Scanning a boundary runs its providers and concatenates their descriptors
// in registration order.
package discovery

import (
	"fmt"
	"sort"
	"sync"

	"github.com/moolen/hearth/internal/container"
)

// Provider returns the descriptors of one package for a boundary.
type Provider func() ([]container.Descriptor, error)

type entry struct {
	name     string
	provider Provider
}

// Catalog maps boundaries to their providers.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string][]entry
}

var defaultCatalog = NewCatalog()

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string][]entry)}
}

// Default returns the process-wide catalog filled by init() registrations.
func Default() *Catalog {
	return defaultCatalog
}

// Register adds a provider under boundary. Names are unique per boundary.
func (c *Catalog) Register(boundary, name string, p Provider) error {
	if boundary == "" {
		return fmt.Errorf("boundary cannot be empty")
	}
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if p == nil {
		return fmt.Errorf("provider %q is nil", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries[boundary] {
		if e.name == name {
			return fmt.Errorf("provider %q is already registered for boundary %q", name, boundary)
		}
	}
	c.entries[boundary] = append(c.entries[boundary], entry{name: name, provider: p})
	return nil
}

// Clone returns an independent catalog holding the same providers.
func (c *Catalog) Clone() *Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := NewCatalog()
	for boundary, entries := range c.entries {
		out.entries[boundary] = append([]entry(nil), entries...)
	}
	return out
}

// Unregister removes the named provider from boundary. It reports whether
// the provider was present.
func (c *Catalog) Unregister(boundary, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.entries[boundary]
	for i, e := range entries {
		if e.name != name {
			continue
		}
		entries = append(entries[:i:i], entries[i+1:]...)
		if len(entries) == 0 {
			delete(c.entries, boundary)
		} else {
			c.entries[boundary] = entries
		}
		return true
	}
	return false
}

// Descriptors registers a provider returning fixed descriptors.
func (c *Catalog) Descriptors(boundary, name string, descs ...container.Descriptor) error {
	return c.Register(boundary, name, func() ([]container.Descriptor, error) {
		return descs, nil
	})
}

// Boundaries returns every boundary with at least one provider, sorted.
func (c *Catalog) Boundaries() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for b := range c.entries {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Providers returns the provider names of boundary in registration order.
func (c *Catalog) Providers(boundary string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries[boundary]))
	for _, e := range c.entries[boundary] {
		out = append(out, e.name)
	}
	return out
}

func (c *Catalog) snapshot(boundary string) []entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]entry(nil), c.entries[boundary]...)
}

// Register adds a provider to the default catalog.
func Register(boundary, name string, p Provider) error {
	return defaultCatalog.Register(boundary, name, p)
}
