// Package module hosts extension modules: it builds module instances from
// the manifest through registered factories, enables them in the component
// container and keeps their status while the manifest changes.
package module

import (
	"context"
	"time"

	"github.com/moolen/hearth/internal/container"
)

// Module is a running extension module instance. Its components are
// discovered under Boundary and bound to Name.
type Module interface {
	container.Module

	// Metadata returns the identifying information of the instance
	Metadata() Metadata
}

// Contributor is implemented by modules that add descriptors of their own,
// typically settings built from the manifest config, to their boundary while
// they are enabled.
type Contributor interface {
	Contribute() ([]container.Descriptor, error)
}

// Host receives module signals. *container.Container implements it.
type Host interface {
	OnModuleEnable(ctx context.Context, m container.Module) error
	OnModuleDisable(ctx context.Context, m container.Module) error
}

// Metadata holds identifying information for a module instance.
type Metadata struct {
	// Name is the unique instance name from the manifest
	Name string

	// Type is the factory type, several instances may share it
	Type string

	// Version is the module implementation version (e.g., "1.0.0")
	Version string

	Description string
}

// Status is the host-side state of a module instance.
type Status int

const (
	// StatusLoaded means every component of the module is running
	StatusLoaded Status = iota

	// StatusFailed means the enable failed; components that did start stay
	// bound until the module is disabled
	StatusFailed

	// StatusDisabled means the manifest lists the module as disabled
	StatusDisabled
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	case StatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

var allStatuses = []string{StatusLoaded.String(), StatusFailed.String(), StatusDisabled.String()}

// Info is a serializable snapshot of a module instance.
type Info struct {
	Name     string    `yaml:"name" json:"name"`
	Type     string    `yaml:"type" json:"type"`
	Version  string    `yaml:"version,omitempty" json:"version,omitempty"`
	Boundary string    `yaml:"boundary,omitempty" json:"boundary,omitempty"`
	Status   string    `yaml:"status" json:"status"`
	Error    string    `yaml:"error,omitempty" json:"error,omitempty"`
	Session  string    `yaml:"session,omitempty" json:"session,omitempty"`
	Since    time.Time `yaml:"since" json:"since"`
}
