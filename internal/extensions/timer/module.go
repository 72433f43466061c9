// Package timer is an extension module providing a ticking scheduler and a
// heartbeat component. The scheduler starts in POST_INIT and stops in
// PRE_DESTROY.
//
//	modules:
//	  - name: heartbeat
//	    type: timer
//	    enabled: true
//	    config:
//	      resolution: 50ms
//	      heartbeat: 5s
package timer

import (
	"fmt"
	"time"

	"github.com/moolen/hearth/internal/container"
	"github.com/moolen/hearth/internal/discovery"
	"github.com/moolen/hearth/internal/eventbus"
	"github.com/moolen/hearth/internal/logging"
	"github.com/moolen/hearth/internal/module"
)

const (
	// ModuleType is the manifest type of the module
	ModuleType = "timer"

	// Boundary is where the timer components are discovered
	Boundary = "timer"

	Version = "1.1.0"

	DefaultResolution = 50 * time.Millisecond
	DefaultHeartbeat  = 5 * time.Second
)

func init() {
	logger := logging.GetLogger("extensions.timer")
	if err := module.RegisterFactory(ModuleType, NewModule); err != nil {
		logger.Warn("Failed to register timer factory: %v", err)
	}
	if err := discovery.Register(Boundary, "timer.components", Descriptors); err != nil {
		logger.Warn("Failed to register timer components: %v", err)
	}
}

// Settings configure the module's components. The module contributes them
// from its manifest config.
type Settings struct {
	// Resolution is the scheduler tick
	Resolution time.Duration

	// Heartbeat is the heartbeat interval, zero disables the heartbeat
	Heartbeat time.Duration

	// Module is the owning module instance name
	Module string
}

// Descriptors returns the components of the timer boundary.
func Descriptors() ([]container.Descriptor, error) {
	return []container.Descriptor{
		container.Provide(newScheduler, container.Hard[*Settings]()),
		container.Provide(newHeartbeat,
			container.Hard[*Scheduler](),
			container.Hard[*Settings](),
			container.Optional[*eventbus.Bus](),
		),
	}, nil
}

// Module is a timer module instance.
type Module struct {
	name     string
	settings Settings
}

// NewModule builds a timer module from its manifest config.
func NewModule(name string, config map[string]interface{}) (module.Module, error) {
	resolution, err := durationValue(config, "resolution", DefaultResolution)
	if err != nil {
		return nil, err
	}
	heartbeat, err := durationValue(config, "heartbeat", DefaultHeartbeat)
	if err != nil {
		return nil, err
	}
	if resolution <= 0 {
		return nil, fmt.Errorf("timer module %s: resolution must be positive", name)
	}
	if heartbeat < 0 {
		return nil, fmt.Errorf("timer module %s: heartbeat must not be negative", name)
	}

	return &Module{
		name:     name,
		settings: Settings{Resolution: resolution, Heartbeat: heartbeat, Module: name},
	}, nil
}

func durationValue(config map[string]interface{}, key string, def time.Duration) (time.Duration, error) {
	raw, ok := config[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("timer config %q: %w", key, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	default:
		return 0, fmt.Errorf("timer config %q: unsupported value %v", key, raw)
	}
}

func (m *Module) Name() string     { return m.name }
func (m *Module) Boundary() string { return Boundary }

func (m *Module) Metadata() module.Metadata {
	return module.Metadata{
		Name:        m.name,
		Type:        ModuleType,
		Version:     Version,
		Description: "Ticking scheduler and heartbeat",
	}
}

// Contribute supplies the module settings to the timer boundary.
func (m *Module) Contribute() ([]container.Descriptor, error) {
	settings := m.settings
	return []container.Descriptor{container.Supply(&settings)}, nil
}
