package container

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateRegistration is returned when a key is already registered.
	ErrDuplicateRegistration = errors.New("component already registered")

	// ErrMissingHardDependency is returned when a hard dependency is not
	// fully registered at construction time.
	ErrMissingHardDependency = errors.New("missing hard dependency")

	// ErrScanFailure is returned when discovery does not complete.
	ErrScanFailure = errors.New("scan failed")

	// ErrLifecycleHookFailure wraps errors raised by construction, controllers
	// and lifecycle hooks.
	ErrLifecycleHookFailure = errors.New("lifecycle hook failed")

	// ErrInvalidTransition is returned for backwards state transitions.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotRegistered is returned when a key has no record.
	ErrNotRegistered = errors.New("component not registered")

	// ErrContainerClosed is returned for work submitted after Shutdown.
	ErrContainerClosed = errors.New("container is shut down")
)

// RegistrationError reports a component that could not be registered.
type RegistrationError struct {
	Key    Key
	Module string
	Err    error
}

func (e *RegistrationError) Error() string {
	if e.Module != "" {
		return fmt.Sprintf("register %s (module %s): %v", e.Key, e.Module, e.Err)
	}
	return fmt.Sprintf("register %s: %v", e.Key, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// HookError reports a failure inside construction, a controller or a
// lifecycle hook. It matches ErrLifecycleHookFailure as well as the
// underlying cause.
type HookError struct {
	Key        Key
	Phase      Phase
	Controller string
	Err        error
}

func (e *HookError) Error() string {
	if e.Controller != "" {
		return fmt.Sprintf("%s: controller %s on %s: %v", ErrLifecycleHookFailure, e.Controller, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %s on %s: %v", ErrLifecycleHookFailure, e.Phase, e.Key, e.Err)
}

func (e *HookError) Unwrap() []error {
	return []error{ErrLifecycleHookFailure, e.Err}
}

// ScanError reports a discovery failure for a boundary.
type ScanError struct {
	Boundary string
	Err      error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("%s: boundary %q: %v", ErrScanFailure, e.Boundary, e.Err)
}

func (e *ScanError) Unwrap() []error {
	return []error{ErrScanFailure, e.Err}
}
