package container

import "context"

// Module is an extension unit whose components are discovered under its
// boundary and bound to its name.
type Module interface {
	Name() string
	Boundary() string
}

// Scanner discovers component descriptors under a boundary.
type Scanner interface {
	Scan(ctx context.Context, boundary string) *ScanFuture
}

// ScanResult is the outcome of a scan.
type ScanResult struct {
	Descriptors []Descriptor
	Err         error
}

// ScanFuture is a scan in progress.
type ScanFuture struct {
	done   chan struct{}
	result ScanResult
}

// NewScanFuture returns a pending scan and the function completing it. The
// completion function must be called exactly once.
func NewScanFuture() (*ScanFuture, func(ScanResult)) {
	f := &ScanFuture{done: make(chan struct{})}
	return f, func(res ScanResult) {
		f.result = res
		close(f.done)
	}
}

// CompletedScan returns an already finished scan.
func CompletedScan(res ScanResult) *ScanFuture {
	f, complete := NewScanFuture()
	complete(res)
	return f
}

// Wait blocks until the scan completes.
func (f *ScanFuture) Wait() ScanResult {
	<-f.done
	return f.result
}

// ScannerFunc adapts a function to Scanner.
type ScannerFunc func(ctx context.Context, boundary string) ([]Descriptor, error)

func (fn ScannerFunc) Scan(ctx context.Context, boundary string) *ScanFuture {
	descs, err := fn(ctx, boundary)
	return CompletedScan(ScanResult{Descriptors: descs, Err: err})
}
