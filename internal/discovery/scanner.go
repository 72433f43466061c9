package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/moolen/hearth/internal/container"
	"github.com/moolen/hearth/internal/logging"
	"golang.org/x/sync/errgroup"
)

// Scanner runs catalog providers. It implements container.Scanner.
type Scanner struct {
	catalog *Catalog
	inline  bool
	logger  *logging.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithInline runs providers sequentially on the calling goroutine and
// returns an already completed future.
func WithInline(inline bool) Option {
	return func(s *Scanner) { s.inline = inline }
}

// NewScanner creates a scanner over catalog.
func NewScanner(catalog *Catalog, opts ...Option) *Scanner {
	s := &Scanner{
		catalog: catalog,
		logger:  logging.GetLogger("discovery"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan runs every provider of boundary. Descriptors keep provider
// registration order. The first provider error fails the whole scan.
func (s *Scanner) Scan(ctx context.Context, boundary string) *container.ScanFuture {
	future, complete := container.NewScanFuture()
	entries := s.catalog.snapshot(boundary)

	if s.inline {
		complete(s.run(ctx, boundary, entries))
		return future
	}
	go func() {
		complete(s.run(ctx, boundary, entries))
	}()
	return future
}

func (s *Scanner) run(ctx context.Context, boundary string, entries []entry) container.ScanResult {
	start := time.Now()
	results := make([][]container.Descriptor, len(entries))

	var g errgroup.Group
	if s.inline {
		g.SetLimit(1)
	}
	for i, e := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			descs, err := callProvider(e.provider)
			if err != nil {
				return fmt.Errorf("provider %s: %w", e.name, err)
			}
			results[i] = descs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("Scan of boundary %s failed: %v", boundary, err)
		return container.ScanResult{Err: err}
	}

	var out []container.Descriptor
	for _, descs := range results {
		out = append(out, descs...)
	}
	s.logger.Debug("Scanned boundary %s: %d providers, %d descriptors (took %dms)",
		boundary, len(entries), len(out), time.Since(start).Milliseconds())
	return container.ScanResult{Descriptors: out}
}

func callProvider(p Provider) (descs []container.Descriptor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p()
}
