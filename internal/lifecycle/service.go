package lifecycle

import "context"

// Service is a long-lived process part started and stopped by the Manager:
// the tracing provider, the metrics server, the component container and the
// module host.
type Service interface {
	// Start brings the service up. ctx carries startup deadlines only.
	Start(ctx context.Context) error

	// Stop shuts the service down within the ctx deadline.
	Stop(ctx context.Context) error

	// Name identifies the service in logs and errors. Must be non-empty.
	Name() string
}
