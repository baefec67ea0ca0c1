package eventstream

import "context"

// Publisher publishes injection events to an event stream backend.
type Publisher interface {
	PublishInjection(ctx context.Context, event *InjectionEvent) error
	Close() error
}
