package media

import (
	"context"
	"io"
)

// Registry is the shared media index that assets are persisted into.
type Registry interface {
	// Allocate reserves a pending entry described by meta. Pending entries
	// are not visible to catalog queries until they are published.
	Allocate(ctx context.Context, meta Metadata) (Handle, error)

	// Open returns a writable stream for the payload of a pending entry.
	Open(ctx context.Context, h Handle) (io.WriteCloser, error)

	// Publish makes a pending entry visible and returns where it lives.
	Publish(ctx context.Context, h Handle) (Location, error)

	// Discard drops a pending entry and any bytes written to it. It must
	// never affect an entry that has already been published.
	Discard(ctx context.Context, h Handle) error
}

// Notice is a short user-facing message about a save.
type Notice struct {
	Kind    Kind
	Message string
	Err     error
}

// Notifier shows notices to the end user.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notice) {}
