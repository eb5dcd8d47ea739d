package media_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/eteran/gallery/internal/media"
)

type memEntry struct {
	meta media.Metadata
	buf  bytes.Buffer
}

// memRegistry is an in-memory media.Registry with switchable failures.
type memRegistry struct {
	mu        sync.Mutex
	seq       int
	pending   map[string]*memEntry
	published map[string]*memEntry

	refuse     bool
	allocErr   error
	openErr    error
	publishErr error

	allocations int
	discards    int
}

func newMemRegistry() *memRegistry {
	return &memRegistry{
		pending:   map[string]*memEntry{},
		published: map[string]*memEntry{},
	}
}

func (r *memRegistry) Allocate(_ context.Context, meta media.Metadata) (media.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.allocations++
	if r.allocErr != nil {
		return media.Handle{}, r.allocErr
	}
	if r.refuse {
		return media.Handle{}, nil
	}

	r.seq++
	id := fmt.Sprintf("mem-%d", r.seq)
	r.pending[id] = &memEntry{meta: meta}
	return media.Handle{ID: id, Key: meta.RelativePath + "/" + meta.DisplayName}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (r *memRegistry) Open(_ context.Context, h media.Handle) (io.WriteCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.openErr != nil {
		return nil, r.openErr
	}
	e, ok := r.pending[h.ID]
	if !ok {
		return nil, errors.New("no such pending entry")
	}
	return nopWriteCloser{&e.buf}, nil
}

func (r *memRegistry) Publish(_ context.Context, h media.Handle) (media.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.publishErr != nil {
		return media.Location{}, r.publishErr
	}
	e, ok := r.pending[h.ID]
	if !ok {
		return media.Location{}, errors.New("no such pending entry")
	}
	delete(r.pending, h.ID)
	r.published[h.ID] = e
	return media.Location{ID: h.ID, URI: "mem://" + h.Key}, nil
}

func (r *memRegistry) Discard(_ context.Context, h media.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.discards++
	delete(r.pending, h.ID)
	return nil
}

func (r *memRegistry) payload(id string) ([]byte, media.Metadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.published[id]
	if !ok {
		return nil, media.Metadata{}, false
	}
	return bytes.Clone(e.buf.Bytes()), e.meta, true
}

func (r *memRegistry) counts() (published, pending int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published), len(r.pending)
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []media.Notice
}

func (n *recordingNotifier) Notify(_ context.Context, notice media.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) all() []media.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]media.Notice(nil), n.notices...)
}
