package platforms

import (
	"context"
	"fmt"
	"sync"
)

// PublishResult is what a platform hands back once a post exists.
type PublishResult struct {
	PostID string
	URL    string
}

// UploadRequest carries everything an adapter needs to open a transfer.
type UploadRequest struct {
	JobID       string
	AccountID   string
	Title       string
	Description string
	Tags        []string
	Privacy     string
	Metadata    map[string]string
	FileName    string
	MimeType    string
	TotalBytes  int64
}

// Session is one in-flight transfer to a platform. SendChunk is called with
// fixed-size pieces in order; Finish blocks until the platform's server-side
// processing is done and the post is addressable.
type Session interface {
	SendChunk(ctx context.Context, chunk []byte, offset int64) error
	SetThumbnail(ctx context.Context, data []byte, mimeType string) error
	Finish(ctx context.Context) (PublishResult, error)
	Abort(ctx context.Context) error
}

// Adapter performs the actual wire-level transfer to one platform. The
// concrete YouTube/Pinterest/Twitter clients live outside this service and
// register themselves at startup.
type Adapter interface {
	Platform() string
	Begin(ctx context.Context, req UploadRequest) (Session, error)
}

// Registry holds the adapters wired at startup, keyed by platform name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Platform()] = a
}

func (r *Registry) Get(platform string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for platform %q", platform)
	}
	return a, nil
}
