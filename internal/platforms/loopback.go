package platforms

import (
	"context"
	"fmt"
	"sync"
)

// LoopbackAdapter accepts uploads without talking to any platform. It backs
// local development so the full staging -> publish flow can be exercised
// before real adapter deployments are wired in.
type LoopbackAdapter struct {
	platform string
}

func NewLoopbackAdapter(platform string) *LoopbackAdapter {
	return &LoopbackAdapter{platform: platform}
}

func (a *LoopbackAdapter) Platform() string { return a.platform }

func (a *LoopbackAdapter) Begin(_ context.Context, req UploadRequest) (Session, error) {
	return &loopbackSession{platform: a.platform, jobID: req.JobID, total: req.TotalBytes}, nil
}

type loopbackSession struct {
	mu       sync.Mutex
	platform string
	jobID    string
	total    int64
	received int64
	aborted  bool
}

func (s *loopbackSession) SendChunk(ctx context.Context, chunk []byte, offset int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		return fmt.Errorf("session aborted")
	}
	if offset != s.received {
		return fmt.Errorf("chunk out of order: offset %d, expected %d", offset, s.received)
	}
	s.received += int64(len(chunk))
	return nil
}

func (s *loopbackSession) SetThumbnail(ctx context.Context, _ []byte, _ string) error {
	return ctx.Err()
}

func (s *loopbackSession) Finish(ctx context.Context) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.received < s.total {
		return PublishResult{}, fmt.Errorf("incomplete transfer: %d of %d bytes", s.received, s.total)
	}
	postID := "loopback-" + s.jobID
	return PublishResult{
		PostID: postID,
		URL:    fmt.Sprintf("https://%s.invalid/posts/%s", s.platform, postID),
	}, nil
}

func (s *loopbackSession) Abort(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	return nil
}
