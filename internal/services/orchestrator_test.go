package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/models"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/platforms"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/storage"
)

// fakeAdapter opens fakeSessions pre-armed with the adapter's failure knobs
// and records the last session so tests can inspect what reached the
// platform side.
type fakeAdapter struct {
	platform    string
	beginErr    error
	failAtChunk int // fail the Nth SendChunk (0-based); -1 disables
	finishErr   error
	blockChunks bool // park SendChunk on ctx.Done after signalling started
	started     chan struct{}

	mu      sync.Mutex
	session *fakeSession
}

func newFakeAdapter(platform string) *fakeAdapter {
	return &fakeAdapter{
		platform:    platform,
		failAtChunk: -1,
		started:     make(chan struct{}),
	}
}

func (a *fakeAdapter) Platform() string { return a.platform }

func (a *fakeAdapter) Begin(_ context.Context, req platforms.UploadRequest) (platforms.Session, error) {
	if a.beginErr != nil {
		return nil, a.beginErr
	}
	s := &fakeSession{
		jobID:       req.JobID,
		failAtChunk: a.failAtChunk,
		finishErr:   a.finishErr,
		block:       a.blockChunks,
		started:     a.started,
	}
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
	return s, nil
}

func (a *fakeAdapter) lastSession() *fakeSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

type fakeSession struct {
	jobID       string
	failAtChunk int
	finishErr   error
	block       bool
	started     chan struct{}
	once        sync.Once

	mu         sync.Mutex
	chunkSizes []int
	offsets    []int64
	thumbnail  []byte
	aborted    bool
}

func (s *fakeSession) SendChunk(ctx context.Context, chunk []byte, offset int64) error {
	if s.block {
		s.once.Do(func() { close(s.started) })
		<-ctx.Done()
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAtChunk >= 0 && len(s.chunkSizes) == s.failAtChunk {
		return errors.New("connection reset by platform")
	}
	s.chunkSizes = append(s.chunkSizes, len(chunk))
	s.offsets = append(s.offsets, offset)
	return nil
}

func (s *fakeSession) SetThumbnail(_ context.Context, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thumbnail = append([]byte(nil), data...)
	return nil
}

func (s *fakeSession) Finish(context.Context) (platforms.PublishResult, error) {
	if s.finishErr != nil {
		return platforms.PublishResult{}, s.finishErr
	}
	return platforms.PublishResult{
		PostID: "post-" + s.jobID,
		URL:    "https://fake.example/posts/" + s.jobID,
	}, nil
}

func (s *fakeSession) Abort(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	return nil
}

func (s *fakeSession) wasAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// racingRefs simulates losing the MarkUsed race once for a chosen id: the
// concurrent winner consumes the reference and this caller sees a conflict.
type racingRefs struct {
	storage.ReferenceStore
	mu      sync.Mutex
	stealID string
	stolen  bool
}

func (r *racingRefs) MarkUsed(id, ownerID string) error {
	r.mu.Lock()
	steal := !r.stolen && id == r.stealID
	if steal {
		r.stolen = true
	}
	r.mu.Unlock()

	if steal {
		if err := r.ReferenceStore.MarkUsed(id, ownerID); err != nil {
			return err
		}
		return models.ErrConflict
	}
	return r.ReferenceStore.MarkUsed(id, ownerID)
}

type orchestratorFixture struct {
	store   *storage.MemoryStore
	refs    storage.ReferenceStore
	staging *StagingService
	adapter *fakeAdapter
	orch    *Orchestrator
}

func newFixture(t *testing.T, refs storage.ReferenceStore, chunkSize int64, timeout time.Duration) *orchestratorFixture {
	t.Helper()
	store := storage.NewMemoryStore()
	if refs == nil {
		refs = store
	}
	adapter := newFakeAdapter("youtube")
	registry := platforms.NewRegistry()
	registry.Register(adapter)

	staging := NewStagingService(refs, store, platforms.DefaultRequirements)
	pairing := NewPairing(refs)
	orch := NewOrchestrator(refs, store, store, pairing, registry, chunkSize, timeout)

	return &orchestratorFixture{store: store, refs: refs, staging: staging, adapter: adapter, orch: orch}
}

func (f *orchestratorFixture) stage(t *testing.T, owner, name, mime string, role models.FileRole, payload []byte) models.FileReference {
	t.Helper()
	ref, err := f.staging.Stage(context.Background(), StageInput{
		OwnerID:      owner,
		FileName:     name,
		MimeType:     mime,
		DeclaredRole: role,
		Data:         payload,
	})
	if err != nil {
		t.Fatalf("stage %s: %v", name, err)
	}
	return ref
}

func TestPublishHappyPath(t *testing.T) {
	fx := newFixture(t, nil, 4, 0)
	ref := fx.stage(t, "user-1", "clip.mp4", "video/mp4", "", []byte("0123456789"))

	job, err := fx.orch.Publish(PublishRequest{
		OwnerID:          "user-1",
		Platform:         "youtube",
		VideoReferenceID: ref.ID,
		Title:            "my clip",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if job.Status != models.UploadPending {
		t.Errorf("expected pending at creation, got %s", job.Status)
	}
	fx.orch.Wait()

	got, err := fx.orch.Job(job.ID, "user-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != models.UploadCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.ErrorMessage)
	}
	if got.PlatformPostID == "" || got.PlatformURL == "" {
		t.Errorf("platform result not recorded: %+v", got)
	}
	if got.BytesUploaded != 10 || got.TotalBytes != 10 {
		t.Errorf("expected 10/10 bytes, got %d/%d", got.BytesUploaded, got.TotalBytes)
	}
	if got.ProgressPercent() != 100 {
		t.Errorf("expected 100%%, got %d%%", got.ProgressPercent())
	}

	session := fx.adapter.lastSession()
	if session == nil {
		t.Fatal("adapter never opened a session")
	}
	wantSizes := []int{4, 4, 2}
	if len(session.chunkSizes) != len(wantSizes) {
		t.Fatalf("expected chunk sizes %v, got %v", wantSizes, session.chunkSizes)
	}
	var offset int64
	for i, size := range wantSizes {
		if session.chunkSizes[i] != size {
			t.Errorf("chunk %d: expected size %d, got %d", i, size, session.chunkSizes[i])
		}
		if session.offsets[i] != offset {
			t.Errorf("chunk %d: expected offset %d, got %d", i, offset, session.offsets[i])
		}
		offset += int64(size)
	}

	// The consumed reference still exists but cannot be consumed again.
	if err := fx.refs.MarkUsed(ref.ID, "user-1"); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected reference consumed exactly once, got %v", err)
	}
}

func TestPublishWithThumbnail(t *testing.T) {
	fx := newFixture(t, nil, 4, 0)
	video := fx.stage(t, "user-1", "clip.mp4", "video/mp4", "", []byte("video data"))
	thumb := fx.stage(t, "user-1", "thumb.jpg", "image/jpeg", models.RoleThumbnail, []byte("jpeg data"))

	job, err := fx.orch.Publish(PublishRequest{
		OwnerID:              "user-1",
		Platform:             "youtube",
		VideoReferenceID:     video.ID,
		ThumbnailReferenceID: thumb.ID,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	fx.orch.Wait()

	got, _ := fx.orch.Job(job.ID, "user-1")
	if got.Status != models.UploadCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.ErrorMessage)
	}

	session := fx.adapter.lastSession()
	if string(session.thumbnail) != "jpeg data" {
		t.Errorf("thumbnail payload did not reach the platform: %q", session.thumbnail)
	}
	if err := fx.refs.MarkUsed(thumb.ID, "user-1"); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected thumbnail consumed, got %v", err)
	}
}

func TestPublishAutoPairing(t *testing.T) {
	fx := newFixture(t, nil, 4, 0)
	fx.stage(t, "user-1", "clip.mp4", "video/mp4", "", []byte("video data"))
	fx.stage(t, "user-1", "thumb.jpg", "image/jpeg", models.RoleThumbnail, []byte("jpeg data"))

	job, err := fx.orch.Publish(PublishRequest{
		OwnerID:  "user-1",
		Platform: "youtube",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	fx.orch.Wait()

	got, _ := fx.orch.Job(job.ID, "user-1")
	if got.Status != models.UploadCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.ErrorMessage)
	}
	session := fx.adapter.lastSession()
	if string(session.thumbnail) != "jpeg data" {
		t.Errorf("auto-paired thumbnail missing: %q", session.thumbnail)
	}
}

func TestPublishAutoPairingRetriesLostRace(t *testing.T) {
	store := storage.NewMemoryStore()
	racing := &racingRefs{ReferenceStore: store}
	fx := newFixture(t, racing, 4, 0)

	older := fx.stage(t, "user-1", "older.mp4", "video/mp4", "", []byte("older video"))
	// Recency needs distinct CreatedAt; staging stamps time.Now so nudge it.
	time.Sleep(2 * time.Millisecond)
	newer := fx.stage(t, "user-1", "newer.mp4", "video/mp4", "", []byte("newer video"))
	racing.stealID = newer.ID

	job, err := fx.orch.Publish(PublishRequest{
		OwnerID:  "user-1",
		Platform: "youtube",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	fx.orch.Wait()

	got, _ := fx.orch.Job(job.ID, "user-1")
	if got.Status != models.UploadCompleted {
		t.Fatalf("expected retry to succeed, got %s (%s)", got.Status, got.ErrorMessage)
	}
	if got.TotalBytes != int64(len("older video")) {
		t.Errorf("expected fallback to the older video, got %d total bytes", got.TotalBytes)
	}
	if err := store.MarkUsed(older.ID, "user-1"); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected older video consumed, got %v", err)
	}
}

func TestPublishNoAdapter(t *testing.T) {
	fx := newFixture(t, nil, 4, 0)
	ref := fx.stage(t, "user-1", "clip.mp4", "video/mp4", "", []byte("video data"))

	_, err := fx.orch.Publish(PublishRequest{
		OwnerID:          "user-1",
		Platform:         "myspace",
		VideoReferenceID: ref.ID,
	})
	if err == nil {
		t.Fatal("expected error for unregistered platform")
	}

	// Rejected synchronously: nothing was consumed.
	if _, err := fx.refs.GetReference(ref.ID, "user-1"); err != nil {
		t.Errorf("reference should remain pending: %v", err)
	}
}

func TestPublishExpiredReference(t *testing.T) {
	fx := newFixture(t, nil, 4, 0)

	expired := models.FileReference{
		ID:         "00000000000000000000000000000001",
		OwnerID:    "user-1",
		Role:       models.RoleVideo,
		ObjectName: "00000000000000000000000000000001",
		Size:       10,
		MimeType:   "video/mp4",
		FileName:   "stale.mp4",
		Status:     models.ReferencePending,
		CreatedAt:  time.Now().Add(-48 * time.Hour),
		ExpiresAt:  time.Now().Add(-24 * time.Hour),
	}
	if err := fx.store.CreateReference(&expired); err != nil {
		t.Fatalf("create: %v", err)
	}

	job, err := fx.orch.Publish(PublishRequest{
		OwnerID:          "user-1",
		Platform:         "youtube",
		VideoReferenceID: expired.ID,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	fx.orch.Wait()

	got, _ := fx.orch.Job(job.ID, "user-1")
	if got.Status != models.UploadFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.ErrorMessage != models.ErrReferenceUnavailable.Error() {
		t.Errorf("expected %q, got %q", models.ErrReferenceUnavailable.Error(), got.ErrorMessage)
	}
}

func TestPublishAdapterFailureMidTransfer(t *testing.T) {
	fx := newFixture(t, nil, 4, 0)
	ref := fx.stage(t, "user-1", "clip.mp4", "video/mp4", "", []byte("0123456789"))
	fx.adapter.failAtChunk = 1

	job, err := fx.orch.Publish(PublishRequest{
		OwnerID:          "user-1",
		Platform:         "youtube",
		VideoReferenceID: ref.ID,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	fx.orch.Wait()

	got, _ := fx.orch.Job(job.ID, "user-1")
	if got.Status != models.UploadFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "connection reset by platform") {
		t.Errorf("adapter error not recorded: %q", got.ErrorMessage)
	}
	if got.CompletedAt == nil {
		t.Error("failure timestamp not recorded")
	}

	// First chunk landed before the failure; progress reflects it.
	if got.BytesUploaded != 4 {
		t.Errorf("expected 4 bytes recorded, got %d", got.BytesUploaded)
	}

	if !fx.adapter.lastSession().wasAborted() {
		t.Error("expected session abort after chunk failure")
	}

	// The reference stays consumed; retrying the same job requires restaging.
	if err := fx.refs.MarkUsed(ref.ID, "user-1"); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected reference to stay consumed, got %v", err)
	}
}

func TestPublishBeginFailure(t *testing.T) {
	fx := newFixture(t, nil, 4, 0)
	ref := fx.stage(t, "user-1", "clip.mp4", "video/mp4", "", []byte("video data"))
	fx.adapter.beginErr = errors.New("platform credentials rejected")

	job, err := fx.orch.Publish(PublishRequest{
		OwnerID:          "user-1",
		Platform:         "youtube",
		VideoReferenceID: ref.ID,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	fx.orch.Wait()

	got, _ := fx.orch.Job(job.ID, "user-1")
	if got.Status != models.UploadFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "platform credentials rejected") {
		t.Errorf("begin error not recorded: %q", got.ErrorMessage)
	}
}

func TestCancelMidTransfer(t *testing.T) {
	fx := newFixture(t, nil, 4, 0)
	ref := fx.stage(t, "user-1", "clip.mp4", "video/mp4", "", []byte("0123456789"))
	fx.adapter.blockChunks = true

	job, err := fx.orch.Publish(PublishRequest{
		OwnerID:          "user-1",
		Platform:         "youtube",
		VideoReferenceID: ref.ID,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-fx.adapter.started:
	case <-time.After(2 * time.Second):
		t.Fatal("transfer never started")
	}

	if err := fx.orch.Cancel(job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	fx.orch.Wait()

	got, _ := fx.orch.Job(job.ID, "user-1")
	if got.Status != models.UploadFailed {
		t.Fatalf("expected failed after cancel, got %s", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("expected a cancellation reason on the job")
	}

	// Cancellation after consumption does not resurrect the reference.
	if err := fx.refs.MarkUsed(ref.ID, "user-1"); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected reference to stay consumed, got %v", err)
	}
}

func TestCancelPendingJob(t *testing.T) {
	fx := newFixture(t, nil, 4, 0)

	job := models.UploadJob{
		ID:        "11111111-1111-1111-1111-111111111111",
		OwnerID:   "user-1",
		Platform:  "youtube",
		Status:    models.UploadPending,
		CreatedAt: time.Now(),
	}
	if err := fx.store.CreateJob(&job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := fx.orch.Cancel(job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := fx.orch.Job(job.ID, "user-1")
	if got.Status != models.UploadFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.ErrorMessage != "cancelled by caller" {
		t.Errorf("unexpected reason: %q", got.ErrorMessage)
	}
}

func TestCancelTerminalJob(t *testing.T) {
	fx := newFixture(t, nil, 4, 0)

	job := models.UploadJob{
		ID:        "22222222-2222-2222-2222-222222222222",
		OwnerID:   "user-1",
		Platform:  "youtube",
		Status:    models.UploadPending,
		CreatedAt: time.Now(),
	}
	if err := fx.store.CreateJob(&job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := fx.store.MarkFailed(job.ID, "boom", time.Now()); err != nil {
		t.Fatalf("fail: %v", err)
	}

	if err := fx.orch.Cancel(job.ID); !errors.Is(err, models.ErrConflict) {
		t.Errorf("expected ErrConflict cancelling a terminal job, got %v", err)
	}
}

func TestPublishTimeout(t *testing.T) {
	fx := newFixture(t, nil, 4, 50*time.Millisecond)
	ref := fx.stage(t, "user-1", "clip.mp4", "video/mp4", "", []byte("0123456789"))
	fx.adapter.blockChunks = true

	job, err := fx.orch.Publish(PublishRequest{
		OwnerID:          "user-1",
		Platform:         "youtube",
		VideoReferenceID: ref.ID,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	fx.orch.Wait()

	got, _ := fx.orch.Job(job.ID, "user-1")
	if got.Status != models.UploadFailed {
		t.Fatalf("expected failed after timeout, got %s", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("expected a timeout reason on the job")
	}
}

func TestPublishNothingStaged(t *testing.T) {
	fx := newFixture(t, nil, 4, 0)

	job, err := fx.orch.Publish(PublishRequest{
		OwnerID:  "user-1",
		Platform: "youtube",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	fx.orch.Wait()

	got, _ := fx.orch.Job(job.ID, "user-1")
	if got.Status != models.UploadFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.ErrorMessage != models.ErrReferenceUnavailable.Error() {
		t.Errorf("expected %q, got %q", models.ErrReferenceUnavailable.Error(), got.ErrorMessage)
	}
}

func TestJobOwnerScoping(t *testing.T) {
	fx := newFixture(t, nil, 4, 0)
	ref := fx.stage(t, "user-1", "clip.mp4", "video/mp4", "", []byte("video data"))

	job, err := fx.orch.Publish(PublishRequest{
		OwnerID:          "user-1",
		Platform:         "youtube",
		VideoReferenceID: ref.ID,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	fx.orch.Wait()

	if _, err := fx.orch.Job(job.ID, "user-2"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign owner, got %v", err)
	}
}
