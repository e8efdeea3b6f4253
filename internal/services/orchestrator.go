package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/models"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/platforms"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/storage"
	"github.com/google/uuid"
)

// DefaultChunkSize is the fixed transfer chunk size. Tunable via config,
// never content-dependent.
const DefaultChunkSize = 8 << 20 // 8 MiB

// PublishRequest is one publish intent. Reference ids are optional; when
// omitted the orchestrator auto-discovers them through Pairing.
type PublishRequest struct {
	OwnerID              string
	Platform             string
	PlatformAccountID    string
	VideoReferenceID     string
	ThumbnailReferenceID string
	Title                string
	Description          string
	Tags                 []string
	Privacy              string
	PlatformMetadata     map[string]string
}

// Orchestrator owns the per-publish state machine and drives the chunked
// transfer against a platform adapter. A given job is advanced by exactly
// one in-flight execution; every transition is a CAS in the job store.
type Orchestrator struct {
	refs          storage.ReferenceStore
	jobs          storage.UploadJobStore
	payloads      storage.PayloadStore
	pairing       *Pairing
	registry      *platforms.Registry
	chunkSize     int64
	uploadTimeout time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	// wg lets tests wait for background executions to settle.
	wg sync.WaitGroup
}

func NewOrchestrator(
	refs storage.ReferenceStore,
	jobs storage.UploadJobStore,
	payloads storage.PayloadStore,
	pairing *Pairing,
	registry *platforms.Registry,
	chunkSize int64,
	uploadTimeout time.Duration,
) *Orchestrator {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Orchestrator{
		refs:          refs,
		jobs:          jobs,
		payloads:      payloads,
		pairing:       pairing,
		registry:      registry,
		chunkSize:     chunkSize,
		uploadTimeout: uploadTimeout,
		cancels:       make(map[string]context.CancelFunc),
	}
}

// Publish records the job and starts driving it in the background. It
// returns quickly; all long-running outcomes are observed by polling the
// job. Requests for platforms without a registered adapter are rejected
// synchronously — no job is created for something we can never deliver.
func (o *Orchestrator) Publish(req PublishRequest) (models.UploadJob, error) {
	adapter, err := o.registry.Get(req.Platform)
	if err != nil {
		return models.UploadJob{}, err
	}

	job := models.UploadJob{
		ID:                uuid.New().String(),
		OwnerID:           req.OwnerID,
		Platform:          req.Platform,
		PlatformAccountID: req.PlatformAccountID,
		VideoReferenceID:  req.VideoReferenceID,
		ThumbReferenceID:  req.ThumbnailReferenceID,
		Title:             req.Title,
		Description:       req.Description,
		Tags:              req.Tags,
		Privacy:           req.Privacy,
		PlatformMetadata:  req.PlatformMetadata,
		Status:            models.UploadPending,
		CreatedAt:         time.Now().UTC(),
	}
	if err := o.jobs.CreateJob(&job); err != nil {
		return models.UploadJob{}, fmt.Errorf("failed to create upload job: %w", err)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(job.ID, adapter, req)
	}()

	return job, nil
}

// Job returns an owner-scoped job snapshot. A job owned by someone else is
// indistinguishable from a missing one.
func (o *Orchestrator) Job(id, ownerID string) (models.UploadJob, error) {
	job, err := o.jobs.GetJob(id)
	if err != nil {
		return models.UploadJob{}, err
	}
	if job.OwnerID != ownerID {
		return models.UploadJob{}, models.ErrNotFound
	}
	return job, nil
}

// Stats counts the owner's jobs per status for the stats endpoint.
func (o *Orchestrator) Stats(ownerID string) (map[models.UploadStatus]int, error) {
	return o.jobs.JobStats(ownerID)
}

// Cancel requests cancellation of a job. Before the transfer starts this
// fails the job outright without consuming any reference; once chunks are
// flowing it is best-effort, honored between chunks.
func (o *Orchestrator) Cancel(jobID string) error {
	o.mu.Lock()
	cancel, running := o.cancels[jobID]
	o.mu.Unlock()

	if running {
		cancel()
		return nil
	}

	// Not in flight: only a still-pending job can be cancelled here.
	job, err := o.jobs.GetJob(jobID)
	if err != nil {
		return err
	}
	if job.Status != models.UploadPending {
		return models.ErrConflict
	}
	return o.failJob(jobID, job.OwnerID, "cancelled by caller")
}

// Wait blocks until all in-flight executions have finished. Used by
// graceful shutdown and tests.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) registerCancel(jobID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[jobID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) releaseCancel(jobID string) {
	o.mu.Lock()
	delete(o.cancels, jobID)
	o.mu.Unlock()
}

// run drives one job from pending to a terminal state.
func (o *Orchestrator) run(jobID string, adapter platforms.Adapter, req PublishRequest) {
	var ctx context.Context
	var cancel context.CancelFunc
	if o.uploadTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), o.uploadTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	o.registerCancel(jobID, cancel)
	defer func() {
		o.releaseCancel(jobID)
		cancel()
	}()

	// Cancelled before anything was consumed: references stay pending.
	if ctx.Err() != nil {
		o.failJob(jobID, req.OwnerID, "cancelled before start")
		return
	}

	video, thumb, err := o.acquireReferences(req)
	if err != nil {
		o.failJob(jobID, req.OwnerID, err.Error())
		return
	}

	now := time.Now().UTC()
	if err := o.jobs.MarkUploading(jobID, video.Size, now); err != nil {
		// Another writer (or a pre-start cancel) won the CAS; references are
		// consumed but this execution must not double-drive the job.
		log.Printf("[UPLOAD] job %s not advanced to uploading: %v", jobID, err)
		return
	}
	o.publishStatus(jobID, req.OwnerID, models.UploadUploading, "")

	result, err := o.transfer(ctx, jobID, adapter, req, video, thumb)
	if err != nil {
		o.failJob(jobID, req.OwnerID, err.Error())
		return
	}

	if err := o.jobs.MarkCompleted(jobID, result.PostID, result.URL, time.Now().UTC()); err != nil {
		log.Printf("[UPLOAD] job %s could not be completed: %v", jobID, err)
		return
	}
	o.publishStatus(jobID, req.OwnerID, models.UploadCompleted, "")
	log.Printf("[UPLOAD] job %s completed: %s", jobID, result.URL)
}

// acquireReferences resolves and consumes the source references. Explicit
// ids fail the whole request on any race; auto-discovered ids retry pairing
// once before giving up with ReferenceUnavailable.
func (o *Orchestrator) acquireReferences(req PublishRequest) (models.FileReference, *models.FileReference, error) {
	if req.VideoReferenceID != "" {
		video, err := o.consume(req.VideoReferenceID, req.OwnerID)
		if err != nil {
			return models.FileReference{}, nil, models.ErrReferenceUnavailable
		}
		thumb, err := o.consumeThumbnail(req.ThumbnailReferenceID, req.OwnerID)
		if err != nil {
			return models.FileReference{}, nil, models.ErrReferenceUnavailable
		}
		return video, thumb, nil
	}

	for attempt := 0; attempt < 2; attempt++ {
		pair, err := o.pairing.Pair(req.OwnerID)
		if err != nil {
			return models.FileReference{}, nil, err
		}
		if pair.Video == nil {
			return models.FileReference{}, nil, models.ErrReferenceUnavailable
		}

		video, err := o.consume(pair.Video.ID, req.OwnerID)
		if err != nil {
			// Lost the race: the next pairing pass sees the next-latest
			// reference, or none.
			continue
		}

		var thumb *models.FileReference
		if pair.Thumbnail != nil {
			t, err := o.consume(pair.Thumbnail.ID, req.OwnerID)
			if err != nil {
				log.Printf("[UPLOAD] auto-paired thumbnail %s unavailable, continuing without", pair.Thumbnail.ID)
			} else {
				thumb = &t
			}
		}
		return video, thumb, nil
	}

	return models.FileReference{}, nil, models.ErrReferenceUnavailable
}

// consume is get + markUsed: the atomic hand-off that guarantees a staged
// payload feeds at most one upload.
func (o *Orchestrator) consume(id, ownerID string) (models.FileReference, error) {
	ref, err := o.refs.GetReference(id, ownerID)
	if err != nil {
		return models.FileReference{}, err
	}
	if err := o.refs.MarkUsed(id, ownerID); err != nil {
		return models.FileReference{}, err
	}
	if err := PublishEvent("references.consumed", map[string]interface{}{
		"reference_id": id,
		"owner_id":     ownerID,
	}); err != nil {
		log.Printf("warning: failed to publish references.consumed event: %v", err)
	}
	return ref, nil
}

func (o *Orchestrator) consumeThumbnail(id, ownerID string) (*models.FileReference, error) {
	if id == "" {
		return nil, nil
	}
	thumb, err := o.consume(id, ownerID)
	if err != nil {
		return nil, err
	}
	return &thumb, nil
}

// transfer streams the payload to the adapter in fixed-size chunks,
// persisting progress after each one. No store lock is held while a chunk
// is on the wire; progress writes are separate short updates.
func (o *Orchestrator) transfer(
	ctx context.Context,
	jobID string,
	adapter platforms.Adapter,
	req PublishRequest,
	video models.FileReference,
	thumb *models.FileReference,
) (platforms.PublishResult, error) {
	reader, _, err := o.payloads.GetPayload(ctx, video.ObjectName)
	if err != nil {
		return platforms.PublishResult{}, fmt.Errorf("failed to retrieve payload: %w", err)
	}
	defer reader.Close()

	session, err := adapter.Begin(ctx, platforms.UploadRequest{
		JobID:       jobID,
		AccountID:   req.PlatformAccountID,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		Privacy:     req.Privacy,
		Metadata:    req.PlatformMetadata,
		FileName:    video.FileName,
		MimeType:    video.MimeType,
		TotalBytes:  video.Size,
	})
	if err != nil {
		return platforms.PublishResult{}, &models.AdapterError{Platform: req.Platform, Op: "begin", Err: err}
	}

	var sent int64
	buf := make([]byte, o.chunkSize)
	for sent < video.Size {
		if err := ctx.Err(); err != nil {
			o.abort(session, req.Platform)
			return platforms.PublishResult{}, cancelReason(err)
		}

		n, readErr := io.ReadFull(reader, buf)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			o.abort(session, req.Platform)
			return platforms.PublishResult{}, fmt.Errorf("failed to read payload: %w", readErr)
		}
		if n == 0 {
			break
		}

		if err := session.SendChunk(ctx, buf[:n], sent); err != nil {
			o.abort(session, req.Platform)
			return platforms.PublishResult{}, &models.AdapterError{Platform: req.Platform, Op: "send chunk", Err: err}
		}

		sent += int64(n)
		if err := o.jobs.UpdateProgress(jobID, sent); err != nil {
			log.Printf("[UPLOAD] job %s progress update failed: %v", jobID, err)
		}
	}

	if thumb != nil {
		data, err := o.readPayload(ctx, thumb.ObjectName)
		if err != nil {
			log.Printf("[UPLOAD] job %s thumbnail payload unavailable: %v", jobID, err)
		} else if err := session.SetThumbnail(ctx, data, thumb.MimeType); err != nil {
			log.Printf("[UPLOAD] job %s thumbnail rejected by platform: %v", jobID, err)
		}
	}

	// All bytes acknowledged; the platform may still be transcoding.
	if err := o.jobs.MarkProcessing(jobID); err != nil {
		o.abort(session, req.Platform)
		return platforms.PublishResult{}, err
	}
	o.publishStatus(jobID, req.OwnerID, models.UploadProcessing, "")

	result, err := session.Finish(ctx)
	if err != nil {
		return platforms.PublishResult{}, &models.AdapterError{Platform: req.Platform, Op: "finish", Err: err}
	}
	return result, nil
}

func (o *Orchestrator) readPayload(ctx context.Context, objectName string) ([]byte, error) {
	rc, _, err := o.payloads.GetPayload(ctx, objectName)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (o *Orchestrator) abort(session platforms.Session, platform string) {
	// Partial platform-side state is the adapter's to clean up or ignore.
	if err := session.Abort(context.Background()); err != nil {
		log.Printf("[UPLOAD] abort on platform %s failed: %v", platform, err)
	}
}

func (o *Orchestrator) failJob(jobID, ownerID, reason string) error {
	if err := o.jobs.MarkFailed(jobID, reason, time.Now().UTC()); err != nil {
		log.Printf("[UPLOAD] job %s could not be failed (%s): %v", jobID, reason, err)
		return err
	}
	log.Printf("[UPLOAD] job %s failed: %s", jobID, reason)
	o.publishStatus(jobID, ownerID, models.UploadFailed, reason)
	return nil
}

func (o *Orchestrator) publishStatus(jobID, ownerID string, status models.UploadStatus, reason string) {
	event := map[string]interface{}{
		"upload_id": jobID,
		"owner_id":  ownerID,
		"status":    string(status),
	}
	if reason != "" {
		event["error"] = reason
	}
	if err := PublishEvent("uploads.status", event); err != nil {
		log.Printf("warning: failed to publish uploads.status event: %v", err)
	}
	NotifyOwner(ownerID, "uploads", event)
}

func cancelReason(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrTimeoutExceeded
	}
	return errors.New("cancelled by caller")
}
