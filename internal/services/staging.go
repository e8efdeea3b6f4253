package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/models"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/platforms"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/storage"
)

// StagingService creates and discards staged references. It classifies the
// file, snapshots platform compatibility, writes the payload to the blob
// store and the metadata row next to it.
type StagingService struct {
	refs     storage.ReferenceStore
	payloads storage.PayloadStore
	reqs     []platforms.Requirement
}

func NewStagingService(refs storage.ReferenceStore, payloads storage.PayloadStore, reqs []platforms.Requirement) *StagingService {
	return &StagingService{refs: refs, payloads: payloads, reqs: reqs}
}

// StageInput is one file to stage. Duration and dimensions are optional
// probe results; zero means unknown.
type StageInput struct {
	OwnerID          string
	FileName         string
	MimeType         string
	DeclaredRole     models.FileRole
	IntendedPlatform string
	Data             []byte
	DurationSeconds  int
	Width            int
	Height           int
}

// Stage validates and persists one file, returning the capability-bearing
// reference. Validation errors are rejected synchronously and nothing is
// stored.
func (s *StagingService) Stage(ctx context.Context, in StageInput) (models.FileReference, error) {
	role, err := models.ClassifyRole(in.MimeType, in.DeclaredRole)
	if err != nil {
		return models.FileReference{}, err
	}

	meta := platforms.FileMeta{
		Role:            role,
		MimeType:        in.MimeType,
		Size:            int64(len(in.Data)),
		DurationSeconds: in.DurationSeconds,
		Width:           in.Width,
		Height:          in.Height,
	}

	// Incompatibility is advisory, but a file no platform can take at all
	// is rejected outright.
	if platforms.ExceedsAllSizeLimits(meta, s.reqs) {
		return models.FileReference{}, models.ErrFileTooLarge
	}
	detected := platforms.DetectedPlatforms(meta, s.reqs)

	id, err := models.NewReferenceID()
	if err != nil {
		return models.FileReference{}, fmt.Errorf("failed to generate reference id: %w", err)
	}

	now := time.Now().UTC()
	ref := models.FileReference{
		ID:                id,
		OwnerID:           in.OwnerID,
		Role:              role,
		ObjectName:        id,
		Size:              meta.Size,
		MimeType:          in.MimeType,
		FileName:          in.FileName,
		IntendedPlatform:  in.IntendedPlatform,
		DetectedPlatforms: detected,
		Status:            models.ReferencePending,
		ScanStatus:        models.ScanPending,
		CreatedAt:         now,
		ExpiresAt:         now.Add(models.RoleTTL(role)),
	}

	if err := s.payloads.SavePayload(ctx, ref.ObjectName, in.Data, in.MimeType); err != nil {
		return models.FileReference{}, fmt.Errorf("failed to store payload: %w", err)
	}

	if err := s.refs.CreateReference(&ref); err != nil {
		// cleanup payload if metadata save fails
		if delErr := s.payloads.DeletePayload(ctx, ref.ObjectName); delErr != nil {
			log.Printf("warning: failed to cleanup payload after metadata save failure: %v", delErr)
		}
		return models.FileReference{}, fmt.Errorf("failed to save reference: %w", err)
	}

	event := map[string]interface{}{
		"action":             "created",
		"reference_id":       ref.ID,
		"owner_id":           ref.OwnerID,
		"role":               string(ref.Role),
		"size":               ref.Size,
		"mime_type":          ref.MimeType,
		"detected_platforms": ref.DetectedPlatforms,
		"expires_at":         ref.ExpiresAt.Format(time.RFC3339),
	}
	if err := PublishEvent("references.created", event); err != nil {
		log.Printf("warning: failed to publish references.created event: %v", err)
	}
	NotifyOwner(ref.OwnerID, "references", event)

	return ref, nil
}

// Stats aggregates the owner's live references for the stats endpoint.
func (s *StagingService) Stats(ownerID string) (models.ReferenceStats, error) {
	return s.refs.ReferenceStats(ownerID)
}

// Lookup returns reference metadata by capability id, owner-scoped.
func (s *StagingService) Lookup(id, ownerID string) (models.FileReference, error) {
	return s.refs.GetReference(id, ownerID)
}

// OpenPayload streams a staged payload for an owner-scoped reference.
func (s *StagingService) OpenPayload(ctx context.Context, id, ownerID string) (models.FileReference, io.ReadCloser, error) {
	ref, err := s.refs.GetReference(id, ownerID)
	if err != nil {
		return models.FileReference{}, nil, err
	}
	rc, _, err := s.payloads.GetPayload(ctx, ref.ObjectName)
	if err != nil {
		return models.FileReference{}, nil, fmt.Errorf("failed to open payload: %w", err)
	}
	return ref, rc, nil
}

// Discard removes a staged reference and its payload before it is consumed.
func (s *StagingService) Discard(ctx context.Context, id, ownerID string) error {
	ref, err := s.refs.DeleteReference(id, ownerID)
	if err != nil {
		return err
	}
	if err := s.payloads.DeletePayload(ctx, ref.ObjectName); err != nil {
		log.Printf("warning: failed to delete payload for discarded reference %s: %v", id, err)
	}
	NotifyOwner(ownerID, "references", map[string]interface{}{
		"action":       "discarded",
		"reference_id": id,
	})
	return nil
}
