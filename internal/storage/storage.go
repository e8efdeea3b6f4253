package storage

import (
	"context"
	"io"
	"time"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/models"
)

// ReferenceStore is the contract for staged-reference persistence. Every
// read is owner-scoped; a reference that is missing, expired, or owned by
// someone else is reported as models.ErrNotFound so callers cannot tell the
// cases apart.
type ReferenceStore interface {
	// CreateReference persists a new reference. A duplicate id fails loudly
	// rather than silently overwriting.
	CreateReference(ref *models.FileReference) error

	// GetReference returns a pending reference; expiry is checked lazily on
	// read, independent of the sweeper.
	GetReference(id, ownerID string) (models.FileReference, error)

	// MarkUsed atomically moves a reference from pending to used. It returns
	// models.ErrConflict when a concurrent consumer won the race.
	MarkUsed(id, ownerID string) error

	// LatestPending returns the most recent pending, non-expired reference
	// of the given role for the owner, or models.ErrNotFound.
	LatestPending(ownerID string, role models.FileRole) (models.FileReference, error)

	// UpdateScanStatus records the virus-scan outcome for a reference.
	UpdateScanStatus(id, status string, scannedAt time.Time) error

	// ExpireReference forces a reference's expiry to the given time. Used to
	// quarantine infected references: the row stops resolving immediately and
	// the sweeper collects it on its next pass.
	ExpireReference(id string, expiresAt time.Time) error

	// ReferenceStats aggregates the owner's live references by status.
	ReferenceStats(ownerID string) (models.ReferenceStats, error)

	// DeleteReference removes one owner-scoped reference outright and
	// returns it so the caller can reclaim the payload.
	DeleteReference(id, ownerID string) (models.FileReference, error)

	// DeleteExpired removes every reference past its expiry regardless of
	// status. Returned rows let the sweeper reclaim payloads.
	DeleteExpired(now time.Time) ([]models.FileReference, error)

	// DeleteUsedBefore purges consumed references older than the cutoff
	// (used rows are kept briefly for debugging, then reclaimed).
	DeleteUsedBefore(cutoff time.Time) ([]models.FileReference, error)

	// DeleteAllForOwner removes every reference for an owner (user-deleted
	// cleanup) and returns the rows for payload reclamation.
	DeleteAllForOwner(ownerID string) ([]models.FileReference, error)
}

// UploadJobStore persists upload jobs. All state transitions are atomic
// compare-and-set on the expected source status: a caller holding a stale
// view gets models.ErrConflict, never a silent double-apply.
type UploadJobStore interface {
	CreateJob(job *models.UploadJob) error
	GetJob(id string) (models.UploadJob, error)

	// MarkUploading: pending -> uploading. Records start time and the total
	// byte count of the acquired payload.
	MarkUploading(id string, totalBytes int64, startedAt time.Time) error

	// MarkProcessing: uploading -> processing (all bytes acknowledged,
	// platform still transcoding).
	MarkProcessing(id string) error

	// MarkCompleted: processing -> completed with the final post id/URL.
	MarkCompleted(id, postID, url string, completedAt time.Time) error

	// MarkFailed moves any non-terminal job to failed. errorMessage is
	// mandatory; terminal jobs are left untouched (ErrConflict).
	MarkFailed(id, errorMessage string, completedAt time.Time) error

	// UpdateProgress raises bytes_uploaded for a job in uploading state.
	// Values never decrease and never exceed total_bytes.
	UpdateProgress(id string, bytesUploaded int64) error

	// ListStuck returns non-terminal jobs that entered uploading/processing
	// before the cutoff, for the sweeper's timeout pass.
	ListStuck(cutoff time.Time) ([]models.UploadJob, error)

	// JobStats counts the owner's jobs per status.
	JobStats(ownerID string) (map[models.UploadStatus]int, error)
}

// PayloadStore owns the staged bytes, keyed by the reference's object name.
type PayloadStore interface {
	SavePayload(ctx context.Context, objectName string, data []byte, contentType string) error
	GetPayload(ctx context.Context, objectName string) (io.ReadCloser, int64, error)
	DeletePayload(ctx context.Context, objectName string) error
}
