package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/models"
)

// MemoryStore keeps references, jobs and payloads in process memory behind a
// single RWMutex. It backs tests and DB-less development; production uses
// the Postgres store plus MinIO payloads.
type MemoryStore struct {
	mu         sync.RWMutex
	references map[string]models.FileReference
	jobs       map[string]models.UploadJob
	payloads   map[string]memPayload
}

type memPayload struct {
	data        []byte
	contentType string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		references: make(map[string]models.FileReference),
		jobs:       make(map[string]models.UploadJob),
		payloads:   make(map[string]memPayload),
	}
}

// --- ReferenceStore ---

func (m *MemoryStore) CreateReference(ref *models.FileReference) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.references[ref.ID]; exists {
		return fmt.Errorf("reference id %s already exists", ref.ID)
	}
	m.references[ref.ID] = *ref
	return nil
}

func (m *MemoryStore) GetReference(id, ownerID string) (models.FileReference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ref, ok := m.references[id]
	if !ok || ref.OwnerID != ownerID || ref.Status != models.ReferencePending ||
		ref.Expired(time.Now()) {
		return models.FileReference{}, models.ErrNotFound
	}
	return ref, nil
}

func (m *MemoryStore) MarkUsed(id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.references[id]
	if !ok || ref.OwnerID != ownerID || ref.Expired(time.Now()) {
		return models.ErrNotFound
	}
	if ref.Status != models.ReferencePending {
		return models.ErrConflict
	}
	ref.Status = models.ReferenceUsed
	m.references[id] = ref
	return nil
}

func (m *MemoryStore) LatestPending(ownerID string, role models.FileRole) (models.FileReference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var latest models.FileReference
	found := false
	for _, ref := range m.references {
		if ref.OwnerID != ownerID || ref.Role != role ||
			ref.Status != models.ReferencePending || ref.Expired(now) {
			continue
		}
		if !found || ref.CreatedAt.After(latest.CreatedAt) {
			latest = ref
			found = true
		}
	}
	if !found {
		return models.FileReference{}, models.ErrNotFound
	}
	return latest, nil
}

func (m *MemoryStore) UpdateScanStatus(id, status string, scannedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.references[id]
	if !ok {
		return models.ErrNotFound
	}
	ref.ScanStatus = status
	ref.ScannedAt = &scannedAt
	m.references[id] = ref
	return nil
}

func (m *MemoryStore) ExpireReference(id string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.references[id]
	if !ok {
		return models.ErrNotFound
	}
	ref.ExpiresAt = expiresAt
	m.references[id] = ref
	return nil
}

func (m *MemoryStore) ReferenceStats(ownerID string) (models.ReferenceStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var stats models.ReferenceStats
	for _, ref := range m.references {
		if ref.OwnerID != ownerID || ref.Expired(now) {
			continue
		}
		switch ref.Status {
		case models.ReferencePending:
			stats.Pending++
		case models.ReferenceUsed:
			stats.Used++
		}
		stats.TotalBytes += ref.Size
	}
	return stats, nil
}

func (m *MemoryStore) DeleteReference(id, ownerID string) (models.FileReference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref, ok := m.references[id]
	if !ok || ref.OwnerID != ownerID {
		return models.FileReference{}, models.ErrNotFound
	}
	delete(m.references, id)
	return ref, nil
}

func (m *MemoryStore) DeleteExpired(now time.Time) ([]models.FileReference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []models.FileReference
	for id, ref := range m.references {
		if ref.Expired(now) {
			removed = append(removed, ref)
			delete(m.references, id)
		}
	}
	return removed, nil
}

func (m *MemoryStore) DeleteUsedBefore(cutoff time.Time) ([]models.FileReference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []models.FileReference
	for id, ref := range m.references {
		if ref.Status == models.ReferenceUsed && ref.CreatedAt.Before(cutoff) {
			removed = append(removed, ref)
			delete(m.references, id)
		}
	}
	return removed, nil
}

func (m *MemoryStore) DeleteAllForOwner(ownerID string) ([]models.FileReference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []models.FileReference
	for id, ref := range m.references {
		if ref.OwnerID == ownerID {
			removed = append(removed, ref)
			delete(m.references, id)
		}
	}
	return removed, nil
}

// --- UploadJobStore ---

func (m *MemoryStore) CreateJob(job *models.UploadJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("upload job id %s already exists", job.ID)
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *MemoryStore) GetJob(id string) (models.UploadJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return models.UploadJob{}, models.ErrNotFound
	}
	return job, nil
}

func (m *MemoryStore) MarkUploading(id string, totalBytes int64, startedAt time.Time) error {
	return m.transition(id, models.UploadPending, func(job *models.UploadJob) {
		job.Status = models.UploadUploading
		job.TotalBytes = totalBytes
		job.StartedAt = &startedAt
	})
}

func (m *MemoryStore) MarkProcessing(id string) error {
	return m.transition(id, models.UploadUploading, func(job *models.UploadJob) {
		job.Status = models.UploadProcessing
	})
}

func (m *MemoryStore) MarkCompleted(id, postID, url string, completedAt time.Time) error {
	return m.transition(id, models.UploadProcessing, func(job *models.UploadJob) {
		job.Status = models.UploadCompleted
		job.PlatformPostID = postID
		job.PlatformURL = url
		job.CompletedAt = &completedAt
	})
}

func (m *MemoryStore) MarkFailed(id, errorMessage string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	if job.Status.Terminal() {
		return models.ErrConflict
	}
	job.Status = models.UploadFailed
	job.ErrorMessage = errorMessage
	job.CompletedAt = &completedAt
	m.jobs[id] = job
	return nil
}

func (m *MemoryStore) UpdateProgress(id string, bytesUploaded int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	if job.Status != models.UploadUploading {
		return models.ErrConflict
	}
	if bytesUploaded > job.TotalBytes {
		bytesUploaded = job.TotalBytes
	}
	if bytesUploaded > job.BytesUploaded {
		job.BytesUploaded = bytesUploaded
		m.jobs[id] = job
	}
	return nil
}

func (m *MemoryStore) ListStuck(cutoff time.Time) ([]models.UploadJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stuck []models.UploadJob
	for _, job := range m.jobs {
		if job.Status != models.UploadUploading && job.Status != models.UploadProcessing {
			continue
		}
		if job.StartedAt != nil && job.StartedAt.Before(cutoff) {
			stuck = append(stuck, job)
		}
	}
	return stuck, nil
}

func (m *MemoryStore) JobStats(ownerID string) (map[models.UploadStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[models.UploadStatus]int)
	for _, job := range m.jobs {
		if job.OwnerID == ownerID {
			stats[job.Status]++
		}
	}
	return stats, nil
}

func (m *MemoryStore) transition(id string, from models.UploadStatus, apply func(*models.UploadJob)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	if job.Status != from {
		return models.ErrConflict
	}
	apply(&job)
	m.jobs[id] = job
	return nil
}

// --- PayloadStore ---

func (m *MemoryStore) SavePayload(_ context.Context, objectName string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	m.payloads[objectName] = memPayload{data: buf, contentType: contentType}
	return nil
}

func (m *MemoryStore) GetPayload(_ context.Context, objectName string) (io.ReadCloser, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payloads[objectName]
	if !ok {
		return nil, 0, models.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(p.data)), int64(len(p.data)), nil
}

func (m *MemoryStore) DeletePayload(_ context.Context, objectName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.payloads, objectName)
	return nil
}
