package models

import "time"

// UploadStatus is the per-publish state machine. Transitions never skip a
// state and the terminal states are immutable.
type UploadStatus string

const (
	UploadPending    UploadStatus = "pending"
	UploadUploading  UploadStatus = "uploading"
	UploadProcessing UploadStatus = "processing"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
)

// Terminal reports whether a job in this status can still change.
func (s UploadStatus) Terminal() bool {
	return s == UploadCompleted || s == UploadFailed
}

// UploadJob tracks one publish attempt from intake to terminal outcome.
// Jobs are history: the sweeper never deletes them, only the references
// they consumed are reclaimed.
type UploadJob struct {
	ID                string            `json:"id"`
	OwnerID           string            `json:"owner_id"`
	Platform          string            `json:"platform"`
	PlatformAccountID string            `json:"platform_account_id"`
	VideoReferenceID  string            `json:"video_reference_id,omitempty"`
	ThumbReferenceID  string            `json:"thumbnail_reference_id,omitempty"`
	Title             string            `json:"title"`
	Description       string            `json:"description"`
	Tags              []string          `json:"tags,omitempty"`
	Privacy           string            `json:"privacy,omitempty"`
	PlatformMetadata  map[string]string `json:"platform_metadata,omitempty"`
	Status            UploadStatus      `json:"status"`
	BytesUploaded     int64             `json:"bytes_uploaded"`
	TotalBytes        int64             `json:"total_bytes"`
	PlatformPostID    string            `json:"platform_post_id,omitempty"`
	PlatformURL       string            `json:"platform_url,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	StartedAt         *time.Time        `json:"started_at,omitempty"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
}

// ProgressPercent derives the clamped [0,100] progress for pollers.
func (j *UploadJob) ProgressPercent() int {
	if j.TotalBytes <= 0 {
		if j.Status == UploadCompleted {
			return 100
		}
		return 0
	}
	pct := int(j.BytesUploaded * 100 / j.TotalBytes)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
