package models

import (
	"crypto/rand"
	"encoding/hex"
	"mime"
	"strings"
	"time"
)

// FileRole is the functional category of a staged file, derived from the
// MIME type at staging time rather than declared by the client.
type FileRole string

const (
	RoleVideo     FileRole = "video"
	RoleThumbnail FileRole = "thumbnail"
	RoleImage     FileRole = "image"
	RoleDocument  FileRole = "document"
	RoleAudio     FileRole = "audio"
)

// ReferenceStatus tracks the lifecycle of a staged reference.
type ReferenceStatus string

const (
	ReferencePending ReferenceStatus = "pending"
	ReferenceUsed    ReferenceStatus = "used"
	ReferenceExpired ReferenceStatus = "expired"
)

// Scan status values written by the async virus scanner.
const (
	ScanPending  = "pending"
	ScanClean    = "clean"
	ScanInfected = "infected"
)

// FileReference is an opaque, capability-bearing handle to a staged payload.
// The id is the sole capability to read the payload; all queries are scoped
// by owner and never cross users.
type FileReference struct {
	ID                string          `json:"id"`
	OwnerID           string          `json:"owner_id"`
	Role              FileRole        `json:"role"`
	ObjectName        string          `json:"-"` // payload key in the blob store
	Size              int64           `json:"size"`
	MimeType          string          `json:"mime_type"`
	FileName          string          `json:"file_name"`
	IntendedPlatform  string          `json:"intended_platform,omitempty"`
	DetectedPlatforms []string        `json:"detected_platforms"`
	Status            ReferenceStatus `json:"status"`
	ScanStatus        string          `json:"scan_status"`
	ScannedAt         *time.Time      `json:"scanned_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	ExpiresAt         time.Time       `json:"expires_at"`
}

// Expired reports whether the reference is past its TTL at the given time.
func (r *FileReference) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// TTL windows. Prepared roles survive long enough for a user to come back
// to them; ephemeral roles are gone within the session.
const (
	preparedTTL  = 24 * time.Hour
	ephemeralTTL = 30 * time.Minute
)

// RoleTTL returns how long an unconsumed reference of the given role stays
// retrievable.
func RoleTTL(role FileRole) time.Duration {
	switch role {
	case RoleVideo, RoleDocument, RoleAudio:
		return preparedTTL
	default:
		return ephemeralTTL
	}
}

// documentMimeTypes are the non-media MIME types we accept as documents.
var documentMimeTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
}

// ClassifyRole derives the file role from a MIME type. A declared role may
// narrow an image to a thumbnail but can never contradict the MIME family.
func ClassifyRole(mimeType string, declared FileRole) (FileRole, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if base, _, err := mime.ParseMediaType(mt); err == nil {
		mt = base
	}

	switch {
	case strings.HasPrefix(mt, "video/"):
		return RoleVideo, nil
	case strings.HasPrefix(mt, "image/"):
		if declared == RoleThumbnail {
			return RoleThumbnail, nil
		}
		return RoleImage, nil
	case strings.HasPrefix(mt, "audio/"):
		return RoleAudio, nil
	case documentMimeTypes[mt]:
		return RoleDocument, nil
	default:
		return "", ErrUnsupportedFileType
	}
}

// ReferenceStats is the per-owner staging footprint: live (non-expired)
// references by status plus their combined payload size.
type ReferenceStats struct {
	Pending    int   `json:"pending"`
	Used       int   `json:"used"`
	TotalBytes int64 `json:"total_bytes"`
}

// NewReferenceID generates the 32-hex-char capability token (128 bits from
// crypto/rand). Collisions are astronomically unlikely; the store still
// refuses duplicate ids loudly.
func NewReferenceID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
