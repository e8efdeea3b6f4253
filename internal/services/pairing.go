package services

import (
	"errors"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/models"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/storage"
)

// PendingPair is the auto-discovered publish unit for one owner.
type PendingPair struct {
	Video     *models.FileReference `json:"video"`
	Thumbnail *models.FileReference `json:"thumbnail"`
}

// Pairing assembles a publish unit by positional recency: the newest
// unconsumed file of each role, nothing smarter. The known edge case is
// intentional — if an owner stages two videos before publishing, the older
// one stays invisible here until it is consumed by id or expires.
type Pairing struct {
	refs storage.ReferenceStore
}

func NewPairing(refs storage.ReferenceStore) *Pairing {
	return &Pairing{refs: refs}
}

// Pair is read-only: consumption happens inside the orchestrator once the
// publish actually starts, so a downstream validation failure never burns a
// reference.
func (p *Pairing) Pair(ownerID string) (PendingPair, error) {
	var pair PendingPair

	video, err := p.refs.LatestPending(ownerID, models.RoleVideo)
	switch {
	case err == nil:
		pair.Video = &video
	case !errors.Is(err, models.ErrNotFound):
		return PendingPair{}, err
	}

	thumb, err := p.latestThumbnail(ownerID)
	switch {
	case err == nil:
		pair.Thumbnail = &thumb
	case !errors.Is(err, models.ErrNotFound):
		return PendingPair{}, err
	}

	return pair, nil
}

// latestThumbnail prefers an explicitly declared thumbnail, then falls back
// to the newest plain image.
func (p *Pairing) latestThumbnail(ownerID string) (models.FileReference, error) {
	thumb, err := p.refs.LatestPending(ownerID, models.RoleThumbnail)
	if err == nil || !errors.Is(err, models.ErrNotFound) {
		return thumb, err
	}
	return p.refs.LatestPending(ownerID, models.RoleImage)
}
