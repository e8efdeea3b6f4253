package services

import (
	"context"
	"testing"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/models"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/platforms"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/storage"
)

func stageFile(t *testing.T, svc *StagingService, owner, name, mime string, role models.FileRole) models.FileReference {
	t.Helper()
	ref, err := svc.Stage(context.Background(), StageInput{
		OwnerID:      owner,
		FileName:     name,
		MimeType:     mime,
		DeclaredRole: role,
		Data:         []byte("payload for " + name),
	})
	if err != nil {
		t.Fatalf("stage %s: %v", name, err)
	}
	return ref
}

func TestPair(t *testing.T) {
	t.Run("empty owner pairs nothing", func(t *testing.T) {
		store := storage.NewMemoryStore()
		pairing := NewPairing(store)

		pair, err := pairing.Pair("user-1")
		if err != nil {
			t.Fatalf("pair: %v", err)
		}
		if pair.Video != nil || pair.Thumbnail != nil {
			t.Errorf("expected empty pair, got %+v", pair)
		}
	})

	t.Run("video plus thumbnail paired by recency", func(t *testing.T) {
		store := storage.NewMemoryStore()
		staging := NewStagingService(store, store, platforms.DefaultRequirements)
		pairing := NewPairing(store)

		video := stageFile(t, staging, "user-1", "clip.mp4", "video/mp4", "")
		thumb := stageFile(t, staging, "user-1", "thumb.jpg", "image/jpeg", models.RoleThumbnail)

		pair, err := pairing.Pair("user-1")
		if err != nil {
			t.Fatalf("pair: %v", err)
		}
		if pair.Video == nil || pair.Video.ID != video.ID {
			t.Fatalf("expected video %s, got %+v", video.ID, pair.Video)
		}
		if pair.Thumbnail == nil || pair.Thumbnail.ID != thumb.ID {
			t.Fatalf("expected thumbnail %s, got %+v", thumb.ID, pair.Thumbnail)
		}
	})

	t.Run("plain image serves as thumbnail fallback", func(t *testing.T) {
		store := storage.NewMemoryStore()
		staging := NewStagingService(store, store, platforms.DefaultRequirements)
		pairing := NewPairing(store)

		stageFile(t, staging, "user-1", "clip.mp4", "video/mp4", "")
		image := stageFile(t, staging, "user-1", "cover.jpg", "image/jpeg", "")

		pair, err := pairing.Pair("user-1")
		if err != nil {
			t.Fatalf("pair: %v", err)
		}
		if pair.Thumbnail == nil || pair.Thumbnail.ID != image.ID {
			t.Fatalf("expected image %s as thumbnail, got %+v", image.ID, pair.Thumbnail)
		}
	})

	t.Run("declared thumbnail preferred over plain image", func(t *testing.T) {
		store := storage.NewMemoryStore()
		staging := NewStagingService(store, store, platforms.DefaultRequirements)
		pairing := NewPairing(store)

		stageFile(t, staging, "user-1", "clip.mp4", "video/mp4", "")
		thumb := stageFile(t, staging, "user-1", "thumb.jpg", "image/jpeg", models.RoleThumbnail)
		stageFile(t, staging, "user-1", "newer-cover.jpg", "image/jpeg", "")

		pair, err := pairing.Pair("user-1")
		if err != nil {
			t.Fatalf("pair: %v", err)
		}
		if pair.Thumbnail == nil || pair.Thumbnail.ID != thumb.ID {
			t.Fatalf("expected declared thumbnail %s, got %+v", thumb.ID, pair.Thumbnail)
		}
	})

	t.Run("pairing is read-only", func(t *testing.T) {
		store := storage.NewMemoryStore()
		staging := NewStagingService(store, store, platforms.DefaultRequirements)
		pairing := NewPairing(store)

		video := stageFile(t, staging, "user-1", "clip.mp4", "video/mp4", "")

		for i := 0; i < 3; i++ {
			pair, err := pairing.Pair("user-1")
			if err != nil {
				t.Fatalf("pair %d: %v", i, err)
			}
			if pair.Video == nil || pair.Video.ID != video.ID {
				t.Fatalf("pair %d: video no longer visible", i)
			}
		}
	})

	t.Run("consumed references disappear from pairing", func(t *testing.T) {
		store := storage.NewMemoryStore()
		staging := NewStagingService(store, store, platforms.DefaultRequirements)
		pairing := NewPairing(store)

		video := stageFile(t, staging, "user-1", "clip.mp4", "video/mp4", "")
		if err := store.MarkUsed(video.ID, "user-1"); err != nil {
			t.Fatalf("mark used: %v", err)
		}

		pair, err := pairing.Pair("user-1")
		if err != nil {
			t.Fatalf("pair: %v", err)
		}
		if pair.Video != nil {
			t.Errorf("expected consumed video to be invisible, got %+v", pair.Video)
		}
	})

	t.Run("owners are isolated", func(t *testing.T) {
		store := storage.NewMemoryStore()
		staging := NewStagingService(store, store, platforms.DefaultRequirements)
		pairing := NewPairing(store)

		stageFile(t, staging, "user-1", "clip.mp4", "video/mp4", "")

		pair, err := pairing.Pair("user-2")
		if err != nil {
			t.Fatalf("pair: %v", err)
		}
		if pair.Video != nil {
			t.Error("expected no pairing across owners")
		}
	})
}
