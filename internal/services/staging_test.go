package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/models"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/platforms"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/storage"
)

func TestStage(t *testing.T) {
	t.Run("video is staged with TTL and detected platforms", func(t *testing.T) {
		store := storage.NewMemoryStore()
		svc := NewStagingService(store, store, platforms.DefaultRequirements)

		before := time.Now().UTC()
		ref, err := svc.Stage(context.Background(), StageInput{
			OwnerID:  "user-1",
			FileName: "clip.mp4",
			MimeType: "video/mp4",
			Data:     []byte("tiny video payload"),
		})
		if err != nil {
			t.Fatalf("stage: %v", err)
		}

		if len(ref.ID) != 32 {
			t.Errorf("expected 32-char reference id, got %q", ref.ID)
		}
		if ref.Role != models.RoleVideo {
			t.Errorf("expected role video, got %s", ref.Role)
		}
		if ref.Status != models.ReferencePending {
			t.Errorf("expected pending, got %s", ref.Status)
		}
		if len(ref.DetectedPlatforms) != 4 {
			t.Errorf("expected all 4 platforms detected, got %v", ref.DetectedPlatforms)
		}

		ttl := ref.ExpiresAt.Sub(ref.CreatedAt)
		if ttl != 24*time.Hour {
			t.Errorf("expected 24h TTL for video, got %s", ttl)
		}
		if ref.CreatedAt.Before(before.Add(-time.Second)) {
			t.Errorf("created_at too old: %s", ref.CreatedAt)
		}

		rc, size, err := store.GetPayload(context.Background(), ref.ObjectName)
		if err != nil {
			t.Fatalf("payload not stored: %v", err)
		}
		defer rc.Close()
		if size != ref.Size {
			t.Errorf("payload size %d does not match reference size %d", size, ref.Size)
		}
	})

	t.Run("image gets the short TTL", func(t *testing.T) {
		store := storage.NewMemoryStore()
		svc := NewStagingService(store, store, platforms.DefaultRequirements)

		ref, err := svc.Stage(context.Background(), StageInput{
			OwnerID:  "user-1",
			FileName: "cover.jpg",
			MimeType: "image/jpeg",
			Data:     []byte("jpeg bytes"),
		})
		if err != nil {
			t.Fatalf("stage: %v", err)
		}
		if ttl := ref.ExpiresAt.Sub(ref.CreatedAt); ttl != 30*time.Minute {
			t.Errorf("expected 30m TTL for image, got %s", ttl)
		}
	})

	t.Run("unsupported type rejected, nothing stored", func(t *testing.T) {
		store := storage.NewMemoryStore()
		svc := NewStagingService(store, store, platforms.DefaultRequirements)

		_, err := svc.Stage(context.Background(), StageInput{
			OwnerID:  "user-1",
			FileName: "archive.zip",
			MimeType: "application/zip",
			Data:     []byte("zip bytes"),
		})
		if !errors.Is(err, models.ErrUnsupportedFileType) {
			t.Fatalf("expected ErrUnsupportedFileType, got %v", err)
		}
	})

	t.Run("file too large for every platform rejected", func(t *testing.T) {
		store := storage.NewMemoryStore()
		svc := NewStagingService(store, store, platforms.DefaultRequirements)

		// 30MB image exceeds every platform's image ceiling.
		_, err := svc.Stage(context.Background(), StageInput{
			OwnerID:  "user-1",
			FileName: "huge.jpg",
			MimeType: "image/jpeg",
			Data:     make([]byte, 30<<20),
		})
		if !errors.Is(err, models.ErrFileTooLarge) {
			t.Fatalf("expected ErrFileTooLarge, got %v", err)
		}
	})

	t.Run("declared thumbnail role honored for images", func(t *testing.T) {
		store := storage.NewMemoryStore()
		svc := NewStagingService(store, store, platforms.DefaultRequirements)

		ref, err := svc.Stage(context.Background(), StageInput{
			OwnerID:      "user-1",
			FileName:     "thumb.png",
			MimeType:     "image/png",
			DeclaredRole: models.RoleThumbnail,
			Data:         []byte("png bytes"),
		})
		if err != nil {
			t.Fatalf("stage: %v", err)
		}
		if ref.Role != models.RoleThumbnail {
			t.Errorf("expected role thumbnail, got %s", ref.Role)
		}
	})
}

func TestLookupAndOpenPayload(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewStagingService(store, store, platforms.DefaultRequirements)

	ref, err := svc.Stage(context.Background(), StageInput{
		OwnerID:  "user-1",
		FileName: "clip.mp4",
		MimeType: "video/mp4",
		Data:     []byte("payload bytes"),
	})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}

	t.Run("owner can look up and stream", func(t *testing.T) {
		got, err := svc.Lookup(ref.ID, "user-1")
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if got.ID != ref.ID {
			t.Errorf("expected %s, got %s", ref.ID, got.ID)
		}

		_, rc, err := svc.OpenPayload(context.Background(), ref.ID, "user-1")
		if err != nil {
			t.Fatalf("open payload: %v", err)
		}
		defer rc.Close()
		data, _ := io.ReadAll(rc)
		if string(data) != "payload bytes" {
			t.Errorf("unexpected payload: %q", data)
		}
	})

	t.Run("foreign owner cannot", func(t *testing.T) {
		if _, err := svc.Lookup(ref.ID, "user-2"); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, _, err := svc.OpenPayload(context.Background(), ref.ID, "user-2"); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDiscard(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewStagingService(store, store, platforms.DefaultRequirements)

	ref, err := svc.Stage(context.Background(), StageInput{
		OwnerID:  "user-1",
		FileName: "clip.mp4",
		MimeType: "video/mp4",
		Data:     []byte("payload bytes"),
	})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}

	if err := svc.Discard(context.Background(), ref.ID, "user-1"); err != nil {
		t.Fatalf("discard: %v", err)
	}

	if _, err := svc.Lookup(ref.ID, "user-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected reference gone, got %v", err)
	}
	if _, _, err := store.GetPayload(context.Background(), ref.ObjectName); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected payload gone, got %v", err)
	}

	if err := svc.Discard(context.Background(), ref.ID, "user-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second discard, got %v", err)
	}
}
