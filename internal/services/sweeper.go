package services

import (
	"context"
	"log"
	"time"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/models"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/storage"
)

// Sweeper reclaims storage on a fixed interval: expired references (any
// status) and their payloads, consumed references past the debug retention
// window, and jobs stuck in flight past a hard ceiling. Jobs themselves are
// history and are never deleted, only forced to failed.
type Sweeper struct {
	refs          storage.ReferenceStore
	jobs          storage.UploadJobStore
	payloads      storage.PayloadStore
	interval      time.Duration
	usedRetention time.Duration
	stuckCeiling  time.Duration
	done          chan struct{}
}

func NewSweeper(
	refs storage.ReferenceStore,
	jobs storage.UploadJobStore,
	payloads storage.PayloadStore,
	interval, usedRetention, stuckCeiling time.Duration,
) *Sweeper {
	return &Sweeper{
		refs:          refs,
		jobs:          jobs,
		payloads:      payloads,
		interval:      interval,
		usedRetention: usedRetention,
		stuckCeiling:  stuckCeiling,
		done:          make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine. Failures within a
// tick are logged and retried on the next one; they are never fatal.
func (s *Sweeper) Start(ctx context.Context) {
	log.Printf("[SWEEP] started, interval=%s", s.interval)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		// Run once immediately on start
		s.RunOnce(ctx)

		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-ctx.Done():
				log.Println("[SWEEP] stopping")
				close(s.done)
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (s *Sweeper) Wait() {
	<-s.done
}

// RunOnce performs a single sweep cycle.
func (s *Sweeper) RunOnce(ctx context.Context) {
	now := time.Now().UTC()

	expired, err := s.refs.DeleteExpired(now)
	if err != nil {
		log.Printf("[SWEEP] failed to delete expired references: %v", err)
	} else {
		s.reclaimPayloads(ctx, expired)
	}

	purged, err := s.refs.DeleteUsedBefore(now.Add(-s.usedRetention))
	if err != nil {
		log.Printf("[SWEEP] failed to purge used references: %v", err)
	} else {
		s.reclaimPayloads(ctx, purged)
	}

	s.failStuckJobs(now)

	if len(expired) > 0 || len(purged) > 0 {
		log.Printf("[SWEEP] cycle complete: expired=%d used_purged=%d", len(expired), len(purged))
	}
}

func (s *Sweeper) reclaimPayloads(ctx context.Context, refs []models.FileReference) {
	for _, ref := range refs {
		if err := s.payloads.DeletePayload(ctx, ref.ObjectName); err != nil {
			// Retried implicitly: the reference row is already gone, but a
			// leaked object only costs space until the next manual cleanup.
			log.Printf("[SWEEP] failed to delete payload %s: %v", ref.ObjectName, err)
		}
	}
}

// failStuckJobs forces jobs stranded in uploading/processing past the hard
// ceiling into failed with a timeout reason.
func (s *Sweeper) failStuckJobs(now time.Time) {
	stuck, err := s.jobs.ListStuck(now.Add(-s.stuckCeiling))
	if err != nil {
		log.Printf("[SWEEP] failed to list stuck jobs: %v", err)
		return
	}

	for _, job := range stuck {
		reason := models.ErrTimeoutExceeded.Error()
		if err := s.jobs.MarkFailed(job.ID, reason, now); err != nil {
			// The job may have reached a terminal state between list and
			// mark; that is the CAS doing its job.
			log.Printf("[SWEEP] could not force-fail job %s: %v", job.ID, err)
			continue
		}
		log.Printf("[SWEEP] forced stuck job %s (%s since %s) to failed",
			job.ID, job.Status, job.StartedAt)
		NotifyOwner(job.OwnerID, "uploads", map[string]interface{}{
			"upload_id": job.ID,
			"status":    string(models.UploadFailed),
			"error":     reason,
		})
	}
}
