package util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/models"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/storage"
	clamd "github.com/dutchcoders/go-clamd"
)

// ScanReference downloads a staged payload, runs it through ClamAV, and
// records the verdict. Infected references are quarantined: the payload is
// deleted and the reference expired so it can no longer be consumed.
func ScanReference(referenceID, clamAvURL string, refs storage.ReferenceStore, payloads storage.PayloadStore) {
	ctx := context.Background()

	rc, _, err := payloads.GetPayload(ctx, referenceID)
	if err != nil {
		log.Println("Failed to fetch payload for scanning:", err)
		return
	}
	defer rc.Close()

	tempPath := fmt.Sprintf("/tmp/scan-%s", referenceID)
	tmp, err := os.Create(tempPath)
	if err != nil {
		log.Println("Failed to create scan temp file:", err)
		return
	}
	defer os.Remove(tempPath)

	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		log.Println("Failed to spool payload for scanning:", err)
		return
	}
	tmp.Close()

	c := clamd.NewClamd(clamAvURL)
	response, err := c.ScanFile(tempPath)
	if err != nil {
		log.Println("Scan failed:", err)
		return
	}

	infected := false
	for res := range response {
		if res.Status == clamd.RES_FOUND {
			log.Printf("Virus detected in reference %s: %s", referenceID, res.Description)
			infected = true
		}
	}

	if infected {
		if err := QuarantineReference(ctx, referenceID, refs, payloads); err != nil {
			log.Println("Failed to quarantine infected reference:", err)
		}
		return
	}

	if err := refs.UpdateScanStatus(referenceID, models.ScanClean, time.Now().UTC()); err != nil {
		log.Println("Failed to update scan status:", err)
	} else {
		log.Printf("Scan finished for %s: clean", referenceID)
	}
}

// QuarantineReference removes an infected payload and expires its reference
// so lookups, pairing and publishes stop resolving it immediately. The row
// keeps the infected verdict until the sweeper collects it.
func QuarantineReference(ctx context.Context, referenceID string, refs storage.ReferenceStore, payloads storage.PayloadStore) error {
	if err := payloads.DeletePayload(ctx, referenceID); err != nil {
		return fmt.Errorf("failed to delete infected payload: %w", err)
	}

	now := time.Now().UTC()
	if err := refs.ExpireReference(referenceID, now); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to expire infected reference: %w", err)
	}
	if err := refs.UpdateScanStatus(referenceID, models.ScanInfected, now); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to record infected verdict: %w", err)
	}

	log.Printf("Quarantined infected reference %s", referenceID)
	return nil
}
