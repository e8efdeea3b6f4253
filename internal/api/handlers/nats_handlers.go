package handlers

import (
	"context"
	"encoding/json"
	"log"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/api/handlers/util"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/services"
	"github.com/CrossPost-MediaBridg/Publish-Service/internal/storage"
	"github.com/nats-io/nats.go"
)

var (
	eventRefs     storage.ReferenceStore
	eventPayloads storage.PayloadStore
	clamavURL     string
)

// InitEventHandlers wires the inbound NATS consumers to storage.
func InitEventHandlers(refs storage.ReferenceStore, payloads storage.PayloadStore, clamav string) {
	eventRefs = refs
	eventPayloads = payloads
	clamavURL = clamav
}

type ReferenceCreatedEvent struct {
	ReferenceID string `json:"reference_id"`
	OwnerID     string `json:"owner_id"`
	Role        string `json:"role"`
}

type UserDeletedEvent struct {
	UserID string `json:"user_id"`
}

// HandleReferenceCreated kicks off the async virus scan for a freshly
// staged payload.
func HandleReferenceCreated(msg *nats.Msg) {
	var payload ReferenceCreatedEvent
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Printf("[NATS] references.created: invalid payload: %v", err)
		nak(msg)
		return
	}

	if clamavURL == "" {
		// Scanning disabled; leave scan_status pending.
		ack(msg)
		return
	}

	go util.ScanReference(payload.ReferenceID, clamavURL, eventRefs, eventPayloads)
	ack(msg)
}

// HandleUserDeleted purges every reference and payload belonging to a
// deleted user. Upload jobs stay: they are history, not user storage.
func HandleUserDeleted(msg *nats.Msg) {
	var payload UserDeletedEvent
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Printf("[NATS] users.deleted: invalid JSON: %v", err)
		nak(msg)
		return
	}
	if payload.UserID == "" {
		log.Printf("[NATS] users.deleted: missing user_id")
		nak(msg)
		return
	}

	removed, err := eventRefs.DeleteAllForOwner(payload.UserID)
	if err != nil {
		log.Printf("[NATS] users.deleted: failed to delete references for %s: %v", payload.UserID, err)
		nak(msg)
		return
	}

	for _, ref := range removed {
		if err := eventPayloads.DeletePayload(context.Background(), ref.ObjectName); err != nil {
			log.Printf("[NATS] users.deleted: failed to delete payload %s: %v", ref.ObjectName, err)
		}
	}

	log.Printf("[NATS] cleaned up %d references for user %s", len(removed), payload.UserID)
	services.NotifyOwner(payload.UserID, "references", map[string]interface{}{
		"action":  "purged",
		"deleted": len(removed),
	})
	ack(msg)
}

// ack safely acknowledges the message
func ack(msg *nats.Msg) {
	if err := msg.Ack(); err != nil {
		log.Printf("[NATS] Failed to ack message: %v", err)
	}
}

// nak negatively acknowledges (retry)
func nak(msg *nats.Msg) {
	if err := msg.Nak(); err != nil {
		log.Printf("[NATS] Failed to nak message: %v", err)
	}
}
