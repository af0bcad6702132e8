package identity

import (
	"encoding/json"
	"fmt"
	"strings"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
	"chatrelay/pkg/store"
	"chatrelay/pkg/telemetry"
)

// Event is one identity-provider delivery. Type discriminates the
// lifecycle transition ("user.created", "user.updated", "user.deleted";
// the bare created/updated/deleted forms are accepted too).
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type eventData struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	ImageURL       string `json:"image_url"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

// normalize derives the local record from a provider payload: first
// verified email or empty, given+family name trimmed, avatar url.
func normalize(d eventData) models.IdentityRecord {
	rec := models.IdentityRecord{
		ID:        d.ID,
		Name:      strings.TrimSpace(d.FirstName + " " + d.LastName),
		AvatarURL: d.ImageURL,
	}
	if len(d.EmailAddresses) > 0 {
		rec.Email = d.EmailAddresses[0].EmailAddress
	}
	return rec
}

// Apply dispatches a verified event onto the local identity store.
// Providers deliver at least once and may redeliver out of order, so
// every transition is idempotent: duplicate creates behave as upserts
// (last write wins), updates for unknown ids degrade to creates, and
// deleting an absent id is a no-op. Unknown event types are acknowledged
// and ignored.
func Apply(ev Event) error {
	kind := strings.TrimPrefix(ev.Type, "user.")

	var d eventData
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			telemetry.WebhookEventsTotal.WithLabelValues(kind, "rejected").Inc()
			return fmt.Errorf("decode event data: %w", err)
		}
	}

	switch kind {
	case "created", "updated":
		if d.ID == "" {
			telemetry.WebhookEventsTotal.WithLabelValues(kind, "rejected").Inc()
			return fmt.Errorf("event %s missing user id", ev.Type)
		}
		if err := store.SaveIdentity(normalize(d)); err != nil {
			telemetry.WebhookEventsTotal.WithLabelValues(kind, "store_error").Inc()
			return fmt.Errorf("save identity %s: %w", d.ID, err)
		}
		logger.Info("identity_upserted", "id", d.ID, "event", ev.Type)
	case "deleted":
		if d.ID == "" {
			telemetry.WebhookEventsTotal.WithLabelValues(kind, "rejected").Inc()
			return fmt.Errorf("event %s missing user id", ev.Type)
		}
		if err := store.DeleteIdentity(d.ID); err != nil {
			telemetry.WebhookEventsTotal.WithLabelValues(kind, "store_error").Inc()
			return fmt.Errorf("delete identity %s: %w", d.ID, err)
		}
		logger.Info("identity_deleted", "id", d.ID)
	default:
		logger.Warn("identity_event_ignored", "type", ev.Type)
	}
	telemetry.WebhookEventsTotal.WithLabelValues(kind, "ok").Inc()
	return nil
}
