package studysync

import (
	"context"
	"encoding/json"
	"fmt"

	"lifedash/internal/domain/inbox"
	"lifedash/internal/infrastructure/studyplanner"
)

// RegisterInboxTransforms installs the transforms for study planner shaped
// inbox items. They share mapping entity types with the pull, so a record
// delivered by webhook and later pulled lands on the same entity.
func (a *Adapter) RegisterInboxTransforms(c *inbox.Consumer) {
	c.Register(Provider, inbox.EntityCalendarEvent, a.inboxEvent)
	c.Register(Provider, inbox.EntityTask, a.inboxTask)
}

func (a *Adapter) inboxEvent(ctx context.Context, item *inbox.Item) error {
	var e studyplanner.RemoteEvent
	if err := json.Unmarshal(item.Payload, &e); err != nil {
		return fmt.Errorf("invalid %s event payload: %w", Provider, err)
	}
	_, err := a.upsertSession(ctx, item.UserID, e, inboxKey(item, e.RemoteID))
	return err
}

func (a *Adapter) inboxTask(ctx context.Context, item *inbox.Item) error {
	var t studyplanner.RemoteTask
	if err := json.Unmarshal(item.Payload, &t); err != nil {
		return fmt.Errorf("invalid %s task payload: %w", Provider, err)
	}
	_, err := a.upsertTask(ctx, item.UserID, t, inboxKey(item, t.RemoteID))
	return err
}

// inboxKey prefers the item's external id, then the id inside the payload.
func inboxKey(item *inbox.Item, id studyplanner.RemoteID) string {
	if item.ExternalID != nil && *item.ExternalID != "" {
		return *item.ExternalID
	}
	if key := id.Key(); key != "" {
		return key
	}
	return item.IdentityKey()
}
