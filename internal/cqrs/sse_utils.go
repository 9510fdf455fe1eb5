package cqrs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventPublisher publishes an event, typically on a watermill cqrs.EventBus
type EventPublisher interface {
	Publish(ctx context.Context, event interface{}) error
}

// SSEBroadcastHelper sends stream notifications through the event bus, so a
// client hears them no matter which instance holds its connection
type SSEBroadcastHelper struct {
	publisher EventPublisher
}

// NewSSEBroadcastHelper creates a new SSE broadcast helper
func NewSSEBroadcastHelper(publisher EventPublisher) *SSEBroadcastHelper {
	return &SSEBroadcastHelper{publisher: publisher}
}

// BroadcastToAll notifies every connected client, e.g. of a catalog update
func (h *SSEBroadcastHelper) BroadcastToAll(ctx context.Context, method string, params interface{}) error {
	return h.publish(ctx, SSENotificationTypeBroadcast, nil, method, params)
}

// BroadcastToUsers notifies the given users. Blank and repeated ids are
// dropped; nothing is published when no user remains.
func (h *SSEBroadcastHelper) BroadcastToUsers(ctx context.Context, userIDs []string, method string, params interface{}) error {
	targets := distinctUsers(userIDs)
	if len(targets) == 0 {
		return nil
	}
	return h.publish(ctx, SSENotificationTypeUsers, targets, method, params)
}

// NotifyUser notifies one session owner
func (h *SSEBroadcastHelper) NotifyUser(ctx context.Context, userID string, method string, params interface{}) error {
	return h.BroadcastToUsers(ctx, []string{userID}, method, params)
}

func (h *SSEBroadcastHelper) publish(ctx context.Context, kind string, targets []string, method string, params interface{}) error {
	return h.publisher.Publish(ctx, &SSENotificationEvent{
		Type:        kind,
		TargetUsers: targets,
		Method:      method,
		Params:      params,
		Timestamp:   time.Now(),
		RequestID:   uuid.NewString(),
	})
}

func distinctUsers(userIDs []string) []string {
	out := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
