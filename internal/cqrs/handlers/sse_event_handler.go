// Package handlers turns guide domain events into client notifications.
package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/danghamo/tourguide/internal/api/jsonrpcx"
	cqrsevents "github.com/danghamo/tourguide/internal/cqrs"
	"github.com/danghamo/tourguide/pkg/logger"
)

// SSEBroadcaster delivers notifications to the clients connected to this process
type SSEBroadcaster interface {
	BroadcastToUsers(targetUsers []string, notification jsonrpcx.JSONRPCNotification)
	BroadcastToAll(notification jsonrpcx.JSONRPCNotification)
}

// SSEEventHandler forwards guide events to the session owner's streams
type SSEEventHandler struct {
	sseBroadcaster SSEBroadcaster
	logger         *logger.Logger
}

// NewSSEEventHandler creates a new SSE event handler
func NewSSEEventHandler(sseBroadcaster SSEBroadcaster, log *logger.Logger) *SSEEventHandler {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &SSEEventHandler{
		sseBroadcaster: sseBroadcaster,
		logger:         log.WithComponent("sse-event-handler"),
	}
}

func (h *SSEEventHandler) notifyOwner(userID, method string, params map[string]interface{}) {
	h.sseBroadcaster.BroadcastToUsers([]string{userID}, jsonrpcx.NewNotification(method, params))
}

// HandleGuideStateChanged pushes the new session state and its patch
func (h *SSEEventHandler) HandleGuideStateChanged(ctx context.Context, event *cqrsevents.GuideStateChangedEvent) error {
	h.logger.Debug("Handling guide state changed event",
		zap.String("session_id", event.SessionID),
		zap.Uint64("version", event.Version),
		zap.String("cause", event.Cause))

	params := map[string]interface{}{
		"session_id": event.SessionID,
		"route_id":   event.RouteID,
		"version":    event.Version,
		"cause":      event.Cause,
		"state":      event.State,
		"timestamp":  event.Timestamp.Format(time.RFC3339Nano),
		"request_id": event.RequestID,
	}
	if len(event.Patch) > 0 {
		params["patch"] = event.Patch
	}
	h.notifyOwner(event.UserID, cqrsevents.MethodGuideStateChanged, params)
	return nil
}

// HandleAttractionShown tells the client which attraction card to present
func (h *SSEEventHandler) HandleAttractionShown(ctx context.Context, event *cqrsevents.AttractionShownEvent) error {
	h.notifyOwner(event.UserID, cqrsevents.MethodAttractionShown, map[string]interface{}{
		"session_id": event.SessionID,
		"attraction": event.Attraction,
		"manual":     event.Manual,
		"timestamp":  event.Timestamp.Format(time.RFC3339Nano),
		"request_id": event.RequestID,
	})
	return nil
}

func (h *SSEEventHandler) HandleAttractionDismissed(ctx context.Context, event *cqrsevents.AttractionDismissedEvent) error {
	h.notifyOwner(event.UserID, cqrsevents.MethodAttractionDismissed, map[string]interface{}{
		"session_id":    event.SessionID,
		"attraction_id": event.Attraction.ID,
		"reason":        event.Reason,
		"timestamp":     event.Timestamp.Format(time.RFC3339Nano),
		"request_id":    event.RequestID,
	})
	return nil
}

func (h *SSEEventHandler) HandleLocationLost(ctx context.Context, event *cqrsevents.LocationLostEvent) error {
	h.logger.Info("Location lost for guide session",
		zap.String("session_id", event.SessionID),
		zap.String("user_id", event.UserID),
		zap.String("reason", event.Reason))

	h.notifyOwner(event.UserID, cqrsevents.MethodGuideLocationLost, map[string]interface{}{
		"session_id": event.SessionID,
		"reason":     event.Reason,
		"timestamp":  event.Timestamp.Format(time.RFC3339Nano),
		"request_id": event.RequestID,
	})
	return nil
}

func (h *SSEEventHandler) HandleGuideSessionClosed(ctx context.Context, event *cqrsevents.GuideSessionClosedEvent) error {
	h.notifyOwner(event.UserID, cqrsevents.MethodGuideSessionClosed, map[string]interface{}{
		"session_id": event.SessionID,
		"route_id":   event.RouteID,
		"timestamp":  event.Timestamp.Format(time.RFC3339Nano),
		"request_id": event.RequestID,
	})
	return nil
}

// HandleSSENotificationEvent delivers notifications published through SSEBroadcastHelper
func (h *SSEEventHandler) HandleSSENotificationEvent(ctx context.Context, event *cqrsevents.SSENotificationEvent) error {
	h.logger.Debug("Handling SSE notification event",
		zap.String("type", event.Type),
		zap.Strings("target_users", event.TargetUsers),
		zap.String("method", event.Method),
		zap.String("request_id", event.RequestID))

	notification := jsonrpcx.NewNotification(event.Method, event.Params)

	switch event.Type {
	case cqrsevents.SSENotificationTypeUsers:
		if len(event.TargetUsers) > 0 {
			h.sseBroadcaster.BroadcastToUsers(event.TargetUsers, notification)
		}
	case cqrsevents.SSENotificationTypeBroadcast:
		h.sseBroadcaster.BroadcastToAll(notification)
	default:
		h.logger.Warn("Unknown SSE notification type", zap.String("type", event.Type))
	}
	return nil
}
