package cqrs

import (
	"encoding/json"
	"time"

	"github.com/danghamo/tourguide/internal/domain/route"
)

// GuideStateChangedEvent is published after an event changes a guide session
type GuideStateChangedEvent struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	RouteID   string `json:"route_id"`
	Version   uint64 `json:"version"`
	// Cause names the guide event that produced the change
	Cause string          `json:"cause"`
	State json.RawMessage `json:"state"`
	// Patch is a JSON merge patch from the previous version's state
	Patch     json.RawMessage `json:"patch,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id"`
}

// AttractionShownEvent is published when the card opens on an attraction
type AttractionShownEvent struct {
	SessionID  string           `json:"session_id"`
	UserID     string           `json:"user_id"`
	Attraction route.Attraction `json:"attraction"`
	Manual     bool             `json:"manual"`
	Timestamp  time.Time        `json:"timestamp"`
	RequestID  string           `json:"request_id"`
}

// AttractionDismissedEvent is published when the card closes
type AttractionDismissedEvent struct {
	SessionID  string           `json:"session_id"`
	UserID     string           `json:"user_id"`
	Attraction route.Attraction `json:"attraction"`
	Reason     string           `json:"reason"`
	Timestamp  time.Time        `json:"timestamp"`
	RequestID  string           `json:"request_id"`
}

// LocationLostEvent is published when a session's location stream fails
type LocationLostEvent struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// GuideSessionClosedEvent is published once when a session is torn down
type GuideSessionClosedEvent struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	RouteID   string    `json:"route_id"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// SSENotificationEvent represents an event to send SSE notifications
type SSENotificationEvent struct {
	Type        string      `json:"type"`
	TargetUsers []string    `json:"target_users,omitempty"` // empty for broadcast
	Method      string      `json:"method"`
	Params      interface{} `json:"params"`
	Timestamp   time.Time   `json:"timestamp"`
	RequestID   string      `json:"request_id"`
}

// Event types for different notification patterns
const (
	SSENotificationTypeBroadcast = "broadcast" // Send to all users
	SSENotificationTypeUsers     = "users"     // Send to specific list of users
)

// Notification methods pushed to guide clients
const (
	MethodGuideStateChanged   = "guide.state.changed"
	MethodAttractionShown     = "guide.attraction.shown"
	MethodAttractionDismissed = "guide.attraction.dismissed"
	MethodGuideLocationLost   = "guide.location.lost"
	MethodGuideSessionClosed  = "guide.session.closed"
	MethodRouteCatalogUpdated = "route.catalog.updated"
)
