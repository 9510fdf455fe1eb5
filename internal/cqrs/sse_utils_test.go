package cqrs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEventPublisher records published events
type MockEventPublisher struct {
	mock.Mock
	PublishedEvents []interface{}
}

func (m *MockEventPublisher) Publish(ctx context.Context, event interface{}) error {
	m.PublishedEvents = append(m.PublishedEvents, event)
	args := m.Called(ctx, event)
	return args.Error(0)
}

func TestBroadcastToAll(t *testing.T) {
	pub := &MockEventPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
	helper := NewSSEBroadcastHelper(pub)

	params := map[string]interface{}{"routes": 3}
	require.NoError(t, helper.BroadcastToAll(context.Background(), MethodRouteCatalogUpdated, params))

	require.Len(t, pub.PublishedEvents, 1)
	event, ok := pub.PublishedEvents[0].(*SSENotificationEvent)
	require.True(t, ok)
	assert.Equal(t, SSENotificationTypeBroadcast, event.Type)
	assert.Equal(t, MethodRouteCatalogUpdated, event.Method)
	assert.Equal(t, params, event.Params)
	assert.Empty(t, event.TargetUsers)
	assert.NotEmpty(t, event.RequestID)
	assert.WithinDuration(t, time.Now(), event.Timestamp, time.Second)
	pub.AssertExpectations(t)
}

func TestBroadcastToUsers(t *testing.T) {
	pub := &MockEventPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
	helper := NewSSEBroadcastHelper(pub)

	users := []string{"alice", "bob"}
	require.NoError(t, helper.BroadcastToUsers(context.Background(), users, MethodGuideSessionClosed, nil))

	event := pub.PublishedEvents[0].(*SSENotificationEvent)
	assert.Equal(t, SSENotificationTypeUsers, event.Type)
	assert.Equal(t, users, event.TargetUsers)
}

func TestBroadcastToNobodyPublishesNothing(t *testing.T) {
	pub := &MockEventPublisher{}
	helper := NewSSEBroadcastHelper(pub)

	assert.NoError(t, helper.BroadcastToUsers(context.Background(), nil, "x", nil))
	assert.NoError(t, helper.BroadcastToUsers(context.Background(), []string{}, "x", nil))
	assert.NoError(t, helper.NotifyUser(context.Background(), "", "x", nil))
	assert.Empty(t, pub.PublishedEvents)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestBroadcastToUsersDropsBlankAndDuplicates(t *testing.T) {
	pub := &MockEventPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
	helper := NewSSEBroadcastHelper(pub)

	require.NoError(t, helper.BroadcastToUsers(context.Background(), []string{"bob", "", "alice", "bob"}, MethodGuideStateChanged, nil))
	event := pub.PublishedEvents[0].(*SSENotificationEvent)
	assert.Equal(t, []string{"bob", "alice"}, event.TargetUsers)

	require.NoError(t, helper.BroadcastToUsers(context.Background(), []string{"", ""}, MethodGuideStateChanged, nil))
	assert.Len(t, pub.PublishedEvents, 1)
}

func TestNotifyUser(t *testing.T) {
	pub := &MockEventPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
	helper := NewSSEBroadcastHelper(pub)

	require.NoError(t, helper.NotifyUser(context.Background(), "alice", MethodGuideLocationLost, map[string]string{"reason": "gps"}))
	event := pub.PublishedEvents[0].(*SSENotificationEvent)
	assert.Equal(t, []string{"alice"}, event.TargetUsers)
}

func TestPublishErrorPropagates(t *testing.T) {
	pub := &MockEventPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("bus down"))
	helper := NewSSEBroadcastHelper(pub)

	assert.EqualError(t, helper.BroadcastToAll(context.Background(), "x", nil), "bus down")
}
