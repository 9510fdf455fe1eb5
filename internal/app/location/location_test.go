package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danghamo/tourguide/internal/domain/guide"
	"github.com/danghamo/tourguide/internal/domain/shared"
	"github.com/danghamo/tourguide/pkg/logger"
)

func fixAt(lat, lon float64) guide.Fix {
	return guide.Fix{Coordinate: shared.Coordinate{Lat: lat, Lon: lon}}
}

func receive(t *testing.T, fixes <-chan guide.Fix) guide.Fix {
	t.Helper()
	select {
	case fix, ok := <-fixes:
		require.True(t, ok, "stream closed")
		return fix
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fix")
		return guide.Fix{}
	}
}

func TestPushSourceDeliversAndThrottles(t *testing.T) {
	src := NewPushSource(logger.NewDefault())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fixes, _ := src.Subscribe(ctx, time.Hour)

	require.NoError(t, src.Push(fixAt(55.75, 37.61)))
	require.NoError(t, src.Push(fixAt(55.76, 37.62)))

	got := receive(t, fixes)
	assert.Equal(t, 55.75, got.Lat)
	assert.False(t, got.Timestamp.IsZero())

	select {
	case extra := <-fixes:
		t.Fatalf("throttled fix delivered: %+v", extra)
	default:
	}
}

func TestPushSourceRejectsInvalidFix(t *testing.T) {
	src := NewPushSource(nil)
	err := src.Push(fixAt(91, 0))
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestPushSourceCancelEndsStream(t *testing.T) {
	src := NewPushSource(nil)
	ctx, cancel := context.WithCancel(context.Background())

	fixes, errs := src.Subscribe(ctx, time.Millisecond)
	assert.Equal(t, 1, src.Subscribers())

	cancel()
	assert.Eventually(t, func() bool { return src.Subscribers() == 0 }, time.Second, 5*time.Millisecond)

	_, ok := <-fixes
	assert.False(t, ok)
	_, ok = <-errs
	assert.False(t, ok, "cancel is not an error")
}

func TestPushSourceFail(t *testing.T) {
	src := NewPushSource(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fixes, errs := src.Subscribe(ctx, time.Millisecond)
	src.Fail(errors.New("permission revoked"))

	_, ok := <-fixes
	assert.False(t, ok)

	err := <-errs
	assert.ErrorIs(t, err, shared.ErrLocationUnavailable)
	assert.Equal(t, shared.ErrCodeLocationUnavailable, shared.CodeOf(err))

	// restartable
	fixes, _ = src.Subscribe(ctx, time.Millisecond)
	require.NoError(t, src.Push(fixAt(1, 1)))
	assert.Equal(t, 1.0, receive(t, fixes).Lat)
}

const trackYAML = `
name: boulevard
fixes:
  - lat: 55.7558
    lon: 37.6173
  - lat: 55.7564
    lon: 37.6173
    accuracy: 4.5
`

func TestParseTrack(t *testing.T) {
	track, err := ParseTrack([]byte(trackYAML))
	require.NoError(t, err)

	assert.Equal(t, "boulevard", track.Name)
	require.Len(t, track.Fixes, 2)
	assert.Equal(t, 55.7564, track.Fixes[1].Lat)
	assert.Equal(t, 4.5, track.Fixes[1].Accuracy)
}

func TestParseTrackInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":         "name: x\nfixes: []\n",
		"bad latitude":  "fixes:\n  - lat: 123\n    lon: 1\n",
		"unknown field": "fixes:\n  - lat: 1\n    lon: 1\n    speed: 3\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTrack([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestReplaySourcePlaysInOrder(t *testing.T) {
	track, err := ParseTrack([]byte(trackYAML))
	require.NoError(t, err)

	src := NewReplaySource(track, nil)
	fixes, errs := src.Subscribe(context.Background(), time.Millisecond)

	assert.Equal(t, 55.7558, receive(t, fixes).Lat)
	assert.Equal(t, 55.7564, receive(t, fixes).Lat)

	_, ok := <-fixes
	assert.False(t, ok)
	_, ok = <-errs
	assert.False(t, ok)
}

func TestReplaySourceLoopsUntilCancelled(t *testing.T) {
	track, err := ParseTrack([]byte(trackYAML))
	require.NoError(t, err)
	track.Loop = true

	ctx, cancel := context.WithCancel(context.Background())
	fixes, _ := NewReplaySource(track, nil).Subscribe(ctx, time.Millisecond)

	for i := 0; i < 5; i++ {
		receive(t, fixes)
	}
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-fixes:
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestHubKeepsOneSourcePerUser(t *testing.T) {
	hub := NewHub(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fixes, _ := hub.Source("alice").Subscribe(ctx, time.Millisecond)
	assert.Equal(t, 1, hub.Len())

	require.NoError(t, hub.Push("alice", fixAt(2, 2)))
	assert.Equal(t, 2.0, receive(t, fixes).Lat)

	require.NoError(t, hub.Push("bob", fixAt(3, 3)))
	select {
	case fix := <-fixes:
		t.Fatalf("received another user's fix: %+v", fix)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubEvictsSourceWhenLastSubscriptionEnds(t *testing.T) {
	hub := NewHub(nil)

	first, stopFirst := context.WithCancel(context.Background())
	second, stopSecond := context.WithCancel(context.Background())
	defer stopSecond()
	hub.Source("alice").Subscribe(first, time.Millisecond)
	fixes, _ := hub.Source("alice").Subscribe(second, time.Millisecond)
	require.Equal(t, 1, hub.Len())

	stopFirst()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, hub.Len())
	require.NoError(t, hub.Push("alice", fixAt(4, 4)))
	assert.Equal(t, 4.0, receive(t, fixes).Lat)

	stopSecond()
	assert.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, time.Millisecond)
}

func TestHubPushWithoutSessionIsDropped(t *testing.T) {
	hub := NewHub(nil)

	require.NoError(t, hub.Push("ghost", fixAt(1, 1)))
	hub.Fail("ghost", errors.New("denied"))
	assert.Equal(t, 0, hub.Len())

	err := hub.Push("ghost", fixAt(91, 0))
	require.Error(t, err)
	assert.Equal(t, 0, hub.Len())
}

func TestHubResubscribeAfterEvictionGetsFreshSource(t *testing.T) {
	hub := NewHub(nil)

	ctx, cancel := context.WithCancel(context.Background())
	hub.Source("alice").Subscribe(ctx, time.Millisecond)
	cancel()
	require.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, time.Millisecond)

	again, stop := context.WithCancel(context.Background())
	defer stop()
	fixes, _ := hub.Source("alice").Subscribe(again, time.Millisecond)
	require.NoError(t, hub.Push("alice", fixAt(5, 5)))
	assert.Equal(t, 5.0, receive(t, fixes).Lat)
}
