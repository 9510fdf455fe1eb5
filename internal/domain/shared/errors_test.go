package shared

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		code     int
	}{
		{"invalid input", ErrInvalidInputf("bad lat %f", 91.0), ErrInvalidInput, ErrCodeInvalidInput},
		{"not found", ErrNotFoundf("route r1"), ErrNotFound, ErrCodeNotFound},
		{"session closed", ErrSessionClosedf("s1"), ErrSessionClosed, ErrCodeSessionClosed},
		{"session missing", ErrSessionNotFoundf("u1"), ErrSessionNotFound, ErrCodeSessionNotFound},
		{"playback", NewDomainError(ErrCodePlaybackFailure, "decoder died"), ErrPlaybackFailure, ErrCodePlaybackFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.sentinel))
			assert.Equal(t, tt.code, CodeOf(tt.err))
		})
	}
}

func TestWrapDomainErrorKeepsCause(t *testing.T) {
	err := WrapDomainError(io.ErrUnexpectedEOF, ErrCodeLocationUnavailable, "gps stream ended")

	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.True(t, errors.Is(err, ErrLocationUnavailable))
	assert.Equal(t, ErrCodeLocationUnavailable, CodeOf(err))
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Equal(t, 0, CodeOf(nil))
	assert.Equal(t, 0, CodeOf(io.EOF))
}

func TestCoordinate(t *testing.T) {
	c, err := NewCoordinate(55.7558, 37.6173)
	assert.NoError(t, err)
	assert.Equal(t, 37.6173, c.Point().Lon())
	assert.Equal(t, 55.7558, c.Point().Lat())
	assert.Equal(t, c, CoordinateFromPoint(c.Point()))

	_, err = NewCoordinate(91, 0)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = NewCoordinate(0, 181)
	assert.Error(t, err)
}
