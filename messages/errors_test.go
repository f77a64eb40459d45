package messages

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupErrorKind(t *testing.T) {
	tests := []struct {
		code     string
		kind     ErrorKind
		sentinel error
	}{
		{"unknown command", ErrorUnknownCommand, ErrUnknownCommand},
		{"internal server error", ErrorInternalServer, ErrInternalServer},
		{"invalid json", ErrorInvalidJSON, ErrInvalidJSON},
		{"invalid request", ErrorInvalidRequest, ErrInvalidRequest},
		{"not authorized", ErrorNotAuthorized, ErrNotAuthorized},
		{"invalid username", ErrorInvalidUsername, ErrInvalidUsername},
		{"invalid password", ErrorInvalidPassword, ErrInvalidPassword},
		{"not logged in", ErrorNotLoggedIn, ErrNotLoggedIn},
		{"not enough params", ErrorNotEnoughParams, ErrNotEnoughParams},
		{"server closed connection", ErrorServerClosedConnection, ErrServerClosedConnection},
		{"channel is not ready", ErrorChannelNotReady, ErrChannelNotReady},
		{"listen only connection", ErrorListenOnlyConnection, ErrListenOnlyConnection},
		{"failed to start stream", ErrorFailedToStartStream, ErrFailedToStartStream},
		{"failed to stop stream", ErrorFailedToStopStream, ErrFailedToStopStream},
		{"failed to send data", ErrorFailedToSendData, ErrFailedToSendData},
		{"invalid audio packet", ErrorInvalidAudioPacket, ErrInvalidAudioPacket},
	}
	require.Len(t, errorTable, len(tests))

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			kind, err := LookupErrorKind(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.code, kind.String())
			assert.NotEmpty(t, kind.Description())

			serverErr := NewServerError(tt.code)
			assert.ErrorIs(t, serverErr, tt.sentinel)
			assert.NotErrorIs(t, serverErr, ErrUnmappedServerError)
			assert.Equal(t, "server error: "+tt.code, serverErr.Error())
		})
	}
}

func TestLookupErrorKindUnmapped(t *testing.T) {
	for _, code := range []string{"", "Not Authorized", "quota exceeded", "not authorized "} {
		kind, err := LookupErrorKind(code)
		assert.Equal(t, ErrorUnmapped, kind)
		assert.ErrorIs(t, err, ErrUnmappedServerError)
		assert.Contains(t, err.Error(), code)
	}
}

func TestServerErrorUnmapped(t *testing.T) {
	err := error(NewServerError("quota exceeded"))

	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, ErrorUnmapped, serverErr.Kind)
	assert.Equal(t, "quota exceeded", serverErr.Code)
	assert.ErrorIs(t, err, ErrUnmappedServerError)
	for _, sentinel := range []error{ErrNotAuthorized, ErrUnknownCommand, ErrInternalServer} {
		assert.NotErrorIs(t, err, sentinel)
	}
	assert.Equal(t, "unmapped", serverErr.Kind.String())
	assert.Contains(t, err.Error(), `"quota exceeded"`)
}
