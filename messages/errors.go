package messages

import (
	"errors"
	"fmt"
)

// ErrorKind identifies an error code returned by the channel server
type ErrorKind int

const (
	ErrorUnmapped ErrorKind = iota
	ErrorUnknownCommand
	ErrorInternalServer
	ErrorInvalidJSON
	ErrorInvalidRequest
	ErrorNotAuthorized
	ErrorInvalidUsername
	ErrorInvalidPassword
	ErrorNotLoggedIn
	ErrorNotEnoughParams
	ErrorServerClosedConnection
	ErrorChannelNotReady
	ErrorListenOnlyConnection
	ErrorFailedToStartStream
	ErrorFailedToStopStream
	ErrorFailedToSendData
	ErrorInvalidAudioPacket
)

// Server error sentinels, matched with errors.Is against a *ServerError
var (
	ErrUnmappedServerError    = errors.New("unmapped server error")
	ErrUnknownCommand         = errors.New("unknown command")
	ErrInternalServer         = errors.New("internal server error")
	ErrInvalidJSON            = errors.New("invalid json")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrNotAuthorized          = errors.New("not authorized")
	ErrInvalidUsername        = errors.New("invalid username")
	ErrInvalidPassword        = errors.New("invalid password")
	ErrNotLoggedIn            = errors.New("not logged in")
	ErrNotEnoughParams        = errors.New("not enough params")
	ErrServerClosedConnection = errors.New("server closed connection")
	ErrChannelNotReady        = errors.New("channel is not ready")
	ErrListenOnlyConnection   = errors.New("listen only connection")
	ErrFailedToStartStream    = errors.New("failed to start stream")
	ErrFailedToStopStream     = errors.New("failed to stop stream")
	ErrFailedToSendData       = errors.New("failed to send data")
	ErrInvalidAudioPacket     = errors.New("invalid audio packet")
)

type errorEntry struct {
	code        string
	sentinel    error
	description string
}

// Error codes from the channel API reference
var errorTable = map[ErrorKind]errorEntry{
	ErrorUnknownCommand:         {"unknown command", ErrUnknownCommand, "Server didn't recognize the command received from the client."},
	ErrorInternalServer:         {"internal server error", ErrInternalServer, "An internal error occurred within the server."},
	ErrorInvalidJSON:            {"invalid json", ErrInvalidJSON, "The command received included malformed JSON."},
	ErrorInvalidRequest:         {"invalid request", ErrInvalidRequest, "The server couldn't recognize command format."},
	ErrorNotAuthorized:          {"not authorized", ErrNotAuthorized, "Username, password or token are not valid."},
	ErrorInvalidUsername:        {"invalid username", ErrInvalidUsername, "Username is not valid."},
	ErrorInvalidPassword:        {"invalid password", ErrInvalidPassword, "Password is not valid."},
	ErrorNotLoggedIn:            {"not logged in", ErrNotLoggedIn, "Server received a command before successful logon."},
	ErrorNotEnoughParams:        {"not enough params", ErrNotEnoughParams, "The command doesn't include some of the required attributes."},
	ErrorServerClosedConnection: {"server closed connection", ErrServerClosedConnection, "The connection to the network was closed. You can try re-connecting."},
	ErrorChannelNotReady:        {"channel is not ready", ErrChannelNotReady, "Channel is not yet connected. Wait for channel online status before sending a message."},
	ErrorListenOnlyConnection:   {"listen only connection", ErrListenOnlyConnection, "The client tried to send a message over listen-only connection."},
	ErrorFailedToStartStream:    {"failed to start stream", ErrFailedToStartStream, "Unable to start the stream for unknown reason. You can try again later."},
	ErrorFailedToStopStream:     {"failed to stop stream", ErrFailedToStopStream, "Unable to stop the stream for unknown reason. This error is safe to ignore."},
	ErrorFailedToSendData:       {"failed to send data", ErrFailedToSendData, "An error occurred while trying to send stream data packet."},
	ErrorInvalidAudioPacket:     {"invalid audio packet", ErrInvalidAudioPacket, "Malformed audio packet is received."},
}

var kindByCode = func() map[string]ErrorKind {
	m := make(map[string]ErrorKind, len(errorTable))
	for kind, entry := range errorTable {
		m[entry.code] = kind
	}
	return m
}()

// LookupErrorKind maps a server error string to its kind. Unknown strings
// return ErrorUnmapped and an error wrapping ErrUnmappedServerError.
func LookupErrorKind(code string) (ErrorKind, error) {
	kind, ok := kindByCode[code]
	if !ok {
		return ErrorUnmapped, fmt.Errorf("%w: %q", ErrUnmappedServerError, code)
	}
	return kind, nil
}

// String returns the server's error code for the kind
func (k ErrorKind) String() string {
	if entry, ok := errorTable[k]; ok {
		return entry.code
	}
	return "unmapped"
}

// Description explains the condition in plain words
func (k ErrorKind) Description() string {
	if entry, ok := errorTable[k]; ok {
		return entry.description
	}
	return "The server returned an error code this client does not know."
}

// Sentinel returns the package-level error matching the kind
func (k ErrorKind) Sentinel() error {
	if entry, ok := errorTable[k]; ok {
		return entry.sentinel
	}
	return ErrUnmappedServerError
}

// ServerError is a fatal error reported by the server in a control message
type ServerError struct {
	Kind ErrorKind
	Code string // as sent by the server
}

// NewServerError classifies a server error string
func NewServerError(code string) *ServerError {
	kind, _ := LookupErrorKind(code)
	return &ServerError{Kind: kind, Code: code}
}

func (e *ServerError) Error() string {
	if e.Kind == ErrorUnmapped {
		return fmt.Sprintf("server error: %s: %q", ErrUnmappedServerError, e.Code)
	}
	return fmt.Sprintf("server error: %s", e.Code)
}

func (e *ServerError) Unwrap() error {
	return e.Kind.Sentinel()
}
