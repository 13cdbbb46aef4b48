package domain

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidParticipants = errors.New("a chat room needs at least 2 distinct participants")
	ErrRoomNotFound        = errors.New("chat room not found")
	ErrNotParticipant      = errors.New("user is not a participant of the chat room")

	ErrEmptyMessage   = errors.New("empty message")
	ErrMessageTooLong = errors.New("message too long")

	ErrNotAuthenticated = errors.New("connection is not logged in")
	ErrSenderMismatch   = errors.New("sender does not match the logged in user")

	ErrUserExists         = errors.New("username already taken")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")

	ErrStoreUnavailable = errors.New("store unavailable")
)

var clientErrors = []error{
	ErrInvalidInput, ErrInvalidParticipants, ErrRoomNotFound, ErrNotParticipant,
	ErrEmptyMessage, ErrMessageTooLong, ErrNotAuthenticated, ErrSenderMismatch,
	ErrUserExists, ErrUserNotFound, ErrInvalidCredentials, ErrInvalidToken,
}

// IsClientError reports whether err is caused by the request rather than the server.
func IsClientError(err error) bool {
	return PublicMessage(err) != ErrStoreUnavailable.Error()
}

// PublicMessage is the text a client may see for err. Anything that is not
// a known client error is reported as ErrStoreUnavailable.
func PublicMessage(err error) string {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return ErrStoreUnavailable.Error()
}
