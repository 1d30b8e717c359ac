package chat

import "errors"

// Sentinel roots for the failure classes the transport layer distinguishes.
// Specific failures wrap one of these with fmt.Errorf and %w so callers can
// classify with errors.Is.
var (
	// ErrNotAuthenticated means no valid identity was supplied at connect
	// time. The connection is closed immediately.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrValidation covers malformed envelopes, unknown message types and
	// missing required payload fields.
	ErrValidation = errors.New("validation failed")

	// ErrNotChannelMember means the sender lacks membership in the target
	// channel.
	ErrNotChannelMember = errors.New("not a channel member")

	// ErrChannelNotFound means the referenced channel does not exist.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrUserNotFound means the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrRateLimited means the connection exceeded its send budget.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Validation limits shared by the ingestion pipeline and the transport.
const (
	MaxContentLength = 5000
)

// ErrorCode returns the wire code for an error, used in the error payload
// sent back to the offending connection. Unclassified errors are reported
// as internal.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return "authentication_error"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotChannelMember):
		return "authorization_error"
	case errors.Is(err, ErrChannelNotFound), errors.Is(err, ErrUserNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal_error"
	}
}
