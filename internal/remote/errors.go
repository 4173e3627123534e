package remote

import "errors"

// Error taxonomy for remote invocations. Every failure leaving this package
// wraps exactly one of these sentinels so call sites can classify with
// errors.Is instead of string matching.
var (
	// ErrAuth means the credential is missing, malformed, or rejected by
	// the remote. Fatal to initialization; surfaced to the user.
	ErrAuth = errors.New("invalid or missing access token")

	// ErrConnection means the remote address is unreachable or the remote
	// refused the request. Recoverable via retry or fallback.
	ErrConnection = errors.New("remote service unreachable")

	// ErrProtocol means the remote answered with an empty or malformed
	// payload. Recoverable via fallback.
	ErrProtocol = errors.New("malformed remote response")

	// ErrRemoteCall is a generic call failure. Recoverable via fallback
	// for generation/chat, fatal for save/export operations.
	ErrRemoteCall = errors.New("remote call failed")
)

// Recoverable reports whether err is one of the failure kinds that an
// operation with a local equivalent may absorb into fallback mode.
func Recoverable(err error) bool {
	return errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrProtocol) ||
		errors.Is(err, ErrRemoteCall)
}
