package entity

import "errors"

// Sentinel errors classifying every failure mode of the pricing core.
// Callers wrap them with fmt.Errorf("...: %w", err) so errors.Is still matches
// at the HTTP boundary, where they map to response status codes.
var (
	// ErrUnauthorized means the caller principal does not hold the role the
	// operation requires.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidArgument means the request was malformed before any state was
	// touched (mismatched batch lengths, nil source, incompatible base currency).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound means no routing or feed configuration exists for the asset.
	ErrNotFound = errors.New("not found")

	// ErrStalePrice means a feed's answer was carried over from an earlier round
	// than the one it reports.
	ErrStalePrice = errors.New("stale price")

	// ErrIncompleteRound means a feed round has not finished yet (zero update
	// timestamp).
	ErrIncompleteRound = errors.New("round not complete")

	// ErrInvalidPrice means a feed answered with a zero or negative quote.
	ErrInvalidPrice = errors.New("invalid price")
)
