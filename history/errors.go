package history

import "errors"

var (
	// ErrMalformed is logged when the persisted record cannot be decoded.
	// The collection is treated as empty.
	ErrMalformed = errors.New("malformed history record")

	// ErrUnknownKind is returned by ParseKind.
	ErrUnknownKind = errors.New("unknown history kind")
)
