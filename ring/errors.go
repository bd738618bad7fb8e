package ring

import "errors"

// ErrNoSpace is returned by the reservation family when the requested side
// does not currently have enough available blocks. Callers are expected to
// yield and retry; it is never fatal.
var ErrNoSpace = errors.New("ring: no space")

// ErrInvalidArg covers reservation counts that are not a power of two, an
// empty backing-store directory, and similar boundary misuse. A zero-size
// reservation reports ErrNoSpace instead.
var ErrInvalidArg = errors.New("ring: invalid argument")

// ErrTooLarge is returned at construction time when block_size*block_count
// would exceed what a 32-bit position counter can address in one span.
var ErrTooLarge = errors.New("ring: size exceeds 32-bit position range")

// ErrBusy is returned by Zero when reservations are outstanding on either
// side. Zero is construction-time-only: this check is not synchronized
// against concurrent reservers (see design notes on cbuf_zero).
var ErrBusy = errors.New("ring: reservations outstanding")
