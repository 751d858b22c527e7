package segment

import (
	"errors"
	"fmt"
)

// ErrOutOfMemory is returned by Allocate when the table has reached its
// configured segment limit. This may be wrapped in another error, and
// should normally be tested using errors.Is(err, ErrOutOfMemory).
var ErrOutOfMemory = errors.New("segment: out of memory")

type tableFullError struct {
	max int
}

func (e tableFullError) Error() string {
	return fmt.Sprintf("segment: table already holds the configured maximum of %d segments", e.max)
}

func (e tableFullError) Is(err error) bool {
	return err == ErrOutOfMemory
}

// ErrInvalidAddress is returned by Free when given an address that does not
// name a currently live, freeable segment. WordAt does not return it; it
// panics with an error that matches ErrInvalidAddress.
var ErrInvalidAddress = errors.New("segment: address does not name a live segment")

type invalidAddressError struct {
	id uint32
}

func (e invalidAddressError) Error() string {
	return fmt.Sprintf("segment: no live segment with id %d", e.id)
}

func (e invalidAddressError) Is(err error) bool {
	return err == ErrInvalidAddress
}
