package iobuf

import "errors"

// ErrOverflow is returned when growing the buffer would exceed its
// configured max size.
var ErrOverflow = errors.New("iobuf: buffer would exceed max size")
