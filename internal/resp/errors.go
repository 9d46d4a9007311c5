package resp

import "errors"

// ErrInvalidInput is returned for any malformed byte sequence: an
// unrecognized leading type byte, a truncated frame, a length field
// that claims more bytes than the buffer holds, or an array whose
// element count cannot be satisfied from the remaining input.
var ErrInvalidInput = errors.New("resp: invalid input")
