package uart

import "syscall"

// Error wraps a lower-level syscall/ioctl failure with the operation
// that triggered it, implementing frame.TransportError's expectations
// indirectly: transport-level callers translate this into a
// frame.TransportError at the Send/Recv boundary.
type Error struct {
	msg string
	err error
}

func (e Error) Error() string {
	if e.msg != "" {
		if e.err != nil {
			return e.msg + ": " + e.err.Error()
		}
		return e.msg
	}
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e Error) Unwrap() error { return e.err }

func wrapErr(msg string, err error) error {
	if err == nil {
		return nil
	}
	return Error{msg: msg, err: err}
}

// ErrClosed is returned by operations on a port whose fd has already
// been closed.
var ErrClosed = Error{"port already closed", syscall.EBADF}
