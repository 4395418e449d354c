package p2p

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

var (
	// ErrClosed is returned by operations on a peer that was already closed.
	ErrClosed = errors.New("p2p: use of closed peer connection")

	// ErrConnectionRefused is returned when nothing is listening at the dialed address.
	ErrConnectionRefused = errors.New("p2p: connection refused")

	// ErrBrokenTransport is returned when the remote end vanished mid-operation.
	ErrBrokenTransport = errors.New("p2p: broken transport")
)

// classifyError maps low-level network errors onto the package sentinels.
func classifyError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.Is(err, net.ErrClosed):
		return ErrClosed
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %w", ErrConnectionRefused, err)
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrBrokenTransport, err)
	}
	return err
}

// IsExpectedCloseError reports whether err is the normal result of a peer
// going away or being closed locally.
func IsExpectedCloseError(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, ErrClosed) ||
		errors.Is(err, ErrBrokenTransport)
}
