package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport: the call could not reach or complete on the remote
	// process.
	ErrTransport = errors.New("mcp transport error")

	// ErrTimeout: the caller's deadline elapsed. It is a transport error.
	ErrTimeout = fmt.Errorf("%w: timeout", ErrTransport)

	// ErrProtocol: the remote answered but the result is not usable.
	ErrProtocol = errors.New("mcp protocol error")

	// ErrClosed: the bridge has been shut down.
	ErrClosed = fmt.Errorf("%w: bridge closed", ErrTransport)
)

func transportErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransport, fmt.Sprintf(format, args...))
}

func protocolErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}
