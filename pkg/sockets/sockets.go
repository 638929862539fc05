//go:build linux

// Package sockets is the Service Initializer: it binds (and, for TCP,
// listens on) one socket per configured service and records the resulting
// OS handle on the descriptor.
package sockets

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/go-inetd/superserver/pkg/config"
	"github.com/go-inetd/superserver/pkg/errorcode"
)

// listenBacklog is deliberately small; this supervisor expects to drain
// its accept queue promptly, not to absorb bursts.
const listenBacklog = 8

// BindAll binds every descriptor in list, in order, and returns the
// largest socket handle across all of them (some readiness primitives
// need it). Any syscall failure is fatal: there is no partial-startup
// recovery, so BindAll returns the failed operation's errorcode.Code
// alongside the wrapped OS error.
func BindAll(list config.List) (maxFD int, code errorcode.Code, err error) {
	for _, d := range list {
		fd, bindErr := bindOne(d)
		if bindErr != nil {
			return 0, bindErr.code, bindErr.err
		}
		d.Socket = fd
		if fd > maxFD {
			maxFD = fd
		}
	}
	return maxFD, 0, nil
}

type bindError struct {
	code errorcode.Code
	err  error
}

func bindOne(d *config.Descriptor) (int, *bindError) {
	var sockType int
	switch d.Protocol {
	case config.TCP:
		sockType = unix.SOCK_STREAM
	case config.UDP:
		sockType = unix.SOCK_DGRAM
	default:
		return 0, &bindError{errorcode.SocketCreate, errors.Errorf("unknown protocol %q", d.Protocol)}
	}

	fd, err := unix.Socket(unix.AF_INET, sockType, 0)
	if err != nil {
		return 0, &bindError{errorcode.SocketCreate, errors.Wrapf(err, "socket(%s, port %d)", d.Protocol, d.Port)}
	}

	// The supervisor's children must never inherit the listening socket
	// (spec §4.5, §5): marking it close-on-exec here is the target-language
	// equivalent of the original's explicit "close the listening socket in
	// the child" step, since this process never calls exec() on itself.
	unix.CloseOnExec(fd)

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return 0, &bindError{errorcode.SocketCreate, errors.Wrapf(err, "setsockopt SO_REUSEADDR (port %d)", d.Port)}
	}

	addr := &unix.SockaddrInet4{Port: d.Port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return 0, &bindError{errorcode.SocketBind, errors.Wrapf(err, "bind(%s, port %d)", d.Protocol, d.Port)}
	}

	if d.Protocol == config.TCP {
		if err := unix.Listen(fd, listenBacklog); err != nil {
			unix.Close(fd)
			return 0, &bindError{errorcode.Listen, errors.Wrapf(err, "listen(port %d)", d.Port)}
		}
	}

	return fd, nil
}
