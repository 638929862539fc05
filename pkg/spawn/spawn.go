//go:build linux

// Package spawn implements the Spawner: accept-then-fork for TCP,
// fork-directly for UDP, with the connection rebound onto the child's
// standard streams and the process image replaced by the service binary.
package spawn

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/go-inetd/superserver/pkg/config"
	"github.com/go-inetd/superserver/pkg/metrics"
	"github.com/go-inetd/superserver/pkg/readiness"
)

// Spawner performs the accept/fork/exec dance described in spec §4.5.
// It holds no state of its own; all mutation lands on the descriptor and
// Readiness Set passed to Spawn.
type Spawner struct{}

func New() *Spawner { return &Spawner{} }

// AcceptError reports a failed accept(2) on a ready TCP listening socket.
// Spec §4.5/§7 give this the same fatality as a fork failure: the caller
// (pkg/dispatch, then pkg/supervisor) must propagate it out of the loop
// and exit with errorcode.Accept rather than log and continue, matching
// original_source/Assignment2/superserver.c's try_accept(), which calls
// die(EXIT_ACCEPT_ERROR) on the same condition.
type AcceptError struct {
	Port int
	Err  error
}

func (e *AcceptError) Error() string { return fmt.Sprintf("accept(port %d): %v", e.Port, e.Err) }
func (e *AcceptError) Unwrap() error { return e.Err }

// ForkError reports a failed fork/exec of a service binary. Under
// os/exec, this is also what surfaces when the child's execve(2) fails
// (e.g. d.Path doesn't exist): syscall.forkExec reaps that short-lived
// child itself and returns the failure synchronously from cmd.Start(),
// so it is indistinguishable here from a fork(2) resource failure — there
// is no window in which a child runs user Go code to report an exec
// failure via its own exit code and the Reaper (see pkg/errorcode's
// comment on ChildExec/ChildClose/ChildDup). Spec §4.5/§7 call a fork
// failure fatal either way, so ForkError is propagated the same as
// AcceptError, matching original_source/Assignment2/superserver.c's
// try_fork(), which calls die(EXIT_FORK_ERROR) on the same condition.
type ForkError struct {
	Path string
	Name string
	Err  error
}

func (e *ForkError) Error() string {
	return fmt.Sprintf("fork/exec %s as %s: %v", e.Path, e.Name, e.Err)
}
func (e *ForkError) Unwrap() error { return e.Err }

// Spawn handles one ready descriptor. For TCP it accepts a connection
// first, closing it in the parent once the child has its own copy (the
// listening socket itself is never handed to the child: it was created
// with FD_CLOEXEC in pkg/sockets, so exec() closes it automatically,
// which is the target-language equivalent of the original's explicit
// "close the listening socket in the child" step). For UDP the listening
// socket plays the connection's role directly and is left open in the
// parent, since it is the long-lived service socket, not a one-shot
// connection.
//
// For wait-mode services, the socket is removed from ready and the
// child's PID recorded on d before Spawn returns, so the invariant
// "Socket ∈ ReadinessSet ⇔ PendingPID == 0" holds the instant control
// returns to the Dispatch Loop.
func (s *Spawner) Spawn(d *config.Descriptor, ready *readiness.Set) error {
	connFD := d.Socket
	accepted := false

	if d.Protocol == config.TCP {
		nfd, _, err := unix.Accept4(d.Socket, unix.SOCK_CLOEXEC)
		if err != nil {
			return &AcceptError{Port: d.Port, Err: errors.Wrapf(err, "accept(port %d)", d.Port)}
		}
		connFD = nfd
		accepted = true
	}

	connFile := os.NewFile(uintptr(connFD), d.Name)
	if accepted {
		// The child gets its own copy via cmd.Stdin/Stdout/Stderr; this
		// is the parent's, and only the parent's, handle on it.
		defer connFile.Close()
	} else {
		// os.NewFile installs a runtime finalizer that closes the wrapped
		// fd once the *os.File becomes unreachable. For UDP, connFD is
		// d.Socket itself — the listening socket that must outlive this
		// call — and connFile is never retained past Spawn returning, so
		// without this the socket would get silently closed by the GC the
		// first time it collects connFile. Disarm it; d.Socket's lifetime
		// is owned by pkg/sockets for the life of the process.
		runtime.SetFinalizer(connFile, nil)
	}

	cmd := exec.Command(d.Path)
	cmd.Args = []string{d.Name}
	cmd.Env = os.Environ()
	cmd.Stdin = connFile
	cmd.Stdout = connFile
	cmd.Stderr = connFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}

	if err := cmd.Start(); err != nil {
		return &ForkError{Path: d.Path, Name: d.Name, Err: errors.Wrapf(err, "fork/exec %s as %s", d.Path, d.Name)}
	}

	metrics.SpawnsTotal.WithLabelValues(d.Name, string(d.Protocol), string(d.Mode)).Inc()

	if d.Mode == config.Wait {
		ready.Remove(d.Socket)
		d.PendingPID = cmd.Process.Pid
		metrics.ActiveChildren.WithLabelValues(d.Name).Set(1)
	}

	return nil
}
