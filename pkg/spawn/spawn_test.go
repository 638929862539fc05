//go:build linux

package spawn

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/go-inetd/superserver/pkg/config"
	"github.com/go-inetd/superserver/pkg/readiness"
)

func TestSpawnTCPWaitModeRemovesSocketAndRecordsPID(t *testing.T) {
	listenFD, clientFD := tcpListener(t)
	defer unix.Close(listenFD)
	defer unix.Close(clientFD)

	d := &config.Descriptor{
		Path:     "/bin/true",
		Name:     "true",
		Protocol: config.TCP,
		Mode:     config.Wait,
		Socket:   listenFD,
	}
	ready := readiness.New(listenFD)

	s := New()
	if err := s.Spawn(d, ready); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if ready.Contains(listenFD) {
		t.Errorf("wait-mode socket still in readiness set after spawn")
	}
	if d.PendingPID == 0 {
		t.Errorf("PendingPID not recorded for wait-mode spawn")
	}

	unix.Wait4(d.PendingPID, nil, 0, nil)
}

func TestSpawnTCPNoWaitLeavesSocketAlone(t *testing.T) {
	listenFD, clientFD := tcpListener(t)
	defer unix.Close(listenFD)
	defer unix.Close(clientFD)

	d := &config.Descriptor{
		Path:     "/bin/true",
		Name:     "true",
		Protocol: config.TCP,
		Mode:     config.NoWait,
		Socket:   listenFD,
	}
	ready := readiness.New(listenFD)

	s := New()
	if err := s.Spawn(d, ready); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if !ready.Contains(listenFD) {
		t.Errorf("nowait socket was removed from readiness set")
	}
	if d.PendingPID != 0 {
		t.Errorf("PendingPID = %d, want 0 for nowait spawn", d.PendingPID)
	}

	if d.PendingPID != 0 {
		unix.Wait4(d.PendingPID, nil, 0, nil)
	}
}

// TestSpawnUDPSocketSurvivesGC guards against a regression where wrapping
// the long-lived UDP listening socket in os.NewFile (to hand it to the
// child as stdio) left a finalizer armed that would close the socket the
// first time the garbage collector reclaimed the wrapper, since Spawn
// never retains it past returning.
func TestSpawnUDPSocketSurvivesGC(t *testing.T) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	defer unix.Close(fd)
	if err := unix.Bind(fd, &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}); err != nil {
		t.Fatalf("bind: %v", err)
	}

	d := &config.Descriptor{
		Path:     "/bin/true",
		Name:     "true",
		Protocol: config.UDP,
		Mode:     config.Wait,
		Socket:   fd,
	}
	ready := readiness.New(fd)

	s := New()
	if err := s.Spawn(d, ready); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	unix.Wait4(d.PendingPID, nil, 0, nil)

	runtime.GC()
	runtime.GC()

	if _, err := unix.Getsockname(fd); err != nil {
		t.Fatalf("listening socket was closed out from under us: %v", err)
	}
}

// TestSpawnBadPathReturnsForkError covers spec scenario S6 (config path
// does not exist) as this architecture actually behaves, not as spec §7
// describes it for a raw fork/exec original: there is no separate child
// process that runs user Go code and reports its own exec-failure exit
// code asynchronously through the Reaper. os/exec's internal exec-failure
// pipe makes syscall.forkExec detect and reap the failed child itself,
// so the failure surfaces synchronously, here, as a *ForkError from
// cmd.Start() — before Spawn ever touches PendingPID or the Readiness
// Set, and before any SIGCHLD fires for a Reaper to observe.
func TestSpawnBadPathReturnsForkError(t *testing.T) {
	listenFD, clientFD := tcpListener(t)
	defer unix.Close(listenFD)
	defer unix.Close(clientFD)

	d := &config.Descriptor{
		Path:     "/nonexistent/path/to/a/service/binary",
		Name:     "binary",
		Protocol: config.TCP,
		Mode:     config.Wait,
		Socket:   listenFD,
	}
	ready := readiness.New(listenFD)

	s := New()
	err := s.Spawn(d, ready)
	if err == nil {
		t.Fatal("expected an error for a nonexistent service path")
	}
	var forkErr *ForkError
	if !errors.As(err, &forkErr) {
		t.Fatalf("Spawn error = %T (%v), want *ForkError", err, err)
	}

	// Spawn never got far enough to remove the wait-mode socket or record
	// a PID: the failure happened before cmd.Start() returned control.
	if d.PendingPID != 0 {
		t.Errorf("PendingPID = %d, want 0 after a synchronous fork/exec failure", d.PendingPID)
	}
	if !ready.Contains(listenFD) {
		t.Error("listening socket was removed from the readiness set despite the spawn failing")
	}
}

// tcpListener opens a real loopback TCP listener and connects a client to
// it so Spawn's accept4 call has a pending connection to take.
func tcpListener(t *testing.T) (listenFD, clientFD int) {
	t.Helper()

	lfd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	if err := unix.Bind(lfd, &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}); err != nil {
		unix.Close(lfd)
		t.Fatalf("bind: %v", err)
	}
	if err := unix.Listen(lfd, 1); err != nil {
		unix.Close(lfd)
		t.Fatalf("listen: %v", err)
	}
	sa, err := unix.Getsockname(lfd)
	if err != nil {
		unix.Close(lfd)
		t.Fatalf("getsockname: %v", err)
	}
	addr, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		unix.Close(lfd)
		t.Fatalf("unexpected sockaddr type %T", sa)
	}

	cfd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		unix.Close(lfd)
		t.Fatalf("client socket: %v", err)
	}
	if err := unix.Connect(cfd, &unix.SockaddrInet4{Addr: addr.Addr, Port: addr.Port}); err != nil {
		unix.Close(lfd)
		unix.Close(cfd)
		t.Fatalf("connect: %v", err)
	}

	// Give the kernel a moment to complete the loopback handshake so
	// accept4 inside Spawn doesn't race ahead of it.
	time.Sleep(10 * time.Millisecond)

	return lfd, cfd
}
