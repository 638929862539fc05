//go:build linux

// Package reaper turns SIGCHLD delivery into reap events for the Dispatch
// Loop. It deliberately does not touch the Service List or Readiness Set
// itself — applying a reap event (clearing pending_pid, reinserting a
// wait-mode socket) is the Dispatch Loop's job alone, so that those
// structures have exactly one owner instead of relying on the original
// single-threaded-cooperative assumption that doesn't hold once SIGCHLD
// handling is a real goroutine (see spec §5, §9).
//
// Because signal delivery can coalesce, every wakeup drains with
// WNOHANG until no more children are reapable, mirroring the "one
// invocation may represent several exits" note in spec §4.6.
package reaper

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Event reports one reaped child.
type Event struct {
	PID      int
	ExitCode int
	Signaled bool
}

// Reaper watches for SIGCHLD and posts one Event per reaped child onto its
// events channel, then writes a single byte to wakeFD so a Dispatch Loop
// blocked in select(2) on that fd observes the interruption.
type Reaper struct {
	wakeFD int
	events chan Event
	log    *logrus.Logger
}

// New builds a Reaper. log receives one entry per reaped child; pass nil
// to use logrus's default/standard logger.
func New(wakeFD int, log *logrus.Logger) *Reaper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reaper{
		wakeFD: wakeFD,
		events: make(chan Event, 64),
		log:    log,
	}
}

// Events returns the channel the Dispatch Loop drains after it observes
// the self-pipe wakeup.
func (r *Reaper) Events() <-chan Event { return r.events }

// Start installs the SIGCHLD handler and runs until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, unix.SIGCHLD)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				r.drain()
			}
		}
	}()
}

func (r *Reaper) drain() {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err != unix.ECHILD {
				r.log.Warnf("reaper: wait4: %v", err)
			}
			return
		}
		if pid <= 0 {
			return
		}

		ev := Event{PID: pid}
		switch {
		case ws.Exited():
			ev.ExitCode = ws.ExitStatus()
			r.log.WithField("pid", pid).Infof("child exited with status %d", ev.ExitCode)
		case ws.Signaled():
			ev.Signaled = true
			ev.ExitCode = int(ws.Signal())
			r.log.WithField("pid", pid).Warnf("child killed by signal %d", ev.ExitCode)
		default:
			r.log.WithField("pid", pid).Debugf("child wait status %v", ws)
		}

		select {
		case r.events <- ev:
		default:
			r.log.Warnf("reaper: event channel full, dropping reap event for pid %d", pid)
		}
		r.wake()
	}
}

func (r *Reaper) wake() {
	var b [1]byte
	_, _ = unix.Write(r.wakeFD, b[:])
}
