//go:build linux

// Package dispatch implements the Dispatch Loop: the single goroutine
// that owns the Service List and Readiness Set, blocks on select(2) for
// read-readiness, and hands ready descriptors to the Spawner.
//
// It also owns applying Reaper events. A self-pipe fd is included in
// every select(2) call; the Reaper writes to it after posting events,
// which is what lets a SIGCHLD-driven wakeup interrupt a blocked wait
// without the two goroutines ever touching the Readiness Set at the same
// time (see spec §4.4, §4.6, §5, and the re-architecture notes in §9).
package dispatch

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/go-inetd/superserver/pkg/config"
	"github.com/go-inetd/superserver/pkg/metrics"
	"github.com/go-inetd/superserver/pkg/reaper"
	"github.com/go-inetd/superserver/pkg/readiness"
	"github.com/go-inetd/superserver/pkg/spawn"
)

// Spawner is the subset of *spawn.Spawner the loop depends on, so tests
// can substitute a fake.
type Spawner interface {
	Spawn(d *config.Descriptor, ready *readiness.Set) error
}

// Loop is the Dispatch Loop.
type Loop struct {
	list    config.List
	ready   *readiness.Set
	spawner Spawner
	reaper  *reaper.Reaper

	wakeRead  int
	wakeWrite int
}

// New builds a Loop over list, whose sockets must already be bound
// (pkg/sockets.BindAll). It creates the self-pipe; call WakeFD to wire a
// Reaper to the write end, then AttachReaper so the loop can drain its
// events after observing the wakeup.
func New(list config.List) (*Loop, error) {
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK); err != nil {
		return nil, errors.Wrap(err, "self-pipe")
	}

	fdNums := make([]int, 0, len(list))
	for _, d := range list {
		fdNums = append(fdNums, d.Socket)
	}

	return &Loop{
		list:      list,
		ready:     readiness.New(fdNums...),
		spawner:   spawn.New(),
		wakeRead:  fds[0],
		wakeWrite: fds[1],
	}, nil
}

// WakeFD is the fd a Reaper should write to on every reap event.
func (l *Loop) WakeFD() int { return l.wakeWrite }

// AttachReaper wires r's event stream into the loop. Must be called
// before Run.
func (l *Loop) AttachReaper(r *reaper.Reaper) { l.reaper = r }

// Run blocks forever, dispatching ready sockets and applying reap events,
// until ctx is cancelled, select(2) fails for a reason other than signal
// interruption, or the Spawner reports a fatal *spawn.AcceptError/
// *spawn.ForkError. Spec §4.5/§7: accept and fork failures are fatal to
// the whole supervisor, exactly like a non-EINTR select(2) failure — they
// are not logged-and-continued, so any such error here propagates out of
// Run for pkg/supervisor to turn into errorcode.Die(errorcode.Accept/Fork, ...).
func (l *Loop) Run(ctx context.Context) error {
	// Wake a blocked select(2) through the self-pipe once ctx is
	// cancelled, so the ctx check at the top of the loop is reached.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			var b [1]byte
			_, _ = unix.Write(l.wakeWrite, b[:])
		case <-stop:
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		snap := l.ready.Snapshot()
		fdset, maxFD := snap.ToFdSet(l.wakeRead)

		n, err := unix.Select(maxFD+1, fdset, nil, nil, nil)
		if err != nil {
			if err == unix.EINTR {
				// Spec §4.4: an interrupted wait is a no-op iteration,
				// not an error; restart and let the Reaper's reinserted
				// socket (if any) be observed on the next pass.
				continue
			}
			return errors.Wrap(err, "select")
		}
		if n == 0 {
			continue
		}

		if readiness.IsSet(fdset, l.wakeRead) {
			l.drainWake()
			l.applyReapEvents()
		}

		for _, d := range l.list {
			if d.Socket < 0 || !readiness.IsSet(fdset, d.Socket) {
				continue
			}
			if err := l.spawner.Spawn(d, l.ready); err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{
					"service":  d.Name,
					"port":     d.Port,
					"protocol": d.Protocol,
				}).Error("spawn failed")
				return err
			}
		}
	}
}

func (l *Loop) drainWake() {
	var buf [64]byte
	for {
		if _, err := unix.Read(l.wakeRead, buf[:]); err != nil {
			return
		}
	}
}

func (l *Loop) applyReapEvents() {
	for {
		select {
		case ev := <-l.reaper.Events():
			l.applyOne(ev)
		default:
			return
		}
	}
}

func (l *Loop) applyOne(ev reaper.Event) {
	for _, d := range l.list {
		if d.Mode == config.Wait && d.PendingPID == ev.PID {
			d.PendingPID = 0
			l.ready.Insert(d.Socket)
			metrics.ReapsTotal.WithLabelValues(d.Name).Inc()
			metrics.ActiveChildren.WithLabelValues(d.Name).Set(0)
			logrus.WithFields(logrus.Fields{
				"service": d.Name,
				"pid":     ev.PID,
				"port":    d.Port,
			}).Info("wait-mode handler finished, socket reinstated")
			return
		}
	}
	// No matching wait-mode descriptor: a nowait child, reaped for
	// hygiene only (spec §3, Child Registry).
	logrus.WithField("pid", ev.PID).Debug("reaped nowait child")
}
