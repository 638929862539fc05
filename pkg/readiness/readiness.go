//go:build linux

// Package readiness implements the Readiness Set: the bitmap of socket
// handles currently eligible to be dispatched.
//
// The set has exactly one owner, the Dispatch Loop goroutine; the Reaper
// never touches it directly (see pkg/reaper). This sidesteps the original
// design's reliance on signal-handler-vs-main-flow mutual exclusion, which
// has no equivalent once real goroutines are involved (see spec §5, §9).
package readiness

import "golang.org/x/sys/unix"

// Set is a mutable set of socket handles.
type Set struct {
	fds map[int]struct{}
}

// New builds a Set containing every socket in fds.
func New(fds ...int) *Set {
	s := &Set{fds: make(map[int]struct{}, len(fds))}
	for _, fd := range fds {
		s.fds[fd] = struct{}{}
	}
	return s
}

// Insert adds fd to the set. Idempotent.
func (s *Set) Insert(fd int) {
	s.fds[fd] = struct{}{}
}

// Remove deletes fd from the set. Idempotent.
func (s *Set) Remove(fd int) {
	delete(s.fds, fd)
}

// Contains reports whether fd is currently in the set.
func (s *Set) Contains(fd int) bool {
	_, ok := s.fds[fd]
	return ok
}

// Snapshot returns an independent copy. The Dispatch Loop must pass a
// scratch copy to the readiness primitive because select(2) mutates its
// argument in place.
func (s *Set) Snapshot() *Set {
	cp := &Set{fds: make(map[int]struct{}, len(s.fds))}
	for fd := range s.fds {
		cp.fds[fd] = struct{}{}
	}
	return cp
}

// FDs returns the set's members. Order is unspecified; callers that need
// deterministic dispatch order should walk the Service List instead and
// test each descriptor's socket, which is how pkg/dispatch does it
// (against the select(2) result, via IsSet).
func (s *Set) FDs() []int {
	out := make([]int, 0, len(s.fds))
	for fd := range s.fds {
		out = append(out, fd)
	}
	return out
}

// ToFdSet builds a unix.FdSet containing every member of s plus extraFDs
// (used by the Dispatch Loop to also watch its self-pipe wakeup fd), and
// returns the highest fd number present, needed as nfds for select(2).
func (s *Set) ToFdSet(extraFDs ...int) (*unix.FdSet, int) {
	var set unix.FdSet
	maxFD := 0
	add := func(fd int) {
		idx := fd / 64
		bit := uint(fd % 64)
		set.Bits[idx] |= 1 << bit
		if fd > maxFD {
			maxFD = fd
		}
	}
	for fd := range s.fds {
		add(fd)
	}
	for _, fd := range extraFDs {
		add(fd)
	}
	return &set, maxFD
}

// IsSet reports whether fd is marked ready in a unix.FdSet returned by
// select(2).
func IsSet(set *unix.FdSet, fd int) bool {
	idx := fd / 64
	bit := uint(fd % 64)
	return set.Bits[idx]&(1<<bit) != 0
}
