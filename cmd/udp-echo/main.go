//go:build linux

// Command udp-echo is the UDP companion to echo-measure (spec §1 frames
// the Hello/Measurement/Bye protocol as TCP-illustrative and the
// supervisor as protocol-agnostic; original_source/Assignment2's
// superserver.c also dispatches wait-mode UDP services directly, so this
// supplements the spec's example with a minimal UDP handler to exercise
// that path end to end — scenario S3).
//
// It inherits the listening datagram socket as fd 0/1/2 (spec §4.5: for
// UDP the listening socket plays the connection's role directly), drains
// exactly one pending datagram, and echoes it back to the sender before
// exiting. Draining here — rather than in the parent — is what lets the
// parent reinstate the socket via the Reaper without the same datagram
// re-triggering dispatch.
package main

import (
	"os"

	"golang.org/x/sys/unix"
)

const maxDatagram = 65507

func main() {
	buf := make([]byte, maxDatagram)
	n, from, err := unix.Recvfrom(0, buf, 0)
	if err != nil {
		os.Exit(1)
	}
	if err := unix.Sendto(0, buf[:n], 0, from); err != nil {
		os.Exit(1)
	}
}
