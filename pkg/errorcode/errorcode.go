// Package errorcode enumerates the supervisor's fatal failure classes.
//
// Every supervisor-side failure class gets a distinct, stable exit code so an
// operator can correlate a process exit status with what went wrong
// without parsing log text.
package errorcode

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Code is a closed enumeration of fatal supervisor failure classes.
type Code int

const (
	_ Code = iota
	ConfigRead
	ConfigFormat
	MissingConfig
	SocketCreate
	SocketBind
	Listen
	Accept
	Fork
	Select
	Close
	Wait
)

var names = map[Code]string{
	ConfigRead:    "ConfigReadError",
	ConfigFormat:  "ConfigFormatError",
	MissingConfig: "MissingConfig",
	SocketCreate:  "SocketCreate",
	SocketBind:    "SocketBind",
	Listen:        "Listen",
	Accept:        "Accept",
	Fork:          "Fork",
	Select:        "Select",
	Close:         "Close",
	Wait:          "Wait",
}

// Spec §6/§7 also name distinct child-side exit codes (ChildExec,
// ChildClose, ChildDup) for a child that fails between fork and the
// service binary taking over. They are deliberately not modeled here:
// under the os/exec-based architecture pkg/spawn uses, the equivalent of
// an execve(2) failure is caught by syscall.forkExec's internal
// exec-failure pipe and returned synchronously from cmd.Start() as a
// *spawn.ForkError — the short-lived child is reaped by the Go runtime
// itself, never runs user Go code, and so can never call os.Exit with a
// child-side code of its own. There is no fork/exec-gap window in which
// such a code could be produced, so there is nothing to enumerate here;
// see pkg/spawn.ForkError and DESIGN.md's note on spec scenario S6.

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Die logs a human-readable diagnostic naming the failed operation and
// exits with the code's numeric value. It is the supervisor's single exit
// point for fatal errors; there is no partial-startup recovery.
func Die(c Code, err error) {
	logrus.WithField("exit_code", int(c)).Errorf("%s: %v", c, err)
	os.Exit(int(c))
}
