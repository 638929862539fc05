//go:build !linux

package proctitle

// SetProcTitle is a no-op outside Linux; gspt has no support for setting
// argv[] on other platforms, and this supervisor's fork/select/SIGCHLD
// model is POSIX-specific to begin with.
func SetProcTitle(cmd string) {}
