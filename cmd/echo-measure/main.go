// Command echo-measure is the illustrative TCP service binary from spec
// §4.7: it inherits its connection as stdin/stdout/stderr and runs one
// Hello/Measurement/Bye session over it.
//
// Deliberately no logging here: stderr is the client's socket, not a
// diagnostic channel (all three standard streams are bound to the same
// connection, per spec §4.5/§6), so writing a log line to it would
// corrupt the wire protocol the process exists to speak. The exit code
// is the only signal available to the supervisor's Reaper.
package main

import (
	"os"

	"github.com/go-inetd/superserver/pkg/echo"
)

func main() {
	if err := echo.Serve(os.Stdin, os.Stdout); err != nil {
		os.Exit(1)
	}
}
