//go:build linux

// Package supervisor wires the Config Loader, Service Initializer,
// Dispatch Loop, and Reaper together into the running program described
// by spec §2's data flow diagram. It is the only package main calls into.
package supervisor

import (
	"errors"
	"fmt"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"

	"github.com/go-inetd/superserver/pkg/config"
	"github.com/go-inetd/superserver/pkg/dispatch"
	"github.com/go-inetd/superserver/pkg/errorcode"
	"github.com/go-inetd/superserver/pkg/metrics"
	"github.com/go-inetd/superserver/pkg/proctitle"
	"github.com/go-inetd/superserver/pkg/reaper"
	"github.com/go-inetd/superserver/pkg/signals"
	"github.com/go-inetd/superserver/pkg/sockets"
	"github.com/go-inetd/superserver/pkg/spawn"
	"github.com/go-inetd/superserver/pkg/version"
)

// Options configures one supervisor run; it is built from CLI flags by
// pkg/cli/cmds.
type Options struct {
	ConfigPath     string
	Debug          bool
	MetricsAddress string
	LogFile        string
}

// Run loads the configuration, binds every service's socket, and then
// blocks running the Dispatch Loop until a SIGINT/SIGTERM cancels it or
// the loop fails. Every failure up through
// socket binding is fatal per spec §7 and exits the process through
// errorcode.Die; there is no partial-startup recovery.
func Run(opts Options) error {
	if opts.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	proctitle.SetProcTitle(fmt.Sprintf("%s: supervisor [%s]", version.Program, opts.ConfigPath))

	list, err := config.LoadFile(opts.ConfigPath)
	if err != nil {
		errorcode.Die(classifyConfigError(err), err)
		return err // unreachable; errorcode.Die always exits
	}
	logrus.WithField("count", len(list)).Infof("loaded service list from %s", opts.ConfigPath)

	if _, code, err := sockets.BindAll(list); err != nil {
		errorcode.Die(code, err)
		return err
	}

	metrics.Serve(opts.MetricsAddress)

	loop, err := dispatch.New(list)
	if err != nil {
		errorcode.Die(errorcode.Select, err)
		return err
	}

	exitLog := logrus.StandardLogger()
	if opts.LogFile != "" {
		exitLog = logrus.New()
		exitLog.SetOutput(&lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
	}

	r := reaper.New(loop.WakeFD(), exitLog)
	loop.AttachReaper(r)

	// A second SIGINT/SIGTERM forces immediate exit via signals' own
	// os.Exit(1) path; the first just cancels ctx, letting the Dispatch
	// Loop's select(2) return and Run exit cleanly (spec §5's optional
	// shutdown-signal extension).
	ctx := signals.SetupSignalContext()
	r.Start(ctx)

	runErr := loop.Run(ctx)
	if runErr != nil && runErr != ctx.Err() {
		// A dispatch error that isn't the context's own cancellation is
		// one of: a non-EINTR select(2) failure, or a fatal Spawn error
		// (spec §4.5/§7: accept/fork failures are fatal, not logged and
		// continued — see pkg/dispatch.Loop.Run and pkg/spawn's
		// AcceptError/ForkError).
		errorcode.Die(classifyDispatchError(runErr), runErr)
	}
	return runErr
}

// classifyConfigError maps a config-loading error to its exit code.
//
// LoadFile wraps Load's errors with pkg/errors.Wrapf, so the concrete
// *config.FormatError/*config.ReadError is no longer the top-level error;
// errors.As unwraps through pkg/errors' Unwrap chain (present since
// pkg/errors v0.9) to find it.
func classifyConfigError(err error) errorcode.Code {
	var missingErr *config.MissingError
	var formatErr *config.FormatError
	var readErr *config.ReadError
	switch {
	case errors.As(err, &missingErr):
		return errorcode.MissingConfig
	case errors.As(err, &formatErr):
		return errorcode.ConfigFormat
	case errors.As(err, &readErr):
		return errorcode.ConfigRead
	default:
		return errorcode.ConfigRead
	}
}

// classifyDispatchError maps an error returned from dispatch.Loop.Run to
// its exit code: a *spawn.AcceptError or *spawn.ForkError bubbled up from
// the Spawner gets its own distinct code (spec §7), anything else is a
// select(2) failure.
func classifyDispatchError(err error) errorcode.Code {
	var acceptErr *spawn.AcceptError
	var forkErr *spawn.ForkError
	switch {
	case errors.As(err, &acceptErr):
		return errorcode.Accept
	case errors.As(err, &forkErr):
		return errorcode.Fork
	default:
		return errorcode.Select
	}
}
