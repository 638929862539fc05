//go:build linux

package cmds

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/go-inetd/superserver/pkg/supervisor"
	"github.com/go-inetd/superserver/pkg/version"
)

var (
	configPath     string
	debug          bool
	metricsAddress string
	logFile        string

	ConfigFlag = cli.StringFlag{
		Name:        "config, c",
		Usage:       "path to the service list",
		Value:       "conf.txt",
		Destination: &configPath,
		EnvVar:      version.ProgramUpper + "_CONFIG",
	}
	DebugFlag = cli.BoolFlag{
		Name:        "debug",
		Usage:       "(logging) turn on debug logs",
		Destination: &debug,
		EnvVar:      version.ProgramUpper + "_DEBUG",
	}
	MetricsAddressFlag = cli.StringFlag{
		Name:        "metrics-address",
		Usage:       "address to serve Prometheus metrics on, e.g. :9100 (empty disables)",
		Destination: &metricsAddress,
		EnvVar:      version.ProgramUpper + "_METRICS_ADDRESS",
	}
	LogFlag = cli.StringFlag{
		Name:        "log",
		Usage:       "optional rotating log file for child-exit records",
		Destination: &logFile,
		EnvVar:      version.ProgramUpper + "_LOG",
	}
)

// NewApp builds the single-command CLI application. Unlike a multi-role
// binary this program has no subcommands: it is one supervisor, always
// run the same way, so its flags live directly on the root app.
func NewApp() *cli.App {
	app := cli.NewApp()
	app.Name = version.Program
	app.Usage = "listens on many TCP/UDP ports and hands each request to a configured service binary"
	app.Version = fmt.Sprintf("%s (%s)", version.Version, version.GitCommit)
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("%s version %s\n", app.Name, app.Version)
		fmt.Printf("go version %s\n", runtime.Version())
	}
	app.Flags = []cli.Flag{
		ConfigFlag,
		DebugFlag,
		MetricsAddressFlag,
		LogFlag,
	}
	app.Action = run

	return app
}

func run(_ *cli.Context) error {
	err := supervisor.Run(supervisor.Options{
		ConfigPath:     configPath,
		Debug:          debug,
		MetricsAddress: metricsAddress,
		LogFile:        logFile,
	})
	if err != nil {
		logrus.WithError(err).Error("supervisor exited")
	}
	return err
}
