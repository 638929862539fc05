//go:build linux

package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/go-inetd/superserver/pkg/cli/cmds"
)

func main() {
	app := cmds.NewApp()
	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
