package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/flowline/flowline/client/cli"
	"github.com/flowline/flowline/common/log/hooks"
)

// flowline serves the scheduler with "flowline serve" and talks to a running
// server with every other subcommand.
func main() {
	log.AddHook(hooks.NewContextHook())

	if err := newCLI().Exec(); err != nil {
		log.Fatal("error running flowline: ", err)
	}
}

func newCLI() *cli.FlowCLIClient {
	c := cli.NewSimpleCLIClient(nil)
	c.AddCmd(&serveCmd{})
	c.AddCmd(&gridCmd{})
	return c
}
