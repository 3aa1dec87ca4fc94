package cli

/**
implements the command line entries for starting, stopping and throttling the scheduler
*/

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowline/flowline/common/client"
	"github.com/flowline/flowline/scheduler"
)

func printStatus(cl *client.SimpleClient, cmd *cobra.Command, st scheduler.Status) error {
	if cl.JSON {
		return printJSON(cmd, st)
	}
	state := "stopped"
	if st.Running {
		state = "running"
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Scheduler %s: %d/%d processes, %d pending tasks, %d GPUs\n",
		state, st.ActiveProcesses, st.MaxProcesses, st.PendingTasks, st.GPUs)
	return err
}

type statusCmd struct{}

func (c *statusCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the scheduler is dispatching and its load",
		Args:  cobra.NoArgs,
	}
}

func (c *statusCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	st, err := cl.API.Status()
	if err != nil {
		return fmt.Errorf("Error getting status: %v", err)
	}
	return printStatus(cl, cmd, st)
}

type startCmd struct{}

func (c *startCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start dispatching tasks",
		Args:  cobra.NoArgs,
	}
}

func (c *startCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	st, err := cl.API.Start()
	if err != nil {
		return fmt.Errorf("Error starting scheduler: %v", err)
	}
	return printStatus(cl, cmd, st)
}

type stopCmd struct{}

func (c *stopCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop dispatching tasks, running processes keep running",
		Args:  cobra.NoArgs,
	}
}

func (c *stopCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	st, err := cl.API.Stop()
	if err != nil {
		return fmt.Errorf("Error stopping scheduler: %v", err)
	}
	return printStatus(cl, cmd, st)
}

type toggleCmd struct{}

func (c *toggleCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Start a stopped scheduler or stop a running one",
		Args:  cobra.NoArgs,
	}
}

func (c *toggleCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	st, err := cl.API.Toggle()
	if err != nil {
		return fmt.Errorf("Error toggling scheduler: %v", err)
	}
	return printStatus(cl, cmd, st)
}

type setMaxCmd struct{}

func (c *setMaxCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "set_max [max processes]",
		Short: "Set how many processes may run at once, 0 pauses spawning",
		Args:  cobra.ExactArgs(1),
	}
}

func (c *setMaxCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	n, err := intArg(args, "max processes")
	if err != nil {
		return err
	}
	st, err := cl.API.SetMaxProcesses(n)
	if err != nil {
		return fmt.Errorf("Error setting max processes: %v", err)
	}
	return printStatus(cl, cmd, st)
}
