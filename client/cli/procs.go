package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowline/flowline/common/client"
)

type procsCmd struct {
	finished bool
}

func (c *procsCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "procs",
		Short: "List running processes",
		Args:  cobra.NoArgs,
	}
	r.Flags().BoolVar(&c.finished, "finished", false, "List recently finished processes instead")
	return r
}

func (c *procsCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	procs, err := cl.API.Processes(c.finished)
	if err != nil {
		return fmt.Errorf("Error listing processes: %v", err)
	}
	if cl.JSON {
		return printJSON(cmd, procs)
	}
	w := newTable(cmd)
	fmt.Fprintln(w, "ID\tTASK\tGPU\tPID\tSTATUS\tEXIT\tRUNTIME\tCOMMAND")
	for _, p := range procs {
		end := p.EndTime
		if end.IsZero() {
			end = time.Now()
		}
		runtime := end.Sub(p.StartTime).Truncate(time.Second)
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\t%d\t%s\t%s\n",
			p.ID, p.TaskID, p.GPUID, p.Pid, p.Status, p.ExitCode, runtime, p.Command)
	}
	return w.Flush()
}

type killCmd struct{}

func (c *killCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "kill [process id]",
		Short: "Kill a process and its descendants, its task is queued again",
		Args:  cobra.ExactArgs(1),
	}
}

func (c *killCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	id, err := intArg(args, "process id")
	if err != nil {
		return err
	}
	resp, err := cl.API.KillProcess(id)
	if err != nil {
		return fmt.Errorf("Error killing process %d: %v", id, err)
	}
	if cl.JSON {
		return printJSON(cmd, resp)
	}
	if !resp.Killed {
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Process %d was not killed, it may have finished or still be exiting\n", id)
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Killed process %d\n", id)
	return err
}

type logsCmd struct {
	stderr bool
}

func (c *logsCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "logs [process id]",
		Short: "Print the output of a process",
		Args:  cobra.ExactArgs(1),
	}
	r.Flags().BoolVar(&c.stderr, "stderr", false, "Print standard error instead of standard output")
	return r
}

func (c *logsCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	id, err := intArg(args, "process id")
	if err != nil {
		return err
	}
	stream := "stdout"
	if c.stderr {
		stream = "stderr"
	}
	out, err := cl.API.Output(id, stream)
	if err != nil {
		return fmt.Errorf("Error reading %s of process %d: %v", stream, id, err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}
