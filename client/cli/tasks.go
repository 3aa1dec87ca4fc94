package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowline/flowline/common/client"
	"github.com/flowline/flowline/task"
)

type tasksCmd struct {
	pending bool
}

func (c *tasksCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks with their run counts",
		Args:  cobra.NoArgs,
	}
	r.Flags().BoolVar(&c.pending, "pending", false, "Only list tasks that still need runs")
	return r
}

func (c *tasksCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	tasks, err := cl.API.Tasks()
	if err != nil {
		return fmt.Errorf("Error listing tasks: %v", err)
	}
	if c.pending {
		kept := tasks[:0]
		for _, t := range tasks {
			if t.Status == task.Pending {
				kept = append(kept, t)
			}
		}
		tasks = kept
	}
	if cl.JSON {
		return printJSON(cmd, tasks)
	}
	w := newTable(cmd)
	fmt.Fprintln(w, "ID\tSTATUS\tRUNS\tQUEUED\tRETRIES\tUNSAVED\tCONFIG")
	for _, t := range tasks {
		fmt.Fprintf(w, "%d\t%s\t%d/%d\t%d\t%d\t%d\t%s\n",
			t.ID, t.Status, t.RunCount, t.RequiredRuns, t.Queued, t.Retries, t.Unsaved, t.Config)
	}
	return w.Flush()
}
