package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowline/flowline/common/client"
)

type gpusCmd struct{}

func (c *gpusCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "gpus",
		Short: "List GPUs with their latest readings",
		Args:  cobra.NoArgs,
	}
}

func (c *gpusCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	gpus, err := cl.API.GPUs()
	if err != nil {
		return fmt.Errorf("Error listing gpus: %v", err)
	}
	if cl.JSON {
		return printJSON(cmd, gpus)
	}
	w := newTable(cmd)
	fmt.Fprintln(w, "ID\tSTATE\tNAME\tMEMORY (MiB)\tUTIL\tTEMP\tPOWER (W)\tOWNED\tEXTERNAL")
	for _, g := range gpus {
		name := g.Snapshot.Name
		if g.Stale {
			name += " (stale)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d/%d\t%.0f%%\t%dC\t%.0f/%.0f\t%d\t%d\n",
			g.ID, g.State, name,
			g.Snapshot.TotalMemory-g.Snapshot.FreeMemory, g.Snapshot.TotalMemory,
			g.Snapshot.UtilizationPct, g.Snapshot.Temperature,
			g.Snapshot.PowerDraw, g.Snapshot.PowerCap,
			g.OwnedProcessCount, g.ExternalProcessCount)
	}
	return w.Flush()
}

type toggleGpuCmd struct{}

func (c *toggleGpuCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle_gpu [gpu id]",
		Short: "Allow or forbid new work on a GPU, running processes are not affected",
		Args:  cobra.ExactArgs(1),
	}
}

func (c *toggleGpuCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	id, err := intArg(args, "gpu id")
	if err != nil {
		return err
	}
	resp, err := cl.API.ToggleGPU(id)
	if err != nil {
		return fmt.Errorf("Error toggling gpu %d: %v", id, err)
	}
	if cl.JSON {
		return printJSON(cmd, resp)
	}
	state := "disabled"
	if resp.Available {
		state = "enabled"
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "GPU %d %s\n", id, state)
	return err
}

type killGpuCmd struct{}

func (c *killGpuCmd) RegisterFlags() *cobra.Command {
	return &cobra.Command{
		Use:   "kill_gpu [gpu id]",
		Short: "Kill every process running on a GPU",
		Args:  cobra.ExactArgs(1),
	}
}

func (c *killGpuCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	id, err := intArg(args, "gpu id")
	if err != nil {
		return err
	}
	resp, err := cl.API.KillGPU(id)
	if err != nil {
		return fmt.Errorf("Error killing processes on gpu %d: %v", id, err)
	}
	if cl.JSON {
		return printJSON(cmd, resp)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Killed %d processes on GPU %d\n", resp.Attempts, id)
	return err
}
