package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowline/flowline/common/client"
	"github.com/flowline/flowline/task"
	"github.com/flowline/flowline/task/store"
)

type gridCmd struct {
	axes  []string
	runs  int
	out   string
	force bool
}

func (c *gridCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "grid",
		Short: "Write a task table with one task per combination of parameter values",
		Example: "  flowline grid --axis model=small,large --axis lr=0.1,0.01 --runs 3\n" +
			"  writes 4 tasks, each needing 3 runs",
		Args: cobra.NoArgs,
	}
	r.Flags().StringArrayVar(&c.axes, "axis", nil, "name=value1,value2,... may be repeated, the first axis varies slowest")
	r.Flags().IntVar(&c.runs, "runs", 1, "Runs required for each task")
	r.Flags().StringVar(&c.out, "out", "tasks.yaml", "Task table to write")
	r.Flags().BoolVar(&c.force, "force", false, "Overwrite an existing task table")
	return r
}

func (c *gridCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	if len(c.axes) == 0 {
		return fmt.Errorf("at least one --axis is required")
	}
	if c.runs < 1 {
		return fmt.Errorf("--runs must be at least 1, got %d", c.runs)
	}
	axes := make([]task.Axis, 0, len(c.axes))
	for _, a := range c.axes {
		axis, err := parseAxis(a)
		if err != nil {
			return err
		}
		axes = append(axes, axis)
	}
	if _, err := os.Stat(c.out); err == nil && !c.force {
		return fmt.Errorf("%s exists, use --force to overwrite it", c.out)
	}

	rows := task.Expand(axes, c.runs)
	if err := store.NewFileStore(nil, c.out).Save(rows); err != nil {
		return fmt.Errorf("Error writing %s: %v", c.out, err)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d tasks to %s\n", len(rows), c.out)
	return err
}

func parseAxis(s string) (task.Axis, error) {
	name, values, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return task.Axis{}, fmt.Errorf("invalid axis %q, expected name=value1,value2", s)
	}
	a := task.Axis{Name: name}
	for _, v := range strings.Split(values, ",") {
		if v = strings.TrimSpace(v); v != "" {
			a.Values = append(a.Values, v)
		}
	}
	if len(a.Values) == 0 {
		return task.Axis{}, fmt.Errorf("axis %q has no values", name)
	}
	return a, nil
}
