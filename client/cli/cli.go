package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flowline/flowline/client"
	commoncli "github.com/flowline/flowline/common/client"
	"github.com/flowline/flowline/config"
)

// FlowCLIClient includes fields required for CLI client handling
type FlowCLIClient struct {
	commoncli.SimpleClient
	doer client.Doer
}

func (c *FlowCLIClient) Exec() error {
	return c.RootCmd.Execute()
}

// NewSimpleCLIClient returns the flowline command with every client
// subcommand. A nil doer uses the retrying HTTP client.
func NewSimpleCLIClient(doer client.Doer) *FlowCLIClient {
	c := &FlowCLIClient{doer: doer}

	c.RootCmd = &cobra.Command{
		Use:               "flowline",
		Short:             "flowline runs a table of GPU jobs on a single machine",
		PersistentPreRunE: c.Init,
		SilenceUsage:      true,
	}
	addr := os.Getenv(config.EnvPrefix + "_SERVER_ADDR")
	if addr == "" {
		addr = config.DefaultAddr
	}
	c.RootCmd.PersistentFlags().StringVar(&c.Addr, "addr", addr, "flowline server address, defaults to $FLOWLINE_SERVER_ADDR")
	c.RootCmd.PersistentFlags().StringVar(&c.LogLevel, "log_level", "info", "Log everything at this level and above (error|info|debug)")
	c.RootCmd.PersistentFlags().BoolVar(&c.JSON, "json", false, "Print results as JSON")

	c.AddCmd(&statusCmd{})
	c.AddCmd(&startCmd{})
	c.AddCmd(&stopCmd{})
	c.AddCmd(&toggleCmd{})
	c.AddCmd(&setMaxCmd{})
	c.AddCmd(&gpusCmd{})
	c.AddCmd(&toggleGpuCmd{})
	c.AddCmd(&killGpuCmd{})
	c.AddCmd(&procsCmd{})
	c.AddCmd(&killCmd{})
	c.AddCmd(&logsCmd{})
	c.AddCmd(&tasksCmd{})

	return c
}

// Can only be called from cobra command run or hook
func (c *FlowCLIClient) Init(cmd *cobra.Command, args []string) error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Error(err)
		return err
	}
	log.SetLevel(level)
	c.API = client.New(c.Addr, c.doer)
	return nil
}

// AddCmd registers cmd as a subcommand of the root command.
func (c *FlowCLIClient) AddCmd(cmd commoncli.Cmd) {
	cobraCmd := cmd.RegisterFlags()
	cobraCmd.RunE = func(innerCmd *cobra.Command, args []string) error {
		return cmd.Run(&c.SimpleClient, innerCmd, args)
	}
	c.RootCmd.AddCommand(cobraCmd)
}

// printJSON writes v as indented JSON to the command's output.
func printJSON(cmd *cobra.Command, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("Error converting result to JSON: %v", err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", b)
	return err
}

func newTable(cmd *cobra.Command) *tabwriter.Writer {
	return tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
}

func intArg(args []string, name string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one %s, got %d args", name, len(args))
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, args[0])
	}
	return n, nil
}
