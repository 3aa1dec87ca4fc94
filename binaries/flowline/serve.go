package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flowline/flowline/common/client"
	"github.com/flowline/flowline/config"
	"github.com/flowline/flowline/gpu"
	"github.com/flowline/flowline/gpu/fake"
	"github.com/flowline/flowline/gpu/nvml"
	"github.com/flowline/flowline/server"
)

type serveCmd struct {
	configPath string
}

func (c *serveCmd) RegisterFlags() *cobra.Command {
	r := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and its API",
		Args:  cobra.NoArgs,
	}
	r.Flags().StringVar(&c.configPath, "config", "", "YAML configuration file")
	r.Flags().String("tasks", "", "Task table file, overrides tasks.file")
	r.Flags().String("provider", "", "GPU telemetry, nvml or fake")
	r.Flags().Int("max_processes", 0, "Concurrent process limit, overrides supervisor.max_processes")
	r.Flags().Bool("auto_start", false, "Start dispatching immediately")
	return r
}

var serveFlags = map[string]string{
	"tasks":         "tasks.file",
	"provider":      "gpu.provider",
	"max_processes": "supervisor.max_processes",
	"auto_start":    "scheduler.auto_start",
}

func (c *serveCmd) Run(cl *client.SimpleClient, cmd *cobra.Command, args []string) error {
	v := config.NewViper()
	for flag, key := range serveFlags {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	// --addr names the server for client commands and the listen address here.
	if f := cmd.Flags().Lookup("addr"); f != nil && f.Changed {
		v.Set("server.addr", f.Value.String())
	}

	cfg, err := config.Load(v, c.configPath)
	if err != nil {
		return err
	}
	level, _ := log.ParseLevel(cfg.Log.Level)
	if f := cmd.Flags().Lookup("log_level"); f == nil || !f.Changed {
		log.SetLevel(level)
	}
	log.Debugf("Configuration:\n%s", cfg.Dump())

	telemetry, closeTelemetry, err := newTelemetry(cfg.GPU)
	if err != nil {
		return err
	}
	defer closeTelemetry()

	s, err := server.New(cfg, telemetry, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

func newTelemetry(c config.GPUConfig) (gpu.Telemetry, func(), error) {
	switch c.Provider {
	case config.ProviderFake:
		count := c.Count
		if count == 0 {
			count = 1
		}
		log.Warnf("Using fake telemetry for %d idle devices", count)
		return fake.NewTelemetry(count, fake.Idle()), func() {}, nil
	default:
		t, err := nvml.New()
		if err != nil {
			return nil, nil, errors.Wrap(err, "initializing nvml, use --provider=fake on hosts without NVIDIA GPUs")
		}
		return t, func() {
			if err := t.Close(); err != nil {
				log.Errorf("Error shutting down nvml: %v", err)
			}
		}, nil
	}
}
