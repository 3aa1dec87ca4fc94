// Package config reads the flowline server configuration from a YAML file,
// FLOWLINE_ environment variables and command line flags, and turns it into
// the configuration of each component.
package config

import (
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/flowline/flowline/gpu"
	"github.com/flowline/flowline/process"
	"github.com/flowline/flowline/scheduler"
	"github.com/flowline/flowline/task"
)

const EnvPrefix = "FLOWLINE"

const (
	ProviderNVML = "nvml"
	ProviderFake = "fake"
)

const DefaultAddr = "localhost:9091"

// Config is the whole server configuration. Keys are the lower case
// mapstructure names, nested with dots: supervisor.max_processes is read
// from the file, or from FLOWLINE_SUPERVISOR_MAX_PROCESSES.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	GPU        GPUConfig        `mapstructure:"gpu"`
	Tasks      TasksConfig      `mapstructure:"tasks"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Parameters to configure the Orchestrator
// TickInterval - time between dispatch attempts.
// AutoStart - start dispatching when the server starts instead of waiting
//
//	for an operator.
//
// Program - program run for each task unless the task sets "program".
// CommandTemplate - text/template rendering the command, see scheduler.TemplateBuilder.
type SchedulerConfig struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	AutoStart       bool          `mapstructure:"auto_start"`
	Program         string        `mapstructure:"program"`
	CommandTemplate string        `mapstructure:"command_template"`
}

func (c SchedulerConfig) Create() scheduler.OrchestratorConfiguration {
	return scheduler.OrchestratorConfiguration{TickInterval: c.TickInterval}
}

func (c SchedulerConfig) Builder() (scheduler.CommandBuilder, error) {
	return scheduler.TemplateBuilder(c.CommandTemplate, c.Program)
}

type SupervisorConfig struct {
	MaxProcesses int           `mapstructure:"max_processes"`
	LogDir       string        `mapstructure:"log_dir"`
	KillTimeout  time.Duration `mapstructure:"kill_timeout"`
	HistorySize  int           `mapstructure:"history_size"`
	Shell        string        `mapstructure:"shell"`
	Env          []string      `mapstructure:"env"`
}

func (c SupervisorConfig) Create() process.SupervisorConfiguration {
	return process.SupervisorConfiguration{
		MaxProcesses: c.MaxProcesses,
		LogDir:       c.LogDir,
		KillTimeout:  c.KillTimeout,
		HistorySize:  c.HistorySize,
		Shell:        c.Shell,
		Env:          c.Env,
	}
}

// Parameters to configure the GPU pool
// Provider - "nvml" reads NVIDIA devices, "fake" serves idle readings for
//
//	hosts without GPUs.
//
// Count - number of devices, 0 asks the provider.
// Enabled - devices available at startup, empty means all.
// MinFreeMemory - free memory floor in MiB, negative disables it.
// StatusInterval - minimum time between refreshes for status listings.
type GPUConfig struct {
	Provider       string        `mapstructure:"provider"`
	Count          int           `mapstructure:"count"`
	Enabled        []int         `mapstructure:"enabled"`
	MinFreeMemory  int64         `mapstructure:"min_free_memory"`
	StatusInterval time.Duration `mapstructure:"status_interval"`
}

func (c GPUConfig) Create() gpu.PoolConfiguration {
	var enabled []int
	if len(c.Enabled) > 0 {
		enabled = append(enabled, c.Enabled...)
	}
	return gpu.PoolConfiguration{
		Count:          c.Count,
		Enabled:        enabled,
		MinFreeMemory:  c.MinFreeMemory,
		StatusInterval: c.StatusInterval,
	}
}

// TasksConfig names the task table and how its tasks are ordered.
type TasksConfig struct {
	File     string      `mapstructure:"file"`
	Priority []task.Rule `mapstructure:"priority"`
}

func (c TasksConfig) PriorityFunc() task.PriorityFunc {
	return task.ByFields(c.Priority...)
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SetDefaults registers every key with its default, so environment variables
// are seen by Unmarshal even when the file doesn't mention the key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("scheduler.tick_interval", scheduler.DefaultTickInterval)
	v.SetDefault("scheduler.auto_start", false)
	v.SetDefault("scheduler.program", "python -u train.py")
	v.SetDefault("scheduler.command_template", scheduler.DefaultCommandTemplate)
	v.SetDefault("supervisor.max_processes", process.DefaultMaxProcesses)
	v.SetDefault("supervisor.log_dir", process.DefaultLogDir)
	v.SetDefault("supervisor.kill_timeout", process.DefaultKillTimeout)
	v.SetDefault("supervisor.history_size", process.DefaultHistorySize)
	v.SetDefault("supervisor.shell", process.DefaultShell)
	v.SetDefault("supervisor.env", []string{})
	v.SetDefault("gpu.provider", ProviderNVML)
	v.SetDefault("gpu.count", 0)
	v.SetDefault("gpu.enabled", []int{})
	v.SetDefault("gpu.min_free_memory", gpu.DefaultMinFreeMemory)
	v.SetDefault("gpu.status_interval", gpu.DefaultStatusInterval)
	v.SetDefault("tasks.file", "tasks.yaml")
	v.SetDefault("tasks.priority", []task.Rule{})
	v.SetDefault("log.level", log.InfoLevel.String())
}

// NewViper returns a viper reading FLOWLINE_ variables, with defaults set.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")
	SetDefaults(v)
	return v
}

// Load reads path, if not empty, into v and returns the validated configuration.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Scheduler.TickInterval <= 0 {
		return errors.Errorf("scheduler.tick_interval must be positive, got %s", c.Scheduler.TickInterval)
	}
	if _, err := c.Scheduler.Builder(); err != nil {
		return errors.Wrap(err, "scheduler.command_template")
	}
	if c.Supervisor.MaxProcesses < 0 {
		return errors.Errorf("supervisor.max_processes must be >= 0, got %d", c.Supervisor.MaxProcesses)
	}
	if c.Supervisor.KillTimeout < 0 {
		return errors.Errorf("supervisor.kill_timeout must be >= 0, got %s", c.Supervisor.KillTimeout)
	}
	switch c.GPU.Provider {
	case ProviderNVML, ProviderFake:
	default:
		return errors.Errorf("gpu.provider must be %q or %q, got %q", ProviderNVML, ProviderFake, c.GPU.Provider)
	}
	if c.GPU.Count < 0 {
		return errors.Errorf("gpu.count must be >= 0, got %d", c.GPU.Count)
	}
	for _, id := range c.GPU.Enabled {
		if id < 0 || (c.GPU.Count > 0 && id >= c.GPU.Count) {
			return errors.Errorf("gpu.enabled contains invalid device %d", id)
		}
	}
	if c.Tasks.File == "" {
		return errors.New("tasks.file is required")
	}
	for i, r := range c.Tasks.Priority {
		if r.Field == "" {
			return errors.Errorf("tasks.priority[%d] has no field", i)
		}
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	return nil
}

// Dump renders the configuration for debug logs.
func (c *Config) Dump() string {
	cs := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true}
	return cs.Sdump(c)
}
