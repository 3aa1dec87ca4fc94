package server

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/flowline/flowline/common/endpoints"
	"github.com/flowline/flowline/config"
	"github.com/flowline/flowline/gpu"
	"github.com/flowline/flowline/process"
	"github.com/flowline/flowline/scheduler"
	"github.com/flowline/flowline/task"
	"github.com/flowline/flowline/task/store"
)

// Server owns every component of a running flowline instance.
type Server struct {
	Orchestrator *scheduler.Orchestrator
	Endpoints    *endpoints.Server
}

// New builds the task queue, GPU pool, supervisor and orchestrator described
// by cfg and mounts the API. fs holds the task file, nil means the OS.
func New(cfg *config.Config, telemetry gpu.Telemetry, fs afero.Fs) (*Server, error) {
	stat := endpoints.MakeStatsReceiver("flowline")

	queue, err := task.NewQueue(store.NewFileStore(fs, cfg.Tasks.File), cfg.Tasks.PriorityFunc())
	if err != nil {
		return nil, err
	}
	pool, err := gpu.NewPool(telemetry, cfg.GPU.Create(), stat.Scope("gpu"))
	if err != nil {
		return nil, errors.Wrap(err, "creating gpu pool")
	}
	supervisor, err := process.NewSupervisor(cfg.Supervisor.Create(), nil, stat.Scope("supervisor"))
	if err != nil {
		return nil, errors.Wrap(err, "creating supervisor")
	}
	build, err := cfg.Scheduler.Builder()
	if err != nil {
		return nil, err
	}
	orch := scheduler.NewOrchestrator(cfg.Scheduler.Create(), queue, pool, supervisor, build, stat.Scope("scheduler"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		gpu.NewCollector(pool),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ep := endpoints.NewServer(cfg.Server.Addr, stat, registry)
	Register(ep.Router(), orch, stat.Scope("api"))

	log.WithFields(
		log.Fields{
			"tasks":   len(queue.Tasks()),
			"pending": queue.Len(),
			"gpus":    pool.Count(),
		}).Info("Loaded task table")

	if cfg.Scheduler.AutoStart {
		orch.Start()
	}
	return &Server{Orchestrator: orch, Endpoints: ep}, nil
}

// Serve blocks serving the API until ctx is done, then stops the
// orchestrator and kills every process.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Endpoints.Serve() }()

	select {
	case err := <-errCh:
		s.Orchestrator.Shutdown()
		return err
	case <-ctx.Done():
	}
	log.Info("Shutting down")
	err := s.Endpoints.Shutdown(context.Background())
	s.Orchestrator.Shutdown()
	if serr := <-errCh; serr != nil && err == nil {
		err = serr
	}
	return err
}
