// Package scheduler runs the loop that matches pending tasks with GPUs and
// hands them to the process supervisor, and exposes the operator controls.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/flowline/flowline/common/stats"
	"github.com/flowline/flowline/gpu"
	"github.com/flowline/flowline/process"
	"github.com/flowline/flowline/task"
)

const (
	// How often the loop tries to dispatch a task.
	DefaultTickInterval = 10 * time.Second
)

// OrchestratorConfiguration variables read at initialization
// TickInterval - time between dispatch attempts while running. At most one task
//
//	is dispatched per tick.
//
// DebugMode - if true, Start sets the run flag but does not start the loop.
//
//	The loop must be advanced manually by calling Step(), for tests.
type OrchestratorConfiguration struct {
	TickInterval time.Duration
	DebugMode    bool
}

func (c OrchestratorConfiguration) String() string {
	return fmt.Sprintf("OrchestratorConfiguration: TickInterval: %s, DebugMode: %t", c.TickInterval, c.DebugMode)
}

// Status summarizes the orchestrator for operators.
type Status struct {
	Running         bool `json:"running"`
	MaxProcesses    int  `json:"max_processes"`
	ActiveProcesses int  `json:"active_processes"`
	PendingTasks    int  `json:"pending_tasks"`
	GPUs            int  `json:"gpus"`
}

// Orchestrator Concurrency: the dispatch loop runs in its own goroutine while
// Running, and a second goroutine consumes supervisor events for the
// orchestrator's lifetime. Dispatch, terminal event handling and control
// operations that change scheduling state are serialized by mu, so the owned
// process count of a GPU is raised before the terminal event of the same
// process can lower it. Kills run outside mu.
type Orchestrator struct {
	mu     sync.Mutex
	config OrchestratorConfiguration

	queue      *task.Queue
	pool       *gpu.Pool
	supervisor *process.Supervisor
	build      CommandBuilder
	stat       stats.StatsReceiver

	running bool
	closed  bool
	// closed to stop the current loop
	stop       chan struct{}
	eventsDone chan struct{}
}

// NewOrchestrator wires the components together and starts consuming supervisor
// events. The orchestrator starts stopped, call Start to begin dispatching.
func NewOrchestrator(
	config OrchestratorConfiguration,
	queue *task.Queue,
	pool *gpu.Pool,
	supervisor *process.Supervisor,
	build CommandBuilder,
	stat stats.StatsReceiver,
) *Orchestrator {
	if config.TickInterval == 0 {
		config.TickInterval = DefaultTickInterval
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	o := &Orchestrator{
		config:     config,
		queue:      queue,
		pool:       pool,
		supervisor: supervisor,
		build:      build,
		stat:       stat,
		eventsDone: make(chan struct{}),
	}
	log.Infof("Created orchestrator with %s", config)
	go o.consume(supervisor.Events())
	return o
}

// Start sets the run flag and starts the loop. No-op if already running.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startLocked()
}

// Stop clears the run flag. Running processes are not affected. No-op if stopped.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
}

// Toggle starts a stopped orchestrator or stops a running one and returns
// whether it is now running.
func (o *Orchestrator) Toggle() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		o.stopLocked()
	} else {
		o.startLocked()
	}
	return o.running
}

func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) startLocked() {
	if o.running || o.closed {
		return
	}
	o.running = true
	o.stat.Gauge(stats.SchedRunningGauge).Update(1)
	log.Info("Orchestrator started")
	if o.config.DebugMode {
		return
	}
	o.stop = make(chan struct{})
	go o.loop(o.stop)
}

func (o *Orchestrator) stopLocked() {
	if !o.running {
		return
	}
	o.running = false
	o.stat.Gauge(stats.SchedRunningGauge).Update(0)
	log.Info("Orchestrator stopped")
	if o.stop != nil {
		close(o.stop)
		o.stop = nil
	}
}

// run the loop until stop is closed. The first step runs immediately.
func (o *Orchestrator) loop(stop chan struct{}) {
	ticker := time.NewTicker(o.config.TickInterval)
	defer ticker.Stop()
	for {
		o.step(stop)
		select {
		case <-ticker.C:
		case <-stop:
			return
		}
	}
}

// Step runs one dispatch attempt: if there is a free process slot, an
// available GPU and a pending task, the task is started on the GPU. Nothing
// is dequeued unless a GPU was found. Does nothing while stopped.
// Completed runs that failed to persist are retried first.
func (o *Orchestrator) Step() {
	o.step(nil)
}

// step is Step for the loop owning stop. A loop left over from before a
// Stop and Start no longer owns o.stop and does nothing.
func (o *Orchestrator) step(stop chan struct{}) {
	defer o.stat.Latency(stats.SchedStepLatency_ms).Time().Stop()
	if o.queue.Unsaved() > 0 {
		if left := o.queue.SaveUnsaved(); left > 0 {
			log.Warnf("%d completed runs are still not persisted", left)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running || (stop != nil && stop != o.stop) {
		return
	}
	defer o.updateStatsLocked()

	if !o.supervisor.HasCapacity() {
		o.stat.Counter(stats.SchedNoCapacityCounter).Inc(1)
		log.Debug("No process slot free, skipping dispatch")
		return
	}
	gpuID, ok := o.pool.Choose()
	if !ok {
		o.stat.Counter(stats.SchedNoGpuCounter).Inc(1)
		log.Debug("No GPU available, skipping dispatch")
		return
	}
	taskID, config, ok := o.queue.Next()
	if !ok {
		o.stat.Counter(stats.SchedQueueEmptyCounter).Inc(1)
		log.Debug("No pending task, skipping dispatch")
		return
	}

	fields := log.Fields{
		"taskID": taskID,
		"gpuID":  gpuID,
		"config": config.String(),
	}
	command, err := o.build(config, gpuID)
	if err != nil {
		fields["err"] = err
		log.WithFields(fields).Error("Failed to build command, requeueing task")
		o.stat.Counter(stats.SchedDispatchErrCounter).Inc(1)
		o.putBackLocked(taskID)
		return
	}
	info, err := o.supervisor.Spawn(command, taskID, gpuID)
	if err != nil {
		fields["err"] = err
		log.WithFields(fields).Error("Failed to spawn process, requeueing task")
		o.stat.Counter(stats.SchedDispatchErrCounter).Inc(1)
		o.putBackLocked(taskID)
		return
	}
	if err := o.pool.UpdateOwnedCount(gpuID, 1); err != nil {
		log.WithFields(fields).Errorf("Failed to update owned process count: %v", err)
	}
	o.stat.Counter(stats.SchedDispatchedCounter).Inc(1)
	fields["processID"] = info.ID
	log.WithFields(fields).Info("Dispatched task")
}

// consume handles supervisor events until the supervisor is closed.
func (o *Orchestrator) consume(events <-chan process.Event) {
	defer close(o.eventsDone)
	for e := range events {
		if e.Process.Status.IsTerminal() {
			o.handleTerminal(e.Process)
		}
	}
}

// handleTerminal releases the GPU slot of a finished process and records the
// outcome of its task: a completed run is counted, anything else is retried.
// The completed run is persisted outside the control lock.
func (o *Orchestrator) handleTerminal(p process.Info) {
	fields := log.Fields{
		"processID": p.ID,
		"taskID":    p.TaskID,
		"gpuID":     p.GPUID,
		"status":    p.Status,
	}
	o.release(p, fields)
	if p.Status != process.Completed {
		return
	}

	err := o.queue.MarkRunComplete(p.TaskID)
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.updateStatsLocked()
	if err != nil {
		o.stat.Counter(stats.SchedRunCountPersistErrCounter).Inc(1)
		fields["err"] = err
		log.WithFields(fields).Error("Failed to record completed run, retrying on the next step")
		return
	}
	log.WithFields(fields).Info("Task run completed")
}

// release returns the GPU slot of p and requeues its task if the run failed.
func (o *Orchestrator) release(p process.Info, fields log.Fields) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.updateStatsLocked()

	if err := o.pool.UpdateOwnedCount(p.GPUID, -1); err != nil {
		log.WithFields(fields).Errorf("Failed to update owned process count: %v", err)
	}

	switch p.Status {
	case process.Completed:
		o.stat.Counter(stats.SchedCompletedCounter).Inc(1)
	case process.Failed:
		o.stat.Counter(stats.SchedFailedCounter).Inc(1)
		fields["exitCode"] = p.ExitCode
		fields["error"] = p.Error
		log.WithFields(fields).Warn("Task run failed, requeueing")
		o.putBackLocked(p.TaskID)
	case process.Killed:
		o.stat.Counter(stats.SchedKilledCounter).Inc(1)
		log.WithFields(fields).Info("Task run killed, requeueing")
		o.putBackLocked(p.TaskID)
	}
}

func (o *Orchestrator) putBackLocked(taskID int) {
	if err := o.queue.PutBack(taskID); err != nil {
		log.WithFields(
			log.Fields{
				"taskID": taskID,
				"err":    err,
			}).Error("Failed to requeue task")
		return
	}
	o.stat.Counter(stats.SchedRequeuedCounter).Inc(1)
}

func (o *Orchestrator) updateStatsLocked() {
	o.stat.Gauge(stats.SchedQueueLenGauge).Update(int64(o.queue.Len()))
	o.stat.Gauge(stats.SchedUnsavedRunsGauge).Update(int64(o.queue.Unsaved()))
}

// ToggleGPU flips whether gpuID may receive new work and returns the new setting.
func (o *Orchestrator) ToggleGPU(gpuID int) (bool, error) {
	on, err := o.pool.Toggle(gpuID)
	if err == nil {
		log.WithFields(log.Fields{"gpuID": gpuID, "available": on}).Info("Toggled GPU")
	}
	return on, err
}

// SetGPUAvailable sets whether gpuID may receive new work. Processes already
// running on it are not affected.
func (o *Orchestrator) SetGPUAvailable(gpuID int, on bool) error {
	return o.pool.SetAvailable(gpuID, on)
}

// KillProcess kills a managed process. The bool reports whether it is now KILLED.
func (o *Orchestrator) KillProcess(processID int) (bool, error) {
	if _, ok := o.supervisor.Process(processID); !ok {
		return false, errors.Wrapf(process.ErrUnknownProcess, "process %d", processID)
	}
	return o.supervisor.Kill(processID), nil
}

// KillGPU kills every process on gpuID and returns how many kills were attempted.
func (o *Orchestrator) KillGPU(gpuID int) (int, error) {
	if gpuID < 0 || gpuID >= o.pool.Count() {
		return 0, errors.Wrapf(gpu.ErrUnknownGPU, "gpu %d", gpuID)
	}
	return o.supervisor.KillByGpu(gpuID), nil
}

// SetMaxProcesses changes the process limit. Lowering it kills nothing.
func (o *Orchestrator) SetMaxProcesses(n int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.supervisor.SetMaxProcesses(n)
}

func (o *Orchestrator) GPUStatus() []gpu.Status {
	return o.pool.Status()
}

func (o *Orchestrator) Processes() []process.Info {
	return o.supervisor.Processes()
}

// Process returns an active or recently finished process.
func (o *Orchestrator) Process(processID int) (process.Info, bool) {
	return o.supervisor.Process(processID)
}

func (o *Orchestrator) FinishedProcesses() []process.Info {
	return o.supervisor.Finished()
}

func (o *Orchestrator) Tasks() []task.Task {
	return o.queue.Tasks()
}

func (o *Orchestrator) Status() Status {
	return Status{
		Running:         o.Running(),
		MaxProcesses:    o.supervisor.MaxProcesses(),
		ActiveProcesses: o.supervisor.Active(),
		PendingTasks:    o.queue.Len(),
		GPUs:            o.pool.Count(),
	}
}

// Shutdown stops the loop, kills every process and stops consuming events.
// The orchestrator can't be restarted.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	o.stopLocked()
	o.closed = true
	o.mu.Unlock()

	n := o.supervisor.KillAll()
	log.Infof("Shutdown killed %d processes", n)
	o.supervisor.Close()
	<-o.eventsDone
}
