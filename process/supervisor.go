// Package process spawns, monitors and kills the OS processes running tasks.
// Every process runs in its own process group so it can be killed together
// with its descendants.
package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/flowline/flowline/common/allocator"
	flerrors "github.com/flowline/flowline/common/errors"
	"github.com/flowline/flowline/common/stats"
)

const (
	DefaultMaxProcesses = 4
	DefaultLogDir       = "log"

	// Time given to a process tree to exit after SIGTERM before SIGKILL is sent.
	DefaultKillTimeout = 3 * time.Second

	// Time given to a process tree to disappear after SIGKILL.
	DefaultKillConfirmTimeout = 2 * time.Second

	// Number of terminal processes remembered for listings.
	DefaultHistorySize = 1000

	DefaultShell = "/bin/sh"

	// Bytes of stderr kept as the diagnostic of a failed process.
	diagnosticBytes = 4096

	pollInterval = 50 * time.Millisecond
)

var (
	// ErrCapacity is returned by Spawn when MaxProcesses processes are already active.
	ErrCapacity = errors.New("no process slot available")

	ErrUnknownProcess = errors.New("unknown process")
)

// SupervisorConfiguration variables read at initialization
// MaxProcesses - limit on non terminal processes. Zero means DefaultMaxProcesses,
//
//	use SetMaxProcesses to pause spawning entirely.
//
// LogDir - directory receiving <id>.out and <id>.err for every process.
// KillTimeout - grace period between SIGTERM and SIGKILL.
// KillConfirmTimeout - how long to wait for the tree to vanish after SIGKILL
//
//	before reporting the kill as failed.
//
// HistorySize - number of finished processes kept for listings.
// Shell - interpreter that runs commands with -c.
// Env - extra KEY=VALUE pairs appended to the supervisor's environment.
type SupervisorConfiguration struct {
	MaxProcesses       int
	LogDir             string
	KillTimeout        time.Duration
	KillConfirmTimeout time.Duration
	HistorySize        int
	Shell              string
	Env                []string
}

type managed struct {
	info Info
	cmd  *exec.Cmd
	slot *allocator.AbstractResource
	// closed once cmd.Wait has returned
	done chan struct{}
	// a Kill call owns finalization while set
	killInFlight bool
}

// Supervisor runs commands as managed processes.
//
// Status transitions and finalization happen under one lock; each process has
// a waiter goroutine blocked on its exit. Events are published to an unbounded
// queue and delivered in order on Events().
type Supervisor struct {
	mu      sync.Mutex
	config  SupervisorConfiguration
	slots   *allocator.AbstractAllocator
	nextID  int
	active  map[int]*managed
	history *lru.Cache
	events  *eventQueue
	lister  ProcessLister
	stat    stats.StatsReceiver
}

// NewSupervisor creates the log directory and returns a supervisor. A nil
// lister reads the process table with ps.
func NewSupervisor(config SupervisorConfiguration, lister ProcessLister, stat stats.StatsReceiver) (*Supervisor, error) {
	if config.MaxProcesses == 0 {
		config.MaxProcesses = DefaultMaxProcesses
	}
	if config.LogDir == "" {
		config.LogDir = DefaultLogDir
	}
	if config.KillTimeout == 0 {
		config.KillTimeout = DefaultKillTimeout
	}
	if config.KillConfirmTimeout == 0 {
		config.KillConfirmTimeout = DefaultKillConfirmTimeout
	}
	if config.HistorySize == 0 {
		config.HistorySize = DefaultHistorySize
	}
	if config.Shell == "" {
		config.Shell = DefaultShell
	}
	if lister == nil {
		lister = NewPsLister()
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}

	slots, err := allocator.NewAbstractAllocator(int64(config.MaxProcesses))
	if err != nil {
		return nil, errors.Wrap(err, "invalid max processes")
	}
	history, err := lru.New(config.HistorySize)
	if err != nil {
		return nil, errors.Wrap(err, "creating process history")
	}
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating log dir %s", config.LogDir)
	}

	s := &Supervisor{
		config:  config,
		slots:   slots,
		active:  make(map[int]*managed),
		history: history,
		events:  newEventQueue(),
		lister:  lister,
		stat:    stat,
	}
	s.stat.Gauge(stats.SupervisorMaxProcessesGauge).Update(int64(config.MaxProcesses))
	return s, nil
}

// Events delivers every status transition in order. It is closed by Close.
func (s *Supervisor) Events() <-chan Event {
	return s.events.out
}

// Close stops event delivery. Processes are left running, see KillAll.
func (s *Supervisor) Close() {
	s.events.close()
}

// Spawn starts command for taskID on gpuID. It returns ErrCapacity, without
// side effects, when MaxProcesses processes are active.
func (s *Supervisor) Spawn(command string, taskID, gpuID int) (Info, error) {
	s.mu.Lock()
	slot, err := s.slots.Alloc(1)
	if err != nil {
		s.mu.Unlock()
		s.stat.Counter(stats.SupervisorCapacityRejectedCounter).Inc(1)
		return Info{}, ErrCapacity
	}
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	m := &managed{
		info: Info{
			ID:         id,
			TaskID:     taskID,
			GPUID:      gpuID,
			Command:    command,
			Status:     Pending,
			StdoutPath: filepath.Join(s.config.LogDir, fmt.Sprintf("%d.out", id)),
			StderrPath: filepath.Join(s.config.LogDir, fmt.Sprintf("%d.err", id)),
		},
		slot: slot,
		done: make(chan struct{}),
	}

	if err := s.start(m); err != nil {
		slot.Release()
		s.stat.Counter(stats.SupervisorStartErrCounter).Inc(1)
		log.WithFields(
			log.Fields{
				"processID": id,
				"taskID":    taskID,
				"gpuID":     gpuID,
				"command":   command,
				"err":       err,
			}).Error("Failed to start process")
		return Info{}, err
	}

	s.mu.Lock()
	m.info.Pid = m.cmd.Process.Pid
	m.info.StartTime = time.Now()
	s.transitionLocked(m, Running)
	s.active[id] = m
	s.stat.Gauge(stats.SupervisorActiveGauge).Update(int64(len(s.active)))
	info := m.info
	s.mu.Unlock()

	log.WithFields(
		log.Fields{
			"processID": id,
			"taskID":    taskID,
			"gpuID":     gpuID,
			"pid":       info.Pid,
			"command":   command,
		}).Info("Started process")

	go s.wait(m)
	return info, nil
}

func (s *Supervisor) start(m *managed) error {
	stdout, err := os.OpenFile(m.info.StdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return flerrors.NewError(err, flerrors.CouldNotCreateLogExitCode)
	}
	defer stdout.Close()
	stderr, err := os.OpenFile(m.info.StderrPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return flerrors.NewError(err, flerrors.CouldNotCreateLogExitCode)
	}
	defer stderr.Close()

	cmd := exec.Command(s.config.Shell, "-c", m.info.Command)
	cmd.Env = append(os.Environ(), s.config.Env...)
	// Files rather than writers, so Wait doesn't block on descendants holding a pipe open.
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Sets pgid of the process and its children to the process's pid.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return flerrors.NewError(err, flerrors.CouldNotExecExitCode)
	}
	m.cmd = cmd
	return nil
}

// wait blocks until the process exits and finalizes it, unless a Kill is in flight.
func (s *Supervisor) wait(m *managed) {
	err := m.cmd.Wait()
	close(m.done)
	pid := m.info.Pid

	exitCode, errMsg := exitStatus(err)
	if err != nil {
		if diag := readTail(m.info.StderrPath, diagnosticBytes); diag != "" {
			errMsg = errMsg + ": " + diag
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if m.killInFlight {
		// Kill observes done and finalizes.
		return
	}
	switch m.info.Status {
	case Running:
		// Leftover descendants in the group don't outlive their task.
		cleanupGroup(pid)
		if err == nil {
			s.finalizeLocked(m, Completed, 0, "")
		} else {
			s.finalizeLocked(m, Failed, exitCode, errMsg)
		}
	case Killing:
		// A previous Kill gave up; the process exited since.
		s.finalizeLocked(m, Killed, exitCode, "killed")
	}
}

// Kill terminates a RUNNING process and its descendants: SIGTERM, then SIGKILL
// after KillTimeout. It returns true once the process group is confirmed gone
// and the process is KILLED. Otherwise the process stays KILLING and Kill may
// be called again. Kill on an unknown or terminal process returns false.
//
// Descendants are enumerated once before signalling; processes spawned later
// outside the group may survive.
func (s *Supervisor) Kill(id int) bool {
	s.mu.Lock()
	m, ok := s.active[id]
	if !ok || m.killInFlight || (m.info.Status != Running && m.info.Status != Killing) {
		s.mu.Unlock()
		return false
	}
	m.killInFlight = true
	if m.info.Status == Running {
		s.transitionLocked(m, Killing)
	}
	info := m.info
	s.mu.Unlock()

	s.stat.Counter(stats.SupervisorKillCounter).Inc(1)
	fields := log.Fields{
		"processID": info.ID,
		"taskID":    info.TaskID,
		"gpuID":     info.GPUID,
		"pid":       info.Pid,
	}

	pgid := info.Pid
	descendants := s.descendants(pgid)
	log.WithFields(fields).Infof("Killing process and %d descendants via SIGTERM", len(descendants))
	signalTree(pgid, descendants, unix.SIGTERM)

	gone := s.waitGone(m, pgid, descendants, s.config.KillTimeout)
	if !gone {
		// Pick up anything forked since the first enumeration.
		descendants = mergePids(descendants, s.descendants(pgid))
		log.WithFields(fields).Infof("Process survived SIGTERM for %s, sending SIGKILL", s.config.KillTimeout)
		signalTree(pgid, descendants, unix.SIGKILL)
		gone = s.waitGone(m, pgid, descendants, s.config.KillConfirmTimeout)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m.killInFlight = false
	if !gone {
		s.stat.Counter(stats.SupervisorKillTimeoutCounter).Inc(1)
		log.WithFields(fields).Error("Could not confirm process group is gone, leaving process KILLING")
		return false
	}
	exitCode := int(flerrors.SignaledExitCode)
	if m.cmd.ProcessState != nil {
		exitCode = m.cmd.ProcessState.ExitCode()
	}
	s.finalizeLocked(m, Killed, exitCode, "killed")
	return true
}

// KillByGpu kills every active process on gpuID concurrently and returns how
// many kills were attempted.
func (s *Supervisor) KillByGpu(gpuID int) int {
	return s.killMatching(func(i Info) bool { return i.GPUID == gpuID })
}

// KillAll kills every active process and returns how many kills were attempted.
func (s *Supervisor) KillAll() int {
	return s.killMatching(func(Info) bool { return true })
}

func (s *Supervisor) killMatching(match func(Info) bool) int {
	s.mu.Lock()
	ids := []int{}
	for id, m := range s.active {
		if match(m.info) {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.Kill(id)
		}(id)
	}
	wg.Wait()
	return len(ids)
}

// MaxProcesses is the current limit on active processes.
func (s *Supervisor) MaxProcesses() int {
	return int(s.slots.Capacity())
}

// SetMaxProcesses changes the limit. Lowering it below Active() kills nothing,
// new spawns are rejected until enough processes finish.
func (s *Supervisor) SetMaxProcesses(n int) error {
	if err := s.slots.SetCapacity(int64(n)); err != nil {
		return err
	}
	s.stat.Gauge(stats.SupervisorMaxProcessesGauge).Update(int64(n))
	log.Infof("Set max processes to %d", n)
	return nil
}

// Active is the number of non terminal processes.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// HasCapacity reports whether a Spawn would currently get a slot.
func (s *Supervisor) HasCapacity() bool {
	return s.slots.Available() > 0
}

// Process returns an active or remembered process.
func (s *Supervisor) Process(id int) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.active[id]; ok {
		return m.info, true
	}
	if v, ok := s.history.Peek(id); ok {
		return v.(Info), true
	}
	return Info{}, false
}

// Processes lists active processes by id.
func (s *Supervisor) Processes() []Info {
	s.mu.Lock()
	out := make([]Info, 0, len(s.active))
	for _, m := range s.active {
		out = append(out, m.info)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Finished lists remembered terminal processes by id.
func (s *Supervisor) Finished() []Info {
	s.mu.Lock()
	keys := s.history.Keys()
	out := make([]Info, 0, len(keys))
	for _, k := range keys {
		if v, ok := s.history.Peek(k); ok {
			out = append(out, v.(Info))
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// transitionLocked moves m to a non terminal status and publishes it. Must hold s.mu.
func (s *Supervisor) transitionLocked(m *managed, to Status) {
	prev := m.info.Status
	m.info.Status = to
	s.events.publish(Event{Process: m.info, Previous: prev})
}

// finalizeLocked moves m to a terminal status exactly once. Must hold s.mu.
func (s *Supervisor) finalizeLocked(m *managed, to Status, exitCode int, errMsg string) {
	if m.info.Status.IsTerminal() {
		return
	}
	prev := m.info.Status
	m.info.Status = to
	m.info.EndTime = time.Now()
	m.info.ExitCode = exitCode
	m.info.Error = errMsg
	delete(s.active, m.info.ID)
	m.slot.Release()
	s.history.Add(m.info.ID, m.info)

	s.stat.Gauge(stats.SupervisorActiveGauge).Update(int64(len(s.active)))
	s.stat.Latency(stats.SupervisorProcessLatency_ms).Record(m.info.EndTime.Sub(m.info.StartTime))
	log.WithFields(
		log.Fields{
			"processID": m.info.ID,
			"taskID":    m.info.TaskID,
			"gpuID":     m.info.GPUID,
			"pid":       m.info.Pid,
			"status":    to,
			"exitCode":  exitCode,
			"runtime":   m.info.EndTime.Sub(m.info.StartTime),
		}).Info("Process finished")
	s.events.publish(Event{Process: m.info, Previous: prev})
}

func (s *Supervisor) descendants(pgid int) []int {
	t, err := s.lister.List()
	if err != nil {
		log.WithFields(
			log.Fields{
				"pgid": pgid,
				"err":  err,
			}).Warn("Could not enumerate descendants, signalling process group only")
		return nil
	}
	return t.Descendants(pgid)
}

// waitGone polls until the process was reaped and no process of the group or
// of pids is alive, or until timeout.
func (s *Supervisor) waitGone(m *managed, pgid int, pids []int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			if !s.treeAlive(pgid, pids) {
				return true
			}
		default:
		}
		select {
		case <-ticker.C:
		case <-deadline:
			select {
			case <-m.done:
				return !s.treeAlive(pgid, pids)
			default:
				return false
			}
		}
	}
}

func (s *Supervisor) treeAlive(pgid int, pids []int) bool {
	t, err := s.lister.List()
	if err != nil {
		return signalAlive(pgid, pids)
	}
	return t.Alive(pgid, pids)
}

func signalTree(pgid int, pids []int, sig unix.Signal) {
	if err := unix.Kill(-pgid, sig); err != nil && err != unix.ESRCH {
		log.WithFields(
			log.Fields{
				"pgid":   pgid,
				"signal": sig,
				"err":    err,
			}).Error("Error signalling process group")
	}
	for _, pid := range pids {
		if err := unix.Kill(pid, sig); err != nil && err != unix.ESRCH {
			log.WithFields(
				log.Fields{
					"pid":    pid,
					"signal": sig,
					"err":    err,
				}).Error("Error signalling descendant")
		}
	}
}

// Kill process along with all child processes, assuming no child processes called setpgid
func cleanupGroup(pgid int) {
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		log.WithFields(
			log.Fields{
				"pgid": pgid,
				"err":  err,
			}).Error("Error cleaning up pgid")
	}
}

func mergePids(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, list := range [][]int{a, b} {
		for _, pid := range list {
			if !seen[pid] {
				seen[pid] = true
				out = append(out, pid)
			}
		}
	}
	return out
}

// exitStatus maps a Wait error to an exit code and message.
func exitStatus(err error) (int, string) {
	if err == nil {
		return 0, ""
	}
	if ee, ok := err.(*exec.ExitError); ok {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return int(flerrors.SignaledExitCode), fmt.Sprintf("terminated by signal %s", ws.Signal())
		}
		return ee.ExitCode(), fmt.Sprintf("exited with code %d", ee.ExitCode())
	}
	return int(flerrors.GenericFailureExitCode), err.Error()
}

// readTail returns up to n trailing bytes of path, trimmed.
func readTail(path string, n int64) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	if fi, err := f.Stat(); err == nil && fi.Size() > n {
		if _, err := f.Seek(-n, io.SeekEnd); err != nil {
			return ""
		}
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
