// Package server exposes the orchestrator controls as a JSON API.
package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/flowline/flowline/common/stats"
	"github.com/flowline/flowline/gpu"
	"github.com/flowline/flowline/process"
	"github.com/flowline/flowline/scheduler"
	"github.com/flowline/flowline/task"
)

//go:generate mockgen -source=api.go -package=server -destination=api_mock.go

// Controller is the set of operator actions served by the API.
type Controller interface {
	Start()
	Stop()
	Toggle() bool
	Status() scheduler.Status
	SetMaxProcesses(n int) error

	GPUStatus() []gpu.Status
	ToggleGPU(gpuID int) (bool, error)
	KillGPU(gpuID int) (int, error)

	Processes() []process.Info
	FinishedProcesses() []process.Info
	Process(processID int) (process.Info, bool)
	KillProcess(processID int) (bool, error)

	Tasks() []task.Task
}

// MaxProcessesRequest is the body of PUT /api/control/max_processes.
type MaxProcessesRequest struct {
	MaxProcesses int `json:"max_processes"`
}

type ToggleResponse struct {
	ID        int  `json:"id,omitempty"`
	Available bool `json:"available"`
}

type KillResponse struct {
	ID     int  `json:"id"`
	Killed bool `json:"killed"`
}

type KillGPUResponse struct {
	ID       int `json:"id"`
	Attempts int `json:"attempts"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	ctl  Controller
	stat stats.StatsReceiver
}

// Register mounts the API under /api on r.
func Register(r *mux.Router, ctl Controller, stat stats.StatsReceiver) {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	h := &handler{ctl: ctl, stat: stat}
	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.count)
	api.MethodNotAllowedHandler = http.HandlerFunc(h.methodNotAllowed)

	api.HandleFunc("/gpus", h.gpus).Methods(http.MethodGet)
	api.HandleFunc("/gpus/{id:[0-9]+}/toggle", h.toggleGPU).Methods(http.MethodPost)
	api.HandleFunc("/gpus/{id:[0-9]+}/kill", h.killGPU).Methods(http.MethodPost)

	api.HandleFunc("/processes", h.processes).Methods(http.MethodGet)
	api.HandleFunc("/processes/finished", h.finished).Methods(http.MethodGet)
	api.HandleFunc("/processes/{id:[0-9]+}", h.process).Methods(http.MethodGet)
	api.HandleFunc("/processes/{id:[0-9]+}/kill", h.killProcess).Methods(http.MethodPost)
	api.HandleFunc("/processes/{id:[0-9]+}/{stream:stdout|stderr}", h.output).Methods(http.MethodGet)

	api.HandleFunc("/tasks", h.tasks).Methods(http.MethodGet)

	api.HandleFunc("/control/status", h.status).Methods(http.MethodGet)
	api.HandleFunc("/control/start", h.start).Methods(http.MethodPost)
	api.HandleFunc("/control/stop", h.stop).Methods(http.MethodPost)
	api.HandleFunc("/control/toggle", h.toggle).Methods(http.MethodPost)
	api.HandleFunc("/control/max_processes", h.setMaxProcesses).Methods(http.MethodPut)
}

func (h *handler) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.stat.Counter(stats.ServerRequestCounter).Inc(1)
		next.ServeHTTP(w, r)
	})
}

func (h *handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: r.Method + " not allowed on " + r.URL.Path})
}

func (h *handler) gpus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ctl.GPUStatus())
}

func (h *handler) toggleGPU(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	on, err := h.ctl.ToggleGPU(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ToggleResponse{ID: id, Available: on})
}

func (h *handler) killGPU(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	n, err := h.ctl.KillGPU(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, KillGPUResponse{ID: id, Attempts: n})
}

func (h *handler) processes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ctl.Processes())
}

func (h *handler) finished(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ctl.FinishedProcesses())
}

func (h *handler) process(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	p, ok := h.ctl.Process(id)
	if !ok {
		h.writeError(w, errors.Wrapf(process.ErrUnknownProcess, "process %d", id))
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *handler) killProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	killed, err := h.ctl.KillProcess(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, KillResponse{ID: id, Killed: killed})
}

// output serves a process's stdout or stderr log file.
func (h *handler) output(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	p, ok := h.ctl.Process(id)
	if !ok {
		h.writeError(w, errors.Wrapf(process.ErrUnknownProcess, "process %d", id))
		return
	}
	path := p.StdoutPath
	if mux.Vars(r)["stream"] == "stderr" {
		path = p.StderrPath
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeFile(w, r, path)
}

func (h *handler) tasks(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ctl.Tasks())
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ctl.Status())
}

func (h *handler) start(w http.ResponseWriter, r *http.Request) {
	h.ctl.Start()
	h.writeJSON(w, http.StatusOK, h.ctl.Status())
}

func (h *handler) stop(w http.ResponseWriter, r *http.Request) {
	h.ctl.Stop()
	h.writeJSON(w, http.StatusOK, h.ctl.Status())
}

func (h *handler) toggle(w http.ResponseWriter, r *http.Request) {
	h.ctl.Toggle()
	h.writeJSON(w, http.StatusOK, h.ctl.Status())
}

func (h *handler) setMaxProcesses(w http.ResponseWriter, r *http.Request) {
	var req MaxProcessesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid body: " + err.Error()})
		return
	}
	if req.MaxProcesses < 0 {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "max_processes must be >= 0"})
		return
	}
	if err := h.ctl.SetMaxProcesses(req.MaxProcesses); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.ctl.Status())
}

func (h *handler) pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
		return 0, false
	}
	return id, true
}

// writeError maps unknown ids to 404 and everything else to 500.
func (h *handler) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch errors.Cause(err) {
	case gpu.ErrUnknownGPU, process.ErrUnknownProcess, task.ErrUnknownTask:
		code = http.StatusNotFound
	}
	h.writeJSON(w, code, ErrorResponse{Error: err.Error()})
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	if code >= http.StatusBadRequest {
		h.stat.Counter(stats.ServerRequestErrCounter).Inc(1)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithFields(
			log.Fields{
				"err": err,
			}).Error("Failed to write response")
	}
}
