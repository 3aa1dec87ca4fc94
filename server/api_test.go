package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline/flowline/common/stats"
	"github.com/flowline/flowline/gpu"
	"github.com/flowline/flowline/process"
	"github.com/flowline/flowline/scheduler"
	"github.com/flowline/flowline/task"
)

func setup(t *testing.T) (*MockController, http.Handler, stats.StatsReceiver) {
	mockCtrl := gomock.NewController(t)
	ctl := NewMockController(mockCtrl)
	stat := stats.DefaultStatsReceiver()
	r := mux.NewRouter()
	Register(r, ctl, stat)
	return ctl, r, stat
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, string) {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	b, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(b)
}

func TestGPURoutes(t *testing.T) {
	ctl, h, _ := setup(t)

	ctl.EXPECT().GPUStatus().Return([]gpu.Status{{ID: 0, Available: true, State: gpu.Available}})
	code, body := do(t, h, http.MethodGet, "/api/gpus", "")
	assert.Equal(t, http.StatusOK, code)
	var st []gpu.Status
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	require.Len(t, st, 1)
	assert.Equal(t, gpu.Available, st[0].State)

	ctl.EXPECT().ToggleGPU(1).Return(false, nil)
	code, body = do(t, h, http.MethodPost, "/api/gpus/1/toggle", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"id": 1, "available": false}`, body)

	ctl.EXPECT().ToggleGPU(9).Return(false, errors.Wrap(gpu.ErrUnknownGPU, "gpu 9"))
	code, _ = do(t, h, http.MethodPost, "/api/gpus/9/toggle", "")
	assert.Equal(t, http.StatusNotFound, code)

	ctl.EXPECT().KillGPU(0).Return(2, nil)
	code, body = do(t, h, http.MethodPost, "/api/gpus/0/kill", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"id": 0, "attempts": 2}`, body)

	code, body = do(t, h, http.MethodGet, "/api/gpus/0/kill", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.JSONEq(t, `{"error": "GET not allowed on /api/gpus/0/kill"}`, body)
	code, _ = do(t, h, http.MethodDelete, "/api/control/max_processes", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	code, _ = do(t, h, http.MethodPost, "/api/gpus/x/kill", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestProcessRoutes(t *testing.T) {
	ctl, h, stat := setup(t)
	dir := t.TempDir()
	info := process.Info{
		ID:         3,
		TaskID:     1,
		Status:     process.Running,
		StdoutPath: filepath.Join(dir, "3.out"),
		StderrPath: filepath.Join(dir, "3.err"),
	}
	require.NoError(t, os.WriteFile(info.StdoutPath, []byte("epoch 1\n"), 0644))
	require.NoError(t, os.WriteFile(info.StderrPath, []byte("warning\n"), 0644))

	ctl.EXPECT().Processes().Return([]process.Info{info})
	code, body := do(t, h, http.MethodGet, "/api/processes", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"RUNNING"`)

	ctl.EXPECT().FinishedProcesses().Return([]process.Info{})
	code, body = do(t, h, http.MethodGet, "/api/processes/finished", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, body)

	ctl.EXPECT().Process(3).Return(info, true).Times(3)
	code, _ = do(t, h, http.MethodGet, "/api/processes/3", "")
	assert.Equal(t, http.StatusOK, code)
	code, body = do(t, h, http.MethodGet, "/api/processes/3/stdout", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "epoch 1\n", body)
	_, body = do(t, h, http.MethodGet, "/api/processes/3/stderr", "")
	assert.Equal(t, "warning\n", body)

	ctl.EXPECT().Process(4).Return(process.Info{}, false)
	code, _ = do(t, h, http.MethodGet, "/api/processes/4/stdout", "")
	assert.Equal(t, http.StatusNotFound, code)

	ctl.EXPECT().KillProcess(3).Return(true, nil)
	code, body = do(t, h, http.MethodPost, "/api/processes/3/kill", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"id": 3, "killed": true}`, body)

	ctl.EXPECT().KillProcess(5).Return(false, errors.Wrap(process.ErrUnknownProcess, "process 5"))
	code, body = do(t, h, http.MethodPost, "/api/processes/5/kill", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body, "unknown process")

	assert.Equal(t, int64(8), stat.Counter(stats.ServerRequestCounter).Count())
	assert.Equal(t, int64(2), stat.Counter(stats.ServerRequestErrCounter).Count())
}

func TestControlRoutes(t *testing.T) {
	ctl, h, _ := setup(t)
	running := scheduler.Status{Running: true, MaxProcesses: 4, GPUs: 2}
	stopped := scheduler.Status{MaxProcesses: 4, GPUs: 2}

	ctl.EXPECT().Status().Return(stopped)
	code, body := do(t, h, http.MethodGet, "/api/control/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"running": false, "max_processes": 4, "active_processes": 0, "pending_tasks": 0, "gpus": 2}`, body)

	gomock.InOrder(
		ctl.EXPECT().Start(),
		ctl.EXPECT().Status().Return(running),
	)
	_, body = do(t, h, http.MethodPost, "/api/control/start", "")
	assert.Contains(t, body, `"running":true`)

	gomock.InOrder(
		ctl.EXPECT().Stop(),
		ctl.EXPECT().Status().Return(stopped),
	)
	_, body = do(t, h, http.MethodPost, "/api/control/stop", "")
	assert.Contains(t, body, `"running":false`)

	gomock.InOrder(
		ctl.EXPECT().Toggle().Return(true),
		ctl.EXPECT().Status().Return(running),
	)
	_, body = do(t, h, http.MethodPost, "/api/control/toggle", "")
	assert.Contains(t, body, `"running":true`)

	gomock.InOrder(
		ctl.EXPECT().SetMaxProcesses(2),
		ctl.EXPECT().Status().Return(scheduler.Status{MaxProcesses: 2}),
	)
	code, body = do(t, h, http.MethodPut, "/api/control/max_processes", `{"max_processes": 2}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"max_processes":2`)

	code, _ = do(t, h, http.MethodPut, "/api/control/max_processes", `{"max_processes": -1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, h, http.MethodPut, "/api/control/max_processes", `nope`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTaskRoute(t *testing.T) {
	ctl, h, _ := setup(t)
	ctl.EXPECT().Tasks().Return([]task.Task{{
		ID:           0,
		Config:       task.Config{{Name: "lr", Value: "0.1"}, {Name: "batch", Value: "32"}},
		RequiredRuns: 1,
		Status:       task.Pending,
		Queued:       1,
	}})
	code, body := do(t, h, http.MethodGet, "/api/tasks", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"config":{"lr":"0.1","batch":"32"}`)
	assert.Contains(t, body, `"status":"PENDING"`)
}
