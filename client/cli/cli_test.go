package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline/flowline/gpu"
	"github.com/flowline/flowline/process"
	"github.com/flowline/flowline/scheduler"
	"github.com/flowline/flowline/server"
	"github.com/flowline/flowline/task"
)

func setup(t *testing.T) (*server.MockController, func(args ...string) (string, error)) {
	mockCtrl := gomock.NewController(t)
	ctl := server.NewMockController(mockCtrl)
	r := mux.NewRouter()
	server.Register(r, ctl, nil)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	run := func(args ...string) (string, error) {
		c := NewSimpleCLIClient(http.DefaultClient)
		var out bytes.Buffer
		c.RootCmd.SetOut(&out)
		c.RootCmd.SetErr(&out)
		c.RootCmd.SetArgs(append([]string{"--addr", ts.URL}, args...))
		err := c.Exec()
		return out.String(), err
	}
	return ctl, run
}

func TestStatusCommands(t *testing.T) {
	ctl, run := setup(t)

	ctl.EXPECT().Status().Return(scheduler.Status{Running: true, MaxProcesses: 4, ActiveProcesses: 1, PendingTasks: 3, GPUs: 2})
	out, err := run("status")
	require.NoError(t, err)
	assert.Equal(t, "Scheduler running: 1/4 processes, 3 pending tasks, 2 GPUs\n", out)

	ctl.EXPECT().Start()
	ctl.EXPECT().Status().Return(scheduler.Status{Running: true})
	out, err = run("start", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"running": true`)

	ctl.EXPECT().SetMaxProcesses(2)
	ctl.EXPECT().Status().Return(scheduler.Status{MaxProcesses: 2})
	_, err = run("set_max", "2")
	require.NoError(t, err)

	_, err = run("set_max", "two")
	assert.Error(t, err)
}

func TestGpuCommands(t *testing.T) {
	ctl, run := setup(t)

	ctl.EXPECT().GPUStatus().Return([]gpu.Status{{
		ID:       0,
		State:    gpu.Busy,
		Snapshot: gpu.Snapshot{Name: "A100", TotalMemory: 40960, FreeMemory: 10240, UtilizationPct: 87},
	}})
	out, err := run("gpus")
	require.NoError(t, err)
	assert.Contains(t, out, "A100")
	assert.Contains(t, out, "30720/40960")
	assert.Contains(t, out, "87%")

	ctl.EXPECT().ToggleGPU(0).Return(false, nil)
	out, err = run("toggle_gpu", "0")
	require.NoError(t, err)
	assert.Equal(t, "GPU 0 disabled\n", out)

	ctl.EXPECT().KillGPU(1).Return(3, nil)
	out, err = run("kill_gpu", "1")
	require.NoError(t, err)
	assert.Equal(t, "Killed 3 processes on GPU 1\n", out)
}

func TestProcessAndTaskCommands(t *testing.T) {
	ctl, run := setup(t)

	ctl.EXPECT().FinishedProcesses().Return([]process.Info{{ID: 5, TaskID: 2, Status: process.Failed, ExitCode: 1, Command: "python train.py"}})
	out, err := run("procs", "--finished")
	require.NoError(t, err)
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "python train.py")

	ctl.EXPECT().KillProcess(5).Return(false, nil)
	out, err = run("kill", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "was not killed")

	ctl.EXPECT().Tasks().Return([]task.Task{
		{ID: 0, Config: task.Config{{Name: "lr", Value: "0.1"}}, RunCount: 1, RequiredRuns: 1, Status: task.Completed},
		{ID: 1, Config: task.Config{{Name: "lr", Value: "0.01"}}, RequiredRuns: 1, Status: task.Pending, Queued: 1},
	})
	out, err = run("tasks", "--pending")
	require.NoError(t, err)
	assert.Contains(t, out, "lr=0.01")
	assert.NotContains(t, out, "lr=0.1 ")
	assert.NotContains(t, out, "COMPLETED")

	ctl.EXPECT().Process(7).Return(process.Info{}, false)
	_, err = run("logs", "7")
	assert.Error(t, err)
}
