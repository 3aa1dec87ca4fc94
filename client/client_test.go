package client

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline/flowline/gpu"
	"github.com/flowline/flowline/process"
	"github.com/flowline/flowline/scheduler"
	"github.com/flowline/flowline/server"
	"github.com/flowline/flowline/task"
)

func setup(t *testing.T) (*server.MockController, *Client) {
	mockCtrl := gomock.NewController(t)
	ctl := server.NewMockController(mockCtrl)
	r := mux.NewRouter()
	server.Register(r, ctl, nil)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ctl, New(ts.URL, nil)
}

func TestControl(t *testing.T) {
	ctl, c := setup(t)

	ctl.EXPECT().Status().Return(scheduler.Status{MaxProcesses: 4, GPUs: 2})
	st, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, scheduler.Status{MaxProcesses: 4, GPUs: 2}, st)

	gomock.InOrder(
		ctl.EXPECT().Start(),
		ctl.EXPECT().Status().Return(scheduler.Status{Running: true}),
	)
	st, err = c.Start()
	require.NoError(t, err)
	assert.True(t, st.Running)

	gomock.InOrder(
		ctl.EXPECT().Toggle().Return(false),
		ctl.EXPECT().Status().Return(scheduler.Status{}),
	)
	st, err = c.Toggle()
	require.NoError(t, err)
	assert.False(t, st.Running)

	gomock.InOrder(
		ctl.EXPECT().Stop(),
		ctl.EXPECT().Status().Return(scheduler.Status{}),
	)
	_, err = c.Stop()
	require.NoError(t, err)

	gomock.InOrder(
		ctl.EXPECT().SetMaxProcesses(1),
		ctl.EXPECT().Status().Return(scheduler.Status{MaxProcesses: 1}),
	)
	st, err = c.SetMaxProcesses(1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.MaxProcesses)

	_, err = c.SetMaxProcesses(-2)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "max_processes")
}

func TestGPUs(t *testing.T) {
	ctl, c := setup(t)

	ctl.EXPECT().GPUStatus().Return([]gpu.Status{{ID: 0, State: gpu.Busy}, {ID: 1, State: gpu.Disabled}})
	gpus, err := c.GPUs()
	require.NoError(t, err)
	require.Len(t, gpus, 2)
	assert.Equal(t, gpu.Disabled, gpus[1].State)

	ctl.EXPECT().ToggleGPU(1).Return(true, nil)
	tr, err := c.ToggleGPU(1)
	require.NoError(t, err)
	assert.True(t, tr.Available)

	ctl.EXPECT().KillGPU(5).Return(0, errors.Wrap(gpu.ErrUnknownGPU, "gpu 5"))
	_, err = c.KillGPU(5)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, err.(*APIError).StatusCode)
	assert.Equal(t, "gpu 5: unknown gpu", err.(*APIError).Message)
}

func TestProcessesAndTasks(t *testing.T) {
	ctl, c := setup(t)

	ctl.EXPECT().Processes().Return([]process.Info{{ID: 2, Status: process.Killing}})
	procs, err := c.Processes(false)
	require.NoError(t, err)
	require.Len(t, procs, 1)
	assert.Equal(t, process.Killing, procs[0].Status)

	ctl.EXPECT().FinishedProcesses().Return([]process.Info{{ID: 1, Status: process.Completed}})
	procs, err = c.Processes(true)
	require.NoError(t, err)
	assert.Equal(t, process.Completed, procs[0].Status)

	ctl.EXPECT().KillProcess(2).Return(false, nil)
	kr, err := c.KillProcess(2)
	require.NoError(t, err)
	assert.False(t, kr.Killed)

	ctl.EXPECT().Tasks().Return([]task.Task{{ID: 4, Config: task.Config{{Name: "seed", Value: "1"}}, RunCount: 1, RequiredRuns: 3}})
	tasks, err := c.Tasks()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.Config{{Name: "seed", Value: "1"}}, tasks[0].Config)
	assert.Equal(t, 3, tasks[0].RequiredRuns)

	ctl.EXPECT().Process(9).Return(process.Info{}, false)
	_, err = c.Output(9, "stdout")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	assert.Equal(t, "http://localhost:9091", New("localhost:9091", http.DefaultClient).rootURI)
	assert.Equal(t, "https://gpu-box", New("https://gpu-box/", http.DefaultClient).rootURI)
}
