package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline/flowline/task"
	"github.com/flowline/flowline/task/store"
)

func run(args ...string) (string, error) {
	c := newCLI()
	var out bytes.Buffer
	c.RootCmd.SetOut(&out)
	c.RootCmd.SetErr(&out)
	c.RootCmd.SetArgs(args)
	err := c.Exec()
	return out.String(), err
}

func TestGrid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")

	out, err := run("grid", "--axis", "model=small, large", "--axis", "lr=0.1,0.01", "--runs", "3", "--out", path)
	require.NoError(t, err)
	assert.Equal(t, "Wrote 4 tasks to "+path+"\n", out)

	rows, err := store.NewFileStore(nil, path).LoadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, task.Config{{Name: "model", Value: "small"}, {Name: "lr", Value: "0.1"}}, rows[0].Config)
	assert.Equal(t, task.Config{{Name: "model", Value: "large"}, {Name: "lr", Value: "0.01"}}, rows[3].Config)
	for i, r := range rows {
		assert.Equal(t, i, r.ID)
		assert.Equal(t, 3, r.RequiredRuns)
		assert.Equal(t, 0, r.RunCount)
	}

	_, err = run("grid", "--axis", "lr=0.5", "--out", path)
	assert.Error(t, err, "existing table is kept")
	_, err = run("grid", "--axis", "lr=0.5", "--out", path, "--force")
	require.NoError(t, err)
	rows, err = store.NewFileStore(nil, path).LoadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestGridRejectsBadAxes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.yaml")
	for _, args := range [][]string{
		{"grid", "--out", path},
		{"grid", "--axis", "lr", "--out", path},
		{"grid", "--axis", "=0.1", "--out", path},
		{"grid", "--axis", "lr=,", "--out", path},
		{"grid", "--axis", "lr=0.1", "--runs", "0", "--out", path},
	} {
		_, err := run(args...)
		assert.Error(t, err, "%v", args)
	}
}

func TestServeRejectsBadConfig(t *testing.T) {
	_, err := run("serve", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = run("serve", "--provider", "tpu")
	assert.Error(t, err)
}
