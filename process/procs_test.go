package process

import (
	"os"
	"sort"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const psOutput = `
    1     1     0 Ss
  100   100     1 S
  101   100   100 S
  102   100   101 R+
  103   103   101 S
  104   103   103 Z
  200   200     1 S
`

func TestParseProcs(t *testing.T) {
	table, err := parseProcs([]byte(psOutput))
	require.NoError(t, err)
	assert.Len(t, table.all, 7)
	assert.True(t, table.all[104].zombie)
	assert.False(t, table.all[102].zombie)
	assert.Len(t, table.groups[100], 3)

	_, err = parseProcs([]byte("12 x 1 S\n"))
	assert.Error(t, err)
}

func TestDescendants(t *testing.T) {
	table, err := parseProcs([]byte(psOutput))
	require.NoError(t, err)

	// 103 left the group with setpgid but is still reachable through its parent.
	got := table.Descendants(100)
	sort.Ints(got)
	assert.Equal(t, []int{101, 102, 103, 104}, got)

	assert.Empty(t, table.Descendants(200))
	assert.Empty(t, table.Descendants(999))
}

func TestAlive(t *testing.T) {
	table, err := parseProcs([]byte(psOutput))
	require.NoError(t, err)

	assert.True(t, table.Alive(100, nil))
	assert.True(t, table.Alive(999, []int{103}))
	assert.False(t, table.Alive(999, []int{104}), "zombies are dead")
	assert.False(t, table.Alive(999, []int{555}))
}

func TestSignalAlive(t *testing.T) {
	assert.True(t, signalAlive(syscall.Getpgrp(), nil))
	assert.True(t, signalAlive(1<<22-3, []int{os.Getpid()}))
	assert.False(t, signalAlive(1<<22-3, []int{1<<22 - 5}))
}
