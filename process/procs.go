package process

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

//go:generate mockgen -source=procs.go -package=process -destination=procs_mock.go

// ProcessLister takes a snapshot of the host process table.
type ProcessLister interface {
	List() (*ProcTable, error)
}

type proc struct {
	pid    int
	pgid   int
	ppid   int
	zombie bool
}

// ProcTable indexes a process table snapshot by pid, group and parent.
type ProcTable struct {
	all      map[int]proc
	groups   map[int][]proc
	children map[int][]proc
}

// NewPsLister returns a lister reading `ps -e`.
func NewPsLister() ProcessLister {
	return psLister{}
}

type psLister struct{}

func (psLister) List() (*ProcTable, error) {
	b, err := exec.Command("ps", "-e", "-o", "pid=", "-o", "pgid=", "-o", "ppid=", "-o", "stat=").Output()
	if err != nil {
		return nil, errors.Wrap(err, "listing processes")
	}
	return parseProcs(b)
}

// parseProcs reads lines of "pid pgid ppid stat".
func parseProcs(b []byte) (*ProcTable, error) {
	t := &ProcTable{
		all:      make(map[int]proc),
		groups:   make(map[int][]proc),
		children: make(map[int][]proc),
	}
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var p proc
		var stat string
		n, err := fmt.Sscanf(line, "%d %d %d %s", &p.pid, &p.pgid, &p.ppid, &stat)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %q", line)
		}
		if n != 4 {
			return nil, errors.Errorf("parsing %q: expected 4 fields, got %d", line, n)
		}
		p.zombie = strings.HasPrefix(stat, "Z")
		t.all[p.pid] = p
		t.groups[p.pgid] = append(t.groups[p.pgid], p)
		t.children[p.ppid] = append(t.children[p.ppid], p)
	}
	return t, sc.Err()
}

// Descendants returns every process in root's group plus every process reachable
// from root through parent links, excluding root itself.
func (t *ProcTable) Descendants(root int) []int {
	seen := map[int]bool{root: true}
	queue := []int{root}
	for _, p := range t.groups[root] {
		if !seen[p.pid] {
			seen[p.pid] = true
			queue = append(queue, p.pid)
		}
	}
	for i := 0; i < len(queue); i++ {
		for _, c := range t.children[queue[i]] {
			if !seen[c.pid] {
				seen[c.pid] = true
				queue = append(queue, c.pid)
			}
		}
	}
	return append([]int{}, queue[1:]...)
}

// Alive reports whether any live, non zombie process is in group pgid or among pids.
func (t *ProcTable) Alive(pgid int, pids []int) bool {
	for _, p := range t.groups[pgid] {
		if !p.zombie {
			return true
		}
	}
	for _, pid := range pids {
		if p, ok := t.all[pid]; ok && !p.zombie {
			return true
		}
	}
	return false
}

// signalAlive is the fallback liveness check when the process table can't be read.
// Zombies count as alive.
func signalAlive(pgid int, pids []int) bool {
	if err := unix.Kill(-pgid, 0); err != unix.ESRCH {
		return true
	}
	for _, pid := range pids {
		if err := unix.Kill(pid, 0); err != unix.ESRCH {
			return true
		}
	}
	return false
}
