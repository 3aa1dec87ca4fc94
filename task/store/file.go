// Package store provides task.Store implementations: a YAML task table on
// disk and an in-memory table for tests and embedding.
package store

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/flowline/flowline/task"
)

// A task table file looks like:
//
//	tasks:
//	  - required_runs: 2
//	    config:
//	      method_name: GST
//	      data_name: rotate_mnist
//	  - id: 7
//	    run_count: 1
//	    config:
//	      method_name: GOAT
//
// Rows without an id get their index in the list. required_runs defaults to 1.
type fileTable struct {
	Tasks []fileRow `yaml:"tasks"`
}

type fileRow struct {
	ID           *int        `yaml:"id,omitempty"`
	RequiredRuns int         `yaml:"required_runs,omitempty"`
	RunCount     int         `yaml:"run_count"`
	Config       task.Config `yaml:"config"`
}

// FileStore keeps the task table in a YAML file. Every increment rewrites the
// whole file through a temp file and rename, keeping the file's permissions.
type FileStore struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

// NewFileStore returns a store over path on fs. A nil fs is the OS filesystem.
func NewFileStore(fs afero.Fs, path string) *FileStore {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileStore{fs: fs, path: path}
}

func (s *FileStore) LoadAll() ([]task.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.read()
	if err != nil {
		return nil, err
	}
	return toRows(t)
}

func (s *FileStore) IncrementRunCount(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.read()
	if err != nil {
		return err
	}
	found := false
	for i := range t.Tasks {
		if rowID(t.Tasks[i], i) == id {
			t.Tasks[i].RunCount++
			found = true
			break
		}
	}
	if !found {
		return errors.Wrapf(task.ErrUnknownTask, "task %d not in %s", id, s.path)
	}
	return s.write(t)
}

// Save replaces the table with rows, ids written explicitly.
func (s *FileStore) Save(rows []task.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fileTable{Tasks: make([]fileRow, 0, len(rows))}
	for _, r := range rows {
		id := r.ID
		t.Tasks = append(t.Tasks, fileRow{
			ID:           &id,
			RequiredRuns: r.RequiredRuns,
			RunCount:     r.RunCount,
			Config:       r.Config,
		})
	}
	if _, err := toRows(t); err != nil {
		return err
	}
	return s.write(t)
}

func (s *FileStore) read() (*fileTable, error) {
	b, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading task table %s", s.path)
	}
	t := &fileTable{}
	if err := yaml.Unmarshal(b, t); err != nil {
		return nil, errors.Wrapf(err, "parsing task table %s", s.path)
	}
	return t, nil
}

func (s *FileStore) write(t *fileTable) error {
	b, err := yaml.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "encoding task table")
	}
	tmp, err := afero.TempFile(s.fs, filepath.Dir(s.path), "."+filepath.Base(s.path)+".")
	if err != nil {
		return errors.Wrapf(err, "creating temp file for %s", s.path)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		s.fs.Remove(tmp.Name())
		return errors.Wrapf(err, "writing %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmp.Name())
		return errors.Wrapf(err, "closing %s", tmp.Name())
	}
	mode := os.FileMode(0644)
	if fi, err := s.fs.Stat(s.path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := s.fs.Chmod(tmp.Name(), mode); err != nil {
		s.fs.Remove(tmp.Name())
		return errors.Wrapf(err, "setting mode of %s", tmp.Name())
	}
	if err := s.fs.Rename(tmp.Name(), s.path); err != nil {
		s.fs.Remove(tmp.Name())
		return errors.Wrapf(err, "replacing %s", s.path)
	}
	log.Debugf("Wrote %d tasks to %s", len(t.Tasks), s.path)
	return nil
}

func rowID(r fileRow, index int) int {
	if r.ID != nil {
		return *r.ID
	}
	return index
}

func toRows(t *fileTable) ([]task.Row, error) {
	rows := make([]task.Row, 0, len(t.Tasks))
	seen := map[int]bool{}
	for i, fr := range t.Tasks {
		id := rowID(fr, i)
		if seen[id] {
			return nil, errors.Errorf("duplicate task id %d", id)
		}
		seen[id] = true
		required := fr.RequiredRuns
		if required < 1 {
			required = 1
		}
		rows = append(rows, task.Row{
			ID:           id,
			Config:       fr.Config,
			RunCount:     fr.RunCount,
			RequiredRuns: required,
		})
	}
	return rows, nil
}
