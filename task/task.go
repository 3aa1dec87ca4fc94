// Package task holds the backlog of work: task rows as persisted by a Store,
// their ordering key, and the in-memory Queue the scheduler dispatches from.
package task

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Param is a single named parameter of a task configuration.
type Param struct {
	Name  string
	Value string
}

// Config is the ordered parameter set of a task. Order is the order the
// parameters were loaded in, and is kept when rendering a command line.
type Config []Param

// Get returns the value for name and whether it was present.
func (c Config) Get(name string) (string, bool) {
	for _, p := range c {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Set replaces the value for name, appending the parameter if missing.
func (c Config) Set(name, value string) Config {
	for i := range c {
		if c[i].Name == name {
			c[i].Value = value
			return c
		}
	}
	return append(c, Param{Name: name, Value: value})
}

func (c Config) String() string {
	parts := make([]string, 0, len(c))
	for _, p := range c {
		parts = append(parts, p.Name+"="+p.Value)
	}
	return strings.Join(parts, " ")
}

// MarshalYAML writes the config as a mapping in parameter order.
func (c Config) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range c {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Value})
	}
	return node, nil
}

// UnmarshalYAML reads a mapping, keeping the document order of its keys.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.Errorf("line %d: task config must be a mapping", node.Line)
	}
	out := make(Config, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return errors.Errorf("line %d: value of %q must be a scalar", v.Line, k.Value)
		}
		out = append(out, Param{Name: k.Value, Value: v.Value})
	}
	*c = out
	return nil
}

// MarshalJSON writes the config as an object in parameter order.
func (c Config) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of string values, keeping key order.
func (c *Config) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.Errorf("task config must be a JSON object")
	}
	out := Config{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return err
		}
		out = append(out, Param{Name: tok.(string), Value: value})
	}
	*c = out
	return nil
}

// Row is a task as persisted by a Store.
type Row struct {
	ID           int
	Config       Config
	RunCount     int
	RequiredRuns int
}

// Remaining is how many more successful runs the row needs.
func (r Row) Remaining() int {
	required := r.RequiredRuns
	if required < 1 {
		required = 1
	}
	if n := required - r.RunCount; n > 0 {
		return n
	}
	return 0
}

type Status int

const (
	Pending Status = iota
	Completed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Completed:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "PENDING":
		*s = Pending
	case "COMPLETED":
		*s = Completed
	default:
		return errors.Errorf("unknown task status %q", b)
	}
	return nil
}

// Task is the listing view of a row.
type Task struct {
	ID           int    `json:"id"`
	Config       Config `json:"config"`
	RunCount     int    `json:"run_count"`
	RequiredRuns int    `json:"required_runs"`
	Status       Status `json:"status"`
	// Copies of this task currently waiting in the queue.
	Queued int `json:"queued"`
	// Times this task was put back into the queue after being dispatched.
	Retries int `json:"retries"`
	// Completed runs that could not be persisted yet.
	Unsaved int `json:"unsaved_runs"`
}
