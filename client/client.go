// Package client talks to a flowline server's JSON API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sethgrid/pester"
	log "github.com/sirupsen/logrus"

	"github.com/flowline/flowline/gpu"
	"github.com/flowline/flowline/process"
	"github.com/flowline/flowline/scheduler"
	"github.com/flowline/flowline/server"
	"github.com/flowline/flowline/task"
)

// 0 and 1 both mean 1 try total
const DefaultHttpTries = 3

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

func MakePesterClient() *pester.Client {
	client := pester.New()
	client.Backoff = pester.ExponentialBackoff
	client.MaxRetries = DefaultHttpTries
	client.LogHook = func(e pester.ErrEntry) {
		log.Errorf("Retrying after failed attempt: %+v", e)
	}
	return client
}

// APIError is a non 2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	rootURI string
	http    Doer
}

// New returns a client for the server at addr, "host:port" or a URL. A nil
// doer retries with exponential backoff.
func New(addr string, doer Doer) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	if doer == nil {
		doer = MakePesterClient()
	}
	return &Client{rootURI: strings.TrimSuffix(addr, "/"), http: doer}
}

func (c *Client) Status() (scheduler.Status, error) {
	var st scheduler.Status
	err := c.call(http.MethodGet, "/api/control/status", nil, &st)
	return st, err
}

func (c *Client) Start() (scheduler.Status, error) {
	var st scheduler.Status
	err := c.call(http.MethodPost, "/api/control/start", nil, &st)
	return st, err
}

func (c *Client) Stop() (scheduler.Status, error) {
	var st scheduler.Status
	err := c.call(http.MethodPost, "/api/control/stop", nil, &st)
	return st, err
}

func (c *Client) Toggle() (scheduler.Status, error) {
	var st scheduler.Status
	err := c.call(http.MethodPost, "/api/control/toggle", nil, &st)
	return st, err
}

func (c *Client) SetMaxProcesses(n int) (scheduler.Status, error) {
	var st scheduler.Status
	err := c.call(http.MethodPut, "/api/control/max_processes", server.MaxProcessesRequest{MaxProcesses: n}, &st)
	return st, err
}

func (c *Client) GPUs() ([]gpu.Status, error) {
	var out []gpu.Status
	err := c.call(http.MethodGet, "/api/gpus", nil, &out)
	return out, err
}

func (c *Client) ToggleGPU(id int) (server.ToggleResponse, error) {
	var out server.ToggleResponse
	err := c.call(http.MethodPost, fmt.Sprintf("/api/gpus/%d/toggle", id), nil, &out)
	return out, err
}

func (c *Client) KillGPU(id int) (server.KillGPUResponse, error) {
	var out server.KillGPUResponse
	err := c.call(http.MethodPost, fmt.Sprintf("/api/gpus/%d/kill", id), nil, &out)
	return out, err
}

// Processes lists active processes, or remembered finished ones.
func (c *Client) Processes(finished bool) ([]process.Info, error) {
	path := "/api/processes"
	if finished {
		path += "/finished"
	}
	var out []process.Info
	err := c.call(http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) KillProcess(id int) (server.KillResponse, error) {
	var out server.KillResponse
	err := c.call(http.MethodPost, fmt.Sprintf("/api/processes/%d/kill", id), nil, &out)
	return out, err
}

// Output returns the "stdout" or "stderr" log of a process.
func (c *Client) Output(id int, stream string) (string, error) {
	resp, err := c.do(http.MethodGet, fmt.Sprintf("/api/processes/%d/%s", id, stream), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return string(b), err
}

func (c *Client) Tasks() ([]task.Task, error) {
	var out []task.Task
	err := c.call(http.MethodGet, "/api/tasks", nil, &out)
	return out, err
}

func (c *Client) call(method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// do sends a request and turns non 2xx answers into an *APIError.
func (c *Client) do(method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, c.rootURI+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	log.Debugf("%s %s", method, req.URL)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 == 2 {
		return resp, nil
	}
	defer resp.Body.Close()
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	var er server.ErrorResponse
	if b, err := io.ReadAll(resp.Body); err == nil {
		if json.Unmarshal(b, &er) == nil && er.Error != "" {
			apiErr.Message = er.Error
		} else if s := strings.TrimSpace(string(b)); s != "" {
			apiErr.Message = s
		}
	}
	return nil, apiErr
}
