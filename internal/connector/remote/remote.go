// Package remote implements connector.Connector as an HTTP client
// against the control plane's internal API, for use by a worker pod
// running in cluster mode (spec §4.1, §6). Every request carries the
// shared-secret header; the control plane rejects mismatches with a
// forbidden response.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"reproserver/internal/connector"
)

// batchInterval is the remote connector's log-batching interval
// (spec §4.1: "remote connector: ~3s").
const batchInterval = 3 * time.Second

const authHeader = "X-Reproserver-Authenticate"

// Connector calls the control plane's internal runner API.
type Connector struct {
	baseURL string
	token   string
	client  *http.Client
}

// New builds a remote connector against the control plane's internal
// API endpoint, authenticating with token.
func New(baseURL, token string) *Connector {
	return &Connector{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{},
	}
}

// BatchInterval implements connector.Connector.
func (c *Connector) BatchInterval() time.Duration {
	return batchInterval
}

func (c *Connector) runURL(runID int64, suffix string) string {
	return fmt.Sprintf("%s/runners/run/%d/%s", c.baseURL, runID, suffix)
}

func (c *Connector) doJSON(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set(authHeader, c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &connector.InfrastructureError{Operation: "remote connector request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &connector.InfrastructureError{
			Operation: "remote connector request",
			Err:       fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, string(data)),
		}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// InitRunGetInfo implements connector.Connector.
func (c *Connector) InitRunGetInfo(ctx context.Context, runID int64) (*connector.RunInfo, error) {
	var info connector.RunInfo
	if err := c.doJSON(ctx, http.MethodPost, c.runURL(runID, "init"), struct{}{}, &info); err != nil {
		return nil, err
	}
	info.RunID = runID
	return &info, nil
}

// RunStarted implements connector.Connector.
func (c *Connector) RunStarted(ctx context.Context, runID int64) error {
	return c.doJSON(ctx, http.MethodPost, c.runURL(runID, "start"), struct{}{}, nil)
}

// RunProgress implements connector.Connector.
func (c *Connector) RunProgress(ctx context.Context, runID int64, percent int, text string) error {
	body := struct {
		Percent int    `json:"percent"`
		Text    string `json:"text"`
	}{percent, text}
	return c.doJSON(ctx, http.MethodPost, c.runURL(runID, "set-progress"), body, nil)
}

// RunDone implements connector.Connector.
func (c *Connector) RunDone(ctx context.Context, runID int64) error {
	return c.doJSON(ctx, http.MethodPost, c.runURL(runID, "done"), struct{}{}, nil)
}

// RunFailed implements connector.Connector.
func (c *Connector) RunFailed(ctx context.Context, runID int64, errText string) error {
	body := struct {
		Error string `json:"error"`
	}{errText}
	return c.doJSON(ctx, http.MethodPost, c.runURL(runID, "failed"), body, nil)
}

// Log implements connector.Connector.
func (c *Connector) Log(ctx context.Context, runID int64, text string) error {
	return c.LogMultiple(ctx, runID, []connector.LogLine{{Time: time.Now().UTC(), Text: text}})
}

// LogMultiple implements connector.Connector.
func (c *Connector) LogMultiple(ctx context.Context, runID int64, lines []connector.LogLine) error {
	if len(lines) == 0 {
		return nil
	}
	type wireLine struct {
		Msg  string `json:"msg"`
		Time string `json:"time"`
	}
	body := struct {
		Lines []wireLine `json:"lines"`
	}{}
	for _, l := range lines {
		body.Lines = append(body.Lines, wireLine{Msg: l.Text, Time: l.Time.UTC().Format(time.RFC3339Nano)})
	}
	return c.doJSON(ctx, http.MethodPost, c.runURL(runID, "log"), body, nil)
}

// UploadOutputFile implements connector.Connector.
func (c *Connector) UploadOutputFile(ctx context.Context, runID int64, name string, r io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.runURL(runID, "output/"+name), r)
	if err != nil {
		return err
	}
	req.Header.Set(authHeader, c.token)
	req.ContentLength = size

	resp, err := c.client.Do(req)
	if err != nil {
		return &connector.InfrastructureError{RunID: runID, Operation: "upload output file", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &connector.InfrastructureError{
			RunID:     runID,
			Operation: "upload output file",
			Err:       fmt.Errorf("status %d: %s", resp.StatusCode, string(data)),
		}
	}
	return nil
}

// RunCmdAndLog implements connector.Connector.
func (c *Connector) RunCmdAndLog(ctx context.Context, runID int64, argv []string, dir string, env []string) (int, error) {
	return connector.RunCmdAndLog(ctx, argv, dir, env, batchInterval, func(ctx context.Context, lines []connector.LogLine) error {
		return c.LogMultiple(ctx, runID, lines)
	})
}
