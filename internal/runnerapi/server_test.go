package runnerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"reproserver/internal/connector"
)

// fakeConnector is a minimal in-memory connector.Connector used to
// exercise the HTTP layer without a real store/object-store pair.
type fakeConnector struct {
	info        *connector.RunInfo
	initErr     error
	started     bool
	progress    struct {
		percent int
		text    string
	}
	done      bool
	failedMsg string
	lines     []connector.LogLine
	uploaded  map[string][]byte
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{uploaded: map[string][]byte{}}
}

func (f *fakeConnector) InitRunGetInfo(ctx context.Context, runID int64) (*connector.RunInfo, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	info := *f.info
	info.RunID = runID
	return &info, nil
}
func (f *fakeConnector) RunStarted(ctx context.Context, runID int64) error {
	f.started = true
	return nil
}
func (f *fakeConnector) RunProgress(ctx context.Context, runID int64, percent int, text string) error {
	f.progress.percent = percent
	f.progress.text = text
	return nil
}
func (f *fakeConnector) RunDone(ctx context.Context, runID int64) error {
	f.done = true
	return nil
}
func (f *fakeConnector) RunFailed(ctx context.Context, runID int64, errText string) error {
	f.failedMsg = errText
	return nil
}
func (f *fakeConnector) Log(ctx context.Context, runID int64, text string) error {
	f.lines = append(f.lines, connector.LogLine{Text: text, Time: time.Now()})
	return nil
}
func (f *fakeConnector) LogMultiple(ctx context.Context, runID int64, lines []connector.LogLine) error {
	f.lines = append(f.lines, lines...)
	return nil
}
func (f *fakeConnector) UploadOutputFile(ctx context.Context, runID int64, name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.uploaded[name] = data
	return nil
}
func (f *fakeConnector) RunCmdAndLog(ctx context.Context, runID int64, argv []string, dir string, env []string) (int, error) {
	return 0, nil
}
func (f *fakeConnector) BatchInterval() time.Duration { return time.Second }

const testSecret = "s3cr3t"

func newTestServer() (*httptest.Server, *fakeConnector) {
	fc := newFakeConnector()
	fc.info = &connector.RunInfo{ExperimentHash: "abc123"}
	s := New(fc, testSecret)
	return httptest.NewServer(s.Routes()), fc
}

func doReq(t *testing.T, srv *httptest.Server, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(authHeader, testSecret)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestInitReturnsRunInfo(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()

	resp := doReq(t, srv, http.MethodPost, "/runners/run/42/init", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var info connector.RunInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.RunID != 42 || info.ExperimentHash != "abc123" {
		t.Errorf("got %+v", info)
	}
}

func TestInitInvalidRunID(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()

	resp := doReq(t, srv, http.MethodPost, "/runners/run/not-a-number/init", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestMissingSecretRejected(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/runners/run/1/start", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestStartMarksStarted(t *testing.T) {
	srv, fc := newTestServer()
	defer srv.Close()

	resp := doReq(t, srv, http.MethodPost, "/runners/run/1/start", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !fc.started {
		t.Error("expected RunStarted to be called")
	}
}

func TestSetProgressUpdatesState(t *testing.T) {
	srv, fc := newTestServer()
	defer srv.Close()

	resp := doReq(t, srv, http.MethodPost, "/runners/run/1/set-progress", map[string]interface{}{
		"percent": 50,
		"text":    "halfway",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if fc.progress.percent != 50 || fc.progress.text != "halfway" {
		t.Errorf("got %+v", fc.progress)
	}
}

func TestSetProgressRejectsOutOfRangePercent(t *testing.T) {
	srv, _ := newTestServer()
	defer srv.Close()

	resp := doReq(t, srv, http.MethodPost, "/runners/run/1/set-progress", map[string]interface{}{
		"percent": 150,
		"text":    "bad",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestFailedRecordsMessage(t *testing.T) {
	srv, fc := newTestServer()
	defer srv.Close()

	resp := doReq(t, srv, http.MethodPost, "/runners/run/1/failed", map[string]interface{}{
		"error": "boom",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if fc.failedMsg != "boom" {
		t.Errorf("failedMsg = %q", fc.failedMsg)
	}
}

func TestLogAppendsLines(t *testing.T) {
	srv, fc := newTestServer()
	defer srv.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	resp := doReq(t, srv, http.MethodPost, "/runners/run/1/log", map[string]interface{}{
		"lines": []map[string]string{
			{"msg": "hello", "time": now},
		},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(fc.lines) != 1 || fc.lines[0].Text != "hello" {
		t.Errorf("got %+v", fc.lines)
	}
}

func TestUploadOutputStreamsBody(t *testing.T) {
	srv, fc := newTestServer()
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/runners/run/1/output/result.txt", bytes.NewReader([]byte("hello world")))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set(authHeader, testSecret)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if string(fc.uploaded["result.txt"]) != "hello world" {
		t.Errorf("uploaded = %q", fc.uploaded["result.txt"])
	}
}
