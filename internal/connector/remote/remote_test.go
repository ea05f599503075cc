package remote

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunStartedSendsAuthHeaderAndPath(t *testing.T) {
	var gotPath, gotToken, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get(authHeader)
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "s3cr3t")
	if err := c.RunStarted(t.Context(), 42); err != nil {
		t.Fatalf("RunStarted: %v", err)
	}
	if gotPath != "/runners/run/42/start" {
		t.Errorf("path = %q", gotPath)
	}
	if gotToken != "s3cr3t" {
		t.Errorf("token = %q", gotToken)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q", gotMethod)
	}
}

func TestRunProgressSendsBody(t *testing.T) {
	var body struct {
		Percent int    `json:"percent"`
		Text    string `json:"text"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	if err := c.RunProgress(t.Context(), 1, 50, "halfway"); err != nil {
		t.Fatalf("RunProgress: %v", err)
	}
	if body.Percent != 50 || body.Text != "halfway" {
		t.Errorf("body = %+v", body)
	}
}

func TestNonSuccessStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("forbidden"))
	}))
	defer srv.Close()

	c := New(srv.URL, "wrong")
	if err := c.RunDone(t.Context(), 1); err == nil {
		t.Fatal("RunDone should return an error on 403")
	}
}
