package connector

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRunCmdAndLogCapturesLinesInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []LogLine

	publish := func(ctx context.Context, lines []LogLine) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, lines...)
		return nil
	}

	exitCode, err := RunCmdAndLog(context.Background(),
		[]string{"sh", "-c", "echo one; echo two; echo three"},
		"", nil, 10*time.Millisecond, publish)
	if err != nil {
		t.Fatalf("RunCmdAndLog: %v", err)
	}
	if exitCode != 0 {
		t.Fatalf("exit code = %d, want 0", exitCode)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Text != w {
			t.Errorf("line %d: got %q, want %q", i, got[i].Text, w)
		}
	}
}

func TestRunCmdAndLogReportsNonZeroExit(t *testing.T) {
	publish := func(ctx context.Context, lines []LogLine) error { return nil }

	exitCode, err := RunCmdAndLog(context.Background(),
		[]string{"sh", "-c", "exit 7"}, "", nil, 10*time.Millisecond, publish)
	if err != nil {
		t.Fatalf("RunCmdAndLog: %v", err)
	}
	if exitCode != 7 {
		t.Fatalf("exit code = %d, want 7", exitCode)
	}
}

func TestRunCmdAndLogRejectsEmptyArgv(t *testing.T) {
	publish := func(ctx context.Context, lines []LogLine) error { return nil }
	if _, err := RunCmdAndLog(context.Background(), nil, "", nil, time.Second, publish); err == nil {
		t.Fatal("RunCmdAndLog(nil argv) should return an error")
	}
}
