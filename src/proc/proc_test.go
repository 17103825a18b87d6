package proc

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/Richard1048576/gravity-sdk/src/common"
	"github.com/sirupsen/logrus"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	script := "#!/bin/bash\n" + body + "\n"
	if err := ioutil.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("err: %v", err)
	}
	return path
}

func TestPIDFileAbsent(t *testing.T) {
	dir, err := ioutil.TempDir("", "proc")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	pf := NewPIDFile(filepath.Join(dir, DefaultPIDFile))

	_, ok, err := pf.Read()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if ok {
		t.Fatal("a missing PID file should report no pid")
	}

	alive, err := pf.Alive(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if alive {
		t.Fatal("a missing PID file should report not alive")
	}
}

func TestPIDFileGarbage(t *testing.T) {
	dir, err := ioutil.TempDir("", "proc")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, DefaultPIDFile)
	if err := ioutil.WriteFile(path, []byte("not-a-pid\n"), 0644); err != nil {
		t.Fatalf("err: %v", err)
	}

	pf := NewPIDFile(path)

	_, ok, err := pf.Read()
	if err == nil {
		t.Fatal("garbage PID content should be an error")
	}
	if !ok {
		t.Fatal("the file exists, ok should be true")
	}
}

func TestPIDFileAlive(t *testing.T) {
	dir, err := ioutil.TempDir("", "proc")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, DefaultPIDFile)

	// Our own PID is guaranteed alive.
	if err := ioutil.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); err != nil {
		t.Fatalf("err: %v", err)
	}

	pf := NewPIDFile(path)

	alive, err := pf.Alive(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !alive {
		t.Fatal("own PID should be alive")
	}
}

func TestRunScript(t *testing.T) {
	dir, err := ioutil.TempDir("", "proc")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	marker := filepath.Join(dir, "ran")
	script := writeScript(t, dir, "start.sh", fmt.Sprintf("echo starting; touch %s", marker))

	runner := NewRunner(common.NewTestEntry(t, logrus.DebugLevel))

	if err := runner.Run(context.Background(), script, dir, "--config", "cluster.toml"); err != nil {
		t.Fatalf("err: %v", err)
	}

	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("script did not run: %v", err)
	}
}

func TestRunScriptFailure(t *testing.T) {
	dir, err := ioutil.TempDir("", "proc")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	script := writeScript(t, dir, "stop.sh", "echo cannot stop >&2; exit 3")

	runner := NewRunner(common.NewTestEntry(t, logrus.DebugLevel))

	err = runner.Run(context.Background(), script, dir)
	if err == nil {
		t.Fatal("expected an error from a failing script")
	}
	if !common.IsActionFailed(err) {
		t.Fatalf("expected ActionFailed, got %v", err)
	}
}

func TestRunScriptMissing(t *testing.T) {
	runner := NewRunner(common.NewTestEntry(t, logrus.DebugLevel))

	err := runner.Run(context.Background(), "/nonexistent/start.sh", "/tmp")
	if err == nil {
		t.Fatal("expected an error for a missing script")
	}
	if !common.IsUsageError(err) {
		t.Fatalf("expected UsageError, got %v", err)
	}
}
