package node

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Richard1048576/gravity-sdk/src/config"
	"github.com/Richard1048576/gravity-sdk/src/node/state"
	"github.com/Richard1048576/gravity-sdk/src/proc"
)

// fakeNode is a stand-in for a real node process: an RPC endpoint that only
// answers while a marker file exists, plus generated lifecycle scripts that
// flip the marker and the PID file the way the real scripts do.
type fakeNode struct {
	sync.Mutex

	dir    string
	height uint64
	srv    *httptest.Server
}

func (f *fakeNode) marker() string {
	return filepath.Join(f.dir, "up")
}

func (f *fakeNode) handler(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(f.marker()); err != nil {
		http.Error(w, "node is down", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Method != "eth_blockNumber" {
		http.Error(w, "unexpected method "+req.Method, http.StatusBadRequest)
		return
	}

	f.Lock()
	height := f.height
	f.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result":  fmt.Sprintf("0x%x", height),
	})
}

func (f *fakeNode) setHeight(h uint64) {
	f.Lock()
	f.height = h
	f.Unlock()
}

// up simulates a node already running: marker present, PID file holding a
// live pid.
func (f *fakeNode) up(t *testing.T) {
	t.Helper()
	if err := ioutil.WriteFile(f.marker(), []byte{}, 0644); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := ioutil.WriteFile(filepath.Join(f.dir, proc.DefaultPIDFile), []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); err != nil {
		t.Fatalf("err: %v", err)
	}
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	script := "#!/bin/bash\n" + body + "\n"
	if err := ioutil.WriteFile(filepath.Join(dir, name), []byte(script), 0755); err != nil {
		t.Fatalf("err: %v", err)
	}
}

// newFakeNode builds a fake node whose start and stop scripts behave like
// the real deployment scripts: start records a PID and opens the RPC
// endpoint, stop tears both down.
func newFakeNode(t *testing.T) (*fakeNode, *Node) {
	t.Helper()

	dir := t.TempDir()

	fake := &fakeNode{dir: dir}
	fake.srv = httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(fake.srv.Close)

	writeScript(t, dir, StartScript, fmt.Sprintf("echo $$ > %s\ntouch %s",
		filepath.Join(dir, proc.DefaultPIDFile), fake.marker()))
	writeScript(t, dir, StopScript, fmt.Sprintf("rm -f %s %s",
		fake.marker(), filepath.Join(dir, proc.DefaultPIDFile)))

	conf := config.NewTestConfig(t)

	n, err := New(conf, Params{
		ID:        "node0",
		Role:      RoleValidator,
		Host:      "127.0.0.1",
		RPCURL:    fake.srv.URL,
		HTTPURL:   fake.srv.URL,
		DataDir:   dir,
		ScriptDir: dir,
	}, conf.Logger())
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	return fake, n
}

func TestStateStopped(t *testing.T) {
	_, n := newFakeNode(t)

	st, height := n.State(context.Background())
	if st != state.Stopped {
		t.Fatalf("state: got %s, want Stopped", st)
	}
	if height != 0 {
		t.Fatalf("height: got %d, want 0", height)
	}
}

func TestStateStale(t *testing.T) {
	fake, n := newFakeNode(t)

	// Live PID, no RPC: the node is wedged.
	if err := ioutil.WriteFile(filepath.Join(fake.dir, proc.DefaultPIDFile),
		[]byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); err != nil {
		t.Fatalf("err: %v", err)
	}

	st, _ := n.State(context.Background())
	if st != state.Stale {
		t.Fatalf("state: got %s, want Stale", st)
	}
}

func TestStateRunning(t *testing.T) {
	fake, n := newFakeNode(t)
	fake.up(t)
	fake.setHeight(7)

	st, height := n.State(context.Background())
	if st != state.Running {
		t.Fatalf("state: got %s, want Running", st)
	}
	if height != 7 {
		t.Fatalf("height: got %d, want 7", height)
	}
}

func TestStartIdempotent(t *testing.T) {
	fake, n := newFakeNode(t)
	fake.up(t)

	// Replace the start script with one that would leave a trace, to prove
	// it is never invoked on an already-running node.
	witness := filepath.Join(fake.dir, "started-again")
	writeScript(t, fake.dir, StartScript, "touch "+witness)

	ok, err := n.Start(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !ok {
		t.Fatal("starting a running node should report success")
	}

	if _, err := os.Stat(witness); err == nil {
		t.Fatal("start script ran on an already-running node")
	}
}

func TestStartFromStopped(t *testing.T) {
	fake, n := newFakeNode(t)

	ok, err := n.Start(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !ok {
		t.Fatal("start should succeed once RPC answers")
	}

	st, _ := n.State(context.Background())
	if st != state.Running {
		t.Fatalf("state after start: got %s, want Running", st)
	}

	if _, err := os.Stat(fake.marker()); err != nil {
		t.Fatal("start script did not run")
	}
}

func TestStartStaleStopsFirst(t *testing.T) {
	fake, n := newFakeNode(t)

	// Wedged: live PID but no RPC.
	if err := ioutil.WriteFile(filepath.Join(fake.dir, proc.DefaultPIDFile),
		[]byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); err != nil {
		t.Fatalf("err: %v", err)
	}

	ok, err := n.Start(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !ok {
		t.Fatal("start of a stale node should recover it")
	}

	st, _ := n.State(context.Background())
	if st != state.Running {
		t.Fatalf("state after recovery: got %s, want Running", st)
	}
}

func TestStartScriptFailureIsRetryable(t *testing.T) {
	fake, n := newFakeNode(t)
	writeScript(t, fake.dir, StartScript, "exit 1")

	ok, err := n.Start(context.Background())
	if err != nil {
		t.Fatalf("a failing script should not be an error, got %v", err)
	}
	if ok {
		t.Fatal("a failing script should report false")
	}
}

func TestStartMissingScriptReportsFalse(t *testing.T) {
	fake, n := newFakeNode(t)
	if err := os.Remove(filepath.Join(fake.dir, StartScript)); err != nil {
		t.Fatalf("err: %v", err)
	}

	ok, err := n.Start(context.Background())
	if err != nil {
		t.Fatalf("a missing script should not be an error, got %v", err)
	}
	if ok {
		t.Fatal("a missing script should report false")
	}
}

func TestStopMissingScriptReportsFalse(t *testing.T) {
	fake, n := newFakeNode(t)
	fake.up(t)
	if err := os.Remove(filepath.Join(fake.dir, StopScript)); err != nil {
		t.Fatalf("err: %v", err)
	}

	ok, err := n.Stop(context.Background())
	if err != nil {
		t.Fatalf("a missing script should not be an error, got %v", err)
	}
	if ok {
		t.Fatal("a missing script should report false")
	}
}

func TestStop(t *testing.T) {
	fake, n := newFakeNode(t)
	fake.up(t)

	ok, err := n.Stop(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !ok {
		t.Fatal("stop should succeed")
	}

	st, _ := n.State(context.Background())
	if st != state.Stopped {
		t.Fatalf("state after stop: got %s, want Stopped", st)
	}
}

func TestStopIdempotent(t *testing.T) {
	fake, n := newFakeNode(t)

	// No scripts needed at all: a stopped node's stop is a no-op.
	writeScript(t, fake.dir, StopScript, "exit 1")

	ok, err := n.Stop(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !ok {
		t.Fatal("stopping a stopped node should report success")
	}
}

func TestStopScriptLeavesNodeUp(t *testing.T) {
	fake, n := newFakeNode(t)
	fake.up(t)

	// A stop script that exits 0 but does not actually kill the node.
	writeScript(t, fake.dir, StopScript, "true")

	ok, err := n.Stop(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if ok {
		t.Fatal("stop should report false when the node is still up after the script")
	}
}

func TestRestart(t *testing.T) {
	fake, n := newFakeNode(t)
	fake.up(t)

	ok, err := n.Restart(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !ok {
		t.Fatal("restart should succeed")
	}

	st, _ := n.State(context.Background())
	if st != state.Running {
		t.Fatalf("state after restart: got %s, want Running", st)
	}
}

func TestWaitForBlockIncrease(t *testing.T) {
	fake, n := newFakeNode(t)
	fake.up(t)
	fake.setHeight(10)

	go func() {
		time.Sleep(50 * time.Millisecond)
		fake.setHeight(12)
	}()

	ok, err := n.WaitForBlockIncrease(context.Background(), 2)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !ok {
		t.Fatal("expected the height increase to be observed")
	}
}

func TestWaitForBlockIncreaseNoBaseline(t *testing.T) {
	_, n := newFakeNode(t)

	// Node down: no baseline, immediate failure rather than a full wait.
	start := time.Now()
	ok, err := n.WaitForBlockIncrease(context.Background(), 1)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if ok {
		t.Fatal("expected failure without a baseline")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("baseline failure should be immediate, took %s", elapsed)
	}
}

func TestWaitForBlockIncreaseStalled(t *testing.T) {
	fake, _ := newFakeNode(t)
	fake.up(t)
	fake.setHeight(10)

	conf := config.NewTestConfig(t)
	conf.BlockWait = 100 * time.Millisecond

	n2, err := New(conf, Params{
		ID:        "node0",
		Role:      RoleValidator,
		RPCURL:    fake.srv.URL,
		HTTPURL:   fake.srv.URL,
		DataDir:   fake.dir,
		ScriptDir: fake.dir,
	}, conf.Logger())
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	ok, err := n2.WaitForBlockIncrease(context.Background(), 1)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if ok {
		t.Fatal("a stalled node should fail the wait")
	}
}
