package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Richard1048576/gravity-sdk/src/cluster"
	"github.com/Richard1048576/gravity-sdk/src/common"
	"github.com/Richard1048576/gravity-sdk/src/config"
	"github.com/Richard1048576/gravity-sdk/src/proc"
	"github.com/Richard1048576/gravity-sdk/src/service"
)

// heightRig is a cluster of permanently-up fake nodes with individually
// settable block heights.
type heightRig struct {
	sync.Mutex

	heights []uint64
	cluster *cluster.Cluster
	conf    *config.Config
}

func (rig *heightRig) setHeight(i int, h uint64) {
	rig.Lock()
	rig.heights[i] = h
	rig.Unlock()
}

func newHeightRig(t *testing.T, n int) *heightRig {
	t.Helper()

	base := t.TempDir()
	rig := &heightRig{heights: make([]uint64, n)}

	var toml strings.Builder
	fmt.Fprintf(&toml, "[cluster]\nbase_dir = \"%s\"\n", base)

	for i := 0; i < n; i++ {
		dir := filepath.Join(base, fmt.Sprintf("node%d", i))
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("err: %v", err)
		}
		if err := ioutil.WriteFile(filepath.Join(dir, proc.DefaultPIDFile),
			[]byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); err != nil {
			t.Fatalf("err: %v", err)
		}

		i := i
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ID json.RawMessage `json:"id"`
			}
			json.NewDecoder(r.Body).Decode(&req)

			rig.Lock()
			height := rig.heights[i]
			rig.Unlock()

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"jsonrpc": "2.0", "id": req.ID, "result": fmt.Sprintf("0x%x", height),
			})
		}))
		t.Cleanup(srv.Close)

		_, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
		if err != nil {
			t.Fatalf("err: %v", err)
		}

		role := "validator"
		if i == 0 {
			role = "genesis"
		}
		fmt.Fprintf(&toml, "\n[[nodes]]\nid = \"node%d\"\nrole = \"%s\"\nhost = \"127.0.0.1\"\nrpc_port = %s\n", i, role, port)
	}

	clusterFile := filepath.Join(base, "cluster.toml")
	if err := ioutil.WriteFile(clusterFile, []byte(toml.String()), 0644); err != nil {
		t.Fatalf("err: %v", err)
	}

	rig.conf = config.NewTestConfig(t)
	rig.conf.ClusterFile = clusterFile

	clu, err := cluster.Load(rig.conf)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	rig.cluster = clu

	return rig
}

func TestHeightMonitorDetectsWedgedNode(t *testing.T) {
	rig := newHeightRig(t, 3)
	rig.conf.MaxHeightLag = 50

	rig.setHeight(0, 200)
	rig.setHeight(1, 195)
	rig.setHeight(2, 10)

	m := NewHeightMonitor(rig.conf, rig.cluster, rig.conf.Logger())

	done := make(chan error, 1)
	go func() {
		done <- m.Run(context.Background())
	}()

	select {
	case err := <-done:
		if !common.IsProtocolViolation(err) {
			t.Fatalf("a wedged node should be a protocol violation, got %v", err)
		}
		if !strings.Contains(err.Error(), "node2") {
			t.Fatalf("violation does not name the wedged node: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not detect the wedged node")
	}
}

func TestHeightMonitorToleratesLagWithinBound(t *testing.T) {
	rig := newHeightRig(t, 2)
	rig.conf.MaxHeightLag = 50

	rig.setHeight(0, 100)
	rig.setHeight(1, 60)

	m := NewHeightMonitor(rig.conf, rig.cluster, rig.conf.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx)
	}()

	// Several polling rounds without a verdict, then a clean stop.
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("lag within bound must not abort, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop on cancellation")
	}
}

func TestHeightMonitorFeedsTracker(t *testing.T) {
	rig := newHeightRig(t, 2)
	rig.conf.MaxHeightLag = 1000

	rig.setHeight(0, 42)
	rig.setHeight(1, 41)

	m := NewHeightMonitor(rig.conf, rig.cluster, rig.conf.Logger())
	m.Tracker = service.NewTracker()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx)
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	nodes := m.Tracker.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("tracked nodes: got %d, want 2", len(nodes))
	}
	for _, ns := range nodes {
		if ns.State != "Running" {
			t.Fatalf("node %s: got state %s, want Running", ns.ID, ns.State)
		}
	}
}
