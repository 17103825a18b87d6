package service

import (
	"sort"
	"sync"
	"time"
)

// NodeStatus is the last observed condition of one node.
type NodeStatus struct {
	ID       string    `json:"id"`
	Role     string    `json:"role"`
	State    string    `json:"state"`
	Height   uint64    `json:"height"`
	Observed time.Time `json:"observed"`
}

// Stats is a snapshot of a fuzz run.
type Stats struct {
	RunID          string `json:"run_id"`
	Elapsed        string `json:"elapsed"`
	Epoch          uint64 `json:"epoch"`
	Folds          int    `json:"folds"`
	JoinsIssued    int    `json:"joins_issued"`
	LeavesIssued   int    `json:"leaves_issued"`
	ActiveSet      int    `json:"active_set"`
	PendingJoins   int    `json:"pending_joins"`
	PendingLeaves  int    `json:"pending_leaves"`
	LastViolation  string `json:"last_violation,omitempty"`
	ObservedHeight uint64 `json:"observed_height"`
}

// Tracker accumulates run statistics from the reconciler and the height
// monitor. It is the only piece of harness state shared between goroutines,
// and it is only ever read for display.
type Tracker struct {
	sync.Mutex

	runID   string
	started time.Time

	epoch         uint64
	folds         int
	joins, leaves int
	active        int
	pendingJoins  int
	pendingLeaves int
	violation     string
	maxHeight     uint64

	nodes map[string]NodeStatus
}

// NewTracker ...
func NewTracker() *Tracker {
	return &Tracker{
		started: time.Now(),
		nodes:   map[string]NodeStatus{},
	}
}

// SetRun records the run id and resets the clock.
func (t *Tracker) SetRun(id string) {
	t.Lock()
	defer t.Unlock()
	t.runID = id
	t.started = time.Now()
}

// SetEpoch records the current epoch.
func (t *Tracker) SetEpoch(epoch uint64) {
	t.Lock()
	defer t.Unlock()
	t.epoch = epoch
}

// AddFold counts one epoch fold.
func (t *Tracker) AddFold() {
	t.Lock()
	defer t.Unlock()
	t.folds++
}

// AddJoin counts one issued join command.
func (t *Tracker) AddJoin() {
	t.Lock()
	defer t.Unlock()
	t.joins++
}

// AddLeave counts one issued leave command.
func (t *Tracker) AddLeave() {
	t.Lock()
	defer t.Unlock()
	t.leaves++
}

// SetSets records the sizes of the reconciler's sets.
func (t *Tracker) SetSets(active, pendingJoins, pendingLeaves int) {
	t.Lock()
	defer t.Unlock()
	t.active = active
	t.pendingJoins = pendingJoins
	t.pendingLeaves = pendingLeaves
}

// SetViolation records the text of a protocol violation.
func (t *Tracker) SetViolation(detail string) {
	t.Lock()
	defer t.Unlock()
	t.violation = detail
}

// SetNode records one node observation.
func (t *Tracker) SetNode(id, role, state string, height uint64) {
	t.Lock()
	defer t.Unlock()

	t.nodes[id] = NodeStatus{
		ID:       id,
		Role:     role,
		State:    state,
		Height:   height,
		Observed: time.Now(),
	}
	if height > t.maxHeight {
		t.maxHeight = height
	}
}

// Stats returns a snapshot of the run counters.
func (t *Tracker) Stats() Stats {
	t.Lock()
	defer t.Unlock()

	return Stats{
		RunID:          t.runID,
		Elapsed:        time.Since(t.started).Round(time.Second).String(),
		Epoch:          t.epoch,
		Folds:          t.folds,
		JoinsIssued:    t.joins,
		LeavesIssued:   t.leaves,
		ActiveSet:      t.active,
		PendingJoins:   t.pendingJoins,
		PendingLeaves:  t.pendingLeaves,
		LastViolation:  t.violation,
		ObservedHeight: t.maxHeight,
	}
}

// Nodes returns the last observation of every node, sorted by id.
func (t *Tracker) Nodes() []NodeStatus {
	t.Lock()
	defer t.Unlock()

	nodes := make([]NodeStatus, 0, len(t.nodes))
	for _, n := range t.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	return nodes
}
