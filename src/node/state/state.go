package state

// State captures the observed condition of a cluster node: Unknown, Stopped,
// Starting, Running, Stopping, Stale, or Syncing.
//
// States are always derived at observation time from two probes, the RPC
// endpoint and the PID file, and never cached. A reachable RPC endpoint means
// Running. An unreachable endpoint with a live process behind the PID file
// means Stale. Anything else means Stopped. Starting, Stopping and Syncing
// are declared intents: they show up in logs while an operation is in flight,
// but a probe never returns them.
type State uint32

const (
	// Unknown is the zero value. It is also what an observation reports when
	// a probe failed for a reason that says nothing about the node, like a
	// transient network error.
	Unknown State = iota

	// Stopped is a node with no reachable RPC endpoint and no live process.
	Stopped

	// Starting is a node whose start script is being run.
	Starting

	// Running is a node answering block height queries over RPC.
	Running

	// Stopping is a node whose stop script is being run.
	Stopping

	// Stale is a wedged node: the process named by the PID file is alive but
	// the RPC endpoint does not answer. Recovery is stop-then-start.
	Stale

	// Syncing is a node catching up with the chain. It is reported by the
	// node itself, not derived here.
	Syncing
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case Unknown:
		return "Unknown"
	case Stopped:
		return "Stopped"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	case Stale:
		return "Stale"
	case Syncing:
		return "Syncing"
	default:
		return "Unknown"
	}
}
