package cluster

import (
	"context"
	"time"

	"github.com/Richard1048576/gravity-sdk/src/common"
	"github.com/Richard1048576/gravity-sdk/src/node"
	"github.com/Richard1048576/gravity-sdk/src/node/state"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// action is one corrective step of a convergence iteration.
type action struct {
	node *node.Node
	run  func(ctx context.Context) (bool, error)
}

// converge is the loop shape every cluster target shares: observe all nodes,
// hand the observations to the step function, dispatch whatever corrective
// actions it returns concurrently, join them, sleep, repeat. The deadline is
// only checked at the top of an iteration, so in-flight actions always finish
// before time runs out on them. Deadline exhaustion reports false with no
// error; the only errors that escape are usage errors from the step function
// and context cancellation.
func (c *Cluster) converge(ctx context.Context, op string, step func(obs []Observation) (bool, []action, error)) (bool, error) {
	deadline := time.Now().Add(c.conf.ConvergeTimeout)

	for iteration := 0; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		if time.Now().After(deadline) {
			c.logger.WithFields(logrus.Fields{
				"op":         op,
				"iterations": iteration,
			}).Error("Convergence deadline exhausted")
			return false, nil
		}

		obs := c.observe(ctx)

		converged, actions, err := step(obs)
		if err != nil {
			return false, err
		}
		if converged {
			c.logger.WithFields(logrus.Fields{
				"op":         op,
				"iterations": iteration,
			}).Info("Converged")
			return true, nil
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, a := range actions {
			a := a
			g.Go(func() error {
				ok, err := a.run(gctx)
				if err != nil {
					return err
				}
				if !ok {
					// The action did not land this iteration. That is not
					// fatal: the next observation pass sees the node as it
					// really is and the loop tries again.
					c.logger.WithFields(logrus.Fields{
						"op":   op,
						"node": a.node.ID,
					}).Warn("Corrective action did not land, retrying next iteration")
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return false, err
		}

		if err := common.Sleep(ctx, c.conf.ConvergeInterval); err != nil {
			return false, err
		}
	}
}

// SetFullLive drives every node to Running. Stopped and Unknown nodes are
// started; Stale nodes are stopped first by their own start path. It reports
// true the first iteration every node observes Running.
func (c *Cluster) SetFullLive(ctx context.Context) (bool, error) {
	return c.converge(ctx, "SetFullLive", func(obs []Observation) (bool, []action, error) {
		actions := []action{}
		for _, o := range obs {
			if o.State == state.Running {
				continue
			}
			actions = append(actions, action{node: o.Node, run: o.Node.Start})
		}
		return len(actions) == 0, actions, nil
	})
}

// SetAllStopped drives every node to Stopped.
func (c *Cluster) SetAllStopped(ctx context.Context) (bool, error) {
	return c.converge(ctx, "SetAllStopped", func(obs []Observation) (bool, []action, error) {
		converged := true
		actions := []action{}
		for _, o := range obs {
			switch o.State {
			case state.Stopped:
			case state.Running, state.Stale:
				converged = false
				actions = append(actions, action{node: o.Node, run: o.Node.Stop})
			default:
				// Unknown says nothing about the node; observe it again next
				// iteration rather than acting blindly.
				converged = false
			}
		}
		return converged, actions, nil
	})
}

// SetLiveNodes drives the cluster to exactly n Running nodes. Each iteration
// starts or stops at most the difference between the live count and n, in
// configuration order, so concurrent probes racing the actions can never
// overshoot the target.
func (c *Cluster) SetLiveNodes(ctx context.Context, n int) (bool, error) {
	if n < 0 || n > len(c.nodes) {
		return false, common.NewOpErrorf("SetLiveNodes", common.UsageError,
			"target %d out of range, cluster has %d nodes", n, len(c.nodes))
	}

	return c.converge(ctx, "SetLiveNodes", func(obs []Observation) (bool, []action, error) {
		live := 0
		for _, o := range obs {
			if o.State == state.Running {
				live++
			}
		}

		if live == n {
			return true, nil, nil
		}

		actions := []action{}
		if live < n {
			for _, o := range obs {
				if len(actions) == n-live {
					break
				}
				if o.State != state.Running {
					actions = append(actions, action{node: o.Node, run: o.Node.Start})
				}
			}
		} else {
			for _, o := range obs {
				if len(actions) == live-n {
					break
				}
				if o.State == state.Running {
					actions = append(actions, action{node: o.Node, run: o.Node.Stop})
				}
			}
		}

		c.logger.WithFields(logrus.Fields{
			"live":    live,
			"target":  n,
			"actions": len(actions),
		}).Debug("Adjusting live node count")

		return false, actions, nil
	})
}

// SetNode drives one node to the target state, which must be Running or
// Stopped. Any other target is a usage error, not a timeout.
func (c *Cluster) SetNode(ctx context.Context, id string, target state.State) (bool, error) {
	n, err := c.Node(id)
	if err != nil {
		return false, err
	}

	if target != state.Running && target != state.Stopped {
		return false, common.NewOpErrorf("SetNode", common.UsageError,
			"invalid target state %s, want Running or Stopped", target)
	}

	return c.converge(ctx, "SetNode", func(obs []Observation) (bool, []action, error) {
		var o Observation
		for _, cand := range obs {
			if cand.Node == n {
				o = cand
				break
			}
		}

		if o.State == target {
			return true, nil, nil
		}

		run := n.Start
		if target == state.Stopped {
			run = n.Stop
		}

		return false, []action{{node: n, run: run}}, nil
	})
}

// CheckBlockIncreasing verifies the chain is making progress. With a node id
// it watches just that node; with an empty id it watches every currently
// Running node concurrently and requires all of them to advance by delta. A
// single stalled node fails the whole check, and so does a cluster with no
// live nodes at all.
func (c *Cluster) CheckBlockIncreasing(ctx context.Context, id string, delta uint64) (bool, error) {
	if id != "" {
		n, err := c.Node(id)
		if err != nil {
			return false, err
		}
		return n.WaitForBlockIncrease(ctx, delta)
	}

	obs := c.observe(ctx)

	targets := []*node.Node{}
	for _, o := range obs {
		if o.State == state.Running {
			targets = append(targets, o.Node)
		}
	}

	if len(targets) == 0 {
		c.logger.Error("No live nodes to check for block progress")
		return false, nil
	}

	results := make([]bool, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, n := range targets {
		i, n := i, n
		g.Go(func() error {
			ok, err := n.WaitForBlockIncrease(gctx, delta)
			results[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	for i, ok := range results {
		if !ok {
			c.logger.WithField("node", targets[i].ID).Error("Node is not producing blocks")
			return false, nil
		}
	}

	return true, nil
}
