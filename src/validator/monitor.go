package validator

import (
	"context"

	"github.com/Richard1048576/gravity-sdk/src/cluster"
	"github.com/Richard1048576/gravity-sdk/src/common"
	"github.com/Richard1048576/gravity-sdk/src/config"
	"github.com/Richard1048576/gravity-sdk/src/node/state"
	"github.com/Richard1048576/gravity-sdk/src/service"
	"github.com/sirupsen/logrus"
)

// HeightMonitor watches every node's block height while a fuzz run is in
// flight. A node falling further than the configured lag behind the highest
// observed height is a protocol violation: in a soak, a wedged node is a
// failure even when the set reconciliation itself still checks out.
type HeightMonitor struct {
	// Tracker, when set, receives the per-node observations.
	Tracker *service.Tracker

	conf    *config.Config
	cluster *cluster.Cluster
	logger  *logrus.Entry
}

// NewHeightMonitor ...
func NewHeightMonitor(conf *config.Config, clu *cluster.Cluster, logger *logrus.Entry) *HeightMonitor {
	return &HeightMonitor{
		conf:    conf,
		cluster: clu,
		logger:  logger.WithField("prefix", "heights"),
	}
}

// Run polls all nodes at the height interval until the context is canceled,
// which is a clean exit. Nodes that cannot be probed are skipped for the
// round; only an observed lag aborts.
func (m *HeightMonitor) Run(ctx context.Context) error {
	for {
		if err := common.Sleep(ctx, m.conf.HeightInterval); err != nil {
			return nil
		}

		obs := m.cluster.Status(ctx)

		heights := logrus.Fields{}
		var max uint64
		for _, o := range obs {
			if m.Tracker != nil {
				m.Tracker.SetNode(o.Node.ID, string(o.Node.Role), o.State.String(), o.Height)
			}

			if o.State != state.Running {
				continue
			}

			heights[o.Node.ID] = o.Height
			if o.Height > max {
				max = o.Height
			}
		}

		m.logger.WithFields(heights).WithField("max", max).Debug("Observed heights")

		for _, o := range obs {
			if o.State != state.Running {
				continue
			}
			if o.Height+m.conf.MaxHeightLag < max {
				return common.NewOpErrorf("HeightMonitor", common.ProtocolViolation,
					"node %s wedged at height %d, cluster head is %d", o.Node.ID, o.Height, max)
			}
		}
	}
}
