package validator

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/Richard1048576/gravity-sdk/src/cluster"
	"github.com/Richard1048576/gravity-sdk/src/common"
	"github.com/Richard1048576/gravity-sdk/src/config"
	"github.com/Richard1048576/gravity-sdk/src/genesis"
	"github.com/Richard1048576/gravity-sdk/src/journal"
	"github.com/Richard1048576/gravity-sdk/src/node"
	"github.com/Richard1048576/gravity-sdk/src/service"
	"github.com/Richard1048576/gravity-sdk/src/status"
	mapset "github.com/deckarep/golang-set"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// maxIntentsPerEpoch caps how many join and how many leave commands one
// epoch boundary issues.
const maxIntentsPerEpoch = 3

// Reconciler fuzzes the validator set and checks the chain's epoch
// transitions against its own predictions. Per epoch boundary it folds the
// pending intents into its predicted active set, asserts the chain reports
// exactly that set, then issues a new batch of random join and leave
// commands and asserts the chain's pending sets match what it recorded.
//
// The reconciler is deliberately unforgiving: any divergence between the
// predicted and the reported sets is a protocol violation that aborts the
// run, because it means the chain's own set-transition logic is wrong.
type Reconciler struct {
	// Journal, when set, records the run's events.
	Journal *journal.Journal

	// Tracker, when set, receives run statistics for the stats service.
	Tracker *service.Tracker

	conf    *config.Config
	cluster *cluster.Cluster
	admin   Admin
	status  *status.Client
	rng     *rand.Rand
	logger  *logrus.Entry

	runID string

	haveEpoch    bool
	currentEpoch uint64

	activeSet     mapset.Set
	pendingJoins  mapset.Set
	pendingLeaves mapset.Set

	identities map[string]*genesis.Identity
	nodeByAddr map[string]string
}

// NewReconciler builds a reconciler over the given cluster. The status client
// should point at a genesis node, which is guaranteed to stay in the set. The
// seed feeds every random choice the run makes; it is logged so a failing run
// can be replayed.
func NewReconciler(conf *config.Config, clu *cluster.Cluster, admin Admin, st *status.Client, seed int64, logger *logrus.Entry) *Reconciler {
	return &Reconciler{
		conf:          conf,
		cluster:       clu,
		admin:         admin,
		status:        st,
		rng:           rand.New(rand.NewSource(seed)),
		logger:        logger.WithField("prefix", "reconcile"),
		activeSet:     mapset.NewSet(),
		pendingJoins:  mapset.NewSet(),
		pendingLeaves: mapset.NewSet(),
		identities:    map[string]*genesis.Identity{},
		nodeByAddr:    map[string]string{},
	}
}

// RunID returns the id of the current or last run.
func (r *Reconciler) RunID() string {
	return r.runID
}

// Run executes the fuzz loop until the configured duration elapses or the
// context is canceled, whichever comes first; both are clean exits. A
// protocol violation aborts the run and is the only error Run returns.
// Cancellation is only observed at cycle boundaries: an in-flight command
// always finishes.
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.loadIdentities(); err != nil {
		return err
	}

	r.runID = uuid.New().String()

	if r.Tracker != nil {
		r.Tracker.SetRun(r.runID)
	}

	if err := r.seed(ctx); err != nil {
		return r.abort(err)
	}

	r.record(journal.Record{Kind: journal.KindRunStart, Detail: r.describeSets()})

	r.logger.WithFields(logrus.Fields{
		"run":      r.runID,
		"active":   r.sorted(r.activeSet),
		"duration": r.conf.FuzzDuration,
	}).Info("Starting validator set fuzz")

	var deadline time.Time
	if r.conf.FuzzDuration > 0 {
		deadline = time.Now().Add(r.conf.FuzzDuration)
	}

	for {
		if ctx.Err() != nil {
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}

		if err := r.cycle(ctx); err != nil {
			return r.abort(err)
		}

		if err := common.Sleep(ctx, r.conf.ReconcileInterval); err != nil {
			break
		}
	}

	r.record(journal.Record{Kind: journal.KindRunEnd, Epoch: r.currentEpoch, Detail: r.describeSets()})

	r.logger.WithField("run", r.runID).Info("Fuzz run finished cleanly")

	return nil
}

// loadIdentities reads every node's identity file and builds the address to
// node-id mapping used to translate reported validator lists.
func (r *Reconciler) loadIdentities() error {
	for _, n := range r.cluster.Nodes() {
		ident, err := genesis.LoadIdentity(genesis.IdentityPath(n.DataDir))
		if err != nil {
			return err
		}
		r.identities[n.ID] = ident
		r.nodeByAddr[ident.AptosAddress()] = n.ID
	}
	return nil
}

// seed initialises the local sets from the chain's view, so a run can start
// against a cluster in any membership state.
func (r *Reconciler) seed(ctx context.Context) error {
	list, err := r.admin.List(ctx)
	if err != nil {
		return err
	}

	if r.activeSet, err = r.toIDSet(list.ActiveValidators); err != nil {
		return err
	}
	if r.pendingJoins, err = r.toIDSet(list.PendingActive); err != nil {
		return err
	}
	if r.pendingLeaves, err = r.toIDSet(list.PendingInactive); err != nil {
		return err
	}

	return nil
}

// cycle is one pass of the control loop. Only a protocol violation comes
// back as an error; everything transient is logged and retried next cycle.
func (r *Reconciler) cycle(ctx context.Context) error {
	epoch, err := r.status.CurrentEpoch(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Cannot read epoch, skipping cycle")
		return nil
	}

	if r.Tracker != nil {
		r.Tracker.SetEpoch(epoch)
	}

	if !r.haveEpoch {
		r.haveEpoch = true
		r.currentEpoch = epoch
		r.logger.WithField("epoch", epoch).Info("Observed initial epoch")
	} else {
		switch {
		case epoch < r.currentEpoch:
			return common.NewOpErrorf("Reconcile", common.ProtocolViolation,
				"epoch regressed from %d to %d", r.currentEpoch, epoch)

		case epoch == r.currentEpoch:
			// No boundary crossed. Pending intents keep accumulating toward
			// the next one.
			r.logger.WithField("epoch", epoch).Debug("Epoch unchanged, idle cycle")
			return nil

		default:
			folded, err := r.fold(ctx, epoch)
			if err != nil {
				return err
			}
			if !folded {
				// The list was unreadable; the boundary is processed next
				// cycle instead, still exactly once.
				return nil
			}
		}
	}

	r.issueJoins(ctx)
	r.issueLeaves(ctx)

	return r.verifyPending(ctx)
}

// fold processes one epoch boundary: pending joins enter the predicted
// active set, pending leaves drop out, and the chain's reported active set
// must equal the prediction exactly. A boundary that skipped epochs still
// folds exactly once.
func (r *Reconciler) fold(ctx context.Context, newEpoch uint64) (bool, error) {
	predicted := r.activeSet.Union(r.pendingJoins).Difference(r.pendingLeaves)

	list, err := r.admin.List(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Cannot read validator list at epoch boundary, retrying next cycle")
		return false, nil
	}

	reported, err := r.toIDSet(list.ActiveValidators)
	if err != nil {
		return false, err
	}

	if !reported.Equal(predicted) {
		return false, common.NewOpErrorf("Reconcile", common.ProtocolViolation,
			"active set mismatch at epoch %d: predicted [%s], reported [%s]",
			newEpoch, strings.Join(r.sorted(predicted), " "), strings.Join(r.sorted(reported), " "))
	}

	r.logger.WithFields(logrus.Fields{
		"epoch":  newEpoch,
		"joined": r.sorted(r.pendingJoins),
		"left":   r.sorted(r.pendingLeaves),
		"active": r.sorted(predicted),
	}).Info("Epoch boundary confirmed")

	r.activeSet = predicted
	r.pendingJoins = mapset.NewSet()
	r.pendingLeaves = mapset.NewSet()
	r.currentEpoch = newEpoch

	r.record(journal.Record{Kind: journal.KindEpochFold, Epoch: newEpoch, Detail: r.describeSets()})

	if r.Tracker != nil {
		r.Tracker.AddFold()
	}

	return true, nil
}

// issueJoins picks up to maxIntentsPerEpoch nodes outside the set and
// submits joins for them. A join is only recorded as pending once its
// command succeeded; the command's verdict is authoritative.
func (r *Reconciler) issueJoins(ctx context.Context) {
	candidates := []string{}
	for _, n := range r.cluster.Nodes() {
		id := n.ID
		if r.activeSet.Contains(id) || r.pendingJoins.Contains(id) || r.pendingLeaves.Contains(id) {
			continue
		}
		candidates = append(candidates, id)
	}

	for _, id := range r.pick(candidates) {
		n, err := r.cluster.Node(id)
		if err != nil {
			continue
		}

		// A validator that is not running cannot participate in the epoch it
		// joins, so bring the process up first.
		if ok, err := n.Start(ctx); err != nil || !ok {
			r.logger.WithField("node", id).Warn("Cannot start join candidate, skipping")
			continue
		}

		if err := r.admin.Join(ctx, r.joinParams(n)); err != nil {
			r.logger.WithField("node", id).WithError(err).Warn("Join command failed, not recorded")
			continue
		}

		r.pendingJoins.Add(id)
		r.record(journal.Record{Kind: journal.KindJoinIssued, Epoch: r.currentEpoch, Node: id})

		if r.Tracker != nil {
			r.Tracker.AddJoin()
		}

		r.logger.WithFields(logrus.Fields{
			"node":  id,
			"epoch": r.currentEpoch,
		}).Info("Issued join")
	}
}

// issueLeaves picks up to maxIntentsPerEpoch members and submits leaves for
// them. Genesis nodes are never candidates: the founding quorum must
// survive the whole run.
func (r *Reconciler) issueLeaves(ctx context.Context) {
	candidates := []string{}
	for _, n := range r.cluster.Nodes() {
		id := n.ID
		if n.Role == node.RoleGenesis {
			continue
		}
		if !r.activeSet.Contains(id) || r.pendingLeaves.Contains(id) {
			continue
		}
		candidates = append(candidates, id)
	}

	for _, id := range r.pick(candidates) {
		ident := r.identities[id]

		err := r.admin.Leave(ctx, LeaveParams{
			PrivateKey:       ident.AccountPrivateKey,
			ValidatorAddress: ident.EthAddress(),
		})
		if err != nil {
			r.logger.WithField("node", id).WithError(err).Warn("Leave command failed, not recorded")
			continue
		}

		r.pendingLeaves.Add(id)
		r.record(journal.Record{Kind: journal.KindLeaveIssued, Epoch: r.currentEpoch, Node: id})

		if r.Tracker != nil {
			r.Tracker.AddLeave()
		}

		r.logger.WithFields(logrus.Fields{
			"node":  id,
			"epoch": r.currentEpoch,
		}).Info("Issued leave")
	}
}

// verifyPending asserts the chain's pending sets equal the locally recorded
// intents exactly.
func (r *Reconciler) verifyPending(ctx context.Context) error {
	list, err := r.admin.List(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Cannot read validator list, pending check deferred")
		return nil
	}

	reportedJoins, err := r.toIDSet(list.PendingActive)
	if err != nil {
		return err
	}
	reportedLeaves, err := r.toIDSet(list.PendingInactive)
	if err != nil {
		return err
	}

	if !reportedJoins.Equal(r.pendingJoins) {
		return common.NewOpErrorf("Reconcile", common.ProtocolViolation,
			"pending joins mismatch at epoch %d: recorded [%s], reported [%s]",
			r.currentEpoch, strings.Join(r.sorted(r.pendingJoins), " "), strings.Join(r.sorted(reportedJoins), " "))
	}
	if !reportedLeaves.Equal(r.pendingLeaves) {
		return common.NewOpErrorf("Reconcile", common.ProtocolViolation,
			"pending leaves mismatch at epoch %d: recorded [%s], reported [%s]",
			r.currentEpoch, strings.Join(r.sorted(r.pendingLeaves), " "), strings.Join(r.sorted(reportedLeaves), " "))
	}

	if r.Tracker != nil {
		r.Tracker.SetSets(r.activeSet.Cardinality(), r.pendingJoins.Cardinality(), r.pendingLeaves.Cardinality())
	}

	return nil
}

// pick shuffles the candidates and keeps a random 1..maxIntentsPerEpoch of
// them. No candidates means no picks; a single candidate is always picked.
func (r *Reconciler) pick(candidates []string) []string {
	if len(candidates) == 0 {
		return nil
	}

	r.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	max := maxIntentsPerEpoch
	if len(candidates) < max {
		max = len(candidates)
	}

	return candidates[:1+r.rng.Intn(max)]
}

// joinParams assembles a node's join command from its identity and ports.
func (r *Reconciler) joinParams(n *node.Node) JoinParams {
	ident := r.identities[n.ID]

	return JoinParams{
		PrivateKey:              ident.AccountPrivateKey,
		StakeAmount:             r.conf.StakeAmount,
		ValidatorAddress:        ident.EthAddress(),
		ConsensusPublicKey:      ident.ConsensusPublicKey,
		ValidatorNetworkAddress: genesis.NoiseAddress(n.Host, n.P2PPort, ident.NetworkPublicKey),
		FullnodeNetworkAddress:  genesis.NoiseAddress(n.Host, n.VFNPort, ident.NetworkPublicKey),
		AptosAddress:            ident.AptosAddress(),
		Moniker:                 n.ID,
	}
}

// toIDSet translates a reported validator list into a set of node ids. An
// address that maps to no known node is a protocol violation: the chain
// reports a validator this harness never created.
func (r *Reconciler) toIDSet(infos []ValidatorInfo) (mapset.Set, error) {
	set := mapset.NewSet()
	for _, info := range infos {
		addr := strings.ToLower(strings.TrimPrefix(info.AptosAddress, "0x"))
		id, ok := r.nodeByAddr[addr]
		if !ok {
			return nil, common.NewOpErrorf("Reconcile", common.ProtocolViolation,
				"reported validator %s maps to no known node", info.AptosAddress)
		}
		set.Add(id)
	}
	return set, nil
}

// sorted returns a set's node ids in stable order for logs and errors.
func (r *Reconciler) sorted(set mapset.Set) []string {
	ids := []string{}
	for _, v := range set.ToSlice() {
		ids = append(ids, v.(string))
	}
	sort.Strings(ids)
	return ids
}

func (r *Reconciler) describeSets() string {
	return "active=[" + strings.Join(r.sorted(r.activeSet), " ") +
		"] pending_joins=[" + strings.Join(r.sorted(r.pendingJoins), " ") +
		"] pending_leaves=[" + strings.Join(r.sorted(r.pendingLeaves), " ") + "]"
}

// record appends to the journal when one is attached. Journal trouble is
// worth a warning, never an abort: the journal is evidence, not control.
func (r *Reconciler) record(rec journal.Record) {
	if r.Journal == nil {
		return
	}
	if err := r.Journal.Append(r.runID, rec); err != nil {
		r.logger.WithError(err).Warn("Cannot append journal record")
	}
}

// abort records a violation before surfacing it.
func (r *Reconciler) abort(err error) error {
	r.logger.WithError(err).Error("Aborting fuzz run")

	if common.IsProtocolViolation(err) {
		r.record(journal.Record{Kind: journal.KindViolation, Epoch: r.currentEpoch, Detail: err.Error()})
		if r.Tracker != nil {
			r.Tracker.SetViolation(err.Error())
		}
	}

	return err
}
