package engine

import (
	"sort"
	"time"

	cockroacherrors "github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/luxfi/warp/boaw"
	"github.com/luxfi/warp/footprint"
	"github.com/luxfi/warp/graph"
	"github.com/luxfi/warp/guard"
	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/internal/canon"
	"github.com/luxfi/warp/matbus"
	"github.com/luxfi/warp/merge"
	"github.com/luxfi/warp/rule"
	"github.com/luxfi/warp/scheduler"
	"github.com/luxfi/warp/snapshot"
	"github.com/luxfi/warp/warpop"
)

// CommitReceipt is what CommitTick returns on success (spec.md §6.1).
type CommitReceipt struct {
	CommitHash      hash.Hash
	StateRoot       hash.Hash
	PatchDigest     hash.Hash
	EmissionsDigest hash.Hash
}

// CommitTick runs the full tick state machine of spec.md §4.9 over tx's
// accumulated inbox: ingress, match, schedule, execute, merge, apply,
// commit, finalize. A returned error leaves the engine's committed state
// untouched and tx still open, so the caller may retry CommitTick(tx)
// (e.g. after registering a rule whose absence caused a matching error);
// BeginTick keeps returning ErrTickInProgress until such a retry succeeds.
func (e *Engine) CommitTick(tx TxId) (CommitReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil || e.current.id != tx {
		return CommitReceipt{}, ErrUnknownTx
	}

	start := time.Now()
	e.metrics.ActiveTick.Set(1)
	defer e.metrics.ActiveTick.Set(0)

	working := e.universe.Clone()

	head, err := e.ingress(working, e.current.inbox)
	if err != nil {
		return CommitReceipt{}, err
	}

	// Matching runs read-only with the guard off: a rule's match_fn decides
	// whether it applies before any footprint has been declared, so there is
	// nothing yet to enforce.
	view := guard.NewView(working, guard.Off, footprint.Footprint{})
	pendingRewrites, err := e.matchCandidates(view, working)
	if err != nil {
		return CommitReceipt{}, err
	}

	pendingSet := scheduler.NewPendingSet()
	for _, pr := range pendingRewrites {
		ck := scheduler.NewCandidateKey(pr.Scope.ScopeHash(), uint32(pr.Rule.CompactID), 0)
		pendingSet.Add(scheduler.Candidate{
			Key:            ck,
			ScopeHash:      pr.Scope.ScopeHash(),
			RuleID:         uint32(pr.Rule.CompactID),
			CompactRuleID:  pr.Rule.CompactID,
			Footprint:      pr.Footprint,
			ConflictPolicy: pr.Rule.ConflictPolicy,
			Payload:        pr,
		})
	}

	active := scheduler.NewActiveFootprints()
	decisions, admitErr := scheduler.AdmitDecisions(pendingSet, active)
	e.lastDecisions = decisions
	if admitErr != nil {
		e.logger.Warn("tick aborted on scheduling rejection", zap.Uint64("tick", e.tick+1))
		return CommitReceipt{}, cockroacherrors.Mark(admitErr, markScheduling)
	}

	items, admitted, deferred, dropped := e.buildExecItems(decisions)
	e.metrics.CandidatesAdmitted.Add(int64(admitted))
	e.metrics.CandidatesDeferred.Add(int64(deferred))
	e.metrics.CandidatesDropped.Add(int64(dropped))

	execResult := boaw.Run(working, items, e.cfg.Workers, e.cfg.GuardMode)
	if len(execResult.Missing) > 0 {
		return CommitReceipt{}, cockroacherrors.Mark(
			&CommitError{Detail: "one or more admitted rewrites targeted a missing warp store"},
			markExecution,
		)
	}

	patch, err := merge.Merge(execResult.Workers, execResult.Poisoned)
	if err != nil {
		if fp, ok := err.(*merge.ForwardedPoison); ok {
			return CommitReceipt{}, classifyPoison(fp)
		}
		e.metrics.MergeConflicts.Inc()
		return CommitReceipt{}, cockroacherrors.Mark(err, markMerge)
	}

	if err := applyPatch(working, patch); err != nil {
		return CommitReceipt{}, cockroacherrors.Mark(&CommitError{Detail: err.Error()}, markCommit)
	}

	nextTick := e.tick + 1
	planDigest, decisionDigest, rewritesDigest := tickDigests(decisions, items)

	var parents []hash.Hash
	if !e.lastCommit.IsZero() {
		parents = []hash.Hash{e.lastCommit}
	}

	snap, err := snapshot.Build(working, e.rootWarp, parents, nextTick, patch, enginePolicyID, uint64(tx),
		planDigest, decisionDigest, rewritesDigest)
	if err != nil {
		return CommitReceipt{}, cockroacherrors.Mark(&CommitError{Detail: err.Error()}, markCommit)
	}

	emitters := make([]*matbus.Emitter, len(execResult.Workers))
	for i, w := range execResult.Workers {
		emitters[i] = w.Emitter
	}
	channels, err := e.bus.Finalize(emitters)
	if err != nil {
		return CommitReceipt{}, cockroacherrors.Mark(err, markMaterialization)
	}
	emissionsDigest := channelsDigest(channels)

	receipt := snapshot.TickReceipt{Entries: receiptEntries(decisions)}

	e.universe = working
	e.tick = nextTick
	e.lastCommit = snap.CommitHash
	e.lastStateRoot = snap.StateRoot
	e.lastEventNode = head
	e.current = nil

	e.patches.Put(nextTick, patch)
	e.receipts.Put(nextTick, receipt)
	e.snapshots.Put(nextTick, snap)
	e.emissionsDigests.Put(nextTick, emissionsDigest)
	e.commitIndex.Put(snap.CommitHash, nextTick)
	if nextTick%uint64(e.cfg.CheckpointInterval) == 0 {
		e.checkpoints.Put(nextTick, working.Clone())
	}

	e.metrics.TickDuration.Observe(time.Since(start).Seconds())

	return CommitReceipt{
		CommitHash:      snap.CommitHash,
		StateRoot:       snap.StateRoot,
		PatchDigest:     snap.PatchDigest,
		EmissionsDigest: emissionsDigest,
	}, nil
}

// ingress drains a tick's accumulated intents into the root instance's
// event log (spec.md §4.9 step 1): one node per intent, chained by edges
// from the previous tick's last event node, processed in IntentID-ascending
// canonical order so that commit_hash never depends on arrival order
// (spec.md §8.1 P3).
func (e *Engine) ingress(working *graph.Universe, inbox []intent) (hash.NodeID, error) {
	ordered := append([]intent(nil), inbox...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id.Hash().Less(ordered[j].id.Hash()) })

	store, ok := working.Store(e.rootWarp)
	if !ok {
		return hash.NodeID{}, cockroacherrors.Mark(&CommitError{Detail: "root warp has no store"}, markCommit)
	}

	head := e.lastEventNode
	for _, it := range ordered {
		nodeID := hash.NodeID(hash.Derive(eventNodeTag, it.id.Hash().Bytes()))
		store.UpsertNode(nodeID, graph.NodeRecord{TypeID: eventTypeID})
		store.SetAttachment(hash.NodeAttachmentKey(nodeID, hash.PlaneAlpha), graph.Atom{TypeID: eventTypeID, Bytes: it.payload})

		edgeID := hash.EdgeID(hash.Derive(eventEdgeTag, head.Hash().Bytes(), nodeID.Hash().Bytes()))
		if err := store.InsertEdge(head, graph.EdgeRecord{ID: edgeID, To: nodeID, TypeID: eventEdgeTypeID}); err != nil {
			return hash.NodeID{}, cockroacherrors.Mark(&CommitError{Detail: err.Error()}, markCommit)
		}
		head = nodeID
	}
	return head, nil
}

// matchCandidates runs every registered rule's Match against every
// (warp, node) scope in working, in ascending-WarpID, ascending-NodeID,
// ascending-CompactRuleID order (spec.md §4.9 step 2). This fixed iteration
// order, not arrival order, is what makes matching deterministic regardless
// of how the working graph was populated this tick.
func (e *Engine) matchCandidates(view *guard.View, working *graph.Universe) ([]rule.PendingRewrite, error) {
	var pending []rule.PendingRewrite
	for _, warpID := range working.WarpIDs() {
		store, ok := working.Store(warpID)
		if !ok {
			continue
		}
		for _, nodeID := range store.Nodes() {
			scope := rule.MatchScope{WarpID: warpID, Node: nodeID}
			for _, cid := range e.ruleOrder {
				r := e.rules[cid]
				matched, payload, err := r.Match(view, scope)
				if err != nil {
					return nil, err
				}
				if !matched {
					continue
				}
				fp, err := r.Footprint(view, scope, payload)
				if err != nil {
					return nil, err
				}
				pending = append(pending, rule.PendingRewrite{Rule: r, Scope: scope, Payload: payload, Footprint: fp})
			}
		}
	}
	return pending, nil
}

// buildExecItems converts admitted decisions into BOAW exec items. An
// admitted item's OpOrigin.AdmissionIdx is its index within decisions
// (already canonical order, spec.md §4.4), which is all the merge step
// needs for a stable, worker-count-independent tie-break (spec.md §8.1 P1).
func (e *Engine) buildExecItems(decisions []scheduler.Decision) (items []boaw.ExecItem, admitted, deferred, dropped uint64) {
	for i, d := range decisions {
		switch d.Kind {
		case scheduler.Admitted:
			admitted++
			pr := d.Candidate.Payload.(rule.PendingRewrite)
			items = append(items, boaw.ExecItem{
				Rule:      pr.Rule,
				Scope:     pr.Scope,
				Payload:   pr.Payload,
				Footprint: pr.Footprint,
				Origin: warpop.OpOrigin{
					RuleFamily:    pr.Rule.FamilyID,
					CompactRuleID: pr.Rule.CompactID,
					AdmissionIdx:  uint32(i),
				},
			})
		case scheduler.Deferred:
			deferred++
		case scheduler.Dropped:
			dropped++
		}
	}
	return items, admitted, deferred, dropped
}

// classifyPoison marks a ForwardedPoison as an ExecutionError and, when at
// least one poisoned entry was a footprint guard violation, additionally as
// a FootprintViolation, so the caller can distinguish the two via
// IsExecutionError/IsFootprintViolation.
func classifyPoison(fp *merge.ForwardedPoison) error {
	err := cockroacherrors.Mark(error(fp), markExecution)
	for _, p := range fp.Poisoned {
		if _, ok := p.Panic.(*guard.Violation); ok {
			return cockroacherrors.Mark(err, markFootprint)
		}
	}
	return err
}

// receiptEntries records one ReceiptEntry per decision (admitted, deferred,
// or dropped), 1:1 with the decisions slice, so BlockedBy's indices (which
// scheduler.AdmitDecisions already returns as indices into that same slice)
// need no remapping.
func receiptEntries(decisions []scheduler.Decision) []snapshot.ReceiptEntry {
	entries := make([]snapshot.ReceiptEntry, len(decisions))
	for i, d := range decisions {
		entries[i] = snapshot.ReceiptEntry{
			ScopeHash:     d.Candidate.ScopeHash,
			RuleID:        d.Candidate.RuleID,
			CompactRuleID: d.Candidate.CompactRuleID,
			BlockedBy:     d.BlockedBy,
		}
	}
	return entries
}

func tickDigests(decisions []scheduler.Decision, items []boaw.ExecItem) (plan, decision, rewrites hash.Hash) {
	planItems := make([][]byte, len(decisions))
	decisionItems := make([][]byte, len(decisions))
	for i, d := range decisions {
		planItems[i] = append([]byte(nil), d.Candidate.Key[:]...)

		w := canon.NewWriter()
		w.U8(uint8(d.Kind))
		w.U64(uint64(len(d.BlockedBy)))
		for _, b := range d.BlockedBy {
			w.U64(uint64(b))
		}
		decisionItems[i] = w.Bytes()
	}

	rewriteItems := make([][]byte, len(items))
	for i, it := range items {
		w := canon.NewWriter()
		w.Raw(it.Origin.RuleFamily.Hash().Bytes())
		w.U32(uint32(it.Origin.CompactRuleID))
		w.U32(it.Origin.AdmissionIdx)
		rewriteItems[i] = w.Bytes()
	}

	return snapshot.DigestSequence("Plan", planItems),
		snapshot.DigestSequence("Decision", decisionItems),
		snapshot.DigestSequence("Rewrites", rewriteItems)
}

func channelsDigest(channels map[string]matbus.ChannelResult) hash.Hash {
	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([][]byte, 0, len(names))
	for _, name := range names {
		w := canon.NewWriter()
		w.Blob([]byte(name))
		w.Raw(channels[name].Digest.Bytes())
		items = append(items, w.Bytes())
	}
	return snapshot.DigestSequence("Emissions", items)
}
