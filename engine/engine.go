package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/warp/config"
	"github.com/luxfi/warp/graph"
	"github.com/luxfi/warp/hash"
	warplog "github.com/luxfi/warp/log"
	"github.com/luxfi/warp/matbus"
	"github.com/luxfi/warp/merge"
	"github.com/luxfi/warp/metrics"
	"github.com/luxfi/warp/retain"
	"github.com/luxfi/warp/rule"
	"github.com/luxfi/warp/scheduler"
	"github.com/luxfi/warp/snapshot"
)

// rootWarpSeed names the engine's single top-level instance; every ingested
// intent becomes an event node inside its store (spec.md §4.9 step 1).
const rootWarpSeed = "warp.engine.root"

var (
	rootNodeTypeID  = hash.NewTypeID("warp.engine.root.node")
	eventTypeID     = hash.NewTypeID("warp.engine.event")
	eventEdgeTypeID = hash.NewTypeID("warp.engine.event.edge")
)

const (
	eventNodeTag = "warp.engine.EventNode\x00"
	eventEdgeTag = "warp.engine.EventEdge\x00"
)

// enginePolicyID is the scheduling policy identifier this core stamps into
// every Snapshot (spec.md §3.7 Snapshot.policy_id). Multi-policy
// versioning is out of scope (spec.md non-goals); one fixed id is enough to
// keep CommitHash's formula well-defined.
const enginePolicyID uint32 = 1

// RuleSpec is the caller-facing shape passed to RegisterRule; CompactID is
// assigned by the engine at registration time (spec.md §3.1), not supplied
// by the caller.
type RuleSpec struct {
	FamilyID       hash.RuleFamilyID
	Match          rule.MatchFn
	Footprint      rule.FootprintFn
	Execute        rule.ExecuteFn
	ConflictPolicy rule.ConflictPolicy
}

// Engine is the tick engine: the single owner of committed graph state,
// the rule registry, and the retention windows spec.md §6.5 names. All
// public methods take e.mu, matching the teacher's engine.go single-lock
// orchestration (one request runs the whole state machine before the next
// is admitted).
type Engine struct {
	mu sync.Mutex

	cfg     config.Config
	logger  warplog.Logger
	metrics *metrics.EngineMetrics
	bus     *matbus.Bus

	rootWarp hash.WarpID
	universe *graph.Universe

	rules     map[hash.CompactRuleID]*rule.Rule
	ruleOrder []hash.CompactRuleID
	families  map[hash.RuleFamilyID]hash.CompactRuleID

	intentSeen       *retain.Cache[hash.IntentID, TxId]
	patches          *retain.Window[merge.Patch]
	receipts         *retain.Window[snapshot.TickReceipt]
	snapshots        *retain.Window[snapshot.Snapshot]
	emissionsDigests *retain.Window[hash.Hash]
	checkpoints      *retain.Window[*graph.Universe]
	commitIndex      *retain.Cache[hash.Hash, uint64]

	tick          uint64
	nextTx        TxId
	current       *txState
	lastCommit    hash.Hash
	lastStateRoot hash.Hash
	lastEventNode hash.NodeID

	lastDecisions []scheduler.Decision
}

// New constructs an Engine: validates cfg, registers its prometheus
// instruments against reg, and seeds an empty root instance.
func New(cfg config.Config, logger warplog.Logger, reg prometheus.Registerer) (*Engine, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	m, err := metrics.NewEngineMetrics(reg)
	if err != nil {
		return nil, err
	}

	dedupCap := cfg.ProvenanceWindow
	if dedupCap < 1000 {
		dedupCap = 1000
	}
	intentSeen, err := retain.NewCache[hash.IntentID, TxId](dedupCap, nil)
	if err != nil {
		return nil, err
	}
	commitIndex, err := retain.NewCache[hash.Hash, uint64](cfg.ReceiptCacheSize, nil)
	if err != nil {
		return nil, err
	}

	rootWarp := hash.NewWarpID(rootWarpSeed)
	rootNode := hash.NewNodeID(rootWarpSeed + ".node")
	universe := graph.NewUniverse()
	universe.UpsertInstance(graph.Instance{WarpID: rootWarp, Root: rootNode})
	store, _ := universe.Store(rootWarp)
	store.UpsertNode(rootNode, graph.NodeRecord{TypeID: rootNodeTypeID})

	checkpoints := retain.NewWindow[*graph.Universe](max(cfg.ProvenanceWindow/cfg.CheckpointInterval, 1) + 1)
	checkpoints.Put(0, universe.Clone())

	return &Engine{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		bus:     matbus.NewBus(),

		rootWarp: rootWarp,
		universe: universe,

		rules:    make(map[hash.CompactRuleID]*rule.Rule),
		families: make(map[hash.RuleFamilyID]hash.CompactRuleID),

		intentSeen:       intentSeen,
		patches:          retain.NewWindow[merge.Patch](cfg.ProvenanceWindow),
		receipts:         retain.NewWindow[snapshot.TickReceipt](cfg.ReceiptCacheSize),
		snapshots:        retain.NewWindow[snapshot.Snapshot](cfg.ReceiptCacheSize),
		emissionsDigests: retain.NewWindow[hash.Hash](cfg.ReceiptCacheSize),
		checkpoints:      checkpoints,
		commitIndex:      commitIndex,

		lastEventNode: rootNode,
	}, nil
}

// RegisterRule adds spec to the rule registry, assigning it the next
// sequential CompactRuleID (spec.md §3.1). Registration order is the
// engine's canonical rule iteration order during matching.
func (e *Engine) RegisterRule(spec RuleSpec) (hash.CompactRuleID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if spec.Match == nil || spec.Footprint == nil || spec.Execute == nil {
		return 0, ErrIncompleteRule
	}
	if _, exists := e.families[spec.FamilyID]; exists {
		return 0, ErrDuplicateRuleFamily
	}

	cid := hash.CompactRuleID(len(e.ruleOrder))
	r := &rule.Rule{
		FamilyID:       spec.FamilyID,
		CompactID:      cid,
		Match:          spec.Match,
		Footprint:      spec.Footprint,
		Execute:        spec.Execute,
		ConflictPolicy: spec.ConflictPolicy,
	}
	e.rules[cid] = r
	e.ruleOrder = append(e.ruleOrder, cid)
	e.families[spec.FamilyID] = cid
	return cid, nil
}

// RegisterChannel declares a materialization channel's finalization policy
// ahead of any tick that emits on it (spec.md §4.3). Channels that receive
// emissions without an explicit registration default to PolicyLog.
func (e *Engine) RegisterChannel(channel string, policy matbus.ChannelPolicy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bus.Register(channel, policy)
}

// Stats is the engine's introspection summary (SPEC_FULL.md §D).
type Stats struct {
	Tick            uint64
	Admitted        uint64
	Deferred        uint64
	Dropped         uint64
	ActiveInstances int
	LastCommitHash  hash.Hash
	LastStateRoot   hash.Hash
	RegisteredRules int
	TickInProgress  bool
}

// Stats reports the engine's current tick counter and last-tick admission
// outcome counts.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	var admitted, deferred, dropped uint64
	for _, d := range e.lastDecisions {
		switch d.Kind {
		case scheduler.Admitted:
			admitted++
		case scheduler.Deferred:
			deferred++
		case scheduler.Dropped:
			dropped++
		}
	}

	return Stats{
		Tick:            e.tick,
		Admitted:        admitted,
		Deferred:        deferred,
		Dropped:         dropped,
		ActiveInstances: len(e.universe.WarpIDs()),
		LastCommitHash:  e.lastCommit,
		LastStateRoot:   e.lastStateRoot,
		RegisteredRules: len(e.ruleOrder),
		TickInProgress:  e.current != nil,
	}
}

// Conflicts reports the candidates that blocked the candidate named by key
// from admission during the most recently attempted tick (SPEC_FULL.md
// §D): empty+true if key was admitted outright, nil+false if key does not
// name a candidate from that attempt.
func (e *Engine) Conflicts(key scheduler.CandidateKey) ([]scheduler.Candidate, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, d := range e.lastDecisions {
		if d.Candidate.Key != key {
			continue
		}
		if len(d.BlockedBy) == 0 {
			return nil, true
		}
		out := make([]scheduler.Candidate, 0, len(d.BlockedBy))
		for _, idx := range d.BlockedBy {
			out = append(out, e.lastDecisions[idx].Candidate)
		}
		return out, true
	}
	return nil, false
}
