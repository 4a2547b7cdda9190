package scheduler_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/warp/footprint"
	"github.com/luxfi/warp/hash"
	"github.com/luxfi/warp/rule"
	"github.com/luxfi/warp/scheduler"
)

func TestSort_MatchesComparisonSortAboveThreshold(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	n := 2000
	candidates := make([]scheduler.Candidate, n)
	for i := range candidates {
		var scope hash.Hash
		r.Read(scope[:])
		candidates[i] = scheduler.Candidate{
			Key: scheduler.NewCandidateKey(scope, uint32(r.Intn(1<<20)), uint32(i)),
		}
	}
	radixed := make([]scheduler.Candidate, len(candidates))
	copy(radixed, candidates)
	scheduler.Sort(radixed)

	reference := make([]scheduler.Candidate, len(candidates))
	copy(reference, candidates)
	for i := 1; i < len(reference); i++ {
		for j := i; j > 0 && reference[j].Key.Compare(reference[j-1].Key) < 0; j-- {
			reference[j], reference[j-1] = reference[j-1], reference[j]
		}
	}

	for i := range radixed {
		require.Equal(t, reference[i].Key, radixed[i].Key)
	}
}

func TestPendingSet_LastWinsOnSameScopeAndRule(t *testing.T) {
	p := scheduler.NewPendingSet()
	scope := hash.NewNodeID("n").Hash()
	p.Add(scheduler.Candidate{Key: scheduler.NewCandidateKey(scope, 1, 0), ScopeHash: scope, CompactRuleID: 5, Nonce: 0})
	p.Add(scheduler.Candidate{Key: scheduler.NewCandidateKey(scope, 1, 1), ScopeHash: scope, CompactRuleID: 5, Nonce: 1})
	require.Equal(t, 1, p.Len())
	drained := p.Drain()
	require.Len(t, drained, 1)
	require.Equal(t, uint32(1), drained[0].Nonce)
}

func TestAdmit_ConflictingNodeWriteIsDeferred(t *testing.T) {
	active := scheduler.NewActiveFootprints()
	pending := scheduler.NewPendingSet()

	node := hash.NewNodeID("n")
	warp := hash.NewWarpID("w")

	fp1 := footprint.New()
	fp1.NWrite.Add(footprint.WarpNode{Warp: warp, Node: node})
	fp1.FactorMask = 1

	fp2 := footprint.New()
	fp2.NWrite.Add(footprint.WarpNode{Warp: warp, Node: node})
	fp2.FactorMask = 1

	scopeA := hash.NewNodeID("scope-a").Hash()
	scopeB := hash.NewNodeID("scope-b").Hash()
	pending.Add(scheduler.Candidate{Key: scheduler.NewCandidateKey(scopeA, 1, 0), ScopeHash: scopeA, CompactRuleID: 1, Footprint: fp1, ConflictPolicy: rule.PolicyRetryNextTick})
	pending.Add(scheduler.Candidate{Key: scheduler.NewCandidateKey(scopeB, 1, 0), ScopeHash: scopeB, CompactRuleID: 2, Footprint: fp2, ConflictPolicy: rule.PolicyRetryNextTick})

	res, err := scheduler.Admit(pending, active)
	require.NoError(t, err)
	require.Len(t, res.Admitted, 1)
	require.Len(t, res.Deferred, 1)
}

func TestAdmit_RejectPolicyAbortsTick(t *testing.T) {
	active := scheduler.NewActiveFootprints()
	pending := scheduler.NewPendingSet()

	node := hash.NewNodeID("n")
	warp := hash.NewWarpID("w")
	fp := footprint.New()
	fp.NWrite.Add(footprint.WarpNode{Warp: warp, Node: node})
	fp.FactorMask = 1

	scopeA := hash.NewNodeID("scope-a").Hash()
	scopeB := hash.NewNodeID("scope-b").Hash()
	// scopeB's hash sorts before scopeA's, so the PolicyReject candidate
	// (scopeA) is the one that meets an already-admitted footprint.
	pending.Add(scheduler.Candidate{Key: scheduler.NewCandidateKey(scopeA, 1, 0), ScopeHash: scopeA, CompactRuleID: 1, Footprint: fp, ConflictPolicy: rule.PolicyReject})
	pending.Add(scheduler.Candidate{Key: scheduler.NewCandidateKey(scopeB, 1, 0), ScopeHash: scopeB, CompactRuleID: 2, Footprint: fp, ConflictPolicy: rule.PolicyRetryNextTick})

	_, err := scheduler.Admit(pending, active)
	require.Error(t, err)
}

func TestActiveFootprints_AdvanceClearsMarks(t *testing.T) {
	active := scheduler.NewActiveFootprints()
	warp := hash.NewWarpID("w")
	node := hash.NewNodeID("n")
	fp := footprint.New()
	fp.NWrite.Add(footprint.WarpNode{Warp: warp, Node: node})
	fp.FactorMask = 1

	require.True(t, active.Independent(fp))
	active.Mark(fp)
	require.False(t, active.Independent(fp))
	active.Advance()
	require.True(t, active.Independent(fp))
}

func TestAdmitDecisions_RecordsBlockingAdmittedIndex(t *testing.T) {
	active := scheduler.NewActiveFootprints()
	pending := scheduler.NewPendingSet()

	node := hash.NewNodeID("n")
	warp := hash.NewWarpID("w")
	fp := footprint.New()
	fp.NWrite.Add(footprint.WarpNode{Warp: warp, Node: node})
	fp.FactorMask = 1

	scopeA := hash.NewNodeID("scope-a").Hash()
	scopeB := hash.NewNodeID("scope-b").Hash()
	pending.Add(scheduler.Candidate{Key: scheduler.NewCandidateKey(scopeA, 1, 0), ScopeHash: scopeA, CompactRuleID: 1, Footprint: fp, ConflictPolicy: rule.PolicyDropWithReport})
	pending.Add(scheduler.Candidate{Key: scheduler.NewCandidateKey(scopeB, 1, 0), ScopeHash: scopeB, CompactRuleID: 2, Footprint: fp, ConflictPolicy: rule.PolicyDropWithReport})

	decisions, err := scheduler.AdmitDecisions(pending, active)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	require.Equal(t, scheduler.Admitted, decisions[0].Kind)
	require.Empty(t, decisions[0].BlockedBy)
	require.Equal(t, scheduler.Dropped, decisions[1].Kind)
	require.Equal(t, []int{0}, decisions[1].BlockedBy)
}

func TestActiveFootprints_ReadReadNeverConflicts(t *testing.T) {
	active := scheduler.NewActiveFootprints()
	warp := hash.NewWarpID("w")
	node := hash.NewNodeID("n")

	fp1 := footprint.New()
	fp1.NRead.Add(footprint.WarpNode{Warp: warp, Node: node})
	fp1.FactorMask = 1
	active.Mark(fp1)

	fp2 := footprint.New()
	fp2.NRead.Add(footprint.WarpNode{Warp: warp, Node: node})
	fp2.FactorMask = 1
	require.True(t, active.Independent(fp2))
}
