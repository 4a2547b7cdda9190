// Package engine implements the tick engine (spec.md §4.9): the state
// machine that drains ingested intents, matches rules against the working
// graph, schedules and executes admitted rewrites in parallel, merges their
// effects into one canonical patch, and commits the result.
//
// Grounded on the teacher's top-level engine/engine.go orchestrator (the
// single struct that owns every subsystem and drives one request through
// all of them under one lock) generalized from "verify and accept one
// block" to "run one tick through ingress/match/schedule/execute/merge/
// commit."
package engine

import (
	"fmt"

	cockroacherrors "github.com/cockroachdb/errors"
)

// The seven error-taxonomy categories of spec.md §7. CommitTick and
// IngestIntent mark their pipeline failures with these sentinels via
// cockroachdb/errors.Mark, so callers can classify a failure with
// cockroachdb/errors.Is without type-switching every concrete error this
// package and its dependencies define. A poisoned execution that includes a
// footprint guard violation carries two marks (execution and footprint);
// ErrUnknownTx, ErrTickInProgress and errors returned by a rule's Match or
// Footprint function carry none.
var (
	markIngress         = cockroacherrors.New("engine: ingress error")
	markScheduling      = cockroacherrors.New("engine: scheduling error")
	markExecution       = cockroacherrors.New("engine: execution error")
	markMerge           = cockroacherrors.New("engine: merge error")
	markFootprint       = cockroacherrors.New("engine: footprint violation")
	markCommit          = cockroacherrors.New("engine: commit error")
	markMaterialization = cockroacherrors.New("engine: materialization error")
)

// IsIngressError reports whether err is (or wraps) an ingress-phase failure:
// envelope decoding or checksum validation (spec.md §7 category 1).
func IsIngressError(err error) bool { return cockroacherrors.Is(err, markIngress) }

// IsSchedulingError reports a PolicyReject abort (spec.md §7 category 2).
func IsSchedulingError(err error) bool { return cockroacherrors.Is(err, markScheduling) }

// IsExecutionError reports a poisoned delta or a missing target store
// (spec.md §7 category 3).
func IsExecutionError(err error) bool { return cockroacherrors.Is(err, markExecution) }

// IsMergeError reports a merge conflict or a same-tick write to an
// Empty-opened warp (spec.md §7 category 4).
func IsMergeError(err error) bool { return cockroacherrors.Is(err, markMerge) }

// IsFootprintViolation reports a rule reading or writing a resource it did
// not declare (spec.md §7 category 5, §4.8).
func IsFootprintViolation(err error) bool { return cockroacherrors.Is(err, markFootprint) }

// IsCommitError reports an encoding or hashing failure while assembling the
// committed snapshot (spec.md §7 category 6); this should never occur with
// well-formed inputs and is treated as fatal by callers that choose to.
func IsCommitError(err error) bool { return cockroacherrors.Is(err, markCommit) }

// IsMaterializationError reports a matbus finalization failure: a
// StrictSingle channel with more than one entry, a Reduce domain mismatch,
// or an emission conflict (spec.md §7 category 7).
func IsMaterializationError(err error) bool { return cockroacherrors.Is(err, markMaterialization) }

// IngressError reports a malformed intent envelope.
type IngressError struct {
	Reason string
}

func (e *IngressError) Error() string {
	return fmt.Sprintf("engine: ingress error: %s", e.Reason)
}

// CommitError reports a failure while applying a merged patch or assembling
// a Snapshot — conditions spec.md §7 says "should not occur with
// well-formed inputs."
type CommitError struct {
	Detail string
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("engine: commit error: %s", e.Detail)
}

var (
	// ErrTickInProgress is returned by BeginTick when the engine already has
	// an open, uncommitted tick.
	ErrTickInProgress = cockroacherrors.New("engine: a tick is already in progress")
	// ErrUnknownTx is returned by IngestIntent/CommitTick when tx does not
	// name the engine's currently open tick.
	ErrUnknownTx = cockroacherrors.New("engine: unknown or already-closed tx")
	// ErrDuplicateRuleFamily is returned by RegisterRule when FamilyID was
	// already registered.
	ErrDuplicateRuleFamily = cockroacherrors.New("engine: rule family already registered")
	// ErrIncompleteRule is returned by RegisterRule when any of
	// Match/Footprint/Execute is nil.
	ErrIncompleteRule = cockroacherrors.New("engine: rule spec missing match, footprint, or execute function")
)
