// Package lifecycle owns the acceptance status transition table.
// No other package decides whether a status change is legal.
package lifecycle

import (
	"github.com/gewerk/handover/services/acceptance-service/internal/fault"
	"github.com/gewerk/handover/services/acceptance-service/internal/model"
)

var allowed = map[string]map[string]bool{
	model.StatusPending: {
		model.StatusInProgress: true,
	},
	model.StatusInProgress: {
		model.StatusAccepted:         true,
		model.StatusRejected:         true,
		model.StatusRequiresRevision: true,
	},
	model.StatusRequiresRevision: {
		model.StatusAccepted: true,
		model.StatusRejected: true,
	},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to string) bool {
	return allowed[from][to]
}

// Guard returns the InvalidState fault for an illegal move, nil otherwise.
// The operation name appears in the error so API clients can see which
// call was rejected.
func Guard(operation, from, to string) error {
	if CanTransition(from, to) {
		return nil
	}
	required := requiredFor(to)
	return fault.Transition(operation, from, required)
}

// startFrom pins each lifecycle operation to the one status it may run
// from. complete never runs on a REQUIRES_REVISION record even though the
// edge to a terminal status is legal; that edge belongs to finalize.
var startFrom = map[string]string{
	"start":    model.StatusPending,
	"complete": model.StatusInProgress,
	"finalize": model.StatusRequiresRevision,
}

// GuardOp validates the operation's starting status and then the edge.
func GuardOp(operation, from, to string) error {
	if required, ok := startFrom[operation]; ok && from != required {
		return fault.Transition(operation, from, required)
	}
	return Guard(operation, from, to)
}

// requiredFor names the status an acceptance must be in to reach target.
func requiredFor(target string) string {
	switch target {
	case model.StatusInProgress:
		return model.StatusPending
	case model.StatusRequiresRevision:
		return model.StatusInProgress
	case model.StatusAccepted, model.StatusRejected:
		return model.StatusInProgress + " or " + model.StatusRequiresRevision
	}
	return "unreachable"
}

// CompletionOutcome resolves the Complete operation's target status from
// the reviewer's verdict and the number of recorded defects.
func CompletionOutcome(accepted bool, defectCount int) string {
	if defectCount > 0 {
		return model.StatusRequiresRevision
	}
	if accepted {
		return model.StatusAccepted
	}
	return model.StatusRejected
}

// FinalizeOutcome resolves the Finalize operation's terminal status.
func FinalizeOutcome(accepted bool) string {
	if accepted {
		return model.StatusAccepted
	}
	return model.StatusRejected
}

// WorkItemStatusFor maps a lifecycle status onto the completion status the
// work item record is flipped to alongside the transition.
func WorkItemStatusFor(acceptanceStatus string) string {
	switch acceptanceStatus {
	case model.StatusPending, model.StatusInProgress:
		return model.WorkUnderReview
	case model.StatusRequiresRevision:
		return model.WorkRevisionRequested
	case model.StatusAccepted:
		return model.WorkCompleted
	case model.StatusRejected:
		return model.WorkRejected
	}
	return ""
}
