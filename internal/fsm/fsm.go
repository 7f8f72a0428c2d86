// Package fsm holds the conversation state machine: the closed set of
// states a request-intake conversation can be in and the transition table
// between them. All functions are pure; callers own persistence.
package fsm

import "fmt"

type State string

const (
	StateIdle                     State = "IDLE"
	StateSearching                State = "SEARCHING"
	StateAwaitingSelection        State = "AWAITING_SELECTION"
	StateAwaitingSubunitSelection State = "AWAITING_SUBUNIT_SELECTION"
	StateAwaitingConfirmation     State = "AWAITING_CONFIRMATION"
	StateProcessing               State = "PROCESSING"
)

// States lists every known state.
var States = []State{
	StateIdle,
	StateSearching,
	StateAwaitingSelection,
	StateAwaitingSubunitSelection,
	StateAwaitingConfirmation,
	StateProcessing,
}

type ActionType string

const (
	ActionStartSearch         ActionType = "start_search"
	ActionSearchCompleted     ActionType = "search_completed"
	ActionSearchFailed        ActionType = "search_failed"
	ActionSelectResult        ActionType = "select_result"
	ActionSelectSubunits      ActionType = "select_subunits"
	ActionConfirm             ActionType = "confirm"
	ActionCancel              ActionType = "cancel"
	ActionReject              ActionType = "reject"
	ActionProcessingCompleted ActionType = "processing_completed"
	ActionProcessingFailed    ActionType = "processing_failed"
	ActionTimeout             ActionType = "timeout"
)

// Action is a transition request. Empty qualifies search_completed
// (no results found), HasSubunits qualifies select_result (the chosen
// candidate has addressable sub-parts such as seasons).
type Action struct {
	Type        ActionType
	Empty       bool
	HasSubunits bool
}

// Result reports the outcome of a transition attempt. When Valid is false
// NewState equals the state the attempt was made from and Reason carries a
// human-readable explanation.
type Result struct {
	NewState State
	Valid    bool
	Reason   string
}

// transitions is the closed table of allowed state pairs. Any pair not
// listed here is rejected.
var transitions = map[State][]State{
	StateIdle:                     {StateSearching, StateIdle},
	StateSearching:                {StateAwaitingSelection, StateIdle},
	StateAwaitingSelection:        {StateAwaitingSubunitSelection, StateAwaitingConfirmation, StateIdle},
	StateAwaitingSubunitSelection: {StateAwaitingConfirmation, StateIdle},
	StateAwaitingConfirmation:     {StateProcessing, StateIdle},
	StateProcessing:               {StateIdle},
}

// CanTransition reports whether the pair (from, to) appears in the
// transition table.
func CanTransition(from, to State) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}

	return false
}

// Transition validates the pair (from, to) against the table. It never
// mutates anything; an invalid pair yields Valid=false and NewState=from.
func Transition(from, to State) Result {
	if !CanTransition(from, to) {
		return Result{
			NewState: from,
			Valid:    false,
			Reason:   fmt.Sprintf("cannot transition from %s to %s", from, to),
		}
	}

	return Result{NewState: to, Valid: true}
}

// ProcessAction dispatches an action with state-specific precondition
// checks and returns the resulting state. Invalid actions leave the state
// untouched and explain why.
func ProcessAction(from State, action Action) Result {
	switch action.Type {
	case ActionStartSearch:
		return guard(from, StateIdle, StateSearching, "a search can only start from an idle conversation")

	case ActionSearchCompleted:
		if action.Empty {
			return guard(from, StateSearching, StateIdle, "no search is in progress")
		}

		return guard(from, StateSearching, StateAwaitingSelection, "no search is in progress")

	case ActionSearchFailed:
		return guard(from, StateSearching, StateIdle, "no search is in progress")

	case ActionSelectResult:
		if action.HasSubunits {
			return guard(from, StateAwaitingSelection, StateAwaitingSubunitSelection, "there are no results to select from")
		}

		return guard(from, StateAwaitingSelection, StateAwaitingConfirmation, "there are no results to select from")

	case ActionSelectSubunits:
		return guard(from, StateAwaitingSubunitSelection, StateAwaitingConfirmation, "no subunit selection is pending")

	case ActionConfirm:
		return guard(from, StateAwaitingConfirmation, StateProcessing, "there is nothing to confirm")

	case ActionCancel, ActionReject:
		if from == StateProcessing {
			return Result{
				NewState: from,
				Valid:    false,
				Reason:   "a request being submitted cannot be cancelled",
			}
		}

		return Result{NewState: StateIdle, Valid: true}

	case ActionProcessingCompleted, ActionProcessingFailed:
		return guard(from, StateProcessing, StateIdle, "no request is being processed")

	case ActionTimeout:
		// Expiry resets every state, including PROCESSING.
		return Result{NewState: StateIdle, Valid: true}

	default:
		return Result{
			NewState: from,
			Valid:    false,
			Reason:   fmt.Sprintf("unknown action %q", action.Type),
		}
	}
}

func guard(from, want, to State, reason string) Result {
	if from != want {
		return Result{NewState: from, Valid: false, Reason: reason}
	}

	return Result{NewState: to, Valid: true}
}
