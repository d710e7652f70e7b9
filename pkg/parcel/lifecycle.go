package parcel

import "fmt"

// TransitionRule is one permitted status change.
type TransitionRule struct {
	From Status
	To   Status
}

// DefaultTransitions is the parcel lifecycle: a single approval step.
var DefaultTransitions = []TransitionRule{
	{From: StatusPending, To: StatusVerified},
}

// TerminalStates have no outgoing transitions and freeze the record.
var TerminalStates = []Status{StatusVerified}

// LifecycleMachine validates parcel status transitions.
type LifecycleMachine struct {
	transitions []TransitionRule
	terminal    map[Status]bool
}

// NewLifecycleMachine creates a machine with the default rules.
func NewLifecycleMachine() *LifecycleMachine {
	terminal := make(map[Status]bool, len(TerminalStates))
	for _, s := range TerminalStates {
		terminal[s] = true
	}
	return &LifecycleMachine{
		transitions: DefaultTransitions,
		terminal:    terminal,
	}
}

// ValidateTransition returns nil if from->to is allowed. Leaving a terminal
// state yields a TransitionError wrapping ErrAlreadyVerified.
func (m *LifecycleMachine) ValidateTransition(from, to Status) error {
	if m.terminal[from] {
		return &TransitionError{
			Code:    "LIFECYCLE_TERMINAL_STATE",
			From:    from,
			To:      to,
			Message: fmt.Sprintf("parcel is already %s", from),
			Err:     ErrAlreadyVerified,
		}
	}
	for _, rule := range m.transitions {
		if rule == (TransitionRule{From: from, To: to}) {
			return nil
		}
	}
	return &TransitionError{
		Code:    "LIFECYCLE_INVALID_TRANSITION",
		From:    from,
		To:      to,
		Message: fmt.Sprintf("a %s parcel cannot become %s", from, to),
	}
}

// Mutable reports whether a record in status s may be edited or deleted.
func (m *LifecycleMachine) Mutable(s Status) bool {
	return !m.terminal[s]
}

// AllowedTransitions lists the statuses reachable from from.
func (m *LifecycleMachine) AllowedTransitions(from Status) []Status {
	var next []Status
	for _, rule := range m.transitions {
		if rule.From == from {
			next = append(next, rule.To)
		}
	}
	return next
}

// TransitionError reports a rejected status change.
type TransitionError struct {
	Code    string `json:"code"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *TransitionError) Error() string {
	return e.Message
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}
