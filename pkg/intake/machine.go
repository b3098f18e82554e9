package intake

import (
	"errors"
	"log"
)

// State of one intake machine instance.
type State int

const (
	StateIdle State = iota
	StateCollecting
	StateConfirming
)

// Outcome tells the caller what the last input led to. OutcomeConfirmed
// means the draft is complete and confirmed: the caller runs the commit
// pipeline and then either Reset (success) or leaves the machine in
// Confirming so the user can retry after a store failure.
type Outcome int

const (
	OutcomeContinue Outcome = iota
	OutcomeConfirmed
	OutcomeCancelled
)

// Reply is the machine's reaction to one input: the messages to send back
// and, on a terminal transition, the finished draft.
type Reply struct {
	Messages []string
	Outcome  Outcome
	Draft    interface{}
}

// Machine drives one intake conversation: it asks the flow graph for the
// next field, runs that field's parser against the user's answer and either
// advances, re-prompts, or moves to the confirmation step. All side effects
// stay with the caller; the machine only mutates its own draft.
type Machine struct {
	flow  Flow
	state State
	field FieldID
	draft interface{}
}

func New(flow Flow) *Machine {
	return &Machine{flow: flow, state: StateIdle}
}

func (m *Machine) State() State       { return m.state }
func (m *Machine) Flow() Flow         { return m.flow }
func (m *Machine) Draft() interface{} { return m.draft }

// Start begins a fresh intake with an empty partial record.
func (m *Machine) Start() Reply {
	return m.StartWith(m.flow.NewDraft())
}

// StartWith begins an intake from a pre-filled draft; fields that already
// carry values are skipped by the flow graph. Used for promotions.
func (m *Machine) StartWith(draft interface{}) Reply {
	m.draft = draft
	m.state = StateCollecting
	return m.advance()
}

// Reset clears the instance back to Idle, discarding the draft.
func (m *Machine) Reset() {
	m.state = StateIdle
	m.field = ""
	m.draft = nil
}

// Input feeds one user answer into the machine.
func (m *Machine) Input(text string) Reply {
	switch m.state {
	case StateCollecting:
		field := m.flow.Field(m.field)
		if err := field.Parse(text, m.draft); err != nil {
			var rej *Rejection
			if errors.As(err, &rej) {
				// Rejected input never discards collected fields.
				return Reply{Messages: []string{rej.Reason, field.Prompt(m.draft)}}
			}
			log.Printf("intake %s: field %s: %v", m.flow.Name(), m.field, err)
			return Reply{Messages: []string{"The operation failed, please try again.", field.Prompt(m.draft)}}
		}
		return m.advance()

	case StateConfirming:
		yes, err := YesNo(text)
		if err != nil {
			// Anything unrelated to the yes/no choice is never reprocessed
			// as a field answer.
			return Reply{Messages: []string{"Please answer yes or no: save it?"}}
		}
		if yes {
			// State stays Confirming; the caller resets after a successful
			// commit, so a failed commit can be retried.
			return Reply{Outcome: OutcomeConfirmed, Draft: m.draft}
		}
		m.Reset()
		return Reply{Outcome: OutcomeCancelled, Messages: []string{"Cancelled, nothing was saved."}}

	default:
		return Reply{Messages: []string{"Nothing is in progress."}}
	}
}

func (m *Machine) advance() Reply {
	next, done := m.flow.Next(m.draft)
	if done {
		m.state = StateConfirming
		return Reply{
			Messages: []string{m.flow.Summary(m.draft), "Save it? (yes/no)"},
			Draft:    m.draft,
		}
	}
	m.field = next
	return Reply{Messages: []string{m.flow.Field(next).Prompt(m.draft)}, Draft: m.draft}
}
