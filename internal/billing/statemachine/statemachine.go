// Package statemachine holds the explicit transition tables for billing
// documents. Transition legality is looked up in one place instead of being
// re-derived from status comparisons at each call site.
package statemachine

import (
	"fmt"

	"github.com/lumenhq/lumen/internal/shared"
)

// State is a document lifecycle state.
type State string

// Event names a transition trigger.
type Event string

// Transition maps one state and event to the next state.
type Transition struct {
	From  State
	Event Event
	To    State
}

// Machine is an immutable state x event transition table for one entity.
type Machine struct {
	entity      string
	states      map[State]struct{}
	transitions map[State]map[Event]State
}

// New builds a Machine, checking the table references only declared states.
func New(entity string, states []State, transitions []Transition) (*Machine, error) {
	m := &Machine{
		entity:      entity,
		states:      make(map[State]struct{}, len(states)),
		transitions: make(map[State]map[Event]State),
	}
	for _, s := range states {
		m.states[s] = struct{}{}
	}
	for _, t := range transitions {
		if _, ok := m.states[t.From]; !ok {
			return nil, fmt.Errorf("statemachine %s: unknown state %q", entity, t.From)
		}
		if _, ok := m.states[t.To]; !ok {
			return nil, fmt.Errorf("statemachine %s: unknown state %q", entity, t.To)
		}
		if m.transitions[t.From] == nil {
			m.transitions[t.From] = make(map[Event]State)
		}
		if _, dup := m.transitions[t.From][t.Event]; dup {
			return nil, fmt.Errorf("statemachine %s: duplicate transition %q from %q", entity, t.Event, t.From)
		}
		m.transitions[t.From][t.Event] = t.To
	}
	return m, nil
}

// MustNew is New, panicking on table errors. Tables are package-level values
// so a bad table fails at startup, not mid-request.
func MustNew(entity string, states []State, transitions []Transition) *Machine {
	m, err := New(entity, states, transitions)
	if err != nil {
		panic(err)
	}
	return m
}

// Next returns the state reached by firing event from the given state, or an
// InvalidTransitionError naming the current state.
func (m *Machine) Next(from State, event Event) (State, error) {
	if to, ok := m.transitions[from][event]; ok {
		return to, nil
	}
	return "", &shared.InvalidTransitionError{Entity: m.entity, State: string(from), Event: string(event)}
}

// Can reports whether event is legal from the given state.
func (m *Machine) Can(from State, event Event) bool {
	_, ok := m.transitions[from][event]
	return ok
}
