// Package rollstate is the per-instrument roll state machine. The
// transition table depends only on the current state and whether the
// priced contract holds a position.
package rollstate

import (
	"errors"
	"fmt"
	"strings"
)

type State string

const (
	NoRoll        State = "No_Roll"
	Passive       State = "Passive"
	Force         State = "Force"
	ForceOutright State = "Force_Outright"
	RollAdjusted  State = "Roll_Adjusted"
	Close         State = "Close"
	NoOpen        State = "No_Open"
)

// Default is the state of an instrument with no stored roll state.
const Default = NoRoll

var ErrUnknownState = errors.New("unknown roll state")

var all = []State{NoRoll, Passive, Force, ForceOutright, RollAdjusted, Close, NoOpen}

var explanations = map[State]string{
	NoRoll:        "No rolling happens. Will only trade priced contract.",
	Passive:       "Allow the contract to roll naturally (closing trades in priced contract, opening trades in forward contract)",
	Force:         "Force the contract to roll ASAP using spread order",
	ForceOutright: "Force the contract to roll ASAP using two outright orders",
	RollAdjusted:  "Roll adjusted prices from existing priced to new forward contract (after adjusted prices have been changed, will automatically move state to no roll)",
	Close:         "Close position in near contract only",
	NoOpen:        "No opening trades as close to expiry but forward not liquid enough",
}

// First entry is the recommended next state. Suffix 0: no position in the
// priced contract, 1: some position.
var transitions = map[string][]State{
	"No_Roll0":        {RollAdjusted, Passive, NoRoll, NoOpen},
	"No_Roll1":        {Passive, Force, ForceOutright, NoRoll, Close, NoOpen},
	"Passive0":        {RollAdjusted, Passive, NoRoll, NoOpen},
	"Passive1":        {Force, ForceOutright, Passive, NoRoll, Close, NoOpen},
	"Force0":          {RollAdjusted, Passive},
	"Force1":          {Force, ForceOutright, Passive, NoRoll, Close, NoOpen},
	"Force_Outright0": {RollAdjusted, Passive},
	"Force_Outright1": {Force, ForceOutright, Passive, NoRoll, Close, NoOpen},
	"Close0":          {RollAdjusted, Passive},
	"Close1":          {Close, Force, ForceOutright, Passive, NoRoll, NoOpen},
	"Roll_Adjusted0":  {NoRoll},
	"Roll_Adjusted1":  {NoRoll, Passive, Force, ForceOutright, Close, NoOpen},
	"No_Open0":        {RollAdjusted, Passive, NoOpen},
	"No_Open1":        {Close, Force, ForceOutright, Passive, NoRoll},
}

func All() []State {
	return append([]State(nil), all...)
}

func Parse(raw string) (State, error) {
	raw = strings.TrimSpace(raw)
	for _, s := range all {
		if strings.EqualFold(raw, string(s)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownState, raw)
}

func (s State) String() string { return string(s) }

func (s State) Valid() bool {
	_, ok := explanations[s]
	return ok
}

func (s State) Explain() string {
	return explanations[s]
}

func (s State) RequiresOrderGeneration() bool {
	return s == Force || s == ForceOutright || s == Close
}

func (s State) IsDoubleSided() bool {
	return s == Force || s == ForceOutright
}

func (s State) IsActiveRolling() bool {
	return s.RequiresOrderGeneration() || s == RollAdjusted
}

func tableKey(s State, pricedPosition int64) string {
	flag := "1"
	if pricedPosition == 0 {
		flag = "0"
	}
	return string(s) + flag
}

// AllowedNextStates returns the permitted next states, recommended first.
func AllowedNextStates(s State, pricedPosition int64) ([]State, error) {
	next, ok := transitions[tableKey(s, pricedPosition)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, string(s))
	}
	return append([]State(nil), next...), nil
}

func CanTransition(from, to State, pricedPosition int64) bool {
	next, err := AllowedNextStates(from, pricedPosition)
	if err != nil {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError reports a state change the table forbids.
type TransitionError struct {
	Instrument     string
	From, To       State
	PricedPosition int64
	Allowed        []State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("roll state %s -> %s not allowed for %s with priced position %d (allowed %v)",
		e.From, e.To, e.Instrument, e.PricedPosition, e.Allowed)
}
