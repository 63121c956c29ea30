package rollstate

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestAllowedNextStates_RecommendedFirst(t *testing.T) {
	cases := []struct {
		state State
		pos   int64
		want  State
	}{
		{NoRoll, 0, RollAdjusted},
		{NoRoll, 3, Passive},
		{Force, -10, Force},
		{Force, 0, RollAdjusted},
		{Close, 1, Close},
		{RollAdjusted, 0, NoRoll},
		{RollAdjusted, 4, NoRoll},
		{NoOpen, 5, Close},
	}
	for _, tc := range cases {
		next, err := AllowedNextStates(tc.state, tc.pos)
		if err != nil {
			t.Fatalf("%s/%d: %v", tc.state, tc.pos, err)
		}
		if next[0] != tc.want {
			t.Fatalf("%s/%d recommended=%s want=%s", tc.state, tc.pos, next[0], tc.want)
		}
	}
}

func TestAllowedNextStates_UnknownState(t *testing.T) {
	if _, err := AllowedNextStates(State("Sideways"), 0); !errors.Is(err, ErrUnknownState) {
		t.Fatalf("err=%v want ErrUnknownState", err)
	}
}

func TestAllowedNextStates_ReturnsCopy(t *testing.T) {
	next, _ := AllowedNextStates(NoRoll, 0)
	next[0] = Close
	again, _ := AllowedNextStates(NoRoll, 0)
	if again[0] != RollAdjusted {
		t.Fatalf("table mutated through returned slice: %v", again)
	}
}

func TestParse(t *testing.T) {
	s, err := Parse(" force_outright ")
	if err != nil || s != ForceOutright {
		t.Fatalf("state=%s err=%v want Force_Outright", s, err)
	}
	if _, err := Parse("nope"); !errors.Is(err, ErrUnknownState) {
		t.Fatalf("err=%v want ErrUnknownState", err)
	}
}

func TestPredicates(t *testing.T) {
	if !Close.RequiresOrderGeneration() || Close.IsDoubleSided() {
		t.Fatalf("close predicates wrong")
	}
	if !RollAdjusted.IsActiveRolling() || RollAdjusted.RequiresOrderGeneration() {
		t.Fatalf("roll adjusted predicates wrong")
	}
	if Passive.IsActiveRolling() {
		t.Fatalf("passive should not be active rolling")
	}
	for _, s := range All() {
		if s.Explain() == "" {
			t.Fatalf("%s has no explanation", s)
		}
	}
}

func TestTable_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		from := rapid.SampledFrom(All()).Draw(t, "from")
		pos := rapid.Int64Range(-1000, 1000).Draw(t, "pos")

		next, err := AllowedNextStates(from, pos)
		if err != nil {
			t.Fatalf("%s/%d: %v", from, pos, err)
		}
		if len(next) == 0 {
			t.Fatalf("%s/%d has no next state", from, pos)
		}
		seen := map[State]bool{}
		for _, s := range next {
			if !s.Valid() {
				t.Fatalf("%s/%d lists invalid state %q", from, pos, s)
			}
			if seen[s] {
				t.Fatalf("%s/%d lists %s twice", from, pos, s)
			}
			seen[s] = true
		}
		// Adjusted prices can only roll once the priced contract is flat.
		if pos != 0 && seen[RollAdjusted] {
			t.Fatalf("%s/%d allows Roll_Adjusted with a position", from, pos)
		}
		// Once flat, Roll_Adjusted can only go to No_Roll.
		if from == RollAdjusted && pos == 0 && (len(next) != 1 || next[0] != NoRoll) {
			t.Fatalf("Roll_Adjusted/0 next=%v want [No_Roll]", next)
		}
		// The answer only depends on whether the position is zero.
		other := pos * 7
		again, _ := AllowedNextStates(from, other)
		if len(again) != len(next) {
			t.Fatalf("%s result differs between %d and %d", from, pos, other)
		}
		for _, s := range next {
			if !CanTransition(from, s, pos) {
				t.Fatalf("CanTransition(%s,%s,%d)=false", from, s, pos)
			}
		}
	})
}
