package icons

import (
	"testing"

	"github.com/mikemorandi/flightradar/pkg/logger"
)

func cat(v int) *int { return &v }

func TestResolveCategoryTable(t *testing.T) {
	tests := []struct {
		name       string
		category   *int
		typeString string
		want       Class
	}{
		{"high vortex code", cat(5), "", ClassA4},
		{"rotorcraft code", cat(8), "", ClassA7},
		{"heavy code", cat(6), "", ClassA5},
		{"code wins over type string", cat(8), "Boeing 777-300ER", ClassA7},
		{"unknown code falls through", cat(0), "Airbus A380-800", ClassA5},
		{"no-info code falls through", cat(1), "EC135 Helicopter", ClassA7},
		{"unknown code no type", cat(0), "", ClassDefault},
		{"nil category uses type", nil, "Cessna 172", ClassA1},
		{"nothing known", nil, "", ClassDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.category, tt.typeString); got != tt.want {
				t.Errorf("Resolve(%v, %q) = %v, want %v", tt.category, tt.typeString, got, tt.want)
			}
		})
	}
}

func TestHeuristicOrderFirstMatchWins(t *testing.T) {
	// "drone" appears before heavy keywords in the table, so a heavy UAV
	// resolves as a UAV
	if got := Resolve(nil, "Heavy lift drone"); got != ClassB6 {
		t.Errorf("got %v, want %v", got, ClassB6)
	}
	// rotorcraft outranks everything
	if got := Resolve(nil, "Bell 412 glider tug"); got != ClassA7 {
		t.Errorf("got %v, want %v", got, ClassA7)
	}
}

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	p, err := NewPool(logger.NewNop(), 8)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	return p
}

func TestPoolColorStates(t *testing.T) {
	p := newTestPool(t)
	r := p.Acquire("f1", ClassA3)

	check := func(wantFill string) {
		t.Helper()
		for _, el := range r.Elements() {
			if el.Outline {
				if el.Stroke != outlineStroke || el.Fill != "none" {
					t.Errorf("outline element repainted: %+v", el)
				}
			} else if el.Fill != wantFill {
				t.Errorf("fill = %q, want %q", el.Fill, wantFill)
			}
		}
	}

	check(stateFills[StateDefault])

	r.SetColorState(StateSelected)
	check(stateFills[StateSelected])

	// Last applied wins
	r.SetColorState(StateMilitary)
	check(stateFills[StateMilitary])
	if r.State != StateMilitary {
		t.Errorf("state = %v, want military", r.State)
	}

	r.SetColorState(StateDefault)
	check(stateFills[StateDefault])
}

func TestPoolSurvivesDetachReattach(t *testing.T) {
	p := newTestPool(t)

	r := p.Acquire("f1", ClassA5)
	tpl := r.Template()
	r.SetColorState(StateSelected)
	r.SetRotation(135)

	p.Detach("f1")
	if got, ok := p.Get("f1"); !ok || got.Attached {
		t.Fatal("detached resource gone or still attached")
	}

	again := p.Acquire("f1", ClassA5)
	if again != r {
		t.Error("reattach built a new resource")
	}
	if again.Template() != tpl {
		t.Error("reattach recompiled the template")
	}
	if again.State != StateSelected || again.Rotation != 135 {
		t.Error("resource state lost across detach/reattach")
	}
	if !again.Attached {
		t.Error("reacquired resource not attached")
	}
}

func TestPoolSharesTemplates(t *testing.T) {
	p := newTestPool(t)

	a := p.Acquire("f1", ClassA7)
	b := p.Acquire("f2", ClassA7)
	if a.Template() != b.Template() {
		t.Error("same class compiled twice")
	}

	// Per-aircraft fills are independent even on a shared template
	a.SetColorState(StateMilitary)
	for _, el := range b.Elements() {
		if !el.Outline && el.Fill != stateFills[StateDefault] {
			t.Error("recoloring one aircraft repainted another")
		}
	}

	p.Release("f1")
	if _, ok := p.Get("f1"); ok {
		t.Error("released resource still present")
	}
	// The shared template survives the release
	c := p.Acquire("f3", ClassA7)
	if c.Template() != b.Template() {
		t.Error("template recompiled after a release")
	}
}

func TestPoolUnknownClassFallsBack(t *testing.T) {
	p := newTestPool(t)
	r := p.Acquire("f1", Class("Z9"))
	if r.Class != ClassDefault {
		t.Errorf("class = %v, want default fallback", r.Class)
	}
}
