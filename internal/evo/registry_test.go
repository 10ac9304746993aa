package evo

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseSelector(t *testing.T) {
	tests := []struct {
		spec string
		want Selector
	}{
		{spec: "power", want: PowerSelector{Power: 4}},
		{spec: "Power:2", want: PowerSelector{Power: 2}},
		{spec: "fitness_proportionate", want: FitnessProportionateSelector{}},
		{spec: "tournament", want: TournamentSelector{Size: 5, Probability: 0.5}},
		{spec: " tournament:3:0.7 ", want: TournamentSelector{Size: 3, Probability: 0.7}},
	}
	for _, tc := range tests {
		t.Run(tc.spec, func(t *testing.T) {
			got, err := ParseSelector(tc.spec)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %#v, got %#v", tc.want, got)
			}
		})
	}
}

func TestParseSelectorErrors(t *testing.T) {
	if _, err := ParseSelector("roulette"); !errors.Is(err, ErrSelectorNotFound) {
		t.Fatalf("expected selector not found, got %v", err)
	}
	for _, spec := range []string{"power:x", "power:0", "tournament:0", "tournament:3:2"} {
		if _, err := ParseSelector(spec); err == nil {
			t.Fatalf("expected error for %q", spec)
		}
	}
}

func TestRegisterSelector(t *testing.T) {
	if err := RegisterSelector("power", func([]float64) (Selector, error) { return PowerSelector{Power: 1}, nil }); !errors.Is(err, ErrSelectorExists) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}
	if err := RegisterSelector("", nil); err == nil {
		t.Fatal("expected error for empty registration")
	}
	names := ListSelectors()
	want := []string{"fitness_proportionate", "power", "tournament"}
	for _, name := range want {
		found := false
		for _, n := range names {
			found = found || n == name
		}
		if !found {
			t.Fatalf("expected %s in %v", name, names)
		}
	}
}
