package network

import (
	"errors"
	"math"
	"testing"

	"gatenet/internal/nn"
)

func TestRandomMutationsKeepInvariants(t *testing.T) {
	n, rng := newTestNetwork(t, 2, 2, 21)
	all := MutationsAll()
	for i := 0; i < 400; i++ {
		m := all[rng.Intn(len(all))]
		if err := n.Mutate(rng, m); err != nil && !errors.Is(err, ErrNoMutationTarget) {
			t.Fatalf("step %d %s: %v", i, m, err)
		}
		if err := n.Validate(); err != nil {
			t.Fatalf("step %d %s: %v", i, m, err)
		}
		if _, err := n.Activate([]float64{0.5, -0.5}); err != nil {
			t.Fatalf("step %d activate: %v", i, err)
		}
		if err := n.Propagate([]float64{1, 0}, 0.1, 0); err != nil {
			t.Fatalf("step %d propagate: %v", i, err)
		}
	}
	if n.Input() != 2 || n.Output() != 2 {
		t.Fatalf("boundary sizes changed: %d/%d", n.Input(), n.Output())
	}
}

func TestFeedForwardMutationsMatchTopologicalEvaluation(t *testing.T) {
	n, rng := newTestNetwork(t, 3, 2, 22)
	ffw := MutationsFFW()
	input := []float64{0.2, -0.4, 0.9}
	for i := 0; i < 300; i++ {
		m := ffw[rng.Intn(len(ffw))]
		if err := n.Mutate(rng, m); err != nil && !errors.Is(err, ErrNoMutationTarget) {
			t.Fatalf("step %d %s: %v", i, m, err)
		}
		if !n.IsFeedForward() {
			t.Fatalf("step %d %s: network became recurrent", i, m)
		}
	}
	got, err := n.Activate(input)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	want, err := n.EvaluateFeedForward(input)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("output %d: activate=%f topological=%f", i, got[i], want[i])
		}
	}
}

func TestAddNodeSplitsConnection(t *testing.T) {
	n, rng := newTestNetwork(t, 1, 1, 23)
	in, out := n.NodeAt(0).ID(), n.NodeAt(1).ID()
	if err := n.Mutate(rng, DefaultMutation(AddNode)); err != nil {
		t.Fatalf("add node: %v", err)
	}
	hidden := n.NodeAt(1)
	if hidden.Role() != RoleHidden || n.NodeCount() != 3 {
		t.Fatalf("expected hidden node at position 1, got %s", hidden.Role())
	}
	if _, ok := n.ConnectionBetween(in, hidden.ID()); !ok {
		t.Fatal("missing input->hidden connection")
	}
	if _, ok := n.ConnectionBetween(hidden.ID(), out); !ok {
		t.Fatal("missing hidden->output connection")
	}
	if hidden.Squash == nn.Logistic {
		t.Fatal("expected new node to get a mutated activation")
	}
}

func TestMutationsWithoutTarget(t *testing.T) {
	tests := []struct {
		name  string
		kind  MutationKind
		setup func(n *Network)
	}{
		{name: "add node without connections", kind: AddNode, setup: func(n *Network) {
			_ = n.Disconnect(n.NodeAt(0).ID(), n.NodeAt(1).ID())
		}},
		{name: "sub node without hidden", kind: SubNode},
		{name: "add conn when fully connected", kind: AddConn},
		{name: "sub conn on last connection", kind: SubConn},
		{name: "sub self conn", kind: SubSelfConn},
		{name: "sub gate", kind: SubGate},
		{name: "add back conn", kind: AddBackConn},
		{name: "swap single node", kind: SwapNodes},
		{name: "mod weight without connections", kind: ModWeight, setup: func(n *Network) {
			_ = n.Disconnect(n.NodeAt(0).ID(), n.NodeAt(1).ID())
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n, rng := newTestNetwork(t, 1, 1, 24)
			if tc.setup != nil {
				tc.setup(n)
			}
			before := n.ToRecord()
			err := n.Mutate(rng, DefaultMutation(tc.kind))
			if !errors.Is(err, ErrNoMutationTarget) {
				t.Fatalf("expected no target, got %v", err)
			}
			after := n.ToRecord()
			if len(before.Nodes) != len(after.Nodes) || len(before.Connections) != len(after.Connections) {
				t.Fatal("network changed after failed mutation")
			}
		})
	}
}

func TestModActivationRespectsAllowedPool(t *testing.T) {
	n, rng := newTestNetwork(t, 1, 1, 25)
	m := DefaultMutation(ModActivation)
	m.Allowed = []nn.Activation{nn.Tanh}
	if err := n.Mutate(rng, m); err != nil {
		t.Fatalf("mod activation: %v", err)
	}
	if n.NodeAt(1).Squash != nn.Tanh {
		t.Fatalf("expected tanh, got %s", n.NodeAt(1).Squash)
	}
	if err := n.Mutate(rng, m); !errors.Is(err, ErrNoMutationTarget) {
		t.Fatalf("expected no alternative activation, got %v", err)
	}
	m.MutateOutput = false
	if err := n.Mutate(rng, m); !errors.Is(err, ErrNoMutationTarget) {
		t.Fatalf("expected outputs to be protected, got %v", err)
	}
}

func TestSelfConnectionMutations(t *testing.T) {
	n, rng := newTestNetwork(t, 1, 1, 26)
	if err := n.Mutate(rng, DefaultMutation(AddSelfConn)); err != nil {
		t.Fatalf("add self conn: %v", err)
	}
	if len(n.SelfConnections()) != 1 {
		t.Fatalf("expected one self connection, got %d", len(n.SelfConnections()))
	}
	if err := n.Mutate(rng, DefaultMutation(AddSelfConn)); !errors.Is(err, ErrNoMutationTarget) {
		t.Fatalf("expected no target, got %v", err)
	}
	if err := n.Mutate(rng, DefaultMutation(SubSelfConn)); err != nil {
		t.Fatalf("sub self conn: %v", err)
	}
	if len(n.SelfConnections()) != 0 {
		t.Fatal("expected self connection to be removed")
	}
}

func TestGateMutations(t *testing.T) {
	n, rng := newTestNetwork(t, 2, 1, 27)
	if err := n.Mutate(rng, DefaultMutation(AddGate)); err != nil {
		t.Fatalf("add gate: %v", err)
	}
	if len(n.Gates()) != 1 {
		t.Fatalf("expected one gate, got %d", len(n.Gates()))
	}
	if err := n.Mutate(rng, DefaultMutation(SubGate)); err != nil {
		t.Fatalf("sub gate: %v", err)
	}
	if len(n.Gates()) != 0 {
		t.Fatal("expected gate to be removed")
	}
}

func TestModWeightStaysInRange(t *testing.T) {
	n, rng := newTestNetwork(t, 1, 1, 28)
	c := n.Connections()[0]
	before := c.Weight
	m := DefaultMutation(ModWeight)
	m.Min, m.Max = 0.5, 0.6
	if err := n.Mutate(rng, m); err != nil {
		t.Fatalf("mod weight: %v", err)
	}
	if d := c.Weight - before; d < 0.5-1e-12 || d > 0.6+1e-12 {
		t.Fatalf("perturbation %f outside [0.5, 0.6)", d)
	}
}

func TestParseMutationSet(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{in: "all", want: 14},
		{in: "FFW", want: 8},
		{in: "", want: 8},
		{in: "add_node, mod_weight", want: 2},
	}
	for _, tc := range tests {
		got, err := ParseMutationSet(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if len(got) != tc.want {
			t.Fatalf("parse %q: want %d got %d", tc.in, tc.want, len(got))
		}
	}
	if _, err := ParseMutationSet("add_node,explode"); !errors.Is(err, ErrUnknownMutation) {
		t.Fatalf("expected unknown mutation, got %v", err)
	}
	if k, err := ParseMutationKind("SWAP_NODES"); err != nil || k != SwapNodes {
		t.Fatalf("parse kind: %v %v", k, err)
	}
}
