package network

import (
	"errors"
	"testing"
)

func TestSummaryCountsStructure(t *testing.T) {
	n, rng := newTestNetwork(t, 2, 1, 61)
	if err := n.Mutate(rng, DefaultMutation(AddNode)); err != nil {
		t.Fatalf("add node: %v", err)
	}
	got := n.Summary()
	want := Summary{Nodes: 4, Hidden: 1, Connections: 3, FeedForward: true}
	if got != want {
		t.Fatalf("summary: want %+v got %+v", want, got)
	}
	if n.Complexity() != 7 {
		t.Fatalf("expected complexity 7, got %d", n.Complexity())
	}

	out := n.NodeAt(3).ID()
	if _, err := n.Connect(out, out, 1); err != nil {
		t.Fatalf("self connect: %v", err)
	}
	if s := n.Summary(); s.SelfConnections != 1 || s.FeedForward {
		t.Fatalf("expected recurrent summary, got %+v", s)
	}
}

func TestTopologicalOrderDetectsCycles(t *testing.T) {
	n, rng := newTestNetwork(t, 1, 1, 62)
	if err := n.Mutate(rng, DefaultMutation(AddNode)); err != nil {
		t.Fatalf("add node: %v", err)
	}
	order, err := n.TopologicalOrder()
	if err != nil {
		t.Fatalf("topological order: %v", err)
	}
	for i, id := range order {
		if n.Position(id) != i {
			t.Fatalf("expected activation order, got %v", order)
		}
	}

	hidden, out := n.NodeAt(1).ID(), n.NodeAt(2).ID()
	if _, err := n.Connect(out, hidden, 0.5); err != nil {
		t.Fatalf("back connect: %v", err)
	}
	if n.IsFeedForward() {
		t.Fatal("expected back connection to break feed-forward order")
	}
	if _, err := n.TopologicalOrder(); !errors.Is(err, ErrNotFeedForward) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	if _, err := n.EvaluateFeedForward([]float64{1}); !errors.Is(err, ErrNotFeedForward) {
		t.Fatalf("expected evaluation to fail, got %v", err)
	}
}

func TestIsFeedForwardChecksGaterOrder(t *testing.T) {
	n, rng := newTestNetwork(t, 1, 1, 63)
	if err := n.Mutate(rng, DefaultMutation(AddNode)); err != nil {
		t.Fatalf("add node: %v", err)
	}
	in, hidden, out := n.NodeAt(0).ID(), n.NodeAt(1).ID(), n.NodeAt(2).ID()
	cid, _ := n.ConnectionBetween(in, hidden)
	if err := n.Gate(out, cid); err != nil {
		t.Fatalf("gate: %v", err)
	}
	if n.IsFeedForward() {
		t.Fatal("expected a later gater to make the network recurrent")
	}
	if err := n.Ungate(cid); err != nil {
		t.Fatalf("ungate: %v", err)
	}
	second, _ := n.ConnectionBetween(hidden, out)
	if err := n.Gate(in, second); err != nil {
		t.Fatalf("gate: %v", err)
	}
	if !n.IsFeedForward() {
		t.Fatal("expected an earlier gater to keep the network feed-forward")
	}
	got, _ := n.Activate([]float64{0.7})
	want, err := n.EvaluateFeedForward([]float64{0.7})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got[0] != want[0] {
		t.Fatalf("activate %f, topological %f", got[0], want[0])
	}
}
