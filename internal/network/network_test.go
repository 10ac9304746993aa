package network

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gatenet/internal/nn"
)

func newTestNetwork(t *testing.T, input, output int, seed int64) (*Network, *rand.Rand) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	n, err := New(input, output, rng)
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	return n, rng
}

func TestNewConnectsEveryInputToEveryOutput(t *testing.T) {
	n, _ := newTestNetwork(t, 3, 2, 1)
	if n.NodeCount() != 5 {
		t.Fatalf("expected 5 nodes, got %d", n.NodeCount())
	}
	if got := len(n.Connections()); got != 6 {
		t.Fatalf("expected 6 connections, got %d", got)
	}
	for pos := 0; pos < 3; pos++ {
		if nd := n.NodeAt(pos); nd.Role() != RoleInput || nd.Bias != 0 {
			t.Fatalf("node %d: role=%s bias=%f", pos, nd.Role(), nd.Bias)
		}
	}
	for _, c := range n.Connections() {
		if c.Weight < -0.1 || c.Weight >= 0.1 {
			t.Fatalf("initial weight out of range: %f", c.Weight)
		}
	}
	if err := n.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestNewRejectsInvalidArguments(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := New(0, 1, rng); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected invalid size, got %v", err)
	}
	if _, err := New(1, 1, nil); !errors.Is(err, ErrNoRandomSource) {
		t.Fatalf("expected missing random source, got %v", err)
	}
}

func TestConnectAndDisconnect(t *testing.T) {
	n, _ := newTestNetwork(t, 1, 1, 2)
	in, out := n.NodeAt(0).ID(), n.NodeAt(1).ID()

	if _, err := n.Connect(in, out, 0.5); !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("expected duplicate connection, got %v", err)
	}
	if err := n.Disconnect(in, out); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, ok := n.ConnectionBetween(in, out); ok {
		t.Fatal("expected connection to be gone")
	}
	if err := n.Disconnect(in, out); !errors.Is(err, ErrConnectionNotFound) {
		t.Fatalf("expected connection not found, got %v", err)
	}

	self, err := n.Connect(out, out, 0)
	if err != nil {
		t.Fatalf("self connect: %v", err)
	}
	c, _ := n.Connection(self)
	if c.Weight != 1 {
		t.Fatalf("expected default self weight 1, got %f", c.Weight)
	}
	if _, err := n.Connect(out, out, 0.3); !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("expected duplicate self connection, got %v", err)
	}
	if len(n.SelfConnections()) != 1 {
		t.Fatalf("expected one self connection, got %d", len(n.SelfConnections()))
	}
	if err := n.Disconnect(out, out); err != nil {
		t.Fatalf("disconnect self: %v", err)
	}
	if c.Weight != 0 || len(n.SelfConnections()) != 0 {
		t.Fatalf("expected inactive self connection, weight=%f", c.Weight)
	}
	if err := n.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestGateControlsConnectionGain(t *testing.T) {
	n, _ := newTestNetwork(t, 2, 1, 3)
	in0, in1, out := n.NodeAt(0).ID(), n.NodeAt(1).ID(), n.NodeAt(2).ID()
	c0, _ := n.ConnectionBetween(in0, out)
	c1, _ := n.ConnectionBetween(in1, out)

	if err := n.Gate(in1, c0); err != nil {
		t.Fatalf("gate: %v", err)
	}
	if err := n.Gate(out, c0); !errors.Is(err, ErrAlreadyGated) {
		t.Fatalf("expected already gated, got %v", err)
	}
	got, err := n.Activate([]float64{0.5, 0.25})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	conn0, _ := n.Connection(c0)
	conn1, _ := n.Connection(c1)
	if conn0.Gain() != 0.25 {
		t.Fatalf("expected gain 0.25, got %f", conn0.Gain())
	}
	outNode, _ := n.Node(out)
	want := nn.Logistic.Apply(outNode.Bias + 0.5*conn0.Weight*0.25 + 0.25*conn1.Weight)
	if math.Abs(got[0]-want) > 1e-12 {
		t.Fatalf("expected %f, got %f", want, got[0])
	}

	if err := n.Ungate(c0); err != nil {
		t.Fatalf("ungate: %v", err)
	}
	if conn0.Gated() || conn0.Gain() != 1 || len(n.Gates()) != 0 {
		t.Fatalf("expected reset gate, gater=%d gain=%f", conn0.Gater(), conn0.Gain())
	}
	if err := n.Ungate(c0); !errors.Is(err, ErrNotGated) {
		t.Fatalf("expected not gated, got %v", err)
	}
	if err := n.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestGateRejectsInactiveSelfConnection(t *testing.T) {
	n, _ := newTestNetwork(t, 1, 1, 4)
	out := n.NodeAt(1)
	if err := n.Gate(n.NodeAt(0).ID(), out.SelfConnection()); !errors.Is(err, ErrConnectionNotFound) {
		t.Fatalf("expected connection not found, got %v", err)
	}
}

func TestRemoveReconnectsNeighbours(t *testing.T) {
	n, rng := newTestNetwork(t, 1, 1, 5)
	if err := n.Mutate(rng, DefaultMutation(AddNode)); err != nil {
		t.Fatalf("add node: %v", err)
	}
	in, hidden, out := n.NodeAt(0).ID(), n.NodeAt(1).ID(), n.NodeAt(2).ID()
	if _, ok := n.ConnectionBetween(in, out); ok {
		t.Fatal("expected split connection to be removed")
	}
	if err := n.Remove(in, true, rng); !errors.Is(err, ErrBoundaryNode) {
		t.Fatalf("expected boundary error, got %v", err)
	}
	if err := n.Remove(hidden, true, rng); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if n.NodeCount() != 2 {
		t.Fatalf("expected 2 nodes, got %d", n.NodeCount())
	}
	if _, ok := n.ConnectionBetween(in, out); !ok {
		t.Fatal("expected input to be reconnected to output")
	}
	if _, ok := n.Node(hidden); ok {
		t.Fatal("expected removed node handle to be dead")
	}
	if err := n.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestRemoveHandsGatesToNewConnections(t *testing.T) {
	n, rng := newTestNetwork(t, 2, 1, 6)
	if err := n.Mutate(rng, DefaultMutation(AddNode)); err != nil {
		t.Fatalf("add node: %v", err)
	}
	var hidden NodeID = NoNode
	for _, nd := range n.Nodes() {
		if nd.Role() == RoleHidden {
			hidden = nd.ID()
		}
	}
	in := n.Nodes()[0].ID()
	if _, ok := n.ConnectionBetween(in, hidden); !ok {
		in = n.Nodes()[1].ID()
	}
	cid, _ := n.ConnectionBetween(in, hidden)
	gater := n.NodeAt(n.NodeCount() - 1).ID()
	if err := n.Gate(gater, cid); err != nil {
		t.Fatalf("gate: %v", err)
	}
	if err := n.Remove(hidden, true, rng); err != nil {
		t.Fatalf("remove: %v", err)
	}
	gates := n.Gates()
	if len(gates) != 1 || gates[0].Gater() != gater {
		t.Fatalf("expected the gate to survive removal, got %d gates", len(gates))
	}
	if err := n.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestPropagateReducesError(t *testing.T) {
	n, _ := newTestNetwork(t, 2, 1, 7)
	input, target := []float64{1, 0}, []float64{1}

	first, err := n.Activate(input)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	for i := 0; i < 50; i++ {
		if _, err := n.Activate(input); err != nil {
			t.Fatalf("activate: %v", err)
		}
		if err := n.Propagate(target, 0.3, 0); err != nil {
			t.Fatalf("propagate: %v", err)
		}
	}
	last, _ := n.Activate(input)
	if math.Abs(1-last[0]) >= math.Abs(1-first[0]) {
		t.Fatalf("expected error to shrink: first=%f last=%f", first[0], last[0])
	}
	if err := n.Propagate([]float64{1, 2}, 0.3, 0); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected size mismatch, got %v", err)
	}
}

func TestPropagateStopsAtConstantNodes(t *testing.T) {
	b, err := NewBuilder(rand.New(rand.NewSource(11)))
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	in, hidden, constant, out := b.Node(RoleInput), b.Node(RoleHidden), b.Node(RoleConstant), b.Node(RoleOutput)
	var links []ConnID
	for _, pair := range [][2]NodeID{{in, hidden}, {hidden, constant}, {constant, out}} {
		cid, err := b.Connect(pair[0], pair[1], nil)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		links = append(links, cid)
	}
	n, err := b.Construct(in, hidden, constant, out)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	weights := make([]float64, len(links))
	for i, cid := range links {
		c, _ := n.Connection(cid)
		weights[i] = c.Weight
	}

	if _, err := n.Activate([]float64{1}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := n.Propagate([]float64{1}, 0.3, 0); err != nil {
		t.Fatalf("propagate: %v", err)
	}
	for _, id := range []NodeID{constant, hidden} {
		nd, _ := n.Node(id)
		if nd.Responsibility() != 0 {
			t.Fatalf("node %s: expected zero responsibility, got %f", nd.Role(), nd.Responsibility())
		}
	}
	for i, cid := range links {
		c, _ := n.Connection(cid)
		changed := c.Weight != weights[i]
		if changed != (i == len(links)-1) {
			t.Fatalf("link %d: weight %f -> %f", i, weights[i], c.Weight)
		}
	}
}

func TestExtendedTraceCoversEveryGatedTarget(t *testing.T) {
	b, err := NewBuilder(rand.New(rand.NewSource(8)))
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	x := b.Node(RoleInput)
	g := b.Node(RoleHidden)
	o1 := b.Node(RoleOutput)
	o2 := b.Node(RoleOutput)
	if _, err := b.Connect(x, g, nil); err != nil {
		t.Fatalf("connect: %v", err)
	}
	xo1, _ := b.Connect(x, o1, nil)
	xo2, _ := b.Connect(x, o2, nil)
	if err := b.Gate(g, xo1); err != nil {
		t.Fatalf("gate: %v", err)
	}
	if err := b.Gate(g, xo2); err != nil {
		t.Fatalf("gate: %v", err)
	}
	n, err := b.Construct(x, g, o1, o2)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if _, err := n.Activate([]float64{1}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	xgID, _ := n.ConnectionBetween(x, g)
	xg, _ := n.Connection(xgID)
	gate, _ := n.Node(g)
	for _, pair := range []struct {
		target NodeID
		conn   ConnID
	}{{o1, xo1}, {o2, xo2}} {
		c, _ := n.Connection(pair.conn)
		got, ok := xg.ExtendedTrace(pair.target)
		if !ok {
			t.Fatalf("expected a trace for node %d", pair.target)
		}
		want := gate.Derivative() * xg.Eligibility() * c.Weight
		if math.Abs(got-want) > 1e-12 {
			t.Fatalf("trace for node %d: want %f got %f", pair.target, want, got)
		}
	}
}

func TestActivateNoTraceLeavesTracesUntouched(t *testing.T) {
	n, _ := newTestNetwork(t, 2, 1, 9)
	if _, err := n.ActivateNoTrace([]float64{1, 1}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	for _, c := range n.Connections() {
		if c.Eligibility() != 0 {
			t.Fatalf("expected zero eligibility, got %f", c.Eligibility())
		}
	}
	if _, err := n.Activate([]float64{1, 2, 3}); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected size mismatch, got %v", err)
	}
}

func TestActivateTrainingAppliesDropout(t *testing.T) {
	n, rng := newTestNetwork(t, 2, 1, 10)
	for i := 0; i < 4; i++ {
		if err := n.Mutate(rng, DefaultMutation(AddNode)); err != nil {
			t.Fatalf("add node: %v", err)
		}
	}
	n.Dropout = 0.5
	if _, err := n.ActivateTraining([]float64{1, 1}, nil); !errors.Is(err, ErrNoRandomSource) {
		t.Fatalf("expected missing random source, got %v", err)
	}
	dropped := 0
	for i := 0; i < 20; i++ {
		if _, err := n.ActivateTraining([]float64{1, 1}, rng); err != nil {
			t.Fatalf("activate: %v", err)
		}
		for _, nd := range n.Nodes() {
			if nd.Role() == RoleHidden && nd.Mask == 0 {
				dropped++
			}
		}
	}
	if dropped == 0 {
		t.Fatal("expected some hidden nodes to be dropped")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	n, rng := newTestNetwork(t, 2, 2, 11)
	n.SetScore(3)
	cp := n.Clone()
	if err := cp.Mutate(rng, DefaultMutation(AddNode)); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	cp.Connections()[0].Weight = 42
	if n.NodeCount() != 4 {
		t.Fatalf("expected original to keep 4 nodes, got %d", n.NodeCount())
	}
	for _, c := range n.Connections() {
		if c.Weight == 42 {
			t.Fatal("clone shares connections with original")
		}
	}
	if s, ok := cp.Score(); !ok || s != 3 {
		t.Fatalf("expected cloned score 3, got %f (%v)", s, ok)
	}
	if err := n.Validate(); err != nil {
		t.Fatalf("validate original: %v", err)
	}
	if err := cp.Validate(); err != nil {
		t.Fatalf("validate clone: %v", err)
	}
}

func TestClearResetsTransientState(t *testing.T) {
	n, _ := newTestNetwork(t, 2, 1, 12)
	// the output gates one of its own inputs, so its gain lags a step
	c0, _ := n.ConnectionBetween(n.NodeAt(0).ID(), n.NodeAt(2).ID())
	if err := n.Gate(n.NodeAt(2).ID(), c0); err != nil {
		t.Fatalf("gate: %v", err)
	}
	fresh, err := FromRecord(n.ToRecord())
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := n.Activate([]float64{1, 0}); err != nil {
			t.Fatalf("activate: %v", err)
		}
	}
	n.Clear()
	for _, nd := range n.Nodes() {
		if nd.Activation() != 0 || nd.State() != 0 {
			t.Fatalf("node %d not cleared", nd.ID())
		}
	}
	if c, _ := n.Connection(c0); c.Gain() != 1 {
		t.Fatalf("expected cleared gain 1, got %f", c.Gain())
	}
	for step := 0; step < 3; step++ {
		a, _ := n.Activate([]float64{0.3, 0.7})
		b, _ := fresh.Activate([]float64{0.3, 0.7})
		if a[0] != b[0] {
			t.Fatalf("step %d: expected cleared network to match fresh copy: %f vs %f", step, a[0], b[0])
		}
	}
}
