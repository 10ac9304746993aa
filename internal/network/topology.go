package network

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

var ErrNotFeedForward = errors.New("network is not feed-forward")

// Summary counts the structural elements of a network.
type Summary struct {
	Nodes           int  `json:"nodes"`
	Hidden          int  `json:"hidden"`
	Connections     int  `json:"connections"`
	SelfConnections int  `json:"self_connections"`
	Gates           int  `json:"gates"`
	FeedForward     bool `json:"feed_forward"`
}

func (n *Network) Summary() Summary {
	return Summary{
		Nodes:           len(n.order),
		Hidden:          len(n.order) - n.input - n.output,
		Connections:     len(n.connections),
		SelfConnections: len(n.selfConns),
		Gates:           len(n.gates),
		FeedForward:     n.IsFeedForward(),
	}
}

// Complexity is the node, connection and gate count used as a growth penalty.
func (n *Network) Complexity() int {
	return len(n.order) + len(n.connections) + len(n.gates)
}

// dependencyGraph has an edge for every non-self connection and an edge from
// each gater to the target of the connection it gates.
func (n *Network) dependencyGraph() *simple.DirectedGraph {
	g := simple.NewDirectedGraph()
	for _, id := range n.order {
		g.AddNode(simple.Node(id))
	}
	for _, cid := range n.connections {
		c := n.conns[cid]
		g.SetEdge(g.NewEdge(simple.Node(c.from), simple.Node(c.to)))
	}
	for _, cid := range n.gates {
		c := n.conns[cid]
		if c.gater != c.to && !g.HasEdgeFromTo(int64(c.gater), int64(c.to)) {
			g.SetEdge(g.NewEdge(simple.Node(c.gater), simple.Node(c.to)))
		}
	}
	return g
}

// TopologicalOrder sorts the nodes by their dependencies, breaking ties by
// activation-order position. It fails when the connections form a cycle.
func (n *Network) TopologicalOrder() ([]NodeID, error) {
	sorted, err := topo.SortStabilized(n.dependencyGraph(), func(nodes []graph.Node) {
		sort.Slice(nodes, func(i, j int) bool {
			return n.position[nodes[i].ID()] < n.position[nodes[j].ID()]
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFeedForward, err)
	}
	out := make([]NodeID, 0, len(sorted))
	for _, nd := range sorted {
		out = append(out, NodeID(nd.ID()))
	}
	return out, nil
}

// IsFeedForward reports whether a single pass in activation order reads only
// values computed earlier in the same pass: no active self-connections, every
// connection runs forward and every gater precedes the node it gates.
func (n *Network) IsFeedForward() bool {
	if len(n.selfConns) > 0 {
		return false
	}
	for _, cid := range n.connections {
		c := n.conns[cid]
		if n.position[c.from] >= n.position[c.to] {
			return false
		}
	}
	for _, cid := range n.gates {
		c := n.conns[cid]
		if n.position[c.gater] >= n.position[c.to] {
			return false
		}
	}
	return true
}

// EvaluateFeedForward computes output activations from scratch in
// topological order, without touching the network's transient state.
func (n *Network) EvaluateFeedForward(input []float64) ([]float64, error) {
	if len(input) != n.input {
		return nil, fmt.Errorf("%w: got %d inputs want %d", ErrSizeMismatch, len(input), n.input)
	}
	if len(n.selfConns) > 0 {
		return nil, fmt.Errorf("%w: %d active self-connections", ErrNotFeedForward, len(n.selfConns))
	}
	order, err := n.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	act := make(map[NodeID]float64, len(order))
	for _, id := range order {
		nd := n.nodes[id]
		if nd.role == RoleInput {
			act[id] = input[n.position[id]]
			continue
		}
		state := nd.Bias
		for _, cid := range nd.in {
			c := n.conns[cid]
			gain := 1.0
			if c.Gated() {
				gain = act[c.gater]
			}
			state += act[c.from] * c.Weight * gain
		}
		act[id] = nd.Squash.Apply(state) * nd.Mask
	}
	out := make([]float64, 0, n.output)
	for _, id := range n.order[len(n.order)-n.output:] {
		out = append(out, act[id])
	}
	return out, nil
}

// Validate checks the structural invariants of the network.
func (n *Network) Validate() error {
	if len(n.order) < n.input+n.output {
		return fmt.Errorf("%w: %d nodes for %d inputs and %d outputs", ErrInvariant, len(n.order), n.input, n.output)
	}
	live := 0
	for id, nd := range n.nodes {
		if nd == nil {
			continue
		}
		live++
		pos := n.position[id]
		if pos < 0 || pos >= len(n.order) || n.order[pos] != NodeID(id) {
			return fmt.Errorf("%w: node %d has stale position %d", ErrInvariant, id, pos)
		}
		wantInput := pos < n.input
		wantOutput := pos >= len(n.order)-n.output
		if (nd.role == RoleInput) != wantInput || (nd.role == RoleOutput) != wantOutput {
			return fmt.Errorf("%w: node %d role %s at position %d", ErrInvariant, id, nd.role, pos)
		}
		self := n.conn(nd.self)
		if self == nil || self.from != nd.id || self.to != nd.id {
			return fmt.Errorf("%w: node %d self-connection", ErrInvariant, id)
		}
		for _, cid := range nd.in {
			if c := n.conn(cid); c == nil || c.to != nd.id || c.from == nd.id {
				return fmt.Errorf("%w: node %d incoming %d", ErrInvariant, id, cid)
			}
		}
		for _, cid := range nd.out {
			if c := n.conn(cid); c == nil || c.from != nd.id || c.to == nd.id {
				return fmt.Errorf("%w: node %d outgoing %d", ErrInvariant, id, cid)
			}
		}
		for _, cid := range nd.gated {
			if c := n.conn(cid); c == nil || c.gater != nd.id {
				return fmt.Errorf("%w: node %d gated %d", ErrInvariant, id, cid)
			}
		}
	}
	if live != len(n.order) {
		return fmt.Errorf("%w: %d live nodes but %d ordered", ErrInvariant, live, len(n.order))
	}

	pairs := make(map[[2]NodeID]bool, len(n.connections))
	for _, cid := range n.connections {
		c := n.conn(cid)
		if c == nil || n.node(c.from) == nil || n.node(c.to) == nil || c.from == c.to {
			return fmt.Errorf("%w: connection %d endpoints", ErrInvariant, cid)
		}
		key := [2]NodeID{c.from, c.to}
		if pairs[key] {
			return fmt.Errorf("%w: duplicate connection %d->%d", ErrInvariant, c.from, c.to)
		}
		pairs[key] = true
	}
	for _, cid := range n.selfConns {
		c := n.conn(cid)
		if c == nil || c.from != c.to || c.Weight == 0 || n.nodes[c.from].self != cid {
			return fmt.Errorf("%w: self-connection %d", ErrInvariant, cid)
		}
	}
	gated := 0
	for _, c := range n.conns {
		if c == nil {
			continue
		}
		if c.Gated() {
			gated++
			if n.node(c.gater) == nil {
				return fmt.Errorf("%w: connection %d gated by missing node %d", ErrInvariant, c.id, c.gater)
			}
		} else if c.gain != 1 {
			return fmt.Errorf("%w: ungated connection %d has gain %f", ErrInvariant, c.id, c.gain)
		}
		for _, e := range c.xtrace {
			if n.node(e.node) == nil {
				return fmt.Errorf("%w: connection %d traces missing node %d", ErrInvariant, c.id, e.node)
			}
		}
	}
	if gated != len(n.gates) {
		return fmt.Errorf("%w: %d gated connections but %d gates", ErrInvariant, gated, len(n.gates))
	}
	return nil
}
