package network

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"

	"github.com/campoy/unique"

	"gatenet/internal/nn"
)

var (
	ErrNoInputOutput = errors.New("given nodes have no clear input/output node")
	ErrBuilderUsed   = errors.New("builder already constructed a network")
)

type ConnectPattern uint8

const (
	AllToAll ConnectPattern = iota
	AllToElse
	OneToOne
)

func (p ConnectPattern) String() string {
	switch p {
	case AllToElse:
		return "all_to_else"
	case OneToOne:
		return "one_to_one"
	default:
		return "all_to_all"
	}
}

type GateSide uint8

const (
	GateInput GateSide = iota
	GateOutput
	GateSelf
)

func (s GateSide) String() string {
	switch s {
	case GateOutput:
		return "output"
	case GateSelf:
		return "self"
	default:
		return "input"
	}
}

// Builder assembles a network node by node and group by group. Construct
// hands the result over; the builder cannot be used afterwards.
type Builder struct {
	net   *Network
	rng   *rand.Rand
	built bool
}

func NewBuilder(rng *rand.Rand) (*Builder, error) {
	if rng == nil {
		return nil, ErrNoRandomSource
	}
	return &Builder{net: newEmpty(0, 0), rng: rng}, nil
}

// Node creates a node. Non-input nodes start with a small random bias.
func (b *Builder) Node(role Role) NodeID {
	bias := 0.0
	if role != RoleInput {
		bias = randomBias(b.rng)
	}
	return b.net.addNode(role, bias).id
}

// Group creates size hidden nodes.
func (b *Builder) Group(size int) *Group {
	g := &Group{b: b}
	for i := 0; i < size; i++ {
		g.nodes = append(g.nodes, b.Node(RoleHidden))
	}
	return g
}

// Connect links two nodes. A nil weight draws a small random one.
func (b *Builder) Connect(from, to NodeID, weight *float64) (ConnID, error) {
	if b.built {
		return NoConn, ErrBuilderUsed
	}
	return b.net.Connect(from, to, b.weight(from, to, weight))
}

func (b *Builder) Gate(gater NodeID, cid ConnID) error {
	if b.built {
		return ErrBuilderUsed
	}
	return b.net.Gate(gater, cid)
}

// NodeRef exposes a node under construction so its parameters can be set.
func (b *Builder) NodeRef(id NodeID) (*Node, bool) {
	return b.net.Node(id)
}

func (b *Builder) SetRole(id NodeID, role Role) error {
	nd := b.net.node(id)
	if nd == nil {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	nd.role = role
	return nil
}

func (b *Builder) weight(from, to NodeID, weight *float64) float64 {
	switch {
	case weight != nil:
		return *weight
	case from == to:
		return 1
	default:
		return randomWeight(b.rng)
	}
}

// Part contributes nodes to Construct: a *Group or a single NodeID.
type Part interface {
	members() []NodeID
}

func (id NodeID) members() []NodeID { return []NodeID{id} }

// Group is an ordered set of builder nodes handled together.
type Group struct {
	b     *Builder
	nodes []NodeID
}

func (g *Group) members() []NodeID { return g.nodes }

func (g *Group) Nodes() []NodeID { return slices.Clone(g.nodes) }

func (g *Group) Len() int { return len(g.nodes) }

// Connect links this group to target with the given pattern. A nil weight
// draws a random weight per connection; self-connections default to 1.
func (g *Group) Connect(target *Group, pattern ConnectPattern, weight *float64) ([]ConnID, error) {
	var out []ConnID
	switch pattern {
	case AllToAll, AllToElse:
		for _, from := range g.nodes {
			for _, to := range target.nodes {
				if pattern == AllToElse && from == to {
					continue
				}
				cid, err := g.b.Connect(from, to, weight)
				if err != nil {
					return out, err
				}
				out = append(out, cid)
			}
		}
	case OneToOne:
		if len(g.nodes) != len(target.nodes) {
			return nil, fmt.Errorf("%w: one-to-one between groups of %d and %d", ErrSizeMismatch, len(g.nodes), len(target.nodes))
		}
		for i, from := range g.nodes {
			cid, err := g.b.Connect(from, target.nodes[i], weight)
			if err != nil {
				return out, err
			}
			out = append(out, cid)
		}
	default:
		return nil, fmt.Errorf("%w: connect pattern %d", ErrInvalidOptions, pattern)
	}
	return out, nil
}

// ConnectNode links every node of the group to target.
func (g *Group) ConnectNode(target NodeID, weight *float64) ([]ConnID, error) {
	out := make([]ConnID, 0, len(g.nodes))
	for _, from := range g.nodes {
		cid, err := g.b.Connect(from, target, weight)
		if err != nil {
			return out, err
		}
		out = append(out, cid)
	}
	return out, nil
}

// Disconnect removes the connections from this group to target, and the
// reverse ones too when twoSided is set.
func (g *Group) Disconnect(target *Group, twoSided bool) error {
	n := g.b.net
	for _, from := range g.nodes {
		for _, to := range target.nodes {
			if _, ok := n.ConnectionBetween(from, to); ok {
				if err := n.Disconnect(from, to); err != nil {
					return err
				}
			}
			if twoSided && from != to {
				if _, ok := n.ConnectionBetween(to, from); ok {
					if err := n.Disconnect(to, from); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// Gate makes the group's nodes gate conns. Endpoints on the chosen side are
// deduplicated in first-occurrence order and the i-th endpoint is served by node i modulo the group
// size: GateInput gates the incoming connections of each target node,
// GateOutput the outgoing connections of each source node and GateSelf the
// self-connection of each source node.
func (g *Group) Gate(conns []ConnID, side GateSide) error {
	if len(g.nodes) == 0 {
		return fmt.Errorf("%w: empty gating group", ErrInvalidOptions)
	}
	n := g.b.net
	wanted := make(map[ConnID]bool, len(conns))
	var sources, targets []NodeID
	for _, cid := range conns {
		c := n.conn(cid)
		if c == nil {
			return fmt.Errorf("%w: %d", ErrConnectionNotFound, cid)
		}
		wanted[cid] = true
		sources = append(sources, c.from)
		targets = append(targets, c.to)
	}
	unique.Slice(&sources, firstSeen(sources))
	unique.Slice(&targets, firstSeen(targets))

	switch side {
	case GateInput:
		for i, id := range targets {
			gater := g.nodes[i%len(g.nodes)]
			for _, cid := range n.nodes[id].in {
				if wanted[cid] {
					if err := g.b.Gate(gater, cid); err != nil {
						return err
					}
				}
			}
			if self := n.nodes[id].self; wanted[self] {
				if err := g.b.Gate(gater, self); err != nil {
					return err
				}
			}
		}
	case GateOutput:
		for i, id := range sources {
			gater := g.nodes[i%len(g.nodes)]
			for _, cid := range n.nodes[id].out {
				if wanted[cid] {
					if err := g.b.Gate(gater, cid); err != nil {
						return err
					}
				}
			}
		}
	case GateSelf:
		for i, id := range sources {
			gater := g.nodes[i%len(g.nodes)]
			if self := n.nodes[id].self; wanted[self] {
				if err := g.b.Gate(gater, self); err != nil {
					return err
				}
			}
		}
	default:
		return fmt.Errorf("%w: gate side %d", ErrInvalidOptions, side)
	}
	return nil
}

// firstSeen orders list by the first position of each id, so deduplicating
// with it keeps endpoints in the order the connections were given.
func firstSeen(list []NodeID) func(i, j int) bool {
	rank := make(map[NodeID]int, len(list))
	for i, id := range list {
		if _, ok := rank[id]; !ok {
			rank[id] = i
		}
	}
	return func(i, j int) bool { return rank[list[i]] < rank[list[j]] }
}

func (g *Group) SetBias(bias float64) {
	for _, id := range g.nodes {
		g.b.net.nodes[id].Bias = bias
	}
}

func (g *Group) SetSquash(squash nn.Activation) {
	for _, id := range g.nodes {
		g.b.net.nodes[id].Squash = squash
	}
}

func (g *Group) SetRole(role Role) {
	for _, id := range g.nodes {
		g.b.net.nodes[id].role = role
	}
}

// Construct assembles the listed parts into a network. Nodes explicitly
// marked output, or with no outgoing or gated connections, become outputs;
// otherwise nodes marked input, or with no incoming connections, become
// inputs. Inputs are moved to the front and outputs to the back, each block
// keeping the listed order.
func (b *Builder) Construct(parts ...Part) (*Network, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	n := b.net
	listed := make(map[NodeID]bool)
	var ids []NodeID
	for _, p := range parts {
		for _, id := range p.members() {
			if n.node(id) == nil {
				return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
			}
			if !listed[id] {
				listed[id] = true
				ids = append(ids, id)
			}
		}
	}
	for _, cid := range slices.Concat(n.connections, n.gates) {
		c := n.conns[cid]
		if !listed[c.from] || !listed[c.to] || (c.Gated() && !listed[c.gater]) {
			return nil, fmt.Errorf("%w: connection %d->%d touches an unlisted node", ErrInvalidOptions, c.from, c.to)
		}
	}

	var inputs, hidden, outputs []NodeID
	for _, id := range ids {
		nd := n.nodes[id]
		switch {
		case nd.role == RoleOutput || len(nd.out)+len(nd.gated) == 0:
			nd.role = RoleOutput
			outputs = append(outputs, id)
		case nd.role == RoleInput || len(nd.in) == 0:
			nd.role = RoleInput
			nd.Bias = 0
			inputs = append(inputs, id)
		default:
			hidden = append(hidden, id)
		}
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, ErrNoInputOutput
	}

	for id, nd := range n.nodes {
		if nd != nil && !listed[NodeID(id)] {
			n.selfConns = removeConnID(n.selfConns, nd.self)
			n.conns[nd.self] = nil
			n.nodes[id] = nil
		}
	}
	n.input, n.output = len(inputs), len(outputs)
	n.order = slices.Concat(inputs, hidden, outputs)
	n.reindex()
	b.built = true
	return n, nil
}
