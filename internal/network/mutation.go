package network

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strings"

	"gatenet/internal/nn"
)

var (
	ErrNoMutationTarget = errors.New("nothing to mutate")
	ErrUnknownMutation  = errors.New("unknown mutation")
)

type MutationKind uint8

const (
	AddNode MutationKind = iota
	SubNode
	AddConn
	SubConn
	ModWeight
	ModBias
	ModActivation
	AddSelfConn
	SubSelfConn
	AddGate
	SubGate
	AddBackConn
	SubBackConn
	SwapNodes
	mutationKindCount
)

var mutationNames = [mutationKindCount]string{
	AddNode:       "add_node",
	SubNode:       "sub_node",
	AddConn:       "add_conn",
	SubConn:       "sub_conn",
	ModWeight:     "mod_weight",
	ModBias:       "mod_bias",
	ModActivation: "mod_activation",
	AddSelfConn:   "add_self_conn",
	SubSelfConn:   "sub_self_conn",
	AddGate:       "add_gate",
	SubGate:       "sub_gate",
	AddBackConn:   "add_back_conn",
	SubBackConn:   "sub_back_conn",
	SwapNodes:     "swap_nodes",
}

func (k MutationKind) String() string {
	if k >= mutationKindCount {
		return fmt.Sprintf("mutation(%d)", uint8(k))
	}
	return mutationNames[k]
}

func ParseMutationKind(name string) (MutationKind, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, n := range mutationNames {
		if n == key {
			return MutationKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownMutation, name)
}

// Mutation is a structural or parametric edit together with its parameters.
// Min and Max bound ModWeight and ModBias perturbations. MutateOutput lets
// ModActivation and SwapNodes touch output nodes. Allowed is the activation
// pool for ModActivation and for new nodes created by AddNode. KeepGates
// makes SubNode hand the gaters of removed connections to new ones.
type Mutation struct {
	Kind         MutationKind
	Min          float64
	Max          float64
	MutateOutput bool
	Allowed      []nn.Activation
	KeepGates    bool
}

func (m Mutation) String() string { return m.Kind.String() }

// DefaultMutation returns the stock parameters for a kind.
func DefaultMutation(kind MutationKind) Mutation {
	m := Mutation{Kind: kind}
	switch kind {
	case ModWeight, ModBias:
		m.Min, m.Max = -1, 1
	case ModActivation:
		m.MutateOutput = true
		m.Allowed = nn.StandardActivations()
	case SwapNodes:
		m.MutateOutput = true
	case SubNode:
		m.KeepGates = true
	}
	return m
}

// MutationsAll lists every mutation with default parameters.
func MutationsAll() []Mutation {
	out := make([]Mutation, 0, mutationKindCount)
	for k := MutationKind(0); k < mutationKindCount; k++ {
		out = append(out, DefaultMutation(k))
	}
	return out
}

// MutationsFFW lists the mutations that never introduce recurrence or gates.
func MutationsFFW() []Mutation {
	kinds := []MutationKind{AddNode, SubNode, AddConn, SubConn, ModWeight, ModBias, ModActivation, SwapNodes}
	out := make([]Mutation, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, DefaultMutation(k))
	}
	return out
}

// ParseMutationSet resolves "all", "ffw" or a comma separated list of kinds.
func ParseMutationSet(spec string) ([]Mutation, error) {
	switch strings.ToLower(strings.TrimSpace(spec)) {
	case "", "ffw":
		return MutationsFFW(), nil
	case "all":
		return MutationsAll(), nil
	}
	var out []Mutation
	for _, part := range strings.Split(spec, ",") {
		kind, err := ParseMutationKind(part)
		if err != nil {
			return nil, err
		}
		out = append(out, DefaultMutation(kind))
	}
	return out, nil
}

func noTarget(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNoMutationTarget}, args...)...)
}

// Mutate applies m to one randomly chosen target. When no target satisfies
// the operator's precondition the network is left unchanged and an error
// wrapping ErrNoMutationTarget is returned.
func (n *Network) Mutate(rng *rand.Rand, m Mutation) error {
	if rng == nil {
		return ErrNoRandomSource
	}
	var err error
	switch m.Kind {
	case AddNode:
		err = n.mutateAddNode(rng, m)
	case SubNode:
		err = n.mutateSubNode(rng, m)
	case AddConn:
		err = n.mutateAddConn(rng)
	case SubConn:
		err = n.mutateSubConn(rng, true)
	case ModWeight:
		err = n.mutateModWeight(rng, m)
	case ModBias:
		err = n.mutateModBias(rng, m)
	case ModActivation:
		err = n.mutateModActivation(rng, m)
	case AddSelfConn:
		err = n.mutateAddSelfConn(rng)
	case SubSelfConn:
		err = n.mutateSubSelfConn(rng)
	case AddGate:
		err = n.mutateAddGate(rng)
	case SubGate:
		err = n.mutateSubGate(rng)
	case AddBackConn:
		err = n.mutateAddBackConn(rng)
	case SubBackConn:
		err = n.mutateSubConn(rng, false)
	case SwapNodes:
		err = n.mutateSwapNodes(rng, m)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMutation, uint8(m.Kind))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", m.Kind, err)
	}
	return nil
}

func (n *Network) mutateAddNode(rng *rand.Rand, m Mutation) error {
	if len(n.connections) == 0 {
		return noTarget("no connections to split")
	}
	old := n.conns[n.connections[rng.Intn(len(n.connections))]]
	from, to, gater := old.from, old.to, old.gater
	n.removeConnection(old.id)

	nd := n.addNode(RoleHidden, randomBias(rng))
	allowed := m.Allowed
	if len(allowed) == 0 {
		allowed = nn.StandardActivations()
	}
	mutateSquash(nd, allowed, rng)
	n.insertNode(min(n.position[to], len(n.order)-n.output), nd)

	first, err := n.Connect(from, nd.id, randomWeight(rng))
	if err != nil {
		return err
	}
	second, err := n.Connect(nd.id, to, randomWeight(rng))
	if err != nil {
		return err
	}
	if gater != NoNode {
		target := second
		if rng.Float64() >= 0.5 {
			target = first
		}
		return n.Gate(gater, target)
	}
	return nil
}

func (n *Network) mutateSubNode(rng *rand.Rand, m Mutation) error {
	var candidates []NodeID
	for _, id := range n.order {
		if r := n.nodes[id].role; r == RoleHidden || r == RoleConstant {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return noTarget("no hidden nodes to remove")
	}
	return n.Remove(candidates[rng.Intn(len(candidates))], m.KeepGates, rng)
}

func (n *Network) mutateAddConn(rng *rand.Rand) error {
	var pairs [][2]NodeID
	for i := 0; i < len(n.order)-n.output; i++ {
		for j := max(i+1, n.input); j < len(n.order); j++ {
			if !n.projecting(n.order[i], n.order[j]) {
				pairs = append(pairs, [2]NodeID{n.order[i], n.order[j]})
			}
		}
	}
	if len(pairs) == 0 {
		return noTarget("no feed-forward connections left to add")
	}
	p := pairs[rng.Intn(len(pairs))]
	_, err := n.Connect(p[0], p[1], randomWeight(rng))
	return err
}

func (n *Network) mutateAddBackConn(rng *rand.Rand) error {
	var pairs [][2]NodeID
	for i := n.input; i < len(n.order); i++ {
		for j := n.input; j < i; j++ {
			if !n.projecting(n.order[i], n.order[j]) {
				pairs = append(pairs, [2]NodeID{n.order[i], n.order[j]})
			}
		}
	}
	if len(pairs) == 0 {
		return noTarget("no backward connections left to add")
	}
	p := pairs[rng.Intn(len(pairs))]
	_, err := n.Connect(p[0], p[1], randomWeight(rng))
	return err
}

// mutateSubConn removes a connection running forward (or backward) in
// activation order whose endpoints both keep another connection.
func (n *Network) mutateSubConn(rng *rand.Rand, forward bool) error {
	var candidates []ConnID
	for _, cid := range n.connections {
		c := n.conns[cid]
		if len(n.nodes[c.from].out) < 2 || len(n.nodes[c.to].in) < 2 {
			continue
		}
		if (n.position[c.to] > n.position[c.from]) == forward {
			candidates = append(candidates, cid)
		}
	}
	if len(candidates) == 0 {
		return noTarget("no removable connections")
	}
	c := n.conns[candidates[rng.Intn(len(candidates))]]
	return n.Disconnect(c.from, c.to)
}

func (n *Network) mutateModWeight(rng *rand.Rand, m Mutation) error {
	candidates := append(slices.Clone(n.connections), n.selfConns...)
	if len(candidates) == 0 {
		return noTarget("no connections")
	}
	c := n.conns[candidates[rng.Intn(len(candidates))]]
	c.Weight += uniform(rng, m.Min, m.Max)
	return nil
}

func (n *Network) mutateModBias(rng *rand.Rand, m Mutation) error {
	if len(n.order) == n.input {
		return noTarget("no non-input nodes")
	}
	nd := n.nodes[n.order[n.input+rng.Intn(len(n.order)-n.input)]]
	nd.Bias += uniform(rng, m.Min, m.Max)
	return nil
}

func (n *Network) mutateModActivation(rng *rand.Rand, m Mutation) error {
	end := len(n.order)
	if !m.MutateOutput {
		end -= n.output
	}
	if end <= n.input {
		return noTarget("no nodes allow activation mutation")
	}
	nd := n.nodes[n.order[n.input+rng.Intn(end-n.input)]]
	allowed := m.Allowed
	if len(allowed) == 0 {
		allowed = nn.StandardActivations()
	}
	if !mutateSquash(nd, allowed, rng) {
		return noTarget("no alternative activation for node %d", nd.id)
	}
	return nil
}

// mutateSquash gives nd an activation from allowed that differs from its
// current one.
func mutateSquash(nd *Node, allowed []nn.Activation, rng *rand.Rand) bool {
	switch len(allowed) {
	case 0:
		return false
	case 1:
		if nd.Squash == allowed[0] {
			return false
		}
		nd.Squash = allowed[0]
		return true
	}
	idx := slices.Index(allowed, nd.Squash)
	nd.Squash = allowed[(idx+rng.Intn(len(allowed)-1)+1)%len(allowed)]
	return true
}

func (n *Network) mutateAddSelfConn(rng *rand.Rand) error {
	var candidates []NodeID
	for _, id := range n.order[n.input:] {
		if n.conns[n.nodes[id].self].Weight == 0 {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return noTarget("no self-connections left to add")
	}
	id := candidates[rng.Intn(len(candidates))]
	_, err := n.Connect(id, id, 1)
	return err
}

func (n *Network) mutateSubSelfConn(rng *rand.Rand) error {
	if len(n.selfConns) == 0 {
		return noTarget("no self-connections to remove")
	}
	c := n.conns[n.selfConns[rng.Intn(len(n.selfConns))]]
	return n.Disconnect(c.from, c.to)
}

func (n *Network) mutateAddGate(rng *rand.Rand) error {
	var candidates []ConnID
	for _, cid := range slices.Concat(n.connections, n.selfConns) {
		if !n.conns[cid].Gated() {
			candidates = append(candidates, cid)
		}
	}
	if len(candidates) == 0 {
		return noTarget("no ungated connections")
	}
	gater := n.order[rng.Intn(len(n.order))]
	return n.Gate(gater, candidates[rng.Intn(len(candidates))])
}

func (n *Network) mutateSubGate(rng *rand.Rand) error {
	if len(n.gates) == 0 {
		return noTarget("no gated connections")
	}
	return n.Ungate(n.gates[rng.Intn(len(n.gates))])
}

func (n *Network) mutateSwapNodes(rng *rand.Rand, m Mutation) error {
	end := len(n.order)
	if !m.MutateOutput {
		end -= n.output
	}
	count := end - n.input
	if count < 2 {
		return noTarget("fewer than two swappable nodes")
	}
	i := rng.Intn(count)
	j := rng.Intn(count - 1)
	if j >= i {
		j++
	}
	a, b := n.nodes[n.order[n.input+i]], n.nodes[n.order[n.input+j]]
	a.Bias, b.Bias = b.Bias, a.Bias
	a.Squash, b.Squash = b.Squash, a.Squash
	return nil
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return rng.Float64()*(hi-lo) + lo
}
