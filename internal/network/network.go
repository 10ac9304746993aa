package network

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"

	"gatenet/internal/nn"
)

var (
	ErrInvalidSize         = errors.New("invalid network size")
	ErrSizeMismatch        = errors.New("size mismatch")
	ErrInvalidOptions      = errors.New("invalid options")
	ErrInvalidRecord       = errors.New("invalid network record")
	ErrDuplicateConnection = errors.New("connection already exists")
	ErrNotGated            = errors.New("connection is not gated")
	ErrAlreadyGated        = errors.New("connection is already gated")
	ErrNodeNotFound        = errors.New("node not found")
	ErrConnectionNotFound  = errors.New("connection not found")
	ErrBoundaryNode        = errors.New("input and output nodes cannot be removed")
	ErrNoRandomSource      = errors.New("random source is required")
	ErrInvariant           = errors.New("network invariant violated")
)

// NoConn marks an absent connection handle.
const NoConn ConnID = -1

const defaultRate = 0.3

// Network is a directed graph of nodes kept in activation order: input nodes
// first, output nodes last. Nodes and connections live in arenas addressed by
// NodeID and ConnID; removed slots are left nil.
type Network struct {
	Dropout float64

	input  int
	output int

	score  float64
	scored bool

	nodes    []*Node
	conns    []*Connection
	order    []NodeID
	position []int

	connections []ConnID
	selfConns   []ConnID
	gates       []ConnID
}

// New creates a network with every input connected directly to every output.
func New(input, output int, rng *rand.Rand) (*Network, error) {
	if input <= 0 || output <= 0 {
		return nil, fmt.Errorf("%w: input=%d output=%d", ErrInvalidSize, input, output)
	}
	if rng == nil {
		return nil, ErrNoRandomSource
	}
	n := newEmpty(input, output)
	for i := 0; i < input; i++ {
		n.appendNode(n.addNode(RoleInput, 0))
	}
	for i := 0; i < output; i++ {
		n.appendNode(n.addNode(RoleOutput, randomBias(rng)))
	}
	for i := 0; i < input; i++ {
		for j := input; j < input+output; j++ {
			if _, err := n.Connect(n.order[i], n.order[j], randomWeight(rng)); err != nil {
				return nil, err
			}
		}
	}
	return n, nil
}

func newEmpty(input, output int) *Network {
	return &Network{input: input, output: output}
}

func randomWeight(rng *rand.Rand) float64 {
	return rng.Float64()*0.2 - 0.1
}

func randomBias(rng *rand.Rand) float64 {
	return rng.Float64()*0.2 - 0.1
}

func (n *Network) Input() int  { return n.input }
func (n *Network) Output() int { return n.output }

// Score returns the fitness assigned by an evolution run and whether one is set.
func (n *Network) Score() (float64, bool) { return n.score, n.scored }

func (n *Network) SetScore(v float64) {
	n.score = v
	n.scored = true
}

func (n *Network) ClearScore() {
	n.score = 0
	n.scored = false
}

func (n *Network) addNode(role Role, bias float64) *Node {
	id := NodeID(len(n.nodes))
	nd := &Node{Bias: bias, Squash: nn.Logistic, Mask: 1, id: id, role: role}
	nd.self = n.newConn(id, id, 0)
	n.nodes = append(n.nodes, nd)
	n.position = append(n.position, -1)
	return nd
}

func (n *Network) newConn(from, to NodeID, weight float64) ConnID {
	id := ConnID(len(n.conns))
	n.conns = append(n.conns, newConnection(id, from, to, weight))
	return id
}

func (n *Network) appendNode(nd *Node) {
	n.position[nd.id] = len(n.order)
	n.order = append(n.order, nd.id)
}

func (n *Network) insertNode(pos int, nd *Node) {
	n.order = slices.Insert(n.order, pos, nd.id)
	n.reindex()
}

func (n *Network) reindex() {
	for i, id := range n.order {
		n.position[id] = i
	}
}

func (n *Network) node(id NodeID) *Node {
	if id < 0 || int(id) >= len(n.nodes) {
		return nil
	}
	return n.nodes[id]
}

func (n *Network) conn(id ConnID) *Connection {
	if id < 0 || int(id) >= len(n.conns) {
		return nil
	}
	return n.conns[id]
}

// Node looks up a live node by handle.
func (n *Network) Node(id NodeID) (*Node, bool) {
	nd := n.node(id)
	return nd, nd != nil
}

// Connection looks up a live connection by handle. Inactive self-connections
// are returned as well; their Weight is 0.
func (n *Network) Connection(id ConnID) (*Connection, bool) {
	c := n.conn(id)
	return c, c != nil
}

func (n *Network) NodeCount() int { return len(n.order) }

// NodeAt returns the node at an activation-order position.
func (n *Network) NodeAt(pos int) *Node {
	return n.nodes[n.order[pos]]
}

// Position returns the activation-order index of a node, or -1.
func (n *Network) Position(id NodeID) int {
	if n.node(id) == nil {
		return -1
	}
	return n.position[id]
}

// Nodes returns the live nodes in activation order.
func (n *Network) Nodes() []*Node {
	out := make([]*Node, 0, len(n.order))
	for _, id := range n.order {
		out = append(out, n.nodes[id])
	}
	return out
}

// Connections returns the non-self connections in insertion order.
func (n *Network) Connections() []*Connection { return n.collect(n.connections) }

// SelfConnections returns the active self-connections.
func (n *Network) SelfConnections() []*Connection { return n.collect(n.selfConns) }

// Gates returns the gated connections.
func (n *Network) Gates() []*Connection { return n.collect(n.gates) }

func (n *Network) collect(ids []ConnID) []*Connection {
	out := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		out = append(out, n.conns[id])
	}
	return out
}

// ConnectionBetween finds the connection from one node to another. For
// from == to it reports the self-connection only when active.
func (n *Network) ConnectionBetween(from, to NodeID) (ConnID, bool) {
	src := n.node(from)
	if src == nil {
		return NoConn, false
	}
	if from == to {
		if n.conns[src.self].Weight != 0 {
			return src.self, true
		}
		return NoConn, false
	}
	for _, cid := range src.out {
		if n.conns[cid].to == to {
			return cid, true
		}
	}
	return NoConn, false
}

func (n *Network) projecting(from, to NodeID) bool {
	src := n.node(from)
	for _, cid := range src.out {
		if n.conns[cid].to == to {
			return true
		}
	}
	return false
}

// Connect adds a connection between two nodes. Connecting a node to itself
// activates its self-connection with the given weight, or 1 when weight is 0.
func (n *Network) Connect(from, to NodeID, weight float64) (ConnID, error) {
	src, dst := n.node(from), n.node(to)
	if src == nil || dst == nil {
		return NoConn, fmt.Errorf("%w: connect %d->%d", ErrNodeNotFound, from, to)
	}
	if from == to {
		self := n.conns[src.self]
		if self.Weight != 0 {
			return src.self, fmt.Errorf("%w: self-connection of node %d", ErrDuplicateConnection, from)
		}
		if weight == 0 {
			weight = 1
		}
		self.Weight = weight
		n.selfConns = append(n.selfConns, src.self)
		return src.self, nil
	}
	if n.projecting(from, to) {
		return NoConn, fmt.Errorf("%w: %d->%d", ErrDuplicateConnection, from, to)
	}
	id := n.newConn(from, to, weight)
	src.out = append(src.out, id)
	dst.in = append(dst.in, id)
	n.connections = append(n.connections, id)
	return id, nil
}

// Disconnect removes the connection between two nodes, ungating it first.
// For from == to the self-connection is deactivated.
func (n *Network) Disconnect(from, to NodeID) error {
	src, dst := n.node(from), n.node(to)
	if src == nil || dst == nil {
		return fmt.Errorf("%w: disconnect %d->%d", ErrNodeNotFound, from, to)
	}
	if from == to {
		self := n.conns[src.self]
		if self.Weight == 0 && !self.Gated() {
			return fmt.Errorf("%w: self-connection of node %d is inactive", ErrConnectionNotFound, from)
		}
		if self.Gated() {
			n.ungate(self)
		}
		if self.Weight != 0 {
			n.selfConns = removeConnID(n.selfConns, self.id)
		}
		self.Weight = 0
		self.prevDelta = 0
		self.clearTraces()
		return nil
	}
	cid, ok := n.ConnectionBetween(from, to)
	if !ok {
		return fmt.Errorf("%w: %d->%d", ErrConnectionNotFound, from, to)
	}
	n.removeConnection(cid)
	return nil
}

func (n *Network) removeConnection(cid ConnID) {
	c := n.conns[cid]
	if c.Gated() {
		n.ungate(c)
	}
	src, dst := n.nodes[c.from], n.nodes[c.to]
	src.out = removeConnID(src.out, cid)
	dst.in = removeConnID(dst.in, cid)
	n.connections = removeConnID(n.connections, cid)
	n.conns[cid] = nil
}

// Gate makes gater control the gain of a connection.
func (n *Network) Gate(gater NodeID, cid ConnID) error {
	g := n.node(gater)
	if g == nil {
		return fmt.Errorf("%w: gater %d", ErrNodeNotFound, gater)
	}
	c := n.conn(cid)
	if c == nil || (c.from == c.to && c.Weight == 0) {
		return fmt.Errorf("%w: %d", ErrConnectionNotFound, cid)
	}
	if c.Gated() {
		return fmt.Errorf("%w: connection %d by node %d", ErrAlreadyGated, cid, c.gater)
	}
	c.gater = gater
	g.gated = append(g.gated, cid)
	n.gates = append(n.gates, cid)
	return nil
}

// Ungate detaches the gater of a connection and resets its gain to 1.
func (n *Network) Ungate(cid ConnID) error {
	c := n.conn(cid)
	if c == nil {
		return fmt.Errorf("%w: %d", ErrConnectionNotFound, cid)
	}
	if !c.Gated() {
		return fmt.Errorf("%w: %d", ErrNotGated, cid)
	}
	n.ungate(c)
	return nil
}

func (n *Network) ungate(c *Connection) {
	g := n.nodes[c.gater]
	g.gated = removeConnID(g.gated, c.id)
	n.gates = removeConnID(n.gates, c.id)
	c.gater = NoNode
	c.gain = 1
}

// Remove deletes a hidden or constant node. Its former inputs are connected to
// its former outputs where no connection exists yet, and when keepGates is set
// the gaters of its removed connections gate randomly chosen new connections.
func (n *Network) Remove(id NodeID, keepGates bool, rng *rand.Rand) error {
	nd := n.node(id)
	if nd == nil {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	if nd.role == RoleInput || nd.role == RoleOutput {
		return fmt.Errorf("%w: node %d", ErrBoundaryNode, id)
	}
	if rng == nil {
		return ErrNoRandomSource
	}

	var gaters, inputs, outputs []NodeID
	for i := len(nd.in) - 1; i >= 0; i-- {
		c := n.conns[nd.in[i]]
		if keepGates && c.Gated() && c.gater != id {
			gaters = append(gaters, c.gater)
		}
		inputs = append(inputs, c.from)
	}
	for i := len(nd.out) - 1; i >= 0; i-- {
		c := n.conns[nd.out[i]]
		if keepGates && c.Gated() && c.gater != id {
			gaters = append(gaters, c.gater)
		}
		outputs = append(outputs, c.to)
	}
	for _, from := range inputs {
		if err := n.Disconnect(from, id); err != nil {
			return err
		}
	}
	for _, to := range outputs {
		if err := n.Disconnect(id, to); err != nil {
			return err
		}
	}

	var created []ConnID
	for _, from := range inputs {
		for _, to := range outputs {
			if from == to || n.projecting(from, to) {
				continue
			}
			cid, err := n.Connect(from, to, randomWeight(rng))
			if err != nil {
				return err
			}
			created = append(created, cid)
		}
	}
	for _, g := range gaters {
		if len(created) == 0 {
			break
		}
		i := rng.Intn(len(created))
		if err := n.Gate(g, created[i]); err != nil {
			return err
		}
		created = slices.Delete(created, i, i+1)
	}

	for _, cid := range slices.Clone(nd.gated) {
		n.ungate(n.conns[cid])
	}
	self := n.conns[nd.self]
	if self.Gated() {
		n.ungate(self)
	}
	if self.Weight != 0 {
		n.selfConns = removeConnID(n.selfConns, self.id)
	}
	n.conns[nd.self] = nil

	for _, c := range n.conns {
		if c != nil {
			c.dropTrace(id)
		}
	}
	n.order = slices.Delete(n.order, n.position[id], n.position[id]+1)
	n.position[id] = -1
	n.nodes[id] = nil
	n.reindex()
	return nil
}

// Clear resets activations, states, error terms, traces and gains. Weight
// momentum is kept. Gated connections go back to gain 1, the value they have
// in a network freshly restored from its record, until their gater fires.
func (n *Network) Clear() {
	for _, id := range n.order {
		n.nodes[id].clear()
	}
	for _, c := range n.conns {
		if c != nil {
			c.clearTraces()
		}
	}
	for _, cid := range n.gates {
		n.conns[cid].gain = 1
	}
}

// Activate runs one forward pass and returns the output activations.
func (n *Network) Activate(input []float64) ([]float64, error) {
	return n.activate(input, false, nil, true)
}

// ActivateTraining runs a forward pass applying dropout masks to hidden and
// constant nodes.
func (n *Network) ActivateTraining(input []float64, rng *rand.Rand) ([]float64, error) {
	if rng == nil && n.Dropout > 0 {
		return nil, ErrNoRandomSource
	}
	return n.activate(input, true, rng, true)
}

// ActivateNoTrace runs a forward pass without updating eligibility or
// extended traces. Use it when the pass will not be followed by Propagate.
func (n *Network) ActivateNoTrace(input []float64) ([]float64, error) {
	return n.activate(input, false, nil, false)
}

func (n *Network) activate(input []float64, training bool, rng *rand.Rand, traces bool) ([]float64, error) {
	if len(input) != n.input {
		return nil, fmt.Errorf("%w: got %d inputs want %d", ErrSizeMismatch, len(input), n.input)
	}
	out := make([]float64, 0, n.output)
	for pos, id := range n.order {
		nd := n.nodes[id]
		switch nd.role {
		case RoleInput:
			nd.activation = input[pos]
			nd.derivative = 0
			nd.Bias = 0
			// input gaters drive their gates like any other node
			for _, cid := range nd.gated {
				n.conns[cid].gain = nd.activation
			}
		case RoleOutput:
			n.activateNode(nd, traces)
			out = append(out, nd.activation)
		default:
			if training {
				nd.Mask = 1
				if n.Dropout > 0 && rng.Float64() < n.Dropout {
					nd.Mask = 0
				}
			}
			n.activateNode(nd, traces)
		}
	}
	return out, nil
}

func (n *Network) activateNode(nd *Node, traces bool) {
	nd.old = nd.state
	self := n.conns[nd.self]
	nd.state = self.gain*self.Weight*nd.state + nd.Bias
	for _, cid := range nd.in {
		c := n.conns[cid]
		nd.state += n.nodes[c.from].activation * c.Weight * c.gain
	}
	nd.activation = nd.Squash.Apply(nd.state) * nd.Mask
	nd.derivative = nd.Squash.Derivative(nd.state)

	if traces {
		targets, influences := n.influences(nd)
		for _, cid := range nd.in {
			c := n.conns[cid]
			c.eligibility = self.gain*self.Weight*c.eligibility + n.nodes[c.from].activation*c.gain
			for i, t := range targets {
				term := nd.derivative * c.eligibility * influences[i]
				if k := slices.IndexFunc(c.xtrace, func(e traceEntry) bool { return e.node == t }); k >= 0 {
					tself := n.conns[n.nodes[t].self]
					c.xtrace[k].value = tself.gain*tself.Weight*c.xtrace[k].value + term
				} else {
					c.xtrace = append(c.xtrace, traceEntry{node: t, value: term})
				}
			}
		}
	}

	for _, cid := range nd.gated {
		n.conns[cid].gain = nd.activation
	}
}

// influences groups the connections gated by nd by target node. Every target
// reached through any gated connection is included, whether or not it lies
// downstream of a particular incoming connection of nd.
func (n *Network) influences(nd *Node) ([]NodeID, []float64) {
	var targets []NodeID
	var values []float64
	for _, cid := range nd.gated {
		c := n.conns[cid]
		idx := slices.Index(targets, c.to)
		if idx < 0 {
			targets = append(targets, c.to)
			values = append(values, n.selfInfluence(nd, c.to))
			idx = len(targets) - 1
		}
		values[idx] += c.Weight * n.nodes[c.from].activation
	}
	return targets, values
}

func (n *Network) selfInfluence(gater *Node, target NodeID) float64 {
	t := n.nodes[target]
	if n.conns[t.self].gater == gater.id {
		return t.old
	}
	return 0
}

// Propagate backpropagates the error of the last forward pass against target
// and updates weights and biases. A zero rate uses 0.3. Constant nodes keep
// zero error terms, so no error flows back through them.
func (n *Network) Propagate(target []float64, rate, momentum float64) error {
	if len(target) != n.output {
		return fmt.Errorf("%w: got %d targets want %d", ErrSizeMismatch, len(target), n.output)
	}
	if rate == 0 {
		rate = defaultRate
	}
	outStart := len(n.order) - n.output
	for pos := len(n.order) - 1; pos >= 0; pos-- {
		nd := n.nodes[n.order[pos]]
		switch nd.role {
		case RoleInput, RoleConstant:
			continue
		case RoleOutput:
			n.propagateNode(nd, rate, momentum, target[pos-outStart], true)
		default:
			n.propagateNode(nd, rate, momentum, 0, false)
		}
	}
	return nil
}

func (n *Network) propagateNode(nd *Node, rate, momentum, target float64, isOutput bool) {
	if isOutput {
		nd.responsibility = target - nd.activation
		nd.projected = nd.responsibility
	} else {
		var sum float64
		for _, cid := range nd.out {
			c := n.conns[cid]
			sum += n.nodes[c.to].responsibility * c.Weight * c.gain
		}
		nd.projected = nd.derivative * sum

		sum = 0
		for _, cid := range nd.gated {
			c := n.conns[cid]
			influence := n.selfInfluence(nd, c.to) + c.Weight*n.nodes[c.from].activation
			sum += n.nodes[c.to].responsibility * influence
		}
		nd.gatedError = nd.derivative * sum
		nd.responsibility = nd.projected + nd.gatedError
	}

	for _, cid := range nd.in {
		c := n.conns[cid]
		gradient := nd.projected * c.eligibility
		for _, e := range c.xtrace {
			gradient += n.nodes[e.node].responsibility * e.value
		}
		delta := rate * gradient * nd.Mask
		c.Weight += delta + momentum*c.prevDelta
		c.prevDelta = delta
	}
	nd.Bias += rate * nd.responsibility
}

// Clone returns a deep copy, including transient state and score.
func (n *Network) Clone() *Network {
	cp := &Network{
		Dropout:     n.Dropout,
		input:       n.input,
		output:      n.output,
		score:       n.score,
		scored:      n.scored,
		nodes:       make([]*Node, len(n.nodes)),
		conns:       make([]*Connection, len(n.conns)),
		order:       slices.Clone(n.order),
		position:    slices.Clone(n.position),
		connections: slices.Clone(n.connections),
		selfConns:   slices.Clone(n.selfConns),
		gates:       slices.Clone(n.gates),
	}
	for i, nd := range n.nodes {
		if nd == nil {
			continue
		}
		c := *nd
		c.in = slices.Clone(nd.in)
		c.out = slices.Clone(nd.out)
		c.gated = slices.Clone(nd.gated)
		cp.nodes[i] = &c
	}
	for i, c := range n.conns {
		if c == nil {
			continue
		}
		cc := *c
		cc.xtrace = slices.Clone(c.xtrace)
		cp.conns[i] = &cc
	}
	return cp
}

// Replace overwrites n with the content of other.
func (n *Network) Replace(other *Network) {
	*n = *other.Clone()
}
