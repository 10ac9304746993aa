package network

// ConnID is a stable handle into a Network's connection arena.
type ConnID int

type traceEntry struct {
	node  NodeID
	value float64
}

// Connection is a directed weighted edge. Weight may be edited directly.
type Connection struct {
	Weight float64

	id    ConnID
	from  NodeID
	to    NodeID
	gain  float64
	gater NodeID

	eligibility float64
	xtrace      []traceEntry
	prevDelta   float64
}

func newConnection(id ConnID, from, to NodeID, weight float64) *Connection {
	return &Connection{
		Weight: weight,
		id:     id,
		from:   from,
		to:     to,
		gain:   1,
		gater:  NoNode,
	}
}

func (c *Connection) ID() ConnID { return c.id }
func (c *Connection) From() NodeID { return c.from }
func (c *Connection) To() NodeID { return c.to }
func (c *Connection) Gain() float64 { return c.gain }
func (c *Connection) Gater() NodeID { return c.gater }
func (c *Connection) Gated() bool { return c.gater != NoNode }
func (c *Connection) Eligibility() float64 { return c.eligibility }
func (c *Connection) PreviousDelta() float64 { return c.prevDelta }

// ExtendedTrace returns the trace value kept for gating target node, if any.
func (c *Connection) ExtendedTrace(node NodeID) (float64, bool) {
	for _, e := range c.xtrace {
		if e.node == node {
			return e.value, true
		}
	}
	return 0, false
}

// InnovationID pairs two node positions into a single gene key using the
// Cantor pairing function.
func InnovationID(a, b int) int {
	return (a+b)*(a+b+1)/2 + b
}

func (c *Connection) clearTraces() {
	c.eligibility = 0
	c.xtrace = c.xtrace[:0]
}

func (c *Connection) dropTrace(node NodeID) {
	kept := c.xtrace[:0]
	for _, e := range c.xtrace {
		if e.node != node {
			kept = append(kept, e)
		}
	}
	c.xtrace = kept
}
