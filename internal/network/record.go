package network

import (
	"encoding/json"
	"fmt"

	"gatenet/internal/model"
	"gatenet/internal/nn"
)

// ToRecord serializes structure and parameters. Active self-connections are
// listed in node order, then every other connection in insertion order.
func (n *Network) ToRecord() model.NetworkRecord {
	rec := model.NetworkRecord{
		Input:       n.input,
		Output:      n.output,
		Dropout:     n.Dropout,
		Nodes:       make([]model.NodeRecord, 0, len(n.order)),
		Connections: make([]model.ConnectionRecord, 0, len(n.connections)+len(n.selfConns)),
	}
	for pos, id := range n.order {
		nd := n.nodes[id]
		rec.Nodes = append(rec.Nodes, model.NodeRecord{
			Index:  pos,
			Bias:   nd.Bias,
			Type:   nd.role.String(),
			Squash: nd.Squash.String(),
			Mask:   nd.Mask,
		})
		if self := n.conns[nd.self]; self.Weight != 0 {
			rec.Connections = append(rec.Connections, n.connectionRecord(self))
		}
	}
	for _, cid := range n.connections {
		rec.Connections = append(rec.Connections, n.connectionRecord(n.conns[cid]))
	}
	return rec
}

func (n *Network) connectionRecord(c *Connection) model.ConnectionRecord {
	out := model.ConnectionRecord{
		From:   n.position[c.from],
		To:     n.position[c.to],
		Weight: c.Weight,
	}
	if c.Gated() {
		g := n.position[c.gater]
		out.Gater = &g
	}
	return out
}

// FromRecord rebuilds a network. Transient state starts at zero.
func FromRecord(rec model.NetworkRecord) (*Network, error) {
	if rec.Input <= 0 || rec.Output <= 0 {
		return nil, fmt.Errorf("%w: input=%d output=%d", ErrInvalidRecord, rec.Input, rec.Output)
	}
	if len(rec.Nodes) < rec.Input+rec.Output {
		return nil, fmt.Errorf("%w: %d nodes for %d inputs and %d outputs", ErrInvalidRecord, len(rec.Nodes), rec.Input, rec.Output)
	}
	n := newEmpty(rec.Input, rec.Output)
	n.Dropout = rec.Dropout
	for pos, nr := range rec.Nodes {
		role, err := ParseRole(nr.Type)
		if err != nil {
			return nil, err
		}
		wantInput := pos < rec.Input
		wantOutput := pos >= len(rec.Nodes)-rec.Output
		if (role == RoleInput) != wantInput || (role == RoleOutput) != wantOutput {
			return nil, fmt.Errorf("%w: node %d has type %s", ErrInvalidRecord, pos, nr.Type)
		}
		squash, err := nn.ParseActivation(nr.Squash)
		if err != nil {
			return nil, fmt.Errorf("%w: node %d: %v", ErrInvalidRecord, pos, err)
		}
		nd := n.addNode(role, nr.Bias)
		nd.Squash = squash
		nd.Mask = nr.Mask
		n.appendNode(nd)
	}
	for i, cr := range rec.Connections {
		if !n.validIndex(cr.From) || !n.validIndex(cr.To) {
			return nil, fmt.Errorf("%w: connection %d endpoints %d->%d", ErrInvalidRecord, i, cr.From, cr.To)
		}
		if cr.From == cr.To && cr.Weight == 0 {
			return nil, fmt.Errorf("%w: connection %d is an inactive self-connection", ErrInvalidRecord, i)
		}
		cid, err := n.Connect(n.order[cr.From], n.order[cr.To], cr.Weight)
		if err != nil {
			return nil, fmt.Errorf("%w: connection %d: %v", ErrInvalidRecord, i, err)
		}
		n.conns[cid].Weight = cr.Weight
		if cr.Gater == nil {
			continue
		}
		if !n.validIndex(*cr.Gater) {
			return nil, fmt.Errorf("%w: connection %d gater %d", ErrInvalidRecord, i, *cr.Gater)
		}
		if err := n.Gate(n.order[*cr.Gater], cid); err != nil {
			return nil, fmt.Errorf("%w: connection %d: %v", ErrInvalidRecord, i, err)
		}
	}
	return n, nil
}

func (n *Network) validIndex(i int) bool {
	return i >= 0 && i < len(n.order)
}

func (n *Network) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.ToRecord())
}

func (n *Network) UnmarshalJSON(data []byte) error {
	var rec model.NetworkRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	built, err := FromRecord(rec)
	if err != nil {
		return err
	}
	*n = *built
	return nil
}
