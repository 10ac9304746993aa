package network

import (
	"fmt"

	"gatenet/internal/model"
)

// Merge chains two networks: the outputs of a feed the inputs of b. The
// result has a's inputs and b's outputs; a's outputs become hidden nodes and
// b's input nodes are dropped in favour of them.
func Merge(a, b *Network) (*Network, error) {
	if a.output != b.input {
		return nil, fmt.Errorf("%w: %d outputs cannot feed %d inputs", ErrSizeMismatch, a.output, b.input)
	}
	ra, rb := a.ToRecord(), b.ToRecord()
	na := len(ra.Nodes)

	merged := model.NetworkRecord{
		Input:   a.input,
		Output:  b.output,
		Dropout: a.Dropout,
	}
	for _, nr := range ra.Nodes {
		if nr.Type == RoleOutput.String() {
			nr.Type = RoleHidden.String()
		}
		merged.Nodes = append(merged.Nodes, nr)
	}
	for _, nr := range rb.Nodes[b.input:] {
		merged.Nodes = append(merged.Nodes, nr)
	}
	for i := range merged.Nodes {
		merged.Nodes[i].Index = i
	}

	// b's input i maps onto a's output i; every other b position shifts past a.
	remap := func(pos int) int {
		if pos < b.input {
			return na - a.output + pos
		}
		return na + pos - b.input
	}
	merged.Connections = append(merged.Connections, ra.Connections...)
	for _, cr := range rb.Connections {
		if cr.From < b.input && cr.To < b.input {
			continue
		}
		out := model.ConnectionRecord{From: remap(cr.From), To: remap(cr.To), Weight: cr.Weight}
		if cr.Gater != nil {
			g := remap(*cr.Gater)
			out.Gater = &g
		}
		merged.Connections = append(merged.Connections, out)
	}
	return FromRecord(merged)
}
