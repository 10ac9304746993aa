package network

import (
	"fmt"
	"math/rand"
	"slices"

	"gatenet/internal/model"
	"gatenet/internal/nn"
)

type gene struct {
	weight float64
	from   int
	to     int
	gater  int
}

// CrossOver breeds an offspring from two parents with the same input and
// output sizes. Scores bias the offspring size and the inheritance of
// non-matching genes toward the fitter parent; with equal set, both parents
// are treated as equally fit.
func CrossOver(a, b *Network, rng *rand.Rand, equal bool) (*Network, error) {
	if a.input != b.input || a.output != b.output {
		return nil, fmt.Errorf("%w: parents %d/%d and %d/%d", ErrSizeMismatch, a.input, a.output, b.input, b.output)
	}
	if rng == nil {
		return nil, ErrNoRandomSource
	}
	var scoreA, scoreB float64
	if !equal {
		scoreA, _ = a.Score()
		scoreB, _ = b.Score()
	}
	ra, rb := a.ToRecord(), b.ToRecord()
	na, nb := len(ra.Nodes), len(rb.Nodes)

	var size int
	switch {
	case scoreA == scoreB:
		lo, hi := min(na, nb), max(na, nb)
		size = lo + rng.Intn(hi-lo+1)
	case scoreA > scoreB:
		size = na
	default:
		size = nb
	}

	outStart := size - a.output
	nodes := make([]model.NodeRecord, 0, size)
	for i := 0; i < size; i++ {
		var picked model.NodeRecord
		switch {
		case i < na && i < nb:
			wantOutput := i >= outStart
			var candidates []model.NodeRecord
			for _, nr := range []model.NodeRecord{ra.Nodes[i], rb.Nodes[i]} {
				if (nr.Type == RoleOutput.String()) == wantOutput {
					candidates = append(candidates, nr)
				}
			}
			if len(candidates) == 0 {
				return nil, fmt.Errorf("%w: no parent node fits position %d", ErrInvalidRecord, i)
			}
			picked = candidates[rng.Intn(len(candidates))]
		case i < na:
			picked = parentNode(ra.Nodes, i, size, outStart)
		default:
			picked = parentNode(rb.Nodes, i, size, outStart)
		}
		picked.Index = i
		nodes = append(nodes, picked)
	}

	genesA := collectGenes(ra, size)
	genesB := collectGenes(rb, size)
	var inherited []gene
	for _, key := range sortedKeys(genesA) {
		gb, ok := genesB[key]
		if !ok {
			continue
		}
		if rng.Float64() >= 0.5 {
			inherited = append(inherited, genesA[key])
		} else {
			inherited = append(inherited, gb)
		}
	}
	if scoreA >= scoreB {
		inherited = appendDisjoint(inherited, genesA, genesB)
	}
	if scoreB >= scoreA {
		inherited = appendDisjoint(inherited, genesB, genesA)
	}

	child := newEmpty(a.input, a.output)
	for _, nr := range nodes {
		role, err := ParseRole(nr.Type)
		if err != nil {
			return nil, err
		}
		squash, err := nn.ParseActivation(nr.Squash)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		nd := child.addNode(role, nr.Bias)
		nd.Squash = squash
		nd.Mask = nr.Mask
		child.appendNode(nd)
	}
	for _, g := range inherited {
		if g.from >= size || g.to >= size {
			continue
		}
		cid, err := child.Connect(child.order[g.from], child.order[g.to], g.weight)
		if err != nil {
			return nil, err
		}
		child.conns[cid].Weight = g.weight
		if g.gater >= 0 && g.gater < size {
			if err := child.Gate(child.order[g.gater], cid); err != nil {
				return nil, err
			}
		}
	}
	return child, nil
}

// parentNode takes position i from a parent longer than the other one. The
// output block of the offspring maps onto the parent's output block in order.
func parentNode(nodes []model.NodeRecord, i, size, outStart int) model.NodeRecord {
	if i >= outStart {
		return nodes[len(nodes)-size+i]
	}
	return nodes[i]
}

// collectGenes keys every connection of a parent by the innovation id of its
// endpoint positions. A connection into the parent's last node is redirected
// to the offspring's last node.
func collectGenes(rec model.NetworkRecord, size int) map[int]gene {
	last := len(rec.Nodes) - 1
	genes := make(map[int]gene, len(rec.Connections))
	for _, cr := range rec.Connections {
		g := gene{weight: cr.Weight, from: cr.From, to: cr.To, gater: -1}
		if cr.Gater != nil {
			g.gater = *cr.Gater
		}
		if g.to == last {
			if g.from >= size-1 {
				continue
			}
			g.to = size - 1
		}
		genes[InnovationID(g.from, g.to)] = g
	}
	return genes
}

func appendDisjoint(dst []gene, own, other map[int]gene) []gene {
	for _, key := range sortedKeys(own) {
		if _, shared := other[key]; !shared {
			dst = append(dst, own[key])
		}
	}
	return dst
}

func sortedKeys(m map[int]gene) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
