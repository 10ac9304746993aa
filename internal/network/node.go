package network

import (
	"fmt"
	"strings"

	"gatenet/internal/nn"
)

// NodeID is a stable handle into a Network's node arena. Handles are never
// reused within the lifetime of one Network.
type NodeID int

// NoNode marks an absent node reference, such as an ungated connection.
const NoNode NodeID = -1

type Role uint8

const (
	RoleHidden Role = iota
	RoleInput
	RoleOutput
	RoleConstant
)

func (r Role) String() string {
	switch r {
	case RoleInput:
		return "input"
	case RoleOutput:
		return "output"
	case RoleConstant:
		return "constant"
	default:
		return "hidden"
	}
}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hidden":
		return RoleHidden, nil
	case "input":
		return RoleInput, nil
	case "output":
		return RoleOutput, nil
	case "constant":
		return RoleConstant, nil
	default:
		return RoleHidden, fmt.Errorf("%w: unknown node type %q", ErrInvalidRecord, s)
	}
}

// Node is a unit of the graph. Bias, Squash and Mask may be edited directly;
// connectivity changes go through the owning Network.
type Node struct {
	Bias   float64
	Squash nn.Activation
	Mask   float64

	id   NodeID
	role Role

	activation float64
	derivative float64
	state      float64
	old        float64

	responsibility float64
	projected      float64
	gatedError     float64

	self  ConnID
	in    []ConnID
	out   []ConnID
	gated []ConnID
}

func (nd *Node) ID() NodeID { return nd.id }
func (nd *Node) Role() Role { return nd.role }
func (nd *Node) Activation() float64 { return nd.activation }
func (nd *Node) Derivative() float64 { return nd.derivative }
func (nd *Node) State() float64 { return nd.state }
func (nd *Node) Responsibility() float64 { return nd.responsibility }
func (nd *Node) SelfConnection() ConnID { return nd.self }
func (nd *Node) Incoming() []ConnID { return append([]ConnID(nil), nd.in...) }
func (nd *Node) Outgoing() []ConnID { return append([]ConnID(nil), nd.out...) }
func (nd *Node) GatedConnections() []ConnID { return append([]ConnID(nil), nd.gated...) }

func (nd *Node) clear() {
	nd.activation, nd.derivative, nd.state, nd.old = 0, 0, 0, 0
	nd.responsibility, nd.projected, nd.gatedError = 0, 0, 0
}

func removeConnID(list []ConnID, id ConnID) []ConnID {
	for i, c := range list {
		if c == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
