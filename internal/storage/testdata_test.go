package storage

import "gatenet/internal/model"

func sampleNetworkRecord() model.NetworkRecord {
	gater := 2
	return model.NetworkRecord{
		Input:  1,
		Output: 1,
		Nodes: []model.NodeRecord{
			{Index: 0, Bias: 0, Type: "input", Squash: "logistic", Mask: 1},
			{Index: 1, Bias: 0.25, Type: "hidden", Squash: "tanh", Mask: 1},
			{Index: 2, Bias: -0.5, Type: "output", Squash: "logistic", Mask: 1},
		},
		Connections: []model.ConnectionRecord{
			{From: 0, To: 1, Weight: 0.7},
			{From: 1, To: 2, Weight: -0.3, Gater: &gater},
			{From: 1, To: 1, Weight: 1},
		},
	}
}

func sampleSnapshot(id string, score float64) model.NetworkSnapshot {
	return model.NetworkSnapshot{
		VersionedRecord: Versioned(),
		ID:              id,
		Score:           &score,
		Network:         sampleNetworkRecord(),
	}
}
