package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// NetworkRecord is the portable form of a network. Node indices are
// activation-order positions.
type NetworkRecord struct {
	Input       int                `json:"input"`
	Output      int                `json:"output"`
	Dropout     float64            `json:"dropout"`
	Nodes       []NodeRecord       `json:"nodes"`
	Connections []ConnectionRecord `json:"connections"`
}

type NodeRecord struct {
	Index  int     `json:"index"`
	Bias   float64 `json:"bias"`
	Type   string  `json:"type"`
	Squash string  `json:"squash"`
	Mask   float64 `json:"mask"`
}

type ConnectionRecord struct {
	From   int     `json:"from"`
	To     int     `json:"to"`
	Weight float64 `json:"weight"`
	Gater  *int    `json:"gater"`
}

type NetworkSnapshot struct {
	VersionedRecord
	ID      string        `json:"id"`
	Score   *float64      `json:"score,omitempty"`
	Network NetworkRecord `json:"network"`
}

type PopulationSnapshot struct {
	VersionedRecord
	ID         string          `json:"id"`
	Generation int             `json:"generation"`
	Networks   []NetworkRecord `json:"networks"`
}

type RunKind string

const (
	RunTrain  RunKind = "train"
	RunEvolve RunKind = "evolve"
)

type RunRecord struct {
	VersionedRecord
	ID           string  `json:"id"`
	Kind         RunKind `json:"kind"`
	CreatedAtUTC string  `json:"created_at_utc"`
	Dataset      string  `json:"dataset"`
	FinalError   float64 `json:"final_error"`
	Iterations   int     `json:"iterations"`
	ElapsedMS    int64   `json:"elapsed_ms"`
	NetworkID    string  `json:"network_id"`
	PopulationID string  `json:"population_id,omitempty"`
}

type GenerationDiagnostics struct {
	Generation      int     `json:"generation"`
	BestScore       float64 `json:"best_score"`
	MeanScore       float64 `json:"mean_score"`
	MinScore        float64 `json:"min_score"`
	MeanNodes       float64 `json:"mean_nodes"`
	MeanConnections float64 `json:"mean_connections"`
	MeanGates       float64 `json:"mean_gates"`
	NoopMutations   int     `json:"noop_mutations"`
}

// Clone returns a deep copy of the record.
func (r NetworkRecord) Clone() NetworkRecord {
	out := r
	if r.Nodes != nil {
		out.Nodes = make([]NodeRecord, len(r.Nodes))
		copy(out.Nodes, r.Nodes)
	}
	if r.Connections == nil {
		return out
	}
	out.Connections = make([]ConnectionRecord, len(r.Connections))
	for i, c := range r.Connections {
		if c.Gater != nil {
			g := *c.Gater
			c.Gater = &g
		}
		out.Connections[i] = c
	}
	return out
}

func (s NetworkSnapshot) Clone() NetworkSnapshot {
	out := s
	out.Network = s.Network.Clone()
	if s.Score != nil {
		v := *s.Score
		out.Score = &v
	}
	return out
}

func (p PopulationSnapshot) Clone() PopulationSnapshot {
	out := p
	if p.Networks == nil {
		return out
	}
	out.Networks = make([]NetworkRecord, len(p.Networks))
	for i, n := range p.Networks {
		out.Networks[i] = n.Clone()
	}
	return out
}
