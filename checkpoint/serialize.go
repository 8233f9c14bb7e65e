package checkpoint

import "encoding/json"

// wireBody is the on-disk JSON representation of Body. A plain struct
// tag-driven encoding keeps the format forward-readable by tooling without
// needing a schema compiler, while still round-tripping bit-for-bit
// through encoding/json's stable field ordering.
type wireBody struct {
	Sequence             uint64                       `json:"sequence"`
	Epoch                uint64                       `json:"epoch"`
	Netuid               uint32                       `json:"netuid"`
	PendingEvaluations   []PendingEvaluationState     `json:"pending_evaluations"`
	CompletedEvaluations []CompletedEvaluationState   `json:"completed_evaluations"`
	WeightVotes          *WeightVoteState             `json:"weight_votes,omitempty"`
	ExternalBlockHeight  uint64                       `json:"external_block_height"`
	Metadata             map[string]string            `json:"metadata"`
}

func marshalBody(b Body) ([]byte, error) {
	w := wireBody{
		Sequence:             b.Sequence,
		Epoch:                b.Epoch,
		Netuid:               b.Netuid,
		PendingEvaluations:   b.PendingEvaluations,
		CompletedEvaluations: b.CompletedEvaluations,
		WeightVotes:          b.WeightVotes,
		ExternalBlockHeight:  b.ExternalBlockHeight,
		Metadata:             b.Metadata,
	}
	return json.Marshal(w)
}

func unmarshalBody(data []byte) (Body, error) {
	var w wireBody
	if err := json.Unmarshal(data, &w); err != nil {
		return Body{}, err
	}
	return Body{
		Sequence:             w.Sequence,
		Epoch:                w.Epoch,
		Netuid:               w.Netuid,
		PendingEvaluations:   w.PendingEvaluations,
		CompletedEvaluations: w.CompletedEvaluations,
		WeightVotes:          w.WeightVotes,
		ExternalBlockHeight:  w.ExternalBlockHeight,
		Metadata:             w.Metadata,
	}, nil
}
