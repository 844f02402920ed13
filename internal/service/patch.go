package service

import (
	"bytes"
	"encoding/json"
	"fmt"

	"orderpay/internal/model"
)

// PatchOp is one operation of the remote API's update format.
type PatchOp struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// PatchOps diffs two purchase-unit lists keyed by reference id and emits the
// operations that turn from into to. Units present in both but identical are
// skipped; an empty result means no network call is needed.
func PatchOps(from, to []model.PurchaseUnit) ([]PatchOp, error) {
	existing := make(map[string][]byte, len(from))
	for _, pu := range from {
		data, err := json.Marshal(pu)
		if err != nil {
			return nil, fmt.Errorf("marshal purchase unit %s: %w", pu.ReferenceID, err)
		}
		existing[pu.ReferenceID] = data
	}

	var ops []PatchOp
	for _, pu := range to {
		data, err := json.Marshal(pu)
		if err != nil {
			return nil, fmt.Errorf("marshal purchase unit %s: %w", pu.ReferenceID, err)
		}
		path := fmt.Sprintf("/purchase_units/@reference_id=='%s'", pu.ReferenceID)
		prev, ok := existing[pu.ReferenceID]
		switch {
		case !ok:
			ops = append(ops, PatchOp{Op: "add", Path: path, Value: data})
		case !bytes.Equal(prev, data):
			ops = append(ops, PatchOp{Op: "replace", Path: path, Value: data})
		}
	}
	return ops, nil
}
