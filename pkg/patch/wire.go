package patch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/papercomputeco/memstate/pkg/state"
)

// ParseBatch decodes a wire batch: a JSON array of {op, path, value?, reason?}
// objects. Any other key, or any non-array payload, is rejected. The returned
// mutations are shape-checked with Parse so proposers get errors early.
func ParseBatch(data []byte) ([]state.Mutation, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var batch []state.Mutation
	if err := dec.Decode(&batch); err != nil {
		return nil, invalid("", "batch", "malformed mutation batch: %v", err)
	}
	if dec.More() {
		return nil, invalid("", "batch", "trailing data after mutation batch")
	}

	for i, m := range batch {
		if _, err := Parse(m); err != nil {
			return nil, AtIndex(err, i)
		}
	}

	return batch, nil
}

// EncodeBatch is the inverse of ParseBatch.
func EncodeBatch(batch []state.Mutation) ([]byte, error) {
	if batch == nil {
		batch = []state.Mutation{}
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encoding mutation batch: %w", err)
	}
	return data, nil
}
