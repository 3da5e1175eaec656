package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// immutableFields are patch keys that may never change after creation.
// projectId covers BrandVoice identity as well, since its record id is the
// project id.
var immutableFields = map[string]bool{
	"id":        true,
	"userId":    true,
	"projectId": true,
	"createdAt": true,
}

// Encode serializes an entity to its canonical JSON record form.
func Encode(e Entity) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", e.GetKind(), err)
	}
	return data, nil
}

// Decode parses a JSON record into a fresh entity of the given kind.
func Decode(kind Kind, data []byte) (Entity, error) {
	e, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("decoding %s record: %w", kind, err)
	}
	return e, nil
}

// Merge applies a partial-field patch onto base and returns the merged
// entity. The merge is a JSON field overlay: patched fields replace the
// base's fields wholesale, everything else is carried over unchanged. Base is
// not mutated. Identity and creation timestamps are immutable, and unknown
// patch fields are rejected rather than silently dropped.
//
// Applying the same patch twice yields the same record as applying it once;
// Merge itself never stamps timestamps (the engine does that after the merge).
func Merge(base Entity, patch map[string]any) (Entity, error) {
	raw, err := Encode(base)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("reading %s base record: %w", base.GetKind(), err)
	}

	for k, v := range patch {
		if immutableFields[k] {
			if existing, ok := fields[k]; ok && fmt.Sprintf("%v", existing) == fmt.Sprintf("%v", v) {
				continue // patch restates the current value, allow it
			}
			return nil, fmt.Errorf("field %q is immutable", k)
		}
		if v == nil {
			delete(fields, k)
			continue
		}
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("merging %s record: %w", base.GetKind(), err)
	}

	out, err := New(base.GetKind())
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(merged))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return nil, fmt.Errorf("patch for %s has unknown or malformed fields: %w", base.GetKind(), err)
	}
	return out, nil
}
