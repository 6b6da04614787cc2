package patch

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/papercomputeco/memstate/pkg/state"
)

// nodeFields is the declared node schema as seen on the wire. Timestamps are
// absent on purpose: they are stamped by the engine, never by callers.
var nodeFields = map[string]bool{
	"id":               true,
	"kind":             true,
	"summary":          true,
	"detail":           true,
	"dependsOn":        true,
	"contradicts":      true,
	"temporalAfter":    true,
	"temporalBefore":   true,
	"parentId":         true,
	"children":         true,
	"status":           true,
	"assumptionStatus": true,
	"dirty":            true,
}

var engineFields = map[string]bool{
	"createdAt": true,
	"updatedAt": true,
}

// Parse validates a single mutation and returns its typed patch. It checks
// shape only; references to other nodes are checked by CheckReferences.
func Parse(m state.Mutation) (Patch, error) {
	if m.Op != state.OpAdd && m.Op != state.OpReplace {
		return nil, invalid(m.Path, "op", "unsupported operation %q (expected add or replace)", m.Op)
	}

	prefix, id, err := splitPath(m.Path)
	if err != nil {
		return nil, err
	}

	header := Header{Op: m.Op, ID: id, Reason: m.Reason}

	switch prefix {
	case state.SummaryPrefix:
		var summary string
		value := bytes.TrimSpace(m.Value)
		if len(value) == 0 || bytes.Equal(value, []byte("null")) || json.Unmarshal(value, &summary) != nil {
			return nil, invalid(m.Path, "value", "summary value must be a plain string")
		}
		return SummaryReplace{Header: header, Summary: summary}, nil

	default:
		node, err := parseNode(m.Path, id, m.Value)
		if err != nil {
			return nil, err
		}
		return NodeReplace{Header: header, Node: node}, nil
	}
}

// splitPath checks that path is exactly /raw/{id} or /summary/{id}.
func splitPath(path string) (string, string, error) {
	for _, prefix := range []string{state.RawPrefix, state.SummaryPrefix} {
		id, ok := strings.CutPrefix(path, prefix)
		if !ok {
			continue
		}
		if id == "" {
			return "", "", invalid(path, "path", "missing node id")
		}
		if strings.Contains(id, "/") {
			return "", "", invalid(path, "path", "node id %q must not contain '/'", id)
		}
		return prefix, id, nil
	}

	return "", "", invalid(path, "path", "path must be /raw/{id} or /summary/{id}")
}

func parseNode(path, pathID string, value json.RawMessage) (*state.Node, error) {
	if len(bytes.TrimSpace(value)) == 0 {
		return nil, invalid(path, "value", "node value is required")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(value, &fields); err != nil || fields == nil {
		return nil, invalid(path, "value", "node value must be a JSON object")
	}

	for name := range fields {
		if engineFields[name] {
			return nil, invalid(path, name, "field is engine managed and may not be set by callers")
		}
		if !nodeFields[name] {
			return nil, invalid(path, name, "field is not part of the node schema")
		}
	}

	if detail, ok := fields["detail"]; ok && !structured(detail) {
		return nil, invalid(path, "detail", "detail must be an object or array")
	}

	var node state.Node
	if err := json.Unmarshal(value, &node); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, invalid(path, typeErr.Field, "expected %s, got %s", typeErr.Type, typeErr.Value)
		}
		return nil, invalid(path, "value", "%v", err)
	}

	if bytes.Equal(bytes.TrimSpace(node.Detail), []byte("null")) {
		node.Detail = nil
	}

	switch {
	case node.ID == "":
		node.ID = pathID
	case node.ID != pathID:
		return nil, invalid(path, "id", "value id %q does not match path id %q", node.ID, pathID)
	}

	if !node.Kind.Valid() {
		return nil, invalid(path, "kind", "unknown kind %q", node.Kind)
	}

	if node.Status == "" {
		node.Status = state.StatusOpen
	}
	if !node.Status.Valid() {
		return nil, invalid(path, "status", "unknown status %q", node.Status)
	}

	if node.AssumptionStatus != "" {
		if node.Kind != state.KindAssumption {
			return nil, invalid(path, "assumptionStatus", "only assumption nodes carry an assumption status")
		}
		if !node.AssumptionStatus.Valid() {
			return nil, invalid(path, "assumptionStatus", "unknown assumption status %q", node.AssumptionStatus)
		}
	}

	edgeSets := []struct {
		field string
		ids   []string
	}{
		{"dependsOn", node.DependsOn},
		{"contradicts", node.Contradicts},
		{"temporalAfter", node.TemporalAfter},
		{"temporalBefore", node.TemporalBefore},
		{"children", node.Children},
	}
	for _, set := range edgeSets {
		for _, target := range set.ids {
			if target == "" || strings.Contains(target, "/") {
				return nil, invalid(path, set.field, "invalid node reference %q", target)
			}
		}
	}

	node.Normalize()
	return &node, nil
}

// structured reports whether raw is null, an object or an array.
func structured(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	switch trimmed[0] {
	case '{', '[':
		return true
	case 'n':
		return bytes.Equal(trimmed, []byte("null"))
	default:
		return false
	}
}

// CheckReferences verifies that every edge of p points at a node for which
// exists returns true.
func CheckReferences(p NodeReplace, path string, exists func(id string) bool) error {
	for _, ref := range p.References() {
		if ref == p.ID {
			continue
		}
		if !exists(ref) {
			return invalid(path, "value", "reference to unknown node %q", ref)
		}
	}
	return nil
}
