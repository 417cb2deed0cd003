package encoding

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/liliang-cn/sqcatalog/pkg/core"
)

// ErrInvalidDocument is returned when a stored document is not a JSON object
var ErrInvalidDocument = errors.New("invalid document")

// MaxFactValueLength bounds the length of indexed fact values.
// Longer values are not indexed.
const MaxFactValueLength = 200

// EncodeEntity encodes an entity document to JSON
func EncodeEntity(entity core.Entity) ([]byte, error) {
	if entity == nil {
		return nil, ErrInvalidDocument
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity: %w", err)
	}

	return data, nil
}

// DecodeEntity decodes a stored JSON document. Failures wrap
// core.ErrDeserialization.
func DecodeEntity(data []byte) (core.Entity, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: %w", core.ErrDeserialization, ErrInvalidDocument)
	}

	var entity core.Entity
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrDeserialization, err)
	}

	return entity, nil
}

// skipped keys carry no filtering value or change on every write
var skippedFactKeys = map[string]bool{
	"metadata.uid":        true,
	"metadata.etag":       true,
	"metadata.generation": true,
	"relations":           true,
	"status":              true,
}

// FlattenFacts produces the search facts of an entity document: every scalar
// leaf becomes a (dotted.path, value) pair, arrays contribute one pair per
// element under the same key, and each relation contributes
// (relations.<type>, targetRef). Keys and values are lower-cased, pairs are
// unique and sorted.
func FlattenFacts(entity core.Entity) []core.Fact {
	seen := make(map[core.Fact]struct{})
	add := func(key, value string) {
		key = core.NormalizeFactKey(key)
		if key == "" || len(value) > MaxFactValueLength {
			return
		}
		seen[core.Fact{Key: key, Value: strings.ToLower(value)}] = struct{}{}
	}

	var visit func(path string, v any)
	visit = func(path string, v any) {
		if skippedFactKeys[strings.ToLower(path)] {
			return
		}
		switch val := v.(type) {
		case nil:
		case map[string]any:
			for k, child := range val {
				if path == "" {
					visit(k, child)
				} else {
					visit(path+"."+k, child)
				}
			}
		case core.Entity:
			visit(path, map[string]any(val))
		case []any:
			for _, child := range val {
				visit(path, child)
			}
		case string:
			add(path, val)
		case bool:
			add(path, strconv.FormatBool(val))
		case float64:
			add(path, strconv.FormatFloat(val, 'f', -1, 64))
		default:
			add(path, fmt.Sprint(val))
		}
	}
	visit("", map[string]any(entity))

	if meta := entity.Metadata(); meta != nil {
		if _, ok := meta["namespace"]; !ok {
			add("metadata.namespace", core.DefaultNamespace)
		}
	}

	if relations, ok := entity["relations"].([]any); ok {
		for _, r := range relations {
			rel, ok := r.(map[string]any)
			if !ok {
				continue
			}
			relType, _ := rel["type"].(string)
			target, _ := rel["targetRef"].(string)
			if relType != "" && target != "" {
				add("relations."+relType, core.NormalizeRef(target))
			}
		}
	}

	facts := make([]core.Fact, 0, len(seen))
	for f := range seen {
		facts = append(facts, f)
	}
	sort.Slice(facts, func(i, j int) bool {
		if facts[i].Key != facts[j].Key {
			return facts[i].Key < facts[j].Key
		}
		return facts[i].Value < facts[j].Value
	})
	return facts
}

// NormalizeFacts normalizes keys, lower-cases values and de-duplicates
// caller supplied facts
func NormalizeFacts(in []core.Fact) []core.Fact {
	seen := make(map[core.Fact]struct{}, len(in))
	out := make([]core.Fact, 0, len(in))
	for _, f := range in {
		n := core.Fact{Key: core.NormalizeFactKey(f.Key), Value: strings.ToLower(f.Value)}
		if n.Key == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
