package filter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/liliang-cn/sqcatalog/pkg/core"
)

var leafFields = map[string]bool{
	"key":              true,
	"matchValueIn":     true,
	"matchValueExists": true,
}

// Parse decodes the JSON wire form of a filter:
//
//	{"key": "kind", "matchValueIn": ["component"], "matchValueExists": true}
//	{"allOf": [ ... ]}
//	{"anyOf": [ ... ]}
//
// A JSON null or empty input yields a nil filter. Every node must carry
// exactly one of key, allOf or anyOf; anything else is an invalid filter.
func Parse(data []byte) (Filter, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	return parseNode(data, "filter")
}

func parseNode(data json.RawMessage, path string) (Filter, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: %s is not an object", core.ErrInvalidFilter, path)
	}

	_, hasKey := obj["key"]
	allOf, hasAll := obj["allOf"]
	anyOf, hasAny := obj["anyOf"]

	count := 0
	for _, b := range []bool{hasKey, hasAll, hasAny} {
		if b {
			count++
		}
	}
	if count != 1 {
		return nil, fmt.Errorf("%w: %s must have exactly one of key, allOf or anyOf", core.ErrInvalidFilter, path)
	}

	switch {
	case hasAll:
		if len(obj) != 1 {
			return nil, fmt.Errorf("%w: %s has fields besides allOf", core.ErrInvalidFilter, path)
		}
		children, err := parseChildren(allOf, path+".allOf")
		if err != nil {
			return nil, err
		}
		return AllOf(children), nil
	case hasAny:
		if len(obj) != 1 {
			return nil, fmt.Errorf("%w: %s has fields besides anyOf", core.ErrInvalidFilter, path)
		}
		children, err := parseChildren(anyOf, path+".anyOf")
		if err != nil {
			return nil, err
		}
		return AnyOf(children), nil
	default:
		for field := range obj {
			if !leafFields[field] {
				return nil, fmt.Errorf("%w: %s has unknown field %q", core.ErrInvalidFilter, path, field)
			}
		}
		var leaf Leaf
		if err := json.Unmarshal(data, &leaf); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", core.ErrInvalidFilter, path, err)
		}
		return leaf, nil
	}
}

func parseChildren(data json.RawMessage, path string) ([]Filter, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, fmt.Errorf("%w: %s is not an array", core.ErrInvalidFilter, path)
	}
	children := make([]Filter, 0, len(raw))
	for i, item := range raw {
		child, err := parseNode(item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}
