package core

import (
	"fmt"
	"strings"
)

// DefaultNamespace is assumed when an entity or reference omits its namespace
const DefaultNamespace = "default"

// Entity is a final entity document as produced by the ingestion pipeline
type Entity map[string]any

// Metadata returns the metadata object of the entity, or nil when absent
func (e Entity) Metadata() map[string]any {
	m, _ := e["metadata"].(map[string]any)
	return m
}

// Kind returns the kind of the entity
func (e Entity) Kind() string {
	k, _ := e["kind"].(string)
	return k
}

// UID returns metadata.uid, which ingestion sets to the entity id
func (e Entity) UID() string {
	uid, _ := e.Metadata()["uid"].(string)
	return uid
}

// Fact is one flattened key/value pair extracted from an entity's content
type Fact struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// NormalizeFactKey brings a fact or filter key into its indexed form:
// trimmed and lower-cased.
func NormalizeFactKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// EntityRef identifies an entity by kind, namespace and name
type EntityRef struct {
	Kind      string
	Namespace string
	Name      string
}

// String renders the reference as kind:namespace/name, lower-cased.
func (r EntityRef) String() string {
	ns := r.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return strings.ToLower(r.Kind) + ":" + strings.ToLower(ns) + "/" + strings.ToLower(r.Name)
}

// RefOf computes the reference of an entity document.
func RefOf(e Entity) (string, error) {
	kind := e.Kind()
	if kind == "" {
		return "", fmt.Errorf("%w: entity has no kind", ErrDeserialization)
	}
	meta := e.Metadata()
	name, _ := meta["name"].(string)
	if name == "" {
		return "", fmt.Errorf("%w: entity of kind %q has no metadata.name", ErrDeserialization, kind)
	}
	ns, _ := meta["namespace"].(string)
	return EntityRef{Kind: kind, Namespace: ns, Name: name}.String(), nil
}

// ParseRef parses kind:namespace/name or kind:name.
func ParseRef(s string) (EntityRef, error) {
	s = strings.TrimSpace(s)
	kind, rest, ok := strings.Cut(s, ":")
	if !ok || kind == "" || rest == "" {
		return EntityRef{}, fmt.Errorf("invalid entity reference %q", s)
	}
	ns, name, ok := strings.Cut(rest, "/")
	if !ok {
		ns, name = DefaultNamespace, rest
	}
	if ns == "" || name == "" || strings.Contains(name, "/") {
		return EntityRef{}, fmt.Errorf("invalid entity reference %q", s)
	}
	return EntityRef{Kind: kind, Namespace: ns, Name: name}, nil
}

// NormalizeRef brings a caller supplied reference into the stored form.
// Strings that do not parse are only lower-cased.
func NormalizeRef(s string) string {
	ref, err := ParseRef(s)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return ref.String()
}
