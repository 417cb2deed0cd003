// Package core holds the types shared by every layer of sqcatalog.
//
// An entity is an opaque JSON document identified by a stable entity id and
// addressed by a reference of the form kind:namespace/name. The reference is
// derived from the document and may change over the entity's life, the id
// never does.
//
// # Key Components
//
//   - Entity, Fact and EntityRef: the data model consumed by the query engine.
//   - CatalogError and the Err* sentinels: the error taxonomy. KindOf maps any
//     returned error to a stable kind tag.
//   - Logger: pluggable structured logging, with a no-op default and a
//     console implementation backed by charmbracelet/log.
package core
