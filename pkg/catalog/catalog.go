// Package catalog is the read and query engine over a catalog store.
//
// Catalog lists entities through a compiled filter with resumable cursors,
// walks the ancestry of an entity over parent references, and removes
// entities by identity. Writes belong to ingestion; BatchAddOrUpdate
// always fails.
package catalog

import (
	"context"
	"fmt"

	"github.com/liliang-cn/sqcatalog/pkg/core"
	"github.com/liliang-cn/sqcatalog/pkg/store"
)

// Config holds catalog settings
type Config struct {
	// AncestryParallelism bounds the parent lookups in flight during one
	// ancestry traversal. 1 walks sequentially.
	AncestryParallelism int
	Logger              core.Logger
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{AncestryParallelism: 4}
}

// Catalog serves catalog reads from a store.Store. It holds no state of its
// own and is safe for concurrent use.
type Catalog struct {
	store  store.Store
	config Config
	logger core.Logger
}

// New creates a catalog over s with default settings
func New(s store.Store) *Catalog {
	return NewWithConfig(s, DefaultConfig())
}

// NewWithConfig creates a catalog over s
func NewWithConfig(s store.Store, config Config) *Catalog {
	if config.AncestryParallelism <= 0 {
		config.AncestryParallelism = DefaultConfig().AncestryParallelism
	}
	return &Catalog{
		store:  s,
		config: config,
		logger: core.OrNop(config.Logger),
	}
}

// fail wraps a store failure, reporting cancellation explicitly when the
// caller's context has ended
func fail(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return core.WrapError(op, fmt.Errorf("%w: %w", core.ErrCanceled, ctxErr))
	}
	return core.WrapError(op, err)
}
