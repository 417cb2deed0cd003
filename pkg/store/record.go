package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/liliang-cn/sqcatalog/internal/encoding"
	"github.com/liliang-cn/sqcatalog/pkg/core"
)

// Record is an entity as handed over by ingestion
type Record struct {
	// EntityID is the stable identity. Empty ids are taken from
	// metadata.uid, or generated.
	EntityID string
	// EntityRef defaults to the reference computed from Entity
	EntityRef string
	// Entity is the final document. A nil Entity with nil Raw registers the
	// entity as not yet processed.
	Entity core.Entity
	// Raw, when set, is stored verbatim instead of encoding Entity
	Raw []byte
	// Facts default to the facts flattened from Entity
	Facts []core.Fact
}

// Prepared is a Record with every default applied
type Prepared struct {
	EntityID    string
	EntityRef   string
	FinalEntity []byte
	Facts       []core.Fact
}

// Prepare validates rec and fills in its defaults
func Prepare(rec Record) (Prepared, error) {
	p := Prepared{EntityID: rec.EntityID, EntityRef: rec.EntityRef}

	if p.EntityID == "" && rec.Entity != nil {
		p.EntityID = rec.Entity.UID()
	}
	if p.EntityID == "" {
		p.EntityID = uuid.NewString()
	}

	if p.EntityRef == "" {
		if rec.Entity == nil {
			return Prepared{}, errors.New("record without a document needs an entity ref")
		}
		ref, err := core.RefOf(rec.Entity)
		if err != nil {
			return Prepared{}, err
		}
		p.EntityRef = ref
	} else {
		p.EntityRef = core.NormalizeRef(p.EntityRef)
	}

	switch {
	case rec.Raw != nil:
		p.FinalEntity = rec.Raw
	case rec.Entity != nil:
		data, err := encoding.EncodeEntity(rec.Entity)
		if err != nil {
			return Prepared{}, fmt.Errorf("failed to encode entity %s: %w", p.EntityRef, err)
		}
		p.FinalEntity = data
	}

	if rec.Facts != nil {
		p.Facts = encoding.NormalizeFacts(rec.Facts)
	} else if rec.Entity != nil {
		p.Facts = encoding.FlattenFacts(rec.Entity)
	}

	return p, nil
}
