package catalog

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/liliang-cn/sqcatalog/internal/encoding"
	"github.com/liliang-cn/sqcatalog/pkg/core"
)

// FieldsProjector returns a projector keeping only the given dotted paths,
// for example "kind" or "metadata.name". Paths missing from an entity are
// skipped. With no paths the entity is returned unchanged.
func FieldsProjector(paths ...string) Projector {
	var kept []string
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return func(e core.Entity) (core.Entity, error) { return e, nil }
	}

	return func(e core.Entity) (core.Entity, error) {
		data, err := encoding.EncodeEntity(e)
		if err != nil {
			return nil, err
		}

		out := []byte(`{}`)
		for _, path := range kept {
			value := gjson.GetBytes(data, path)
			if !value.Exists() {
				continue
			}
			if out, err = sjson.SetRawBytes(out, path, []byte(value.Raw)); err != nil {
				return nil, fmt.Errorf("failed to project field %s: %w", path, err)
			}
		}

		return encoding.DecodeEntity(out)
	}
}
