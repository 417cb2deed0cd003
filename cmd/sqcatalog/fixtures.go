package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/liliang-cn/sqcatalog/pkg/core"
	"github.com/liliang-cn/sqcatalog/pkg/store"
)

// fixtureFile is the YAML layout accepted by the seed command:
//
//	entities:
//	  - id: "1"
//	    entity:
//	      kind: Component
//	      metadata: {name: frontend}
//	references:
//	  - source: system:default/platform
//	    target: component:default/frontend
type fixtureFile struct {
	Entities   []fixtureEntity    `yaml:"entities"`
	References []fixtureReference `yaml:"references"`
}

type fixtureEntity struct {
	ID     string         `yaml:"id"`
	Ref    string         `yaml:"ref"`
	Entity map[string]any `yaml:"entity"`
	Facts  []core.Fact    `yaml:"facts"`
}

type fixtureReference struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

func readFixtures(path string) (*fixtureFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures: %w", err)
	}

	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures %s: %w", path, err)
	}
	for i, r := range f.References {
		if r.Source == "" || r.Target == "" {
			return nil, fmt.Errorf("reference %d needs both source and target", i)
		}
	}
	return &f, nil
}

// seed writes every fixture entity and reference through w and reports how
// many of each were written
func seed(ctx context.Context, w store.Writer, f *fixtureFile) (int, int, error) {
	for i, fe := range f.Entities {
		rec := store.Record{
			EntityID:  fe.ID,
			EntityRef: fe.Ref,
			Facts:     fe.Facts,
		}
		if fe.Entity != nil {
			rec.Entity = core.Entity(fe.Entity)
		}
		if err := w.PutEntity(ctx, rec); err != nil {
			return i, 0, fmt.Errorf("entity %d: %w", i, err)
		}
	}
	for i, r := range f.References {
		if err := w.PutReference(ctx, r.Source, r.Target); err != nil {
			return len(f.Entities), i, fmt.Errorf("reference %d: %w", i, err)
		}
	}
	return len(f.Entities), len(f.References), nil
}
