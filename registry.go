package sqlmap

import (
	"reflect"
	"sort"
	"sync"

	"github.com/go-openapi/inflect"

	"github.com/syssam/sqlmap/schema/relation"
)

// Registry caches model specs and resolves relation edges across them.
// Registration is two-phase: specs build first, then edges resolve over
// the full registered set, so the outcome does not depend on the order
// models were registered in. Edges whose counterpart model is not yet
// registered stay pending and resolve when it arrives.
type Registry struct {
	mu      sync.RWMutex
	byType  map[reflect.Type]*ModelSpec
	byTable map[string]*ModelSpec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType:  make(map[reflect.Type]*ModelSpec),
		byTable: make(map[string]*ModelSpec),
	}
}

// Register builds specs for the given models and re-resolves relations
// over everything registered so far. Registering the same model type again
// is a no-op. On error nothing is committed.
func (r *Registry) Register(models ...Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Stage copies of the committed specs. Committed specs are handed out
	// to lock-free readers, so re-resolving relations must never write
	// through their pointers.
	staged := make(map[reflect.Type]*ModelSpec, len(r.byType)+len(models))
	for t, s := range r.byType {
		cp := *s
		staged[t] = &cp
	}
	added := false
	for _, m := range models {
		t := modelType(m)
		if _, ok := staged[t]; ok {
			continue
		}
		spec, err := buildSpec(m)
		if err != nil {
			return err
		}
		staged[t] = spec
		added = true
	}
	if !added {
		return nil
	}
	tables := make(map[string]*ModelSpec, len(staged))
	for _, s := range staged {
		tables[s.Table] = s
	}
	if err := resolveRelations(staged, tables); err != nil {
		return err
	}
	r.byType = staged
	r.byTable = tables
	return nil
}

// Spec returns the registered spec for the model's type.
func (r *Registry) Spec(m Model) (*ModelSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.byType[modelType(m)]
	if !ok {
		return nil, &NotRegisteredError{model: modelType(m).Name()}
	}
	return spec, nil
}

// SpecForTable returns the registered spec mapped to the given table.
func (r *Registry) SpecForTable(table string) (*ModelSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.byTable[table]
	if !ok {
		return nil, &NotRegisteredError{model: table}
	}
	return spec, nil
}

// Specs returns all registered specs, ordered by table name.
func (r *Registry) Specs() []*ModelSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]*ModelSpec, 0, len(r.byType))
	for _, s := range r.byType {
		specs = append(specs, s)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Table < specs[j].Table })
	return specs
}

func (r *Registry) specForType(t reflect.Type) (*ModelSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.byType[t]
	if !ok {
		return nil, &NotRegisteredError{model: t.Name()}
	}
	return spec, nil
}

func modelType(m Model) reflect.Type {
	t := reflect.TypeOf(m)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// tableRef is the minimal relation target for edges materialized during
// inference, where only the table name is known.
type tableRef string

func (t tableRef) Table() string { return string(t) }

// resolveRelations recomputes every spec's edge set from explicit
// declarations and model-typed foreign keys. Explicit edges win over
// inferred ones with the same name; two distinct inferred edges claiming
// one name is an inference conflict.
func resolveRelations(specs map[reflect.Type]*ModelSpec, tables map[string]*ModelSpec) error {
	type source struct {
		explicit bool
		desc     *relation.Descriptor
	}
	resolved := make(map[*ModelSpec]map[string]*source)
	for _, s := range specs {
		resolved[s] = make(map[string]*source)
	}
	put := func(owner *ModelSpec, desc *relation.Descriptor, explicit bool) error {
		cur, ok := resolved[owner][desc.Name]
		if !ok {
			resolved[owner][desc.Name] = &source{explicit: explicit, desc: desc}
			return nil
		}
		if cur.explicit {
			return nil
		}
		if explicit {
			resolved[owner][desc.Name] = &source{explicit: true, desc: desc}
			return nil
		}
		if sameEdge(cur.desc, desc) {
			return nil
		}
		return &RelationInferenceError{
			Model:  owner.Name,
			Name:   desc.Name,
			Reason: "two foreign keys infer distinct relations with this name; disambiguate with Relation or RelatedName",
		}
	}
	for _, s := range specs {
		for _, d := range s.declared {
			target, ok := tables[d.Target.Table()]
			if !ok {
				continue // resolves once the target registers
			}
			edge := &relation.Descriptor{
				Name:      d.Name,
				Kind:      d.Kind,
				Target:    tableRef(target.Table),
				LocalKey:  d.LocalKey,
				RemoteKey: d.RemoteKey,
			}
			switch d.Kind {
			case relation.BelongsTo:
				if edge.LocalKey == "" {
					edge.LocalKey = inflect.Singularize(target.Table) + "_id"
				}
				if edge.RemoteKey == "" {
					edge.RemoteKey = target.PK.Name
				}
			case relation.HasMany:
				if edge.LocalKey == "" {
					edge.LocalKey = s.PK.Name
				}
				if edge.RemoteKey == "" {
					edge.RemoteKey = inflect.Singularize(s.Table) + "_id"
				}
			}
			if err := put(s, edge, true); err != nil {
				return err
			}
		}
	}
	for _, s := range specs {
		for _, f := range s.Fields {
			fk := f.ForeignKey
			if fk == nil || fk.Target == nil {
				continue
			}
			target, ok := tables[fk.RefTable]
			if !ok {
				continue
			}
			name := f.RelationName
			if name == "" {
				name = trimIDSuffix(f.Name)
				if name == "" {
					name = inflect.Singularize(target.Table)
				}
			}
			err := put(s, &relation.Descriptor{
				Name:      name,
				Kind:      relation.BelongsTo,
				Target:    tableRef(target.Table),
				LocalKey:  f.Name,
				RemoteKey: fk.RefColumn,
			}, false)
			if err != nil {
				return err
			}
			reverse := f.RelatedName
			if reverse == "" {
				reverse = inflect.Pluralize(s.Table)
			}
			err = put(target, &relation.Descriptor{
				Name:      reverse,
				Kind:      relation.HasMany,
				Target:    tableRef(s.Table),
				LocalKey:  fk.RefColumn,
				RemoteKey: f.Name,
			}, false)
			if err != nil {
				return err
			}
		}
	}
	for s, edges := range resolved {
		s.relations = make(map[string]*relation.Descriptor, len(edges))
		for name, src := range edges {
			s.relations[name] = src.desc
		}
	}
	return nil
}

func sameEdge(a, b *relation.Descriptor) bool {
	return a.Kind == b.Kind &&
		a.Target.Table() == b.Target.Table() &&
		a.LocalKey == b.LocalKey &&
		a.RemoteKey == b.RemoteKey
}

func trimIDSuffix(column string) string {
	const suffix = "_id"
	if len(column) > len(suffix) && column[len(column)-len(suffix):] == suffix {
		return column[:len(column)-len(suffix)]
	}
	return ""
}
