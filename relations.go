package sqlmap

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/sqlmap/cond"
	"github.com/syssam/sqlmap/schema/relation"
)

// createWith inserts rv together with related records. Belongs-to targets
// insert first so the foreign key they back can be set on rv, then rv
// itself, then has-many children with their foreign key pointing at rv.
// Related entries are processed in name order.
func (e *engine) createWith(ctx context.Context, spec *ModelSpec, rv reflect.Value, related map[string]any) error {
	names := make([]string, 0, len(related))
	for name := range related {
		names = append(names, name)
	}
	sort.Strings(names)
	type pending struct {
		edge   *relation.Descriptor
		target *ModelSpec
		value  reflect.Value
	}
	var children []pending
	for _, name := range names {
		edge, ok := spec.Relation(name)
		if !ok {
			return &UnknownRelationError{Model: spec.Name, Name: name}
		}
		target, err := e.reg.SpecForTable(edge.Target.Table())
		if err != nil {
			return err
		}
		v := reflect.ValueOf(related[name])
		switch edge.Kind {
		case relation.BelongsTo:
			if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
				return &RelationKindError{Model: spec.Name, Name: name, Want: relation.HasMany, Got: relation.BelongsTo}
			}
			parent := v.Elem()
			if target.PK.structField(parent).IsZero() {
				if err := e.insert(ctx, target, parent); err != nil {
					return err
				}
			}
			remote := target.Field(edge.RemoteKey)
			if remote == nil {
				return &SpecError{Model: target.Name, Err: fmt.Errorf("relation %q joins unknown column %q", name, edge.RemoteKey)}
			}
			local := spec.Field(edge.LocalKey)
			if local == nil {
				return &SpecError{Model: spec.Name, Err: fmt.Errorf("relation %q joins unknown column %q", name, edge.LocalKey)}
			}
			if err := decodeValue(local, remote.value(parent), local.structField(rv)); err != nil {
				return err
			}
		case relation.HasMany:
			if v.Kind() != reflect.Slice {
				return &RelationKindError{Model: spec.Name, Name: name, Want: relation.BelongsTo, Got: relation.HasMany}
			}
			children = append(children, pending{edge: edge, target: target, value: v})
		}
	}
	if err := e.insert(ctx, spec, rv); err != nil {
		return err
	}
	for _, p := range children {
		local := spec.Field(p.edge.LocalKey)
		if local == nil {
			return &SpecError{Model: spec.Name, Err: fmt.Errorf("relation %q joins unknown column %q", p.edge.Name, p.edge.LocalKey)}
		}
		remote := p.target.Field(p.edge.RemoteKey)
		if remote == nil {
			return &SpecError{Model: p.target.Name, Err: fmt.Errorf("relation %q joins unknown column %q", p.edge.Name, p.edge.RemoteKey)}
		}
		key := local.value(rv)
		for i := 0; i < p.value.Len(); i++ {
			cv := p.value.Index(i)
			if cv.Kind() == reflect.Pointer {
				cv = cv.Elem()
			}
			if err := decodeValue(remote, key, remote.structField(cv)); err != nil {
				return err
			}
			if err := e.insert(ctx, p.target, cv); err != nil {
				return err
			}
		}
	}
	return nil
}

// eagerLoad populates the relation struct fields of every record in dest,
// one batched query per included relation. Relation queries run
// concurrently on the root connection pool; a transaction is a single
// connection, so there they run one after another. Results attach after
// all queries finish.
func (e *engine) eagerLoad(ctx context.Context, spec *ModelSpec, dest reflect.Value, include []string) error {
	if dest.Len() == 0 {
		return nil
	}
	parents := make([]reflect.Value, dest.Len())
	for i := range parents {
		p := dest.Index(i)
		if p.Kind() == reflect.Pointer {
			p = p.Elem()
		}
		parents[i] = p
	}
	loads := make([]*relationLoad, len(include))
	for i, name := range include {
		edge, ok := spec.Relation(name)
		if !ok {
			return &UnknownRelationError{Model: spec.Name, Name: name}
		}
		target, err := e.reg.SpecForTable(edge.Target.Table())
		if err != nil {
			return err
		}
		sf, ok := relationStructField(spec.Type, name)
		if !ok {
			return &SpecError{Model: spec.Name, Err: fmt.Errorf("no struct field holds relation %q", name)}
		}
		loads[i] = &relationLoad{edge: edge, target: target, sf: sf}
	}
	if e.tx {
		for _, l := range loads {
			if err := e.loadRelation(ctx, spec, parents, l); err != nil {
				return err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for _, l := range loads {
			l := l
			g.Go(func() error {
				return e.loadRelation(gctx, spec, parents, l)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	for _, l := range loads {
		if err := attach(spec, l.edge, l.target, l.sf, parents, l.rows); err != nil {
			return err
		}
	}
	return nil
}

// relationLoad is one included relation's in-flight batch query.
type relationLoad struct {
	edge   *relation.Descriptor
	target *ModelSpec
	sf     reflect.StructField
	rows   []reflect.Value // pointers to loaded target structs
}

// loadRelation runs the batch query of one included relation over the
// parents' distinct join keys and keeps the loaded rows on l.
func (e *engine) loadRelation(ctx context.Context, spec *ModelSpec, parents []reflect.Value, l *relationLoad) error {
	local := spec.Field(l.edge.LocalKey)
	if local == nil {
		return &SpecError{Model: spec.Name, Err: fmt.Errorf("relation %q joins unknown column %q", l.edge.Name, l.edge.LocalKey)}
	}
	keys := make([]any, 0, len(parents))
	seen := make(map[any]bool, len(parents))
	for _, p := range parents {
		enc, err := encodeValue(local, local.value(p))
		if err != nil {
			return err
		}
		if enc == nil {
			continue
		}
		k := canonicalKey(enc)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, enc)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	slice := reflect.New(reflect.SliceOf(reflect.PointerTo(l.target.Type))).Elem()
	if err := e.list(ctx, l.target, Query{Where: cond.In(l.edge.RemoteKey, keys...)}, slice); err != nil {
		return err
	}
	l.rows = make([]reflect.Value, slice.Len())
	for i := range l.rows {
		l.rows[i] = slice.Index(i)
	}
	return nil
}

// attach groups loaded rows by join key and assigns them to the parents'
// relation fields.
func attach(spec *ModelSpec, edge *relation.Descriptor, target *ModelSpec, sf reflect.StructField, parents, rows []reflect.Value) error {
	remote := target.Field(edge.RemoteKey)
	if remote == nil {
		return &SpecError{Model: target.Name, Err: fmt.Errorf("relation %q joins unknown column %q", edge.Name, edge.RemoteKey)}
	}
	local := spec.Field(edge.LocalKey)
	grouped := make(map[any][]reflect.Value, len(rows))
	for _, rp := range rows {
		k := canonicalKey(remote.value(rp.Elem()))
		grouped[k] = append(grouped[k], rp)
	}
	for _, p := range parents {
		lv := local.value(p)
		if lv == nil {
			continue
		}
		matches := grouped[canonicalKey(lv)]
		dst := p.FieldByIndex(sf.Index)
		switch edge.Kind {
		case relation.BelongsTo:
			if len(matches) == 0 {
				continue
			}
			if dst.Kind() == reflect.Pointer {
				dst.Set(matches[0])
			} else {
				dst.Set(matches[0].Elem())
			}
		case relation.HasMany:
			if dst.Kind() != reflect.Slice {
				return &SpecError{Model: spec.Name, Err: fmt.Errorf("field %s must be a slice to hold relation %q", sf.Name, edge.Name)}
			}
			out := reflect.MakeSlice(dst.Type(), 0, len(matches))
			for _, m := range matches {
				if dst.Type().Elem().Kind() == reflect.Pointer {
					out = reflect.Append(out, m)
				} else {
					out = reflect.Append(out, m.Elem())
				}
			}
			dst.Set(out)
		}
	}
	return nil
}

// relatedWhere builds the condition selecting rows of a relation's target
// for a single parent record.
func relatedWhere(spec *ModelSpec, edge *relation.Descriptor, rv reflect.Value) (cond.Expr, error) {
	local := spec.Field(edge.LocalKey)
	if local == nil {
		return nil, &SpecError{Model: spec.Name, Err: fmt.Errorf("relation %q joins unknown column %q", edge.Name, edge.LocalKey)}
	}
	enc, err := encodeValue(local, local.value(rv))
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return cond.IsNull(edge.RemoteKey), nil
	}
	return cond.Eq(edge.RemoteKey, enc), nil
}

// relationStructField finds the struct field holding a relation's loaded
// records, by tag or normalized name match.
func relationStructField(rt reflect.Type, name string) (reflect.StructField, bool) {
	want := normalizeName(name)
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		if tag, ok := sf.Tag.Lookup("rel"); ok {
			if tag == name {
				return sf, true
			}
			continue
		}
		if _, ok := sf.Tag.Lookup("db"); ok {
			continue
		}
		if normalizeName(sf.Name) == want {
			return sf, true
		}
	}
	return reflect.StructField{}, false
}

// canonicalKey folds equal join-key values that arrive as different Go
// types onto one map key.
func canonicalKey(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case []byte:
		return string(n)
	case float32:
		return float64(n)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return canonicalKey(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.String:
		return rv.String()
	}
	return v
}
