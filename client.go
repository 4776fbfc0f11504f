package sqlmap

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/syssam/sqlmap/cond"
	"github.com/syssam/sqlmap/dialect"
	velsql "github.com/syssam/sqlmap/dialect/sql"
	"github.com/syssam/sqlmap/dialect/sql/schema"
	"github.com/syssam/sqlmap/schema/relation"
)

type options struct {
	autoSchema bool
	policy     schema.ConflictPolicy
	idempotent bool
	registry   *Registry
	cache      Cache
	cacheTTL   time.Duration
}

// Option configures a Client.
type Option func(*options)

// WithAutoSchema makes the client synchronize a model's table before its
// first statement. Without it, EnsureSchema must be called explicitly.
func WithAutoSchema() Option {
	return func(o *options) { o.autoSchema = true }
}

// WithConflictPolicy sets how schema synchronization treats tables that
// cannot be reconciled additively.
func WithConflictPolicy(p schema.ConflictPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithIdempotent makes schema synchronization tolerate concurrent and
// repeated runs.
func WithIdempotent() Option {
	return func(o *options) { o.idempotent = true }
}

// WithRegistry shares a registry between clients, typically one per
// process so relation inference sees every model.
func WithRegistry(r *Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithCache serves primary-key lookups from cache. Any write to a table
// drops that table's cached records; a zero ttl keeps entries until then.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(o *options) {
		o.cache = cache
		o.cacheTTL = ttl
	}
}

// Client routes operations for any registered model over one driver.
type Client struct {
	eng  *engine
	reg  *Registry
	drv  dialect.Driver
	inTx bool
}

// NewClient builds a client on an opened driver.
func NewClient(drv dialect.Driver, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	reg := o.registry
	if reg == nil {
		reg = NewRegistry()
	}
	eng, err := newEngine(drv, reg, o)
	if err != nil {
		return nil, err
	}
	return &Client{eng: eng, reg: reg, drv: drv}, nil
}

// Open opens a database and builds a client for it. The dialect name may
// carry a flavor suffix such as "sqlite3".
func Open(dialectName, source string, opts ...Option) (*Client, error) {
	drv, err := velsql.Open(dialectName, source)
	if err != nil {
		return nil, err
	}
	c, err := NewClient(drv, opts...)
	if err != nil {
		drv.Close()
		return nil, err
	}
	return c, nil
}

// Register adds models to the client's registry and re-resolves relations.
func (c *Client) Register(models ...Model) error {
	return c.reg.Register(models...)
}

// Registry returns the client's registry.
func (c *Client) Registry() *Registry { return c.reg }

// Dialect returns the driver's dialect name.
func (c *Client) Dialect() string { return c.drv.Dialect() }

// Close closes the underlying driver.
func (c *Client) Close() error { return c.drv.Close() }

// EnsureSchema synchronizes the tables of the given models, or of every
// registered model when none are given. Referenced tables are ordered
// before referencing ones.
func (c *Client) EnsureSchema(ctx context.Context, models ...Model) error {
	var specs []*ModelSpec
	if len(models) == 0 {
		specs = c.reg.Specs()
	} else {
		for _, m := range models {
			spec, err := c.reg.Spec(m)
			if err != nil {
				return err
			}
			specs = append(specs, spec)
		}
	}
	opts := []schema.MigrateOption{schema.WithConflictPolicy(c.eng.policy)}
	if c.eng.idempotent {
		opts = append(opts, schema.WithIdempotent())
	}
	mig, err := schema.NewMigrate(c.drv, opts...)
	if err != nil {
		return err
	}
	tables := make([]*schema.Table, len(specs))
	for i, s := range orderByReferences(specs) {
		tables[i] = s.schemaTable()
	}
	return mig.Ensure(ctx, tables...)
}

// Insert writes one record. A zero auto-increment primary key is filled in
// from the database.
func (c *Client) Insert(ctx context.Context, m Model) error {
	spec, rv, err := c.resolve(m)
	if err != nil {
		return err
	}
	return c.eng.insert(ctx, spec, rv)
}

// Create writes one record together with related ones. Belongs-to entries
// of related insert before m and set its foreign key; has-many entries
// insert after m with their foreign key pointing at it.
func (c *Client) Create(ctx context.Context, m Model, related map[string]any) error {
	spec, rv, err := c.resolve(m)
	if err != nil {
		return err
	}
	if len(related) == 0 {
		return c.eng.insert(ctx, spec, rv)
	}
	return c.eng.createWith(ctx, spec, rv, related)
}

// InsertMany writes records of one model type with a single statement.
func (c *Client) InsertMany(ctx context.Context, models ...Model) error {
	if len(models) == 0 {
		return nil
	}
	spec, _, err := c.resolve(models[0])
	if err != nil {
		return err
	}
	rvs := make([]reflect.Value, len(models))
	for i, m := range models {
		s, rv, err := c.resolve(m)
		if err != nil {
			return err
		}
		if s != spec {
			return &MutationError{Table: spec.Table, Op: "insert", Err: fmt.Errorf("mixed model types %s and %s", spec.Name, s.Name)}
		}
		rvs[i] = rv
	}
	return c.eng.insertMany(ctx, spec, rvs)
}

// Get loads the record with the given primary key into m.
func (c *Client) Get(ctx context.Context, m Model, id any) error {
	spec, rv, err := c.resolve(m)
	if err != nil {
		return err
	}
	return c.eng.get(ctx, spec, rv, id)
}

// List loads matching records into dest, a pointer to a slice of the model
// struct or of pointers to it.
func (c *Client) List(ctx context.Context, dest any, q Query) error {
	spec, slice, err := c.resolveSlice(dest)
	if err != nil {
		return err
	}
	return c.eng.list(ctx, spec, q, slice)
}

// Update writes all non-key columns of m, addressed by its primary key.
func (c *Client) Update(ctx context.Context, m Model) error {
	spec, rv, err := c.resolve(m)
	if err != nil {
		return err
	}
	return c.eng.update(ctx, spec, rv)
}

// Delete removes the record m addresses through its primary key.
func (c *Client) Delete(ctx context.Context, m Model) error {
	spec, rv, err := c.resolve(m)
	if err != nil {
		return err
	}
	id := spec.PK.structField(rv)
	if id.IsZero() {
		return &MutationError{Table: spec.Table, Op: "delete", Err: fmt.Errorf("primary key is unset")}
	}
	return c.eng.deleteByID(ctx, spec, id.Interface())
}

// DeleteByID removes the record with the given primary key.
func (c *Client) DeleteByID(ctx context.Context, m Model, id any) error {
	spec, err := c.reg.Spec(m)
	if err != nil {
		return err
	}
	return c.eng.deleteByID(ctx, spec, id)
}

// Count returns the number of records matching where. A nil where counts
// the whole table.
func (c *Client) Count(ctx context.Context, m Model, where cond.Expr) (int64, error) {
	spec, err := c.reg.Spec(m)
	if err != nil {
		return 0, err
	}
	return c.eng.count(ctx, spec, where)
}

// Exists reports whether any record matches where.
func (c *Client) Exists(ctx context.Context, m Model, where cond.Expr) (bool, error) {
	spec, err := c.reg.Spec(m)
	if err != nil {
		return false, err
	}
	return c.eng.exists(ctx, spec, where)
}

// UpdateWhere applies column assignments to all matching records and
// returns how many changed. A nil condition is rejected.
func (c *Client) UpdateWhere(ctx context.Context, m Model, sets map[string]any, where cond.Expr) (int64, error) {
	spec, err := c.reg.Spec(m)
	if err != nil {
		return 0, err
	}
	return c.eng.updateWhere(ctx, spec, sets, where)
}

// DeleteWhere removes all matching records and returns how many. A nil
// condition is rejected.
func (c *Client) DeleteWhere(ctx context.Context, m Model, where cond.Expr) (int64, error) {
	spec, err := c.reg.Spec(m)
	if err != nil {
		return 0, err
	}
	return c.eng.deleteWhere(ctx, spec, where)
}

// GetOrCreate loads the record matching m on the key columns, or inserts
// m when none exists. Reports whether a record was created.
func (c *Client) GetOrCreate(ctx context.Context, m Model, keys ...string) (bool, error) {
	spec, rv, err := c.resolve(m)
	if err != nil {
		return false, err
	}
	return c.eng.getOrCreate(ctx, spec, rv, keys)
}

// GetRelated loads the belongs-to target of parent's relation into dest.
// Returns ErrNotFound when the foreign key is NULL or dangling.
func (c *Client) GetRelated(ctx context.Context, parent Model, name string, dest Model) error {
	spec, prv, err := c.resolve(parent)
	if err != nil {
		return err
	}
	edge, ok := spec.Relation(name)
	if !ok {
		return &UnknownRelationError{Model: spec.Name, Name: name}
	}
	if edge.Kind != relation.BelongsTo {
		return &RelationKindError{Model: spec.Name, Name: name, Want: relation.BelongsTo, Got: edge.Kind}
	}
	target, trv, err := c.resolve(dest)
	if err != nil {
		return err
	}
	if target.Table != edge.Target.Table() {
		return &UnknownRelationError{Model: target.Name, Name: name}
	}
	where, err := relatedWhere(spec, edge, prv)
	if err != nil {
		return err
	}
	found, err := c.eng.selectOne(ctx, target, trv, where)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError(target.Table, nil)
	}
	return nil
}

// ListRelated loads the has-many children of parent's relation into dest,
// a pointer to a slice of the child model.
func (c *Client) ListRelated(ctx context.Context, parent Model, name string, dest any, q Query) error {
	spec, prv, err := c.resolve(parent)
	if err != nil {
		return err
	}
	edge, ok := spec.Relation(name)
	if !ok {
		return &UnknownRelationError{Model: spec.Name, Name: name}
	}
	if edge.Kind != relation.HasMany {
		return &RelationKindError{Model: spec.Name, Name: name, Want: relation.HasMany, Got: edge.Kind}
	}
	target, slice, err := c.resolveSlice(dest)
	if err != nil {
		return err
	}
	if target.Table != edge.Target.Table() {
		return &UnknownRelationError{Model: target.Name, Name: name}
	}
	where, err := relatedWhere(spec, edge, prv)
	if err != nil {
		return err
	}
	q.Where = cond.All(where, q.Where)
	return c.eng.list(ctx, target, q, slice)
}

// Load populates the relation fields of already-loaded records. dest is a
// model pointer or a slice of them.
func (c *Client) Load(ctx context.Context, dest any, include ...string) error {
	if len(include) == 0 {
		return nil
	}
	rv := reflect.ValueOf(dest)
	if rv.Kind() == reflect.Pointer && rv.Elem().Kind() == reflect.Slice {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice {
		m, ok := dest.(Model)
		if !ok {
			return fmt.Errorf("sqlmap: Load expects a model or a slice of models, got %T", dest)
		}
		spec, mrv, err := c.resolve(m)
		if err != nil {
			return err
		}
		slice := reflect.MakeSlice(reflect.SliceOf(reflect.PointerTo(spec.Type)), 0, 1)
		slice = reflect.Append(slice, mrv.Addr())
		return c.eng.eagerLoad(ctx, spec, slice, include)
	}
	if rv.Len() == 0 {
		return nil
	}
	elem := rv.Type().Elem()
	for elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	spec, err := c.reg.specForType(elem)
	if err != nil {
		return err
	}
	return c.eng.eagerLoad(ctx, spec, rv, include)
}

// resolve returns the spec and the addressable struct value behind m.
func (c *Client) resolve(m Model) (*ModelSpec, reflect.Value, error) {
	spec, err := c.reg.Spec(m)
	if err != nil {
		return nil, reflect.Value{}, err
	}
	rv := reflect.ValueOf(m)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, reflect.Value{}, fmt.Errorf("sqlmap: model must be a non-nil pointer, got %T", m)
	}
	return spec, rv.Elem(), nil
}

// resolveSlice returns the spec for dest's element type and the settable
// slice value. dest must be a pointer to a slice of the model struct or of
// pointers to it.
func (c *Client) resolveSlice(dest any) (*ModelSpec, reflect.Value, error) {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Slice {
		return nil, reflect.Value{}, fmt.Errorf("sqlmap: destination must be a pointer to a slice, got %T", dest)
	}
	slice := rv.Elem()
	elem := slice.Type().Elem()
	for elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	spec, err := c.reg.specForType(elem)
	if err != nil {
		return nil, reflect.Value{}, err
	}
	return spec, slice, nil
}

// orderByReferences sorts specs so foreign-key targets precede their
// referrers. Cycles fall back to the incoming order.
func orderByReferences(specs []*ModelSpec) []*ModelSpec {
	byTable := make(map[string]*ModelSpec, len(specs))
	for _, s := range specs {
		byTable[s.Table] = s
	}
	var (
		out     []*ModelSpec
		state   = make(map[string]int, len(specs)) // 0 new, 1 visiting, 2 done
		visit   func(s *ModelSpec)
	)
	visit = func(s *ModelSpec) {
		if state[s.Table] != 0 {
			return
		}
		state[s.Table] = 1
		for _, f := range s.Fields {
			if f.ForeignKey == nil {
				continue
			}
			if t, ok := byTable[f.ForeignKey.RefTable]; ok && state[t.Table] == 0 {
				visit(t)
			}
		}
		state[s.Table] = 2
		out = append(out, s)
	}
	for _, s := range specs {
		visit(s)
	}
	return out
}
