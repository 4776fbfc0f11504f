package sqlmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/sqlmap/schema/field"
)

func TestBuildSpec(t *testing.T) {
	spec, err := buildSpec(User{})
	require.NoError(t, err)
	assert.Equal(t, "users", spec.Table)
	assert.Equal(t, "User", spec.Name)
	assert.Equal(t, []string{"id", "name", "email", "active", "created_at"}, spec.Columns())
	require.NotNil(t, spec.PK)
	assert.Equal(t, "id", spec.PK.Name)
	assert.True(t, spec.PK.AutoIncrement)
	require.Len(t, spec.Indexes, 1)
	assert.True(t, spec.Indexes[0].Unique)
	assert.Equal(t, []string{"email"}, spec.Indexes[0].Columns)
}

func TestBuildSpecCombinesIndexes(t *testing.T) {
	spec, err := buildSpec(Post{})
	require.NoError(t, err)
	require.Len(t, spec.Indexes, 1)
	assert.Equal(t, []string{"user_id", "title"}, spec.Indexes[0].Columns)
}

type taggedModel struct {
	Key  int64  `db:"id"`
	Body string `db:"content"`
}

func (taggedModel) Table() string { return "tagged" }

func (taggedModel) Fields() []*field.Builder {
	return []*field.Builder{
		field.Int64("id").PrimaryKey().AutoIncrement(),
		field.Text("content"),
	}
}

func TestBuildSpecDBTag(t *testing.T) {
	spec, err := buildSpec(taggedModel{})
	require.NoError(t, err)
	f := spec.Field("content")
	require.NotNil(t, f)
	assert.Equal(t, "Body", spec.Type.FieldByIndex(f.StructIndex).Name)
}

type noPKModel struct{ Name string }

func (noPKModel) Table() string { return "nopk" }
func (noPKModel) Fields() []*field.Builder {
	return []*field.Builder{field.String("name")}
}

type twoPKModel struct{ A, B int64 }

func (twoPKModel) Table() string { return "twopk" }
func (twoPKModel) Fields() []*field.Builder {
	return []*field.Builder{
		field.Int64("a").PrimaryKey(),
		field.Int64("b").PrimaryKey(),
	}
}

type unmappedModel struct{ ID int64 }

func (unmappedModel) Table() string { return "unmapped" }
func (unmappedModel) Fields() []*field.Builder {
	return []*field.Builder{
		field.Int64("id").PrimaryKey(),
		field.String("missing"),
	}
}

type badFieldModel struct {
	ID  int64
	Ref string
}

func (badFieldModel) Table() string { return "badfield" }
func (badFieldModel) Fields() []*field.Builder {
	return []*field.Builder{
		field.Int64("id").PrimaryKey(),
		field.String("ref").References("not-a-ref"),
	}
}

func TestBuildSpecErrors(t *testing.T) {
	tests := []struct {
		name  string
		model Model
		msg   string
	}{
		{"no primary key", noPKModel{}, "no primary key"},
		{"two primary keys", twoPKModel{}, "multiple primary keys"},
		{"unmapped column", unmappedModel{}, `column "missing"`},
		{"bad field declaration", badFieldModel{}, "table.column"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildSpec(tt.model)
			require.Error(t, err)
			assert.True(t, IsSpecError(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestBuildSpecErrorsSurfaceBeforeUse(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(noPKModel{})
	require.Error(t, err)
	assert.True(t, IsSpecError(err))
	_, err = reg.Spec(noPKModel{})
	assert.True(t, IsNotRegistered(err))
}
