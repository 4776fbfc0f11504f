package sqlmap

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/sqlmap/schema/field"
)

func fieldSpec(t *testing.T, b *field.Builder, goType any) *FieldSpec {
	t.Helper()
	desc := b.Descriptor()
	require.NoError(t, desc.Err)
	return &FieldSpec{Descriptor: desc, GoType: reflect.TypeOf(goType)}
}

func TestEncodeEnum(t *testing.T) {
	f := fieldSpec(t, field.Enum("status").Values("draft", "published"), "")
	v, err := encodeValue(f, "draft")
	require.NoError(t, err)
	assert.Equal(t, "draft", v)

	_, err = encodeValue(f, "archived")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"archived"`)
}

func TestEncodeEnumOptionalEmpty(t *testing.T) {
	f := fieldSpec(t, field.Enum("status").Values("draft").Optional(), "")
	v, err := encodeValue(f, "")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestEncodeEnumNamedType(t *testing.T) {
	type status string
	f := fieldSpec(t, field.Enum("status").Values("on", "off"), status(""))
	v, err := encodeValue(f, status("on"))
	require.NoError(t, err)
	assert.Equal(t, "on", v)
}

func TestDecodeEnumPreservesUnknownValue(t *testing.T) {
	f := fieldSpec(t, field.Enum("status").Values("draft"), "")
	var dst string
	require.NoError(t, decodeValue(f, "legacy", reflect.ValueOf(&dst).Elem()))
	assert.Equal(t, "legacy", dst)
}

func TestJSONRoundTrip(t *testing.T) {
	f := fieldSpec(t, field.JSON("tags"), []string(nil))
	enc, err := encodeValue(f, []string{"go", "sql"})
	require.NoError(t, err)
	assert.Equal(t, `["go","sql"]`, enc)

	var dst []string
	require.NoError(t, decodeValue(f, enc, reflect.ValueOf(&dst).Elem()))
	assert.Equal(t, []string{"go", "sql"}, dst)
}

func TestJSONEmptyContainers(t *testing.T) {
	f := fieldSpec(t, field.JSON("tags"), []string(nil))
	enc, err := encodeValue(f, []string{})
	require.NoError(t, err)
	assert.Equal(t, `[]`, enc)

	var dst []string
	require.NoError(t, decodeValue(f, enc, reflect.ValueOf(&dst).Elem()))
	require.NotNil(t, dst)
	assert.Empty(t, dst)

	m := fieldSpec(t, field.JSON("meta"), map[string]int(nil))
	enc, err = encodeValue(m, map[string]int{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, enc)

	var meta map[string]int
	require.NoError(t, decodeValue(m, enc, reflect.ValueOf(&meta).Elem()))
	require.NotNil(t, meta)
	assert.Empty(t, meta)
}

func TestJSONDecodesBytes(t *testing.T) {
	f := fieldSpec(t, field.JSON("meta"), map[string]int(nil))
	var dst map[string]int
	require.NoError(t, decodeValue(f, []byte(`{"a":1}`), reflect.ValueOf(&dst).Elem()))
	assert.Equal(t, map[string]int{"a": 1}, dst)
}

type csvCodec struct{}

func (csvCodec) Encode(v any) (any, error) {
	return strings.Join(v.([]string), ","), nil
}

func (csvCodec) Decode(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", v)
	}
	return strings.Split(s, ","), nil
}

func TestCustomCodec(t *testing.T) {
	f := fieldSpec(t, field.String("langs").UseCodec(csvCodec{}), []string(nil))
	enc, err := encodeValue(f, []string{"en", "fr"})
	require.NoError(t, err)
	assert.Equal(t, "en,fr", enc)

	var dst []string
	require.NoError(t, decodeValue(f, "en,fr", reflect.ValueOf(&dst).Elem()))
	assert.Equal(t, []string{"en", "fr"}, dst)
}

func TestDecodeNull(t *testing.T) {
	f := fieldSpec(t, field.String("name").Optional(), "")
	dst := "previous"
	require.NoError(t, decodeValue(f, nil, reflect.ValueOf(&dst).Elem()))
	assert.Equal(t, "", dst)

	fp := fieldSpec(t, field.String("nick").Optional(), (*string)(nil))
	var pdst *string
	prev := "x"
	pdst = &prev
	require.NoError(t, decodeValue(fp, nil, reflect.ValueOf(&pdst).Elem()))
	assert.Nil(t, pdst)
}

func TestEncodeNilPointer(t *testing.T) {
	f := fieldSpec(t, field.String("nick").Optional(), (*string)(nil))
	v, err := encodeValue(f, (*string)(nil))
	require.NoError(t, err)
	assert.Nil(t, v)

	s := "ada"
	v, err = encodeValue(f, &s)
	require.NoError(t, err)
	assert.Equal(t, "ada", v)
}

func TestDecodeScalarConversions(t *testing.T) {
	t.Run("int64 to int", func(t *testing.T) {
		f := fieldSpec(t, field.Int("age"), 0)
		var dst int
		require.NoError(t, decodeValue(f, int64(42), reflect.ValueOf(&dst).Elem()))
		assert.Equal(t, 42, dst)
	})
	t.Run("int64 to bool", func(t *testing.T) {
		f := fieldSpec(t, field.Bool("active"), false)
		var dst bool
		require.NoError(t, decodeValue(f, int64(1), reflect.ValueOf(&dst).Elem()))
		assert.True(t, dst)
	})
	t.Run("bytes to string", func(t *testing.T) {
		f := fieldSpec(t, field.String("name"), "")
		var dst string
		require.NoError(t, decodeValue(f, []byte("ada"), reflect.ValueOf(&dst).Elem()))
		assert.Equal(t, "ada", dst)
	})
	t.Run("int64 does not become a rune string", func(t *testing.T) {
		f := fieldSpec(t, field.String("name"), "")
		var dst string
		err := decodeValue(f, int64(65), reflect.ValueOf(&dst).Elem())
		require.Error(t, err)
	})
	t.Run("string to time", func(t *testing.T) {
		f := fieldSpec(t, field.Time("created_at"), time.Time{})
		var dst time.Time
		require.NoError(t, decodeValue(f, "2026-08-30T10:00:00Z", reflect.ValueOf(&dst).Elem()))
		assert.Equal(t, 2026, dst.Year())
	})
}
