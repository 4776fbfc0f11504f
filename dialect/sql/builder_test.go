package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/sqlmap/cond"
	"github.com/syssam/sqlmap/dialect"
)

func TestSelectBuilder(t *testing.T) {
	d := mustDialect(t, dialect.Postgres)
	query, args, err := Select(d, "users").
		Columns("id", "name").
		Where(cond.And(cond.Gt("age", 21), cond.Eq("active", true))).
		OrderBy(cond.Desc("created_at"), cond.Asc("id")).
		Limit(10).
		Offset(20).
		Build()
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "id", "name" FROM "users" WHERE ("age" > $1) AND ("active" = $2) ORDER BY "created_at" DESC, "id" ASC LIMIT $3 OFFSET $4`,
		query)
	assert.Equal(t, []any{21, true, 10, 20}, args)
}

func TestSelectCount(t *testing.T) {
	d := mustDialect(t, dialect.MySQL)
	query, args, err := Select(d, "users").Count().Where(cond.Eq("active", true)).Build()
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM `users` WHERE `active` = ?", query)
	assert.Equal(t, []any{true}, args)
}

func TestInsertBuilder(t *testing.T) {
	t.Run("returning on postgres", func(t *testing.T) {
		d := mustDialect(t, dialect.Postgres)
		b := Insert(d, "users").Columns("name", "email").Values("ada", "ada@test").Returning("id")
		query, args, err := b.Build()
		require.NoError(t, err)
		assert.True(t, b.UseReturning())
		assert.Equal(t, `INSERT INTO "users" ("name", "email") VALUES ($1, $2) RETURNING "id"`, query)
		assert.Equal(t, []any{"ada", "ada@test"}, args)
	})
	t.Run("no returning on mysql", func(t *testing.T) {
		d := mustDialect(t, dialect.MySQL)
		b := Insert(d, "users").Columns("name").Values("ada").Returning("id")
		query, _, err := b.Build()
		require.NoError(t, err)
		assert.False(t, b.UseReturning())
		assert.Equal(t, "INSERT INTO `users` (`name`) VALUES (?)", query)
	})
	t.Run("multi row", func(t *testing.T) {
		d := mustDialect(t, dialect.SQLite)
		query, args, err := Insert(d, "users").
			Columns("name", "age").
			Values("ada", 36).
			Values("alan", 41).
			Build()
		require.NoError(t, err)
		assert.Equal(t, `INSERT INTO "users" ("name", "age") VALUES (?, ?), (?, ?)`, query)
		assert.Equal(t, []any{"ada", 36, "alan", 41}, args)
	})
	t.Run("row arity mismatch", func(t *testing.T) {
		d := mustDialect(t, dialect.SQLite)
		_, _, err := Insert(d, "users").Columns("name").Values("ada", 36).Build()
		require.Error(t, err)
		assert.True(t, cond.IsInvalidCondition(err))
	})
	t.Run("no columns", func(t *testing.T) {
		query, _, err := Insert(mustDialect(t, dialect.SQLite), "ticks").Build()
		require.NoError(t, err)
		assert.Equal(t, `INSERT INTO "ticks" DEFAULT VALUES`, query)
		query, _, err = Insert(mustDialect(t, dialect.MySQL), "ticks").Build()
		require.NoError(t, err)
		assert.Equal(t, "INSERT INTO `ticks` () VALUES ()", query)
	})
}

func TestUpdateBuilder(t *testing.T) {
	d := mustDialect(t, dialect.Postgres)
	query, args, err := Update(d, "users").
		Set("name", "ada").
		Set("age", 37).
		Where(cond.Eq("id", 5)).
		Build()
	require.NoError(t, err)
	// Assignments bind before predicate parameters.
	assert.Equal(t, `UPDATE "users" SET "name" = $1, "age" = $2 WHERE "id" = $3`, query)
	assert.Equal(t, []any{"ada", 37, 5}, args)
}

func TestUpdateBuilderNoWhere(t *testing.T) {
	d := mustDialect(t, dialect.SQLite)
	query, args, err := Update(d, "users").Set("active", false).Build()
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "users" SET "active" = ?`, query)
	assert.Equal(t, []any{false}, args)
}

func TestDeleteBuilder(t *testing.T) {
	d := mustDialect(t, dialect.MySQL)
	query, args, err := Delete(d, "users").Where(cond.In("id", 1, 2)).Build()
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM `users` WHERE `id` IN (?, ?)", query)
	assert.Equal(t, []any{1, 2}, args)
}
