package sql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestConstraintClassification(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		unique bool
		fk     bool
	}{
		{
			name:   "mysql duplicate entry",
			err:    &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'ada@test' for key 'users.email'"},
			unique: true,
		},
		{
			name: "mysql missing parent",
			err:  &mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row: a foreign key constraint fails"},
			fk:   true,
		},
		{
			name:   "postgres unique violation",
			err:    &pq.Error{Code: "23505", Message: `duplicate key value violates unique constraint "users_email_key"`},
			unique: true,
		},
		{
			name: "postgres fk violation",
			err:  &pq.Error{Code: "23503", Message: `insert or update on table "posts" violates foreign key constraint "posts_user_id_fkey"`},
			fk:   true,
		},
		{
			name:   "sqlite unique message",
			err:    errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"),
			unique: true,
		},
		{
			name: "sqlite fk message",
			err:  errors.New("constraint failed: FOREIGN KEY constraint failed (787)"),
			fk:   true,
		},
		{
			name: "unrelated error",
			err:  errors.New("connection refused"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unique, IsUniqueConstraintError(tt.err))
			assert.Equal(t, tt.fk, IsForeignKeyConstraintError(tt.err))
			assert.Equal(t, tt.unique || tt.fk, IsConstraintError(tt.err))
		})
	}
}

func TestConstraintClassificationWrapped(t *testing.T) {
	inner := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	err := fmt.Errorf("insert users: %w", inner)
	assert.True(t, IsUniqueConstraintError(err))
}

func TestWrapConstraintError(t *testing.T) {
	inner := errors.New("UNIQUE constraint failed: users.email")
	err := WrapConstraintError(inner)
	assert.True(t, IsConstraintError(err))
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "sqlmap: constraint failed")
}

func TestIsConstraintErrorNil(t *testing.T) {
	assert.False(t, IsConstraintError(nil))
	assert.False(t, IsUniqueConstraintError(nil))
	assert.False(t, IsForeignKeyConstraintError(nil))
}
