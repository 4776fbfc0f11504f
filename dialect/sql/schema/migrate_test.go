package schema

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/sqlmap/dialect"
	velsql "github.com/syssam/sqlmap/dialect/sql"
)

func mockMigrate(t *testing.T, opts ...MigrateOption) (*Migrate, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	m, err := NewMigrate(velsql.OpenDB(dialect.SQLite, db), opts...)
	require.NoError(t, err)
	return m, mock
}

func expectNoTable(mock sqlmock.Sqlmock, name string) {
	mock.ExpectQuery("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?").
		WithArgs(name).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
}

func expectTable(mock sqlmock.Sqlmock, name string) {
	mock.ExpectQuery("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?").
		WithArgs(name).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow(name))
}

func TestEnsureCreatesMissingTable(t *testing.T) {
	m, mock := mockMigrate(t)
	expectNoTable(mock, "users")
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE "users" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "name" TEXT NOT NULL, "email" TEXT NOT NULL, "bio" TEXT NULL)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE UNIQUE INDEX "uidx_users_email" ON "users" ("email")`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, m.Ensure(context.Background(), usersTable()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureIdempotentMode(t *testing.T) {
	m, mock := mockMigrate(t, WithIdempotent())
	expectNoTable(mock, "users")
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "users" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "name" TEXT NOT NULL, "email" TEXT NOT NULL, "bio" TEXT NULL)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE UNIQUE INDEX IF NOT EXISTS "uidx_users_email" ON "users" ("email")`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, m.Ensure(context.Background(), usersTable()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureAddsMissingColumn(t *testing.T) {
	m, mock := mockMigrate(t)
	expectTable(mock, "users")
	mock.ExpectQuery(`PRAGMA table_info("users")`).WillReturnRows(
		sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"}).
			AddRow(0, "id", "INTEGER", 1, nil, 1).
			AddRow(1, "name", "TEXT", 1, nil, 0).
			AddRow(2, "email", "TEXT", 1, nil, 0))
	mock.ExpectExec(`ALTER TABLE "users" ADD COLUMN "bio" TEXT NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`PRAGMA index_list("users")`).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "name", "unique", "origin", "partial"}))
	mock.ExpectExec(`CREATE UNIQUE INDEX "uidx_users_email" ON "users" ("email")`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, m.Ensure(context.Background(), usersTable()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureNoChanges(t *testing.T) {
	m, mock := mockMigrate(t)
	expectTable(mock, "users")
	mock.ExpectQuery(`PRAGMA table_info("users")`).WillReturnRows(
		sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"}).
			AddRow(0, "id", "INTEGER", 1, nil, 1).
			AddRow(1, "name", "TEXT", 1, nil, 0).
			AddRow(2, "email", "TEXT", 1, nil, 0).
			AddRow(3, "bio", "TEXT", 0, nil, 0))
	mock.ExpectQuery(`PRAGMA index_list("users")`).WillReturnRows(
		sqlmock.NewRows([]string{"seq", "name", "unique", "origin", "partial"}).
			AddRow(0, "uidx_users_email", 1, "c", 0))
	mock.ExpectQuery(`PRAGMA index_info("uidx_users_email")`).WillReturnRows(
		sqlmock.NewRows([]string{"seqno", "cid", "name"}).AddRow(0, 2, "email"))

	require.NoError(t, m.Ensure(context.Background(), usersTable()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureConflictRaise(t *testing.T) {
	m, mock := mockMigrate(t)
	expectTable(mock, "users")
	mock.ExpectQuery(`PRAGMA table_info("users")`).WillReturnRows(
		sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"}).
			AddRow(0, "id", "INTEGER", 1, nil, 1).
			AddRow(1, "name", "TEXT", 1, nil, 0).
			AddRow(2, "email", "INTEGER", 1, nil, 0).
			AddRow(3, "bio", "TEXT", 0, nil, 0))

	err := m.Ensure(context.Background(), usersTable())
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "users", ce.Table)
	assert.NotEmpty(t, ce.Conflicts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureConflictRecreate(t *testing.T) {
	m, mock := mockMigrate(t, WithConflictPolicy(ConflictRecreate))
	expectTable(mock, "users")
	mock.ExpectQuery(`PRAGMA table_info("users")`).WillReturnRows(
		sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"}).
			AddRow(0, "id", "INTEGER", 1, nil, 1).
			AddRow(1, "name", "INTEGER", 1, nil, 0).
			AddRow(2, "email", "TEXT", 1, nil, 0).
			AddRow(3, "bio", "TEXT", 0, nil, 0))
	mock.ExpectExec(`DROP TABLE "users"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE "users" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, "name" TEXT NOT NULL, "email" TEXT NOT NULL, "bio" TEXT NULL)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE UNIQUE INDEX "uidx_users_email" ON "users" ("email")`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, m.Ensure(context.Background(), usersTable()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureMissingNotNullColumnConflicts(t *testing.T) {
	m, mock := mockMigrate(t)
	expectTable(mock, "users")
	mock.ExpectQuery(`PRAGMA table_info("users")`).WillReturnRows(
		sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"}).
			AddRow(0, "id", "INTEGER", 1, nil, 1).
			AddRow(1, "name", "TEXT", 1, nil, 0).
			AddRow(2, "bio", "TEXT", 0, nil, 0))

	err := m.Ensure(context.Background(), usersTable())
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureRebuildsChangedIndex(t *testing.T) {
	m, mock := mockMigrate(t)
	expectTable(mock, "users")
	mock.ExpectQuery(`PRAGMA table_info("users")`).WillReturnRows(
		sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"}).
			AddRow(0, "id", "INTEGER", 1, nil, 1).
			AddRow(1, "name", "TEXT", 1, nil, 0).
			AddRow(2, "email", "TEXT", 1, nil, 0).
			AddRow(3, "bio", "TEXT", 0, nil, 0))
	// Existing index has the right name but is not unique.
	mock.ExpectQuery(`PRAGMA index_list("users")`).WillReturnRows(
		sqlmock.NewRows([]string{"seq", "name", "unique", "origin", "partial"}).
			AddRow(0, "uidx_users_email", 0, "c", 0))
	mock.ExpectQuery(`PRAGMA index_info("uidx_users_email")`).WillReturnRows(
		sqlmock.NewRows([]string{"seqno", "cid", "name"}).AddRow(0, 2, "email"))
	mock.ExpectExec(`DROP INDEX "uidx_users_email"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE UNIQUE INDEX "uidx_users_email" ON "users" ("email")`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, m.Ensure(context.Background(), usersTable()))
	require.NoError(t, mock.ExpectationsWereMet())
}
