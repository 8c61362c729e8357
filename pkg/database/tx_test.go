package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestWithinTxCommitsOnSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	mgr := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE session_tokens").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := mgr.WithinTx(context.Background(), func(ctx context.Context) error {
		_, ok := TxFromContext(ctx)
		assert.True(t, ok)
		_, err := Conn(ctx, db).ExecContext(ctx, "UPDATE session_tokens SET active = FALSE")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	mgr := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := mgr.WithinTx(context.Background(), func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxReusesOuterTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	mgr := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := mgr.WithinTx(context.Background(), func(outer context.Context) error {
		outerTx, _ := TxFromContext(outer)
		return mgr.WithinTx(outer, func(inner context.Context) error {
			innerTx, _ := TxFromContext(inner)
			assert.Same(t, outerTx, innerTx)
			return nil
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnFallsBackToDB(t *testing.T) {
	db, _ := newMockDB(t)
	assert.Equal(t, DBTX(db), Conn(context.Background(), db))
}
