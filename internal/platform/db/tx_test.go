package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx    *fakeTx
	calls int
	err   error
}

func (b *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestTxFromContext_Nil(t *testing.T) {
	assert.Nil(t, TxFromContext(context.Background()))
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	assert.Nil(t, TxFromContext(ctx))
}

func TestWithTx_NoBeginner(t *testing.T) {
	err := WithTx(context.Background(), nil, func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestWithTx_Commits(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	var seen pgx.Tx
	err := WithTx(context.Background(), b, func(ctx context.Context) error {
		seen = TxFromContext(ctx)
		return nil
	})
	require.NoError(t, err)
	assert.Same(t, b.tx, seen)
	assert.True(t, b.tx.committed)
	assert.False(t, b.tx.rolledBack)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	wantErr := errors.New("boom")
	err := WithTx(context.Background(), b, func(ctx context.Context) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, b.tx.committed)
	assert.True(t, b.tx.rolledBack)
}

func TestWithTx_BeginError(t *testing.T) {
	b := &fakeBeginner{err: errors.New("pool closed")}
	called := false
	err := WithTx(context.Background(), b, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called, "callback must not run when begin fails")
}

func TestWithTx_CommitError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{commitErr: errors.New("serialization failure")}}
	err := WithTx(context.Background(), b, func(ctx context.Context) error { return nil })
	assert.Error(t, err)
	assert.True(t, b.tx.rolledBack, "expected rollback after failed commit")
}

func TestWithTx_NestedJoinsOuter(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	err := WithTx(context.Background(), b, func(ctx context.Context) error {
		return WithTx(ctx, b, func(inner context.Context) error {
			assert.Same(t, b.tx, TxFromContext(inner))
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, b.calls)
}
