package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	err       error
	committed []Commitment
}

func (f *fakeAdapter) Commit(_ context.Context, c Commitment) error {
	if f.err != nil {
		return f.err
	}
	f.committed = append(f.committed, c)
	return nil
}

func TestLoggingAdapterPassesThroughSuccess(t *testing.T) {
	inner := &fakeAdapter{}
	la := &LoggingAdapter{Inner: inner}

	c := Commitment{EpochStart: 8}
	require.NoError(t, la.Commit(context.Background(), c))
	require.Len(t, inner.committed, 1)
}

func TestLoggingAdapterPropagatesError(t *testing.T) {
	boom := errors.New("lockchain unreachable")
	inner := &fakeAdapter{err: boom}
	la := &LoggingAdapter{Inner: inner}

	err := la.Commit(context.Background(), Commitment{EpochStart: 8})
	require.ErrorIs(t, err, boom)
}
