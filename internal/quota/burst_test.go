package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBurstStoreNotConsultedWhilePrimaryHasCapacity(t *testing.T) {
	base := NewMemoryStore(time.Hour)
	bs := NewBurstStore(base, base, Quota{Limit: 2, Window: 10 * time.Second})
	defer bs.Close()

	q := Quota{Limit: 3, Window: time.Minute}

	for i := 1; i <= 3; i++ {
		res, err := bs.Consume(context.Background(), "k", q)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3-i, res.Remaining)
	}
}

func TestBurstStoreGrantsExtraCapacity(t *testing.T) {
	base := NewMemoryStore(time.Hour)
	bs := NewBurstStore(base, base, Quota{Limit: 2, Window: 10 * time.Second})
	defer bs.Close()

	q := Quota{Limit: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		bs.Consume(context.Background(), "k", q)
	}

	// Two more served from the burst allowance
	for i := 1; i <= 2; i++ {
		res, err := bs.Consume(context.Background(), "k", q)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining, "burst consumption reports the exhausted primary quota")
		assert.Equal(t, 3, res.Limit)
	}

	// Both exhausted
	res, err := bs.Consume(context.Background(), "k", q)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}

func TestBurstStoreCombinedConsumed(t *testing.T) {
	base := NewMemoryStore(time.Hour)
	bs := NewBurstStore(base, base, Quota{Limit: 1, Window: 10 * time.Second})
	defer bs.Close()

	q := Quota{Limit: 2, Window: time.Minute}

	bs.Consume(context.Background(), "k", q)
	bs.Consume(context.Background(), "k", q)

	res, err := bs.Consume(context.Background(), "k", q)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Consumed, "primary rejection plus the burst unit")
}

func TestBurstStoreErrorReportsPrimaryRejection(t *testing.T) {
	base := NewMemoryStore(time.Hour)
	failing := &failingStore{}
	bs := NewBurstStore(base, failing, Quota{Limit: 2, Window: 10 * time.Second})
	defer bs.Close()

	q := Quota{Limit: 1, Window: time.Minute}

	bs.Consume(context.Background(), "k", q)

	res, err := bs.Consume(context.Background(), "k", q)
	require.NoError(t, err, "a burst counter failure must not surface as an outage")
	assert.False(t, res.Allowed)
}

type failingStore struct{}

func (f *failingStore) Consume(context.Context, string, Quota) (Result, error) {
	return Result{}, errors.New("burst backend down")
}

func (f *failingStore) Close() error { return nil }
